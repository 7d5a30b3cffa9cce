package bootstrap

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imfitboot/domain/core"
	"imfitboot/domain/ensemble"
	"imfitboot/domain/fit"
	"imfitboot/internal"
	"imfitboot/internal/testkit"
)

func quietSource() *Source {
	return NewSource(internal.NewLoggerTo(io.Discard, internal.LogLevelError))
}

func TestEnsembleRejectsNonPositiveTrialCount(t *testing.T) {
	fitted, err := testkit.NewFluxScenario([]float64{100, 16}, [][]float64{{100, 16}})
	require.NoError(t, err)

	for _, n := range []int{0, -1, -500} {
		_, err := quietSource().Ensemble(context.Background(), fitted, n)
		assert.True(t, errors.Is(err, core.ErrInvalidTrialCount), "n=%d: %v", n, err)
	}
	assert.Zero(t, fitted.BootstrapCalls(), "resampler must not run for invalid n")
}

func TestEnsembleRequiresConvergedFit(t *testing.T) {
	fitted, err := testkit.NewFluxScenario([]float64{100, 16}, [][]float64{{100, 16}})
	require.NoError(t, err)
	fitted.Res.Converged = false

	_, err = quietSource().Ensemble(context.Background(), fitted, 10)
	assert.True(t, errors.Is(err, core.ErrNotConverged))
	assert.Zero(t, fitted.BootstrapCalls())
}

func TestEnsembleShapeFollowsResampler(t *testing.T) {
	rows := [][]float64{{100, 16}, {100, 15.5}, {0, 0}}
	fitted, err := testkit.NewFluxScenario([]float64{100, 16}, rows)
	require.NoError(t, err)

	// ask for 5, resampler produced 3: N comes from the ensemble itself
	ens, err := quietSource().Ensemble(context.Background(), fitted, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, ens.Rows())
	assert.Equal(t, 2, ens.Cols())
	assert.EqualValues(t, 1, fitted.BootstrapCalls())
}

func TestEnsembleDimensionMismatch(t *testing.T) {
	fitted, err := testkit.NewFluxScenario([]float64{100, 16, 84}, [][]float64{{100, 16}})
	require.NoError(t, err)

	_, err = quietSource().Ensemble(context.Background(), fitted, 1)
	assert.True(t, errors.Is(err, core.ErrDimensionMismatch))
}

func TestEnsemblePropagatesResamplerErrors(t *testing.T) {
	fitted := &testkit.FakeFittedModel{
		Res:     fit.NewResult(true, []float64{1, 2}, nil),
		BootErr: core.ErrNoData,
	}
	_, err := quietSource().Ensemble(context.Background(), fitted, 10)
	assert.True(t, errors.Is(err, core.ErrNoData))

	fitted = &testkit.FakeFittedModel{Res: fit.NewResult(true, []float64{1, 2}, nil), Boot: (*ensemble.Ensemble)(nil)}
	_, err = quietSource().Ensemble(context.Background(), fitted, 10)
	assert.True(t, errors.Is(err, core.ErrInvalidTrialCount))
}
