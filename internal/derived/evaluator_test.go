package derived

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"imfitboot/domain/core"
	"imfitboot/domain/ensemble"
	"imfitboot/internal"
	"imfitboot/internal/testkit"
)

var quiet = internal.NewLoggerTo(io.Discard, internal.LogLevelError)

func bulgeFraction() QuantityFunc { return ComponentFraction(0) }

func TestEvaluateAllCollectsFailures(t *testing.T) {
	rows := [][]float64{{100, 16}, {200, 31}, {0, 0}}
	fitted, err := testkit.NewFluxScenario([]float64{100, 16}, rows, "bulge")
	require.NoError(t, err)

	ev := NewEvaluatorFor(fitted, Options{Workers: 3}, quiet)
	dist, err := ev.EvaluateAll(context.Background(), fitted.Boot, bulgeFraction())
	require.NoError(t, err)

	require.Len(t, dist.Succeeded, 2)
	assert.Equal(t, 0, dist.Succeeded[0].Index)
	assert.InDelta(t, 0.16, dist.Succeeded[0].Value, 1e-12)
	assert.Equal(t, 1, dist.Succeeded[1].Index)
	assert.InDelta(t, 0.155, dist.Succeeded[1].Value, 1e-12)

	require.Len(t, dist.Failed, 1)
	assert.Equal(t, 2, dist.Failed[0].Index)
	assert.Equal(t, core.KindUndefinedQuantity, dist.Failed[0].Kind)
	assert.True(t, errors.Is(dist.Failed[0].Err, core.ErrEvaluationFailure))
	assert.True(t, errors.Is(dist.Failed[0].Err, core.ErrUndefinedQuantity))

	vals := dist.Values()
	assert.InDelta(t, 0.1575, (vals[0]+vals[1])/2, 1e-12)
	assert.False(t, dist.Complete())
}

func TestEvaluateAllPartitionsIndices(t *testing.T) {
	rows := make([][]float64, 50)
	for i := range rows {
		total := float64(i % 5) // every fifth row has zero total flux
		rows[i] = []float64{total, 0.3 * total}
	}
	fitted, err := testkit.NewFluxScenario([]float64{1, 0.3}, rows)
	require.NoError(t, err)

	dist, err := NewEvaluatorFor(fitted, Options{Workers: 7}, quiet).
		EvaluateAll(context.Background(), fitted.Boot, bulgeFraction())
	require.NoError(t, err)

	seen := make(map[int]int)
	for _, rv := range dist.Succeeded {
		seen[rv.Index]++
	}
	for _, rf := range dist.Failed {
		seen[rf.Index]++
	}
	assert.Len(t, seen, 50)
	for i := 0; i < 50; i++ {
		assert.Equal(t, 1, seen[i], "row %d", i)
	}
	assert.Len(t, dist.Failed, 10)
	assert.Equal(t, 10, dist.FailureCounts()[core.KindUndefinedQuantity])
}

func TestEvaluateAllIsIdempotent(t *testing.T) {
	ens, err := testkit.SyntheticEnsemble(7, 64, []float64{100, 18}, []float64{4, 2})
	require.NoError(t, err)
	flux := &testkit.DirectFluxes{}
	ev := NewEvaluator(flux, 2, Options{Workers: 4}, quiet)

	first, err := ev.EvaluateAll(context.Background(), ens, bulgeFraction())
	require.NoError(t, err)
	second, err := ev.EvaluateAll(context.Background(), ens, bulgeFraction())
	require.NoError(t, err)

	assert.Equal(t, first.Succeeded, second.Succeeded)
	assert.Equal(t, len(first.Failed), len(second.Failed))
	assert.EqualValues(t, 128, flux.Calls())
}

func TestEvaluateAllPreservesRowOrder(t *testing.T) {
	ens, err := testkit.SyntheticEnsemble(42, 120, []float64{100, 20}, []float64{5, 3})
	require.NoError(t, err)

	sequential, err := NewEvaluator(&testkit.DirectFluxes{}, 2, Options{Workers: 1}, quiet).
		EvaluateAll(context.Background(), ens, bulgeFraction())
	require.NoError(t, err)

	jittered := &testkit.JitteredFluxes{Inner: &testkit.DirectFluxes{}, Max: 2 * time.Millisecond, Seed: 3}
	parallel, err := NewEvaluator(jittered, 2, Options{Workers: 16}, quiet).
		EvaluateAll(context.Background(), ens, bulgeFraction())
	require.NoError(t, err)

	assert.Equal(t, sequential.Succeeded, parallel.Succeeded)
	for i, rv := range parallel.Succeeded {
		assert.Equal(t, i, rv.Index)
	}
}

func TestEvaluateAllFailFast(t *testing.T) {
	rows := [][]float64{{100, 16}, {100, 17}, {0, 0}, {100, 18}, {100, 19}}
	fitted, err := testkit.NewFluxScenario([]float64{100, 16}, rows)
	require.NoError(t, err)

	for _, workers := range []int{1, 2, 8} {
		dist, err := NewEvaluatorFor(fitted, Options{Workers: workers, FailFast: true}, quiet).
			EvaluateAll(context.Background(), fitted.Boot, bulgeFraction())
		assert.Nil(t, dist)

		var evalErr *core.EvaluationError
		require.True(t, errors.As(err, &evalErr), "workers=%d: %v", workers, err)
		assert.Equal(t, 2, evalErr.Index)
		assert.Equal(t, core.KindUndefinedQuantity, evalErr.Kind())
		assert.True(t, errors.Is(err, core.ErrEvaluationFailure))
	}
}

func TestEvaluateAllFailFastSequentialStopsEarly(t *testing.T) {
	rows := [][]float64{{0, 0}, {100, 16}, {100, 17}, {100, 18}}
	flux := &testkit.DirectFluxes{}
	ens, err := ensemble.New(rows, nil)
	require.NoError(t, err)

	_, err = NewEvaluator(flux, 2, Options{Workers: 1, FailFast: true}, quiet).
		EvaluateAll(context.Background(), ens, bulgeFraction())
	require.Error(t, err)
	assert.EqualValues(t, 1, flux.Calls())
}

func TestEvaluateAllCanceledContext(t *testing.T) {
	ens, err := testkit.SyntheticEnsemble(1, 10, []float64{100, 20}, []float64{1, 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewEvaluator(&testkit.DirectFluxes{}, 2, Options{}, quiet).EvaluateAll(ctx, ens, bulgeFraction())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEvaluateAllRejectsEmptyEnsemble(t *testing.T) {
	_, err := NewEvaluator(&testkit.DirectFluxes{}, 2, Options{}, quiet).
		EvaluateAll(context.Background(), nil, bulgeFraction())
	assert.True(t, errors.Is(err, core.ErrInvalidTrialCount))
}

func TestEvaluateDimensionMismatchSkipsFluxEvaluator(t *testing.T) {
	m := new(testkit.MockFluxEvaluator)
	ev := NewEvaluator(m, 3, Options{}, quiet)

	_, err := ev.Evaluate(context.Background(), ensemble.Vector{1, 2}, bulgeFraction())
	assert.True(t, core.IsDimensionMismatch(err))
	m.AssertNotCalled(t, "EvaluateFluxes", mock.Anything, mock.Anything)
}

func TestEvaluateUsesFluxEvaluator(t *testing.T) {
	m := new(testkit.MockFluxEvaluator)
	vec := ensemble.Vector{129, 129, 2.5}
	m.On("EvaluateFluxes", mock.Anything, vec).
		Return(ensemble.Fluxes{Total: 400, Components: []float64{100, 300}, Names: []string{"bulge", "disk"}}, nil).Once()

	v, err := NewEvaluator(m, 3, Options{}, quiet).Evaluate(context.Background(), vec, ComponentRatio(0, 1))
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, v, 1e-12)
	m.AssertExpectations(t)
}

func TestEvaluateWrapsFluxErrors(t *testing.T) {
	m := new(testkit.MockFluxEvaluator)
	m.On("EvaluateFluxes", mock.Anything, mock.Anything).
		Return(ensemble.Fluxes{}, core.NewUnsupportedFunctionError("FerrersBar2D"))

	_, err := NewEvaluator(m, 1, Options{}, quiet).Evaluate(context.Background(), ensemble.Vector{1}, TotalFlux())
	assert.Equal(t, core.KindUnsupported, core.KindOf(err))
}

func TestEvaluateNonFiniteIsUndefined(t *testing.T) {
	nan := func(total float64, _ []float64) (float64, error) { return math.NaN(), nil }
	inf := func(total float64, _ []float64) (float64, error) { return math.Inf(1), nil }
	ev := NewEvaluator(&testkit.DirectFluxes{}, 2, Options{}, quiet)

	for _, fn := range []QuantityFunc{nan, inf} {
		_, err := ev.Evaluate(context.Background(), ensemble.Vector{1, 1}, fn)
		assert.True(t, core.IsUndefinedQuantity(err))
	}
}

type countingObserver struct {
	mu       sync.Mutex
	ok, fail int
}

func (c *countingObserver) ObserveRow(err error, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.fail++
		return
	}
	c.ok++
}

func TestEvaluateAllNotifiesObserver(t *testing.T) {
	rows := [][]float64{{100, 16}, {0, 0}, {50, 5}}
	ens, err := ensemble.New(rows, nil)
	require.NoError(t, err)

	obs := &countingObserver{}
	_, err = NewEvaluator(&testkit.DirectFluxes{}, 2, Options{Workers: 2}, quiet).
		WithObserver(obs).
		EvaluateAll(context.Background(), ens, bulgeFraction())
	require.NoError(t, err)
	assert.Equal(t, 2, obs.ok)
	assert.Equal(t, 1, obs.fail)
}
