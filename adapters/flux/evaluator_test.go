package flux

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imfitboot/domain/core"
	"imfitboot/domain/model"
	"imfitboot/internal/testkit"
)

func TestSersicB(t *testing.T) {
	// n=1 and n=4 reference values
	assert.InDelta(t, 1.678347, SersicB(1), 1e-5)
	assert.InDelta(t, 7.669249, SersicB(4), 1e-5)
	// Ciotti & Bertin asymptotic form, accurate for n > 0.36
	n := 2.5
	approx := 2*n - 1.0/3 + 4/(405*n) + 46/(25515*n*n)
	assert.InDelta(t, approx, SersicB(n), 1e-4)
}

func TestBulgeDiskFluxes(t *testing.T) {
	desc := testkit.BulgeDiskModel()
	ev, err := NewEvaluator(desc)
	require.NoError(t, err)
	assert.Equal(t, []string{"bulge", "disk"}, ev.Labels())

	fl, err := ev.EvaluateFluxes(context.Background(), desc.RawParameters())
	require.NoError(t, err)

	disk := 2 * math.Pi * 300 * 20 * 20 * 0.75
	assert.InDelta(t, disk, fl.Components[1], 1e-6)
	assert.Positive(t, fl.Components[0])
	assert.InDelta(t, fl.Components[0]+fl.Components[1], fl.Total, 1e-9)
}

func TestSersicWithUnitIndexMatchesExponential(t *testing.T) {
	// a Sersic n=1 profile is an exponential with h = r_e / b_1
	b := SersicB(1)
	h := 10.0
	re := h * b
	ie := 50 * math.Exp(-b)

	sersic := model.NewFunction("Sersic", "s",
		model.NewParameter("PA", 0), model.NewParameter("ell", 0.3), model.NewParameter("n", 1),
		model.NewParameter("I_e", ie), model.NewParameter("r_e", re))
	exp := model.NewFunction("Exponential", "e",
		model.NewParameter("PA", 0), model.NewParameter("ell", 0.3), model.NewParameter("I_0", 50),
		model.NewParameter("h", h))
	desc, err := model.NewSimpleDescription(nil, nil, sersic, exp)
	require.NoError(t, err)

	ev, err := NewEvaluator(desc)
	require.NoError(t, err)
	fl, err := ev.EvaluateFluxes(context.Background(), desc.RawParameters())
	require.NoError(t, err)
	assert.InDelta(t, fl.Components[1], fl.Components[0], 1e-6*fl.Components[1])
}

func TestGaussianMoffatAndSky(t *testing.T) {
	gauss := model.NewFunction("Gaussian", "core",
		model.NewParameter("PA", 0), model.NewParameter("ell", 0), model.NewParameter("I_0", 10),
		model.NewParameter("sigma", 2))
	moffat := model.NewFunction("Moffat", "psf",
		model.NewParameter("PA", 0), model.NewParameter("ell", 0), model.NewParameter("I_0", 10),
		model.NewParameter("fwhm", 3), model.NewParameter("beta", 3))
	sky := model.NewFunction("FlatSky", "sky", model.NewParameter("I_sky", 100))
	desc, err := model.NewSimpleDescription(nil, nil, gauss, moffat, sky)
	require.NoError(t, err)

	ev, err := NewEvaluator(desc)
	require.NoError(t, err)
	fl, err := ev.EvaluateFluxes(context.Background(), desc.RawParameters())
	require.NoError(t, err)

	assert.InDelta(t, 2*math.Pi*10*4, fl.Components[0], 1e-9)
	alpha := 3 / (2 * math.Sqrt(math.Pow(2, 1.0/3)-1))
	assert.InDelta(t, math.Pi*alpha*alpha*10/2, fl.Components[1], 1e-9)
	assert.Zero(t, fl.Components[2])
}

func TestUnsupportedFunction(t *testing.T) {
	bar := model.NewFunction("FerrersBar2D", "bar", model.NewParameter("PA", 0))
	desc, err := model.NewSimpleDescription(nil, nil, bar)
	require.NoError(t, err)

	_, err = NewEvaluator(desc)
	assert.ErrorIs(t, err, core.ErrUnsupportedFunction)
}

func TestEvaluateFluxesErrors(t *testing.T) {
	desc := testkit.BulgeDiskModel()
	ev, err := NewEvaluator(desc)
	require.NoError(t, err)

	_, err = ev.EvaluateFluxes(context.Background(), []float64{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	params := desc.RawParameters()
	params[6] = 0 // bulge r_e
	_, err = ev.EvaluateFluxes(context.Background(), params)
	assert.ErrorIs(t, err, core.ErrUndefinedQuantity)
}
