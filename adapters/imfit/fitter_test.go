package imfit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imfitboot/domain/core"
	"imfitboot/domain/fit"
	"imfitboot/internal"
	apperrors "imfitboot/internal/errors"
	"imfitboot/internal/testkit"
)

const bestFitParams = `# Best-fit parameters from imfit
# Reduced Chi^2 = 1.0234
# CHI-SQUARE = 66001.5 (64493 DOF)
# AIC = 66023.5, BIC = 66124.2
GAIN	4.725

X0		129.1 # +/- 0.012
Y0		128.9 # +/- 0.011
FUNCTION Sersic   # LABEL bulge
PA		18.5 # +/- 0.4
ell		0.21 # +/- 0.003
n		2.4 # +/- 0.02
I_e		41 # +/- 0.5
r_e		6.1 # +/- 0.05

FUNCTION Exponential   # LABEL disk
PA		17.9 # +/- 0.2
ell		0.26 # +/- 0.002
I_0		301 # +/- 1.1
h		19.8 # +/- 0.09
`

const bootstrapOutput = `# Bootstrap resampling output (3 rounds)
# X0_1 Y0_1 PA_1 ell_1 n_1 I_e_1 r_e_1 PA_2 ell_2 I_0_2 h_2
129.11 128.91 18.4 0.211 2.41 40.8 6.12 17.8 0.261 300.5 19.82
129.09 128.88 18.6 0.209 2.39 41.2 6.08 18.0 0.259 301.6 19.79
129.10 128.90 18.5 0.210 2.40 41.0 6.10 17.9 0.260 301.0 19.80
`

// fakeRunner writes the files imfit would write and records invocations
type fakeRunner struct {
	mu        sync.Mutex
	calls     [][]string
	configs   []string
	params    string
	bootstrap string
	stdout    string
	err       error
}

func (r *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, args)
	if cfg, err := os.ReadFile(filepath.Join(dir, configFile)); err == nil {
		r.configs = append(r.configs, string(cfg))
	}
	if r.err != nil {
		return []byte(r.stdout), r.err
	}
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case "--save-params":
			if err := os.WriteFile(filepath.Join(dir, args[i+1]), []byte(r.params), 0o644); err != nil {
				return nil, err
			}
		case "--save-bootstrap":
			if err := os.WriteFile(filepath.Join(dir, args[i+1]), []byte(r.bootstrap), 0o644); err != nil {
				return nil, err
			}
		}
	}
	return []byte(r.stdout), nil
}

func (r *fakeRunner) lastArgs() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.calls[len(r.calls)-1], " ")
}

var quiet = internal.NewLoggerTo(io.Discard, internal.LogLevelError)

func newTestFitter(r *fakeRunner) *Fitter {
	return NewFitter(Options{Path: "imfit", MaxThreads: 2, WorkDir: ""}, r, nil, quiet)
}

func TestFitParsesBestFit(t *testing.T) {
	runner := &fakeRunner{params: bestFitParams, stdout: "Fit converged.\n"}
	spec := fit.ImageSpec{ImagePath: "ic3478.fits", MaskPath: "mask.fits", Gain: 4.725, ReadNoise: 4.3, OriginalSky: 130.1}

	fitted, err := newTestFitter(runner).Fit(context.Background(), testkit.BulgeDiskModel(), spec)
	require.NoError(t, err)

	res := fitted.Result()
	assert.True(t, res.Converged)
	assert.Equal(t, fit.StatChiSquare, res.StatisticName)
	assert.InDelta(t, 66001.5, res.Statistic, 1e-9)
	assert.InDelta(t, 1.0234, res.ReducedStatistic, 1e-9)
	assert.InDelta(t, 66023.5, res.AIC, 1e-9)
	assert.InDelta(t, 66124.2, res.BIC, 1e-9)
	require.Equal(t, 11, res.ParameterCount())
	assert.Equal(t, 129.1, res.BestFit[0])
	assert.Equal(t, 19.8, res.BestFit[10])
	require.Len(t, res.Uncertainties, 11)
	assert.Equal(t, 0.02, res.Uncertainties[4])

	// the fitted description carries best-fit values
	assert.Equal(t, []float64(res.BestFit), fitted.Description().RawParameters())

	args := runner.lastArgs()
	assert.Contains(t, args, "ic3478.fits -c model.cfg")
	assert.Contains(t, args, "--mask mask.fits")
	assert.Contains(t, args, "--gain=4.725")
	assert.Contains(t, args, "--readnoise=4.3")
	assert.Contains(t, args, "--sky=130.1")
	assert.Contains(t, args, "--max-threads 2")
	assert.Contains(t, args, "--save-params "+paramsName)
	assert.Contains(t, runner.configs[0], "FUNCTION Sersic   # LABEL bulge")
}

func TestFitReportsNonConvergence(t *testing.T) {
	runner := &fakeRunner{params: bestFitParams, stdout: "*** WARNING: fit did not converge\n"}
	fitted, err := newTestFitter(runner).Fit(context.Background(), testkit.BulgeDiskModel(), fit.ImageSpec{ImagePath: "a.fits"})
	require.NoError(t, err)
	assert.False(t, fitted.Result().Converged)

	_, err = fitted.RunBootstrap(context.Background(), 0)
	assert.ErrorIs(t, err, core.ErrInvalidTrialCount)
}

func TestFitStatisticFlags(t *testing.T) {
	params := strings.Replace(bestFitParams, "# CHI-SQUARE = 66001.5", "# POISSON-MLR STATISTIC = 812.25", 1)
	runner := &fakeRunner{params: params}
	fitted, err := newTestFitter(runner).Fit(context.Background(), testkit.BulgeDiskModel(),
		fit.ImageSpec{ImagePath: "a.fits", UsePoissonMLR: true})
	require.NoError(t, err)
	assert.Equal(t, fit.StatPoissonMLR, fitted.Result().StatisticName)
	assert.InDelta(t, 812.25, fitted.Result().Statistic, 1e-12)
	assert.Contains(t, runner.lastArgs(), "--poisson-mlr")
}

func TestFitRequiresImage(t *testing.T) {
	_, err := newTestFitter(&fakeRunner{}).Fit(context.Background(), testkit.BulgeDiskModel(), fit.ImageSpec{})
	assert.ErrorIs(t, err, core.ErrNoData)
}

func TestFitWrapsToolFailure(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("exit status 1"), stdout: "cannot open image"}
	_, err := newTestFitter(runner).Fit(context.Background(), testkit.BulgeDiskModel(), fit.ImageSpec{ImagePath: "a.fits"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeExternalTool, apperrors.GetCode(err))
}

func TestFitParameterCountMismatch(t *testing.T) {
	short := bestFitParams[:strings.Index(bestFitParams, "FUNCTION Exponential")]
	_, err := newTestFitter(&fakeRunner{params: short}).Fit(context.Background(), testkit.BulgeDiskModel(), fit.ImageSpec{ImagePath: "a.fits"})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestRunBootstrap(t *testing.T) {
	runner := &fakeRunner{params: bestFitParams, bootstrap: bootstrapOutput}
	fitted, err := newTestFitter(runner).Fit(context.Background(), testkit.BulgeDiskModel(), fit.ImageSpec{ImagePath: "a.fits"})
	require.NoError(t, err)

	ens, err := fitted.RunBootstrap(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, ens.Rows())
	assert.Equal(t, 11, ens.Cols())
	assert.Equal(t, "I_0_2", ens.Columns()[9])
	assert.Equal(t, 300.5, ens.Row(0)[9])

	assert.Contains(t, runner.lastArgs(), "--bootstrap 3 --save-bootstrap "+bootstrapName)
	// bootstrap restarts from the best fit
	assert.Contains(t, runner.configs[1], "X0\t\t129.1")

	fl, err := fitted.EvaluateFluxes(context.Background(), ens.Row(0))
	require.NoError(t, err)
	assert.Equal(t, []string{"bulge", "disk"}, fl.Names)
}

func TestRunBootstrapRestoresFixedColumns(t *testing.T) {
	desc := testkit.BulgeDiskModel()
	for _, f := range desc.Functions() {
		pa, _ := f.Parameter("PA")
		pa.Fixed = true
	}
	// only the 9 free parameters are reported
	free := `# X0_1 Y0_1 ell_1 n_1 I_e_1 r_e_1 ell_2 I_0_2 h_2
129.1 128.9 0.21 2.4 41 6.1 0.26 301 19.8
`
	runner := &fakeRunner{params: bestFitParams, bootstrap: free}
	fitted, err := newTestFitter(runner).Fit(context.Background(), desc, fit.ImageSpec{ImagePath: "a.fits"})
	require.NoError(t, err)

	ens, err := fitted.RunBootstrap(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 11, ens.Cols())
	row := ens.Row(0)
	assert.Equal(t, 18.5, row[2], "fixed bulge PA comes from the best fit")
	assert.Equal(t, 0.21, row[3])
	assert.Equal(t, 17.9, row[7], "fixed disk PA comes from the best fit")
	assert.Equal(t, "PA_1", ens.Columns()[2])
}

func TestRunBootstrapEmptyOutput(t *testing.T) {
	runner := &fakeRunner{params: bestFitParams, bootstrap: "# no rows\n"}
	fitted, err := newTestFitter(runner).Fit(context.Background(), testkit.BulgeDiskModel(), fit.ImageSpec{ImagePath: "a.fits"})
	require.NoError(t, err)

	_, err = fitted.RunBootstrap(context.Background(), 5)
	assert.ErrorIs(t, err, core.ErrInvalidTrialCount)
}
