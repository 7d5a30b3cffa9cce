package testkit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"
	"gonum.org/v1/gonum/stat/distuv"

	"imfitboot/domain/core"
	"imfitboot/domain/ensemble"
	"imfitboot/domain/fit"
	"imfitboot/domain/model"
	"imfitboot/ports"
)

// BulgeDiskModel returns a one-set Sersic bulge + Exponential disk model with
// imfit-like starting values (P = 11).
func BulgeDiskModel() *model.Description {
	bulge := model.NewFunction("Sersic", "bulge",
		model.NewParameter("PA", 18), model.NewParameter("ell", 0.2), model.NewParameter("n", 2.5),
		model.NewParameter("I_e", 40), model.NewParameter("r_e", 6))
	disk := model.NewFunction("Exponential", "disk",
		model.NewParameter("PA", 18), model.NewParameter("ell", 0.25), model.NewParameter("I_0", 300),
		model.NewParameter("h", 20))
	d, err := model.NewSimpleDescription(model.NewParameter("X0", 129), model.NewParameter("Y0", 129), bulge, disk)
	if err != nil {
		panic(err)
	}
	d.Name = "bulge+disk"
	return d
}

// DirectFluxes is a flux evaluator for tests: params[0] is the total flux and
// params[1:] are the component fluxes. It makes flux scenarios readable in
// table form, e.g. {100, 16} for total 100 with bulge flux 16.
type DirectFluxes struct {
	Names []string
	calls atomic.Int64
}

// EvaluateFluxes implements ports.FluxEvaluator
func (d *DirectFluxes) EvaluateFluxes(ctx context.Context, params ensemble.Vector) (ensemble.Fluxes, error) {
	d.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return ensemble.Fluxes{}, err
	}
	if len(params) < 2 {
		return ensemble.Fluxes{}, core.NewDimensionError(2, len(params))
	}
	return ensemble.Fluxes{
		Total:      params[0],
		Components: append([]float64(nil), params[1:]...),
		Names:      d.Names,
	}, nil
}

// Calls returns how many rows were evaluated
func (d *DirectFluxes) Calls() int64 { return d.calls.Load() }

// JitteredFluxes delays every evaluation by a random amount up to Max so that
// parallel rows complete out of order.
type JitteredFluxes struct {
	Inner ports.FluxEvaluator
	Max   time.Duration
	Seed  uint64

	once sync.Once
	mu   sync.Mutex
	rng  *rand.Rand
}

// EvaluateFluxes implements ports.FluxEvaluator
func (j *JitteredFluxes) EvaluateFluxes(ctx context.Context, params ensemble.Vector) (ensemble.Fluxes, error) {
	j.once.Do(func() { j.rng = rand.New(rand.NewPCG(j.Seed, j.Seed+1)) })
	j.mu.Lock()
	delay := time.Duration(j.rng.Int64N(int64(j.Max) + 1))
	j.mu.Unlock()

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return ensemble.Fluxes{}, ctx.Err()
	}
	return j.Inner.EvaluateFluxes(ctx, params)
}

// FakeFittedModel is an in-memory ports.FittedModel
type FakeFittedModel struct {
	Res     fit.Result
	Desc    *model.Description
	Boot    *ensemble.Ensemble
	BootErr error
	Fluxes  ports.FluxEvaluator

	bootCalls atomic.Int64
}

// Result implements ports.FittedModel
func (f *FakeFittedModel) Result() fit.Result { return f.Res }

// Description implements ports.FittedModel
func (f *FakeFittedModel) Description() *model.Description { return f.Desc }

// RunBootstrap implements ports.Resampler
func (f *FakeFittedModel) RunBootstrap(ctx context.Context, n int) (*ensemble.Ensemble, error) {
	f.bootCalls.Add(1)
	if f.BootErr != nil {
		return nil, f.BootErr
	}
	return f.Boot, nil
}

// EvaluateFluxes implements ports.FluxEvaluator
func (f *FakeFittedModel) EvaluateFluxes(ctx context.Context, params ensemble.Vector) (ensemble.Fluxes, error) {
	if f.Fluxes == nil {
		return ensemble.Fluxes{}, fmt.Errorf("fake fitted model has no flux evaluator")
	}
	return f.Fluxes.EvaluateFluxes(ctx, params)
}

// BootstrapCalls returns how many times RunBootstrap was invoked
func (f *FakeFittedModel) BootstrapCalls() int64 { return f.bootCalls.Load() }

// NewFluxScenario builds a converged fake whose ensemble rows are
// (total, component...) tuples evaluated by DirectFluxes.
func NewFluxScenario(bestFit []float64, rows [][]float64, names ...string) (*FakeFittedModel, error) {
	ens, err := ensemble.New(rows, nil)
	if err != nil {
		return nil, err
	}
	return &FakeFittedModel{
		Res:    fit.NewResult(true, bestFit, nil),
		Boot:   ens,
		Fluxes: &DirectFluxes{Names: names},
	}, nil
}

// SyntheticEnsemble draws n rows around center with per-parameter Gaussian
// scatter sigma. The same seed always yields the same ensemble.
func SyntheticEnsemble(seed uint64, n int, center, sigma []float64) (*ensemble.Ensemble, error) {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	dists := make([]distuv.Normal, len(center))
	for j := range center {
		dists[j] = distuv.Normal{Mu: center[j], Sigma: sigma[j], Src: src}
	}

	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, len(center))
		for j := range row {
			row[j] = dists[j].Rand()
		}
		rows[i] = row
	}
	return ensemble.New(rows, nil)
}

// MockFluxEvaluator is a testify mock of ports.FluxEvaluator
type MockFluxEvaluator struct {
	mock.Mock
}

// EvaluateFluxes implements ports.FluxEvaluator
func (m *MockFluxEvaluator) EvaluateFluxes(ctx context.Context, params ensemble.Vector) (ensemble.Fluxes, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(ensemble.Fluxes), args.Error(1)
}
