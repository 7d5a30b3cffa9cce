package derived

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"imfitboot/domain/core"
	"imfitboot/domain/ensemble"
	"imfitboot/domain/stats"
	"imfitboot/internal"
	"imfitboot/ports"
)

// Options controls batch evaluation
type Options struct {
	Workers  int  // parallel rows; <= 0 means runtime.NumCPU()
	FailFast bool // stop at the first failing row instead of collecting failures
}

// Observer receives one callback per evaluated row. err is nil on success.
type Observer interface {
	ObserveRow(err error, elapsed time.Duration)
}

// Evaluator maps parameter vectors to a derived quantity through a flux
// evaluator. It holds no per-call state and is safe for concurrent use.
type Evaluator struct {
	fluxes   ports.FluxEvaluator
	params   int
	opts     Options
	logger   *internal.Logger
	observer Observer
}

// NewEvaluator creates an evaluator for vectors of length parameterCount
func NewEvaluator(fluxes ports.FluxEvaluator, parameterCount int, opts Options, logger *internal.Logger) *Evaluator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Evaluator{
		fluxes: fluxes,
		params: parameterCount,
		opts:   opts,
		logger: logger.WithComponent("DerivedEvaluator"),
	}
}

// NewEvaluatorFor creates an evaluator bound to a fitted model, taking P from its best fit
func NewEvaluatorFor(fitted ports.FittedModel, opts Options, logger *internal.Logger) *Evaluator {
	return NewEvaluator(fitted, fitted.Result().ParameterCount(), opts, logger)
}

// WithObserver attaches a row observer (e.g. a metrics collector)
func (e *Evaluator) WithObserver(o Observer) *Evaluator {
	e.observer = o
	return e
}

// Workers returns the effective worker count
func (e *Evaluator) Workers() int { return e.opts.Workers }

// Evaluate computes fn over the flux decomposition of one parameter vector
func (e *Evaluator) Evaluate(ctx context.Context, vec ensemble.Vector, fn QuantityFunc) (float64, error) {
	if len(vec) != e.params {
		return 0, core.NewDimensionError(e.params, len(vec))
	}

	fluxes, err := e.fluxes.EvaluateFluxes(ctx, vec)
	if err != nil {
		return 0, fmt.Errorf("flux evaluation: %w", err)
	}

	v, err := fn(fluxes.Total, fluxes.Components)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, core.NewUndefinedError(fmt.Sprintf("quantity evaluated to %v", v))
	}
	return v, nil
}

type slot struct {
	value float64
	err   error
	done  bool
}

// EvaluateAll evaluates fn for every ensemble row in parallel. Results are
// written to index-addressed slots, so the returned distribution is in row
// order regardless of completion order. With FailFast the first failure
// cancels outstanding rows and the lowest failing index observed is
// returned as a *core.EvaluationError.
func (e *Evaluator) EvaluateAll(ctx context.Context, ens *ensemble.Ensemble, fn QuantityFunc) (*stats.Distribution, error) {
	if ens == nil || ens.Rows() == 0 {
		return nil, fmt.Errorf("%w: empty ensemble", core.ErrInvalidTrialCount)
	}

	n := ens.Rows()
	slots := make([]slot, n)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i := 0; i < n; i++ {
		if e.opts.FailFast && gctx.Err() != nil {
			break
		}
		row := ens.Row(i)
		g.Go(func() error {
			if e.opts.FailFast && gctx.Err() != nil {
				return nil
			}
			t0 := time.Now()
			v, err := e.Evaluate(gctx, row, fn)
			if e.observer != nil {
				e.observer.ObserveRow(err, time.Since(t0))
			}
			slots[i] = slot{value: v, err: err, done: true}
			if err != nil {
				e.logger.Debug("row %d failed: %v", i, err)
				if e.opts.FailFast {
					return err
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if e.opts.FailFast {
		for i, s := range slots {
			if !s.done || s.err == nil {
				continue
			}
			// rows interrupted by our own cancellation are not failures
			if errors.Is(s.err, context.Canceled) {
				continue
			}
			e.logger.Warn("fail-fast: stopping at row %d of %d", i, n)
			return nil, &core.EvaluationError{Index: i, Cause: s.err}
		}
	}

	dist := &stats.Distribution{Rows: n}
	for i, s := range slots {
		if s.err == nil {
			dist.Succeeded = append(dist.Succeeded, stats.RowValue{Index: i, Value: s.value})
			continue
		}
		dist.Failed = append(dist.Failed, stats.RowFailure{
			Index: i,
			Kind:  core.KindOf(s.err),
			Err:   &core.EvaluationError{Index: i, Cause: s.err},
		})
	}

	e.logger.Info("evaluated %d rows in %v: %d succeeded, %d failed",
		n, time.Since(start), len(dist.Succeeded), len(dist.Failed))
	return dist, nil
}
