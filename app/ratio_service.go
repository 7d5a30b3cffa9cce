package app

import (
	"context"
	"fmt"
	"time"

	"imfitboot/domain/core"
	"imfitboot/domain/ensemble"
	"imfitboot/domain/run"
	"imfitboot/internal"
	"imfitboot/internal/bootstrap"
	"imfitboot/internal/derived"
	"imfitboot/internal/errors"
	"imfitboot/internal/metrics"
	"imfitboot/internal/summary"
	"imfitboot/ports"
)

// RatioService runs the bootstrap → derived quantity → summary pipeline
type RatioService struct {
	source     *bootstrap.Source
	summarizer *summary.Summarizer
	repo       ports.RunRepository
	metrics    *metrics.Collector
	logger     *internal.Logger
}

// RatioRequest defines the inputs for one pipeline run
type RatioRequest struct {
	Fitted   ports.FittedModel
	Quantity derived.Quantity
	Trials   int
	BinEdges []float64 // nil disables the histogram
	Options  derived.Options
}

// NewRatioService creates the pipeline service. repo and collector may be nil.
func NewRatioService(summarizer *summary.Summarizer, repo ports.RunRepository, collector *metrics.Collector, logger *internal.Logger) *RatioService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if summarizer == nil {
		summarizer = summary.NewSummarizer(summary.DefaultIntervalPercent)
	}
	return &RatioService{
		source:     bootstrap.NewSource(logger),
		summarizer: summarizer,
		repo:       repo,
		metrics:    collector,
		logger:     logger.WithComponent("RatioService"),
	}
}

// Run bootstraps the fitted model and summarizes the requested quantity
func (s *RatioService) Run(ctx context.Context, req RatioRequest) (*run.Run, error) {
	if req.Fitted == nil {
		return nil, fmt.Errorf("no fitted model supplied")
	}

	start := time.Now()
	ens, err := s.source.Ensemble(ctx, req.Fitted, req.Trials)
	if err != nil {
		return nil, err
	}
	s.observeStage("bootstrap", start)
	if s.metrics != nil {
		s.metrics.ObserveTrials(ens.Rows())
	}

	return s.evaluate(ctx, req, ens)
}

// RunWithEnsemble skips resampling and evaluates a previously obtained
// ensemble against the fitted model.
func (s *RatioService) RunWithEnsemble(ctx context.Context, req RatioRequest, ens *ensemble.Ensemble) (*run.Run, error) {
	if req.Fitted == nil {
		return nil, fmt.Errorf("no fitted model supplied")
	}
	if ens == nil || ens.Rows() == 0 {
		return nil, fmt.Errorf("%w: empty ensemble", core.ErrInvalidTrialCount)
	}
	if p := req.Fitted.Result().ParameterCount(); ens.Cols() != p {
		return nil, core.NewDimensionError(p, ens.Cols())
	}
	return s.evaluate(ctx, req, ens)
}

func (s *RatioService) evaluate(ctx context.Context, req RatioRequest, ens *ensemble.Ensemble) (*run.Run, error) {
	if req.BinEdges != nil {
		if err := summary.ValidateEdges(req.BinEdges); err != nil {
			return nil, errors.WithCode(errors.CodeInvalidInput, err)
		}
	}

	evaluator := derived.NewEvaluatorFor(req.Fitted, req.Options, s.logger)
	if s.metrics != nil {
		evaluator.WithObserver(s.metrics)
	}

	result := req.Fitted.Result()
	point, err := evaluator.Evaluate(ctx, result.BestFit, req.Quantity.Func)
	if err != nil {
		return nil, fmt.Errorf("point estimate for %s: %w", req.Quantity.Name, err)
	}

	start := time.Now()
	dist, err := evaluator.EvaluateAll(ctx, ens, req.Quantity.Func)
	if err != nil {
		return nil, err
	}
	s.observeStage("evaluate", start)

	if len(dist.Failed) > 0 {
		s.logger.Warn("%d of %d rows failed: %v", len(dist.Failed), dist.Rows, dist.FailureCounts())
	}

	start = time.Now()
	sum, err := s.summarizer.Summarize(dist.Values(), req.BinEdges, point)
	if err != nil {
		return nil, fmt.Errorf("summarizing %s: %w", req.Quantity.Name, err)
	}
	s.observeStage("summarize", start)
	if s.metrics != nil {
		s.metrics.SetMean(req.Quantity.Name, sum.Mean)
	}

	name := ""
	if desc := req.Fitted.Description(); desc != nil {
		name = desc.Name
	}

	r := &run.Run{
		ID:           core.NewRunID(),
		ModelName:    name,
		Quantity:     req.Quantity.Name,
		Requested:    req.Trials,
		CreatedAt:    core.Now(),
		Fit:          result,
		Ensemble:     ens,
		Distribution: dist,
		Summary:      sum,
		BinEdges:     append([]float64(nil), req.BinEdges...),
		Manifest:     run.NewManifest(ens, req.Quantity.Name, req.BinEdges, evaluator.Workers(), req.Options.FailFast),
	}

	s.logger.Info("run %s: %s mean=%.6g point=%.6g over %d/%d rows",
		r.ID, r.Quantity, sum.Mean, sum.PointEstimate, sum.Count, dist.Rows)

	if s.repo != nil {
		start = time.Now()
		if err := s.repo.Save(ctx, r); err != nil {
			return r, errors.Wrapf(err, "failed to save run %s", r.ID)
		}
		s.observeStage("save", start)
	}
	return r, nil
}

func (s *RatioService) observeStage(stage string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveStage(stage, time.Since(start))
	}
}
