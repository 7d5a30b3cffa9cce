package bootstrap

import (
	"context"
	"fmt"
	"time"

	"imfitboot/domain/core"
	"imfitboot/domain/ensemble"
	"imfitboot/internal"
	"imfitboot/ports"
)

// Source obtains bootstrap parameter ensembles for fitted models
type Source struct {
	logger *internal.Logger
}

// NewSource creates an ensemble source
func NewSource(logger *internal.Logger) *Source {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Source{logger: logger.WithComponent("EnsembleSource")}
}

// Ensemble runs n bootstrap trials against a converged fit and returns the
// resulting N×P ensemble. N is taken from what the resampler returns: a
// resampler that drops degenerate trials yields fewer rows than requested.
func (s *Source) Ensemble(ctx context.Context, fitted ports.FittedModel, n int) (*ensemble.Ensemble, error) {
	if n <= 0 {
		return nil, core.NewTrialCountError(n)
	}

	result := fitted.Result()
	if !result.Converged {
		return nil, fmt.Errorf("%w: refusing to bootstrap an unconverged fit", core.ErrNotConverged)
	}

	start := time.Now()
	s.logger.Info("running %d bootstrap trials", n)

	ens, err := fitted.RunBootstrap(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("bootstrap resampling failed: %w", err)
	}
	if ens == nil || ens.Rows() == 0 {
		return nil, fmt.Errorf("%w: resampler returned no trials", core.ErrInvalidTrialCount)
	}

	if p := result.ParameterCount(); ens.Cols() != p {
		return nil, core.NewDimensionError(p, ens.Cols())
	}

	if ens.Rows() != n {
		s.logger.Warn("requested %d trials, resampler returned %d", n, ens.Rows())
	}
	s.logger.Info("bootstrap finished: %d×%d ensemble in %v", ens.Rows(), ens.Cols(), time.Since(start))

	return ens, nil
}
