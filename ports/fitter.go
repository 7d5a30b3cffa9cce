package ports

import (
	"context"

	"imfitboot/domain/ensemble"
	"imfitboot/domain/fit"
	"imfitboot/domain/model"
)

// Fitter runs a convergence-seeking fit of a model against image data
type Fitter interface {
	// Fit returns an immutable handle on the fitted model. A fit that ran but did
	// not converge is returned with Result().Converged == false, not as an error.
	Fit(ctx context.Context, desc *model.Description, image fit.ImageSpec) (FittedModel, error)
}

// Resampler produces bootstrap parameter vectors for an already-fitted model
type Resampler interface {
	// RunBootstrap performs n bootstrap refits and returns one row per trial.
	// This is potentially long-running and has no progress contract.
	RunBootstrap(ctx context.Context, n int) (*ensemble.Ensemble, error)
}

// FluxEvaluator turns a parameter vector into integrated fluxes
type FluxEvaluator interface {
	// EvaluateFluxes must be safe for concurrent use.
	EvaluateFluxes(ctx context.Context, params ensemble.Vector) (ensemble.Fluxes, error)
}

// FittedModel is the read-only handle returned by a fit. Nothing in the
// pipeline mutates it, so it may be shared across goroutines.
type FittedModel interface {
	Resampler
	FluxEvaluator

	// Result returns the fit outcome (convergence, statistics, best-fit vector)
	Result() fit.Result

	// Description returns the model description the fit was run with
	Description() *model.Description
}
