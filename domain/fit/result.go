package fit

import (
	"imfitboot/domain/ensemble"
)

// Statistic names reported by the fitter
const (
	StatChiSquare  = "chi-square"
	StatPoissonMLR = "poisson-mlr"
	StatCash       = "cash"
)

// ImageSpec describes the data a model is fit against. Paths point at FITS files.
type ImageSpec struct {
	ImagePath     string  `json:"image_path"`
	MaskPath      string  `json:"mask_path,omitempty"`
	NoisePath     string  `json:"noise_path,omitempty"`
	PSFPath       string  `json:"psf_path,omitempty"`
	Gain          float64 `json:"gain,omitempty"`
	ReadNoise     float64 `json:"read_noise,omitempty"`
	OriginalSky   float64 `json:"original_sky,omitempty"`
	UsePoissonMLR bool    `json:"use_poisson_mlr,omitempty"`
	UseCashStat   bool    `json:"use_cash_stat,omitempty"`
}

// Result is the immutable outcome of one fit. It replaces querying a fitter
// object for convergence flags and statistics after the fact.
type Result struct {
	Converged        bool            `json:"converged"`
	StatisticName    string          `json:"statistic_name"`
	Statistic        float64         `json:"statistic"`
	ReducedStatistic float64         `json:"reduced_statistic"`
	AIC              float64         `json:"aic"`
	BIC              float64         `json:"bic"`
	BestFit          ensemble.Vector `json:"best_fit"`
	Uncertainties    ensemble.Vector `json:"uncertainties,omitempty"`
	Iterations       int             `json:"iterations,omitempty"`
}

// ParameterCount is the length P of the best-fit vector
func (r Result) ParameterCount() int {
	return len(r.BestFit)
}

// NewResult copies the vectors so the result cannot be mutated through them
func NewResult(converged bool, bestFit, uncertainties []float64) Result {
	r := Result{Converged: converged, BestFit: ensemble.NewVector(bestFit)}
	if uncertainties != nil {
		r.Uncertainties = ensemble.NewVector(uncertainties)
	}
	return r
}
