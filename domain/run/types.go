package run

import (
	"imfitboot/domain/core"
	"imfitboot/domain/ensemble"
	"imfitboot/domain/fit"
	"imfitboot/domain/stats"
)

// Run is one complete bootstrap run: the fit it started from, the resampled
// ensemble, the derived-quantity distribution and its summary.
type Run struct {
	ID        core.RunID     `json:"id"`
	ModelName string         `json:"model_name"`
	Quantity  string         `json:"quantity"` // e.g. "fraction:bulge"
	Requested int            `json:"requested"`
	CreatedAt core.Timestamp `json:"created_at"`

	Fit          fit.Result          `json:"fit"`
	Ensemble     *ensemble.Ensemble  `json:"-"`
	Distribution *stats.Distribution `json:"distribution"`
	Summary      *stats.Summary      `json:"summary,omitempty"`
	BinEdges     []float64           `json:"bin_edges,omitempty"`
	Manifest     Manifest            `json:"manifest"`
}

// Trials returns N as observed in the ensemble, not as requested
func (r *Run) Trials() int {
	if r.Ensemble == nil {
		return 0
	}
	return r.Ensemble.Rows()
}
