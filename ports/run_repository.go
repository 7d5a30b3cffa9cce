package ports

import (
	"context"

	"imfitboot/domain/core"
	"imfitboot/domain/run"
)

// RunSummary is the listing form of a stored run
type RunSummary struct {
	ID            core.RunID     `db:"id" json:"id"`
	ModelName     string         `db:"model_name" json:"model_name"`
	Quantity      string         `db:"quantity" json:"quantity"`
	Trials        int            `db:"trials" json:"trials"`
	Succeeded     int            `db:"succeeded" json:"succeeded"`
	Mean          *float64       `db:"mean" json:"mean,omitempty"`
	PointEstimate *float64       `db:"point_estimate" json:"point_estimate,omitempty"`
	CreatedAt     core.Timestamp `db:"-" json:"created_at"`
}

// RunRepository persists bootstrap runs
type RunRepository interface {
	// Save stores a run with its ensemble rows and per-row derived values
	Save(ctx context.Context, r *run.Run) error

	// Get loads a run by ID, including its ensemble and distribution
	Get(ctx context.Context, id core.RunID) (*run.Run, error)

	// List returns the most recent runs, newest first; limit <= 0 means all
	List(ctx context.Context, limit int) ([]RunSummary, error)
}
