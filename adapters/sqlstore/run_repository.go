package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"imfitboot/domain/core"
	"imfitboot/domain/ensemble"
	"imfitboot/domain/fit"
	"imfitboot/domain/run"
	"imfitboot/domain/stats"
	"imfitboot/internal/errors"
	"imfitboot/ports"
)

// fixed-width UTC layout so created_at sorts lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RunRepositoryImpl implements ports.RunRepository on SQLite or PostgreSQL
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a run repository on a migrated database
func NewRunRepository(db *sqlx.DB) ports.RunRepository {
	return &RunRepositoryImpl{db: db}
}

type runRecord struct {
	ID            string          `db:"id"`
	ModelName     string          `db:"model_name"`
	Quantity      string          `db:"quantity"`
	Requested     int             `db:"requested"`
	Trials        int             `db:"trials"`
	Succeeded     int             `db:"succeeded"`
	Mean          sql.NullFloat64 `db:"mean"`
	PointEstimate sql.NullFloat64 `db:"point_estimate"`
	ColumnsJSON   sql.NullString  `db:"columns_json"`
	FitJSON       string          `db:"fit_json"`
	SummaryJSON   sql.NullString  `db:"summary_json"`
	ManifestJSON  string          `db:"manifest_json"`
	BinEdgesJSON  sql.NullString  `db:"bin_edges_json"`
	CreatedAt     string          `db:"created_at"`
}

type rowRecord struct {
	Index          int             `db:"row_index"`
	ParamsJSON     string          `db:"params_json"`
	Value          sql.NullFloat64 `db:"value"`
	FailureKind    sql.NullString  `db:"failure_kind"`
	FailureMessage sql.NullString  `db:"failure_message"`
}

// Save stores a run, its ensemble rows and per-row outcomes in one transaction
func (r *RunRepositoryImpl) Save(ctx context.Context, rn *run.Run) error {
	if rn.Ensemble == nil || rn.Distribution == nil {
		return errors.ValidationError("run has no ensemble or distribution")
	}

	rec, err := toRecord(rn)
	if err != nil {
		return errors.StorageError("failed to encode run", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.StorageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO bootstrap_runs (id, model_name, quantity, requested, trials, succeeded, mean, point_estimate,
			columns_json, fit_json, summary_json, manifest_json, bin_edges_json, created_at)
		VALUES (:id, :model_name, :quantity, :requested, :trials, :succeeded, :mean, :point_estimate,
			:columns_json, :fit_json, :summary_json, :manifest_json, :bin_edges_json, :created_at)
	`, rec)
	if err != nil {
		return errors.StorageError("failed to insert run", err)
	}

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO ensemble_rows (run_id, row_index, params_json, value, failure_kind, failure_message)
		VALUES (?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return errors.StorageError("failed to prepare row insert", err)
	}
	defer stmt.Close()

	for _, row := range toRowRecords(rn) {
		if _, err := stmt.ExecContext(ctx, rec.ID, row.Index, row.ParamsJSON, row.Value, row.FailureKind, row.FailureMessage); err != nil {
			return errors.StorageError(fmt.Sprintf("failed to insert row %d", row.Index), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StorageError("failed to commit run", err)
	}
	return nil
}

// Get loads a run with its ensemble and distribution
func (r *RunRepositoryImpl) Get(ctx context.Context, id core.RunID) (*run.Run, error) {
	var rec runRecord
	err := r.db.GetContext(ctx, &rec, r.db.Rebind(`
		SELECT id, model_name, quantity, requested, trials, succeeded, mean, point_estimate,
			columns_json, fit_json, summary_json, manifest_json, bin_edges_json, created_at
		FROM bootstrap_runs
		WHERE id = ?
	`), id.String())
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound(fmt.Sprintf("run %s", id))
	}
	if err != nil {
		return nil, errors.StorageError("failed to load run", err)
	}

	var rows []rowRecord
	err = r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT row_index, params_json, value, failure_kind, failure_message
		FROM ensemble_rows
		WHERE run_id = ?
		ORDER BY row_index
	`), id.String())
	if err != nil {
		return nil, errors.StorageError("failed to load ensemble rows", err)
	}

	rn, err := fromRecords(rec, rows)
	if err != nil {
		return nil, errors.StorageError(fmt.Sprintf("failed to decode run %s", id), err)
	}
	return rn, nil
}

// List returns the most recent runs, newest first
func (r *RunRepositoryImpl) List(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	query := `
		SELECT id, model_name, quantity, trials, succeeded, mean, point_estimate, created_at
		FROM bootstrap_runs
		ORDER BY created_at DESC, id DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, errors.StorageError("failed to list runs", err)
	}
	defer rows.Close()

	var out []ports.RunSummary
	for rows.Next() {
		var (
			s           listRow
			mean, point sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &s.ModelName, &s.Quantity, &s.Trials, &s.Succeeded, &mean, &point, &s.CreatedAt); err != nil {
			return nil, errors.StorageError("failed to scan run", err)
		}
		summary := ports.RunSummary{
			ID:        core.RunID(s.ID),
			ModelName: s.ModelName,
			Quantity:  s.Quantity,
			Trials:    s.Trials,
			Succeeded: s.Succeeded,
			CreatedAt: parseTimestamp(s.CreatedAt),
		}
		if mean.Valid {
			summary.Mean = &mean.Float64
		}
		if point.Valid {
			summary.PointEstimate = &point.Float64
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("failed to iterate runs", err)
	}
	return out, nil
}

type listRow struct {
	ID        string
	ModelName string
	Quantity  string
	Trials    int
	Succeeded int
	CreatedAt string
}

func toRecord(rn *run.Run) (runRecord, error) {
	rec := runRecord{
		ID:        rn.ID.String(),
		ModelName: rn.ModelName,
		Quantity:  rn.Quantity,
		Requested: rn.Requested,
		Trials:    rn.Trials(),
		Succeeded: len(rn.Distribution.Succeeded),
		CreatedAt: rn.CreatedAt.Time().UTC().Format(timeLayout),
	}

	var err error
	if rec.FitJSON, err = marshalString(rn.Fit); err != nil {
		return rec, err
	}
	if rec.ManifestJSON, err = marshalString(rn.Manifest); err != nil {
		return rec, err
	}
	if rn.Summary != nil {
		rec.Mean = sql.NullFloat64{Float64: rn.Summary.Mean, Valid: true}
		rec.PointEstimate = sql.NullFloat64{Float64: rn.Summary.PointEstimate, Valid: true}
		s, err := marshalString(rn.Summary)
		if err != nil {
			return rec, err
		}
		rec.SummaryJSON = sql.NullString{String: s, Valid: true}
	}
	if cols := rn.Ensemble.Columns(); cols != nil {
		s, err := marshalString(cols)
		if err != nil {
			return rec, err
		}
		rec.ColumnsJSON = sql.NullString{String: s, Valid: true}
	}
	if rn.BinEdges != nil {
		s, err := marshalString(rn.BinEdges)
		if err != nil {
			return rec, err
		}
		rec.BinEdgesJSON = sql.NullString{String: s, Valid: true}
	}
	return rec, nil
}

func toRowRecords(rn *run.Run) []rowRecord {
	rows := make([]rowRecord, rn.Ensemble.Rows())
	for i := range rows {
		params, _ := json.Marshal([]float64(rn.Ensemble.Row(i)))
		rows[i] = rowRecord{Index: i, ParamsJSON: string(params)}
	}
	for _, rv := range rn.Distribution.Succeeded {
		rows[rv.Index].Value = sql.NullFloat64{Float64: rv.Value, Valid: true}
	}
	for _, rf := range rn.Distribution.Failed {
		rows[rf.Index].FailureKind = sql.NullString{String: string(rf.Kind), Valid: true}
		rows[rf.Index].FailureMessage = sql.NullString{String: rf.Message(), Valid: true}
	}
	return rows
}

func fromRecords(rec runRecord, rows []rowRecord) (*run.Run, error) {
	rn := &run.Run{
		ID:        core.RunID(rec.ID),
		ModelName: rec.ModelName,
		Quantity:  rec.Quantity,
		Requested: rec.Requested,
		CreatedAt: parseTimestamp(rec.CreatedAt),
	}

	var f fit.Result
	if err := json.Unmarshal([]byte(rec.FitJSON), &f); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	rn.Fit = f
	if err := json.Unmarshal([]byte(rec.ManifestJSON), &rn.Manifest); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	if rec.SummaryJSON.Valid {
		rn.Summary = &stats.Summary{}
		if err := json.Unmarshal([]byte(rec.SummaryJSON.String), rn.Summary); err != nil {
			return nil, fmt.Errorf("summary: %w", err)
		}
	}
	if rec.BinEdgesJSON.Valid {
		if err := json.Unmarshal([]byte(rec.BinEdgesJSON.String), &rn.BinEdges); err != nil {
			return nil, fmt.Errorf("bin edges: %w", err)
		}
	}
	var columns []string
	if rec.ColumnsJSON.Valid {
		if err := json.Unmarshal([]byte(rec.ColumnsJSON.String), &columns); err != nil {
			return nil, fmt.Errorf("columns: %w", err)
		}
	}

	params := make([][]float64, len(rows))
	dist := &stats.Distribution{Rows: len(rows)}
	for i, row := range rows {
		if err := json.Unmarshal([]byte(row.ParamsJSON), &params[i]); err != nil {
			return nil, fmt.Errorf("row %d: %w", row.Index, err)
		}
		if row.FailureKind.Valid {
			dist.Failed = append(dist.Failed, stats.RowFailure{
				Index: row.Index,
				Kind:  core.Kind(row.FailureKind.String),
				Err:   &core.EvaluationError{Index: row.Index, Cause: stderrors.New(row.FailureMessage.String)},
			})
			continue
		}
		dist.Succeeded = append(dist.Succeeded, stats.RowValue{Index: row.Index, Value: row.Value.Float64})
	}
	rn.Distribution = dist

	if len(params) > 0 {
		ens, err := ensemble.New(params, columns)
		if err != nil {
			return nil, err
		}
		rn.Ensemble = ens
	}
	return rn, nil
}

func marshalString(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func parseTimestamp(s string) core.Timestamp {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return core.Timestamp{}
	}
	return core.NewTimestamp(t)
}
