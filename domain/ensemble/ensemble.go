package ensemble

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"imfitboot/domain/core"
)

// Vector is one ordered parameter vector. Position i corresponds to the i-th
// parameter of the model description it was produced for.
type Vector []float64

// NewVector copies values into a fresh vector
func NewVector(values []float64) Vector {
	v := make(Vector, len(values))
	copy(v, values)
	return v
}

// Len returns the number of parameters
func (v Vector) Len() int { return len(v) }

// Ensemble is an N×P table of parameter vectors: one row per bootstrap trial,
// one column per model parameter. It is read-only once constructed.
type Ensemble struct {
	data    *mat.Dense
	columns []string
}

// New builds an ensemble from rows, copying the data. All rows must share
// the same non-zero length and there must be at least one row.
func New(rows [][]float64, columns []string) (*Ensemble, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: ensemble has no rows", core.ErrInvalidTrialCount)
	}
	p := len(rows[0])
	if p == 0 {
		return nil, fmt.Errorf("%w: ensemble rows are empty", core.ErrDimensionMismatch)
	}
	flat := make([]float64, 0, len(rows)*p)
	for i, row := range rows {
		if len(row) != p {
			return nil, fmt.Errorf("%w: row %d has %d values, row 0 has %d",
				core.ErrDimensionMismatch, i, len(row), p)
		}
		flat = append(flat, row...)
	}
	return fromFlat(len(rows), p, flat, columns)
}

func fromFlat(n, p int, flat []float64, columns []string) (*Ensemble, error) {
	if columns != nil && len(columns) != p {
		return nil, fmt.Errorf("%w: %d column names for %d parameters",
			core.ErrDimensionMismatch, len(columns), p)
	}
	var names []string
	if columns != nil {
		names = append([]string(nil), columns...)
	}
	return &Ensemble{data: mat.NewDense(n, p, flat), columns: names}, nil
}

// Rows returns N, the number of trials
func (e *Ensemble) Rows() int {
	r, _ := e.data.Dims()
	return r
}

// Cols returns P, the number of parameters per vector
func (e *Ensemble) Cols() int {
	_, c := e.data.Dims()
	return c
}

// Columns returns the parameter names, or nil when unnamed
func (e *Ensemble) Columns() []string {
	if e.columns == nil {
		return nil
	}
	return append([]string(nil), e.columns...)
}

// Row returns a copy of row i
func (e *Ensemble) Row(i int) Vector {
	return Vector(mat.Row(nil, i, e.data))
}

// Column returns a copy of column j across all trials
func (e *Ensemble) Column(j int) []float64 {
	return mat.Col(nil, j, e.data)
}

// Fingerprint hashes the ensemble contents row by row
func (e *Ensemble) Fingerprint() core.Hash {
	rows := make([][]float64, e.Rows())
	for i := range rows {
		rows[i] = e.Row(i)
	}
	return core.HashFloats(rows...)
}
