package stats

import (
	"sort"

	"imfitboot/domain/core"
)

// RowValue is a successfully evaluated ensemble row
type RowValue struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// RowFailure is an ensemble row whose evaluation failed
type RowFailure struct {
	Index int       `json:"index"`
	Kind  core.Kind `json:"kind"`
	Err   error     `json:"-"`
}

// Message returns the failure cause, for reporting and persistence
func (f RowFailure) Message() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return f.Err.Error()
}

// Distribution is the per-row outcome of evaluating a derived quantity over an
// ensemble. Succeeded and Failed are both in ascending row order and together
// cover every row index exactly once.
type Distribution struct {
	Rows      int          `json:"rows"`
	Succeeded []RowValue   `json:"succeeded"`
	Failed    []RowFailure `json:"failed"`
}

// Values returns the successful values in row order
func (d *Distribution) Values() []float64 {
	out := make([]float64, len(d.Succeeded))
	for i, rv := range d.Succeeded {
		out[i] = rv.Value
	}
	return out
}

// FailureCounts tallies failures by kind
func (d *Distribution) FailureCounts() map[core.Kind]int {
	counts := make(map[core.Kind]int)
	for _, f := range d.Failed {
		counts[f.Kind]++
	}
	return counts
}

// FailureKinds returns the distinct failure kinds in sorted order
func (d *Distribution) FailureKinds() []core.Kind {
	counts := d.FailureCounts()
	kinds := make([]core.Kind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Complete reports whether every row evaluated successfully
func (d *Distribution) Complete() bool {
	return len(d.Failed) == 0 && len(d.Succeeded) == d.Rows
}

// Bin is one histogram bin. Bins are [Low, High) except the last, which is [Low, High].
type Bin struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
}

// Summary holds the reportable statistics of a derived-quantity distribution
type Summary struct {
	Mean          float64 `json:"mean"`
	Count         int     `json:"count"`
	Histogram     []Bin   `json:"histogram,omitempty"`
	Outside       int     `json:"outside"` // values outside the histogram range
	PointEstimate float64 `json:"point_estimate"`

	StdDev          float64 `json:"std_dev"`
	Median          float64 `json:"median"`
	Min             float64 `json:"min"`
	Max             float64 `json:"max"`
	IntervalPercent float64 `json:"interval_percent"`
	Lower           float64 `json:"lower"` // lower edge of the central interval
	Upper           float64 `json:"upper"` // upper edge of the central interval
}

// HistogramTotal sums the bin counts
func (s *Summary) HistogramTotal() int {
	total := 0
	for _, b := range s.Histogram {
		total += b.Count
	}
	return total
}
