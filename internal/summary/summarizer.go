package summary

import (
	"fmt"
	"math"
	"slices"

	mstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"imfitboot/domain/core"
	"imfitboot/domain/stats"
)

// DefaultIntervalPercent is the central interval reported alongside the
// mean: the Gaussian one-sigma coverage.
const DefaultIntervalPercent = 68.27

// Summarizer reduces a derived-quantity distribution to reportable statistics
type Summarizer struct {
	intervalPercent float64
}

// NewSummarizer creates a summarizer reporting the given central interval.
// Values outside (0, 100) fall back to DefaultIntervalPercent.
func NewSummarizer(intervalPercent float64) *Summarizer {
	if intervalPercent <= 0 || intervalPercent >= 100 {
		intervalPercent = DefaultIntervalPercent
	}
	return &Summarizer{intervalPercent: intervalPercent}
}

// Summarize computes the mean of values and, when edges is non-nil, a
// histogram over those edges. Bins are [low, high) except the last, which
// also includes its upper edge. Values outside the edge range are left out
// of the histogram but still count toward every other statistic. A NaN or
// infinite value is rejected as an undefined quantity.
func (s *Summarizer) Summarize(values, edges []float64, pointEstimate float64) (*stats.Summary, error) {
	if len(values) == 0 {
		return nil, core.ErrEmptyDistribution
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, core.NewUndefinedError(fmt.Sprintf("value %d is not finite (%g)", i, v))
		}
	}
	if edges != nil {
		if err := ValidateEdges(edges); err != nil {
			return nil, err
		}
	}

	data := mstats.Float64Data(values)
	mean, err := data.Mean()
	if err != nil {
		return nil, fmt.Errorf("mean: %w", err)
	}
	median, err := data.Median()
	if err != nil {
		return nil, fmt.Errorf("median: %w", err)
	}
	minV, _ := data.Min()
	maxV, _ := data.Max()

	stdDev := 0.0
	if len(values) > 1 {
		if stdDev, err = data.StandardDeviationSample(); err != nil {
			return nil, fmt.Errorf("standard deviation: %w", err)
		}
	}

	tail := (100 - s.intervalPercent) / 2
	lower, err := mstats.PercentileNearestRank(data, tail)
	if err != nil {
		return nil, fmt.Errorf("lower percentile: %w", err)
	}
	upper, err := mstats.PercentileNearestRank(data, 100-tail)
	if err != nil {
		return nil, fmt.Errorf("upper percentile: %w", err)
	}

	sum := &stats.Summary{
		Mean:            mean,
		Count:           len(values),
		PointEstimate:   pointEstimate,
		StdDev:          stdDev,
		Median:          median,
		Min:             minV,
		Max:             maxV,
		IntervalPercent: s.intervalPercent,
		Lower:           lower,
		Upper:           upper,
	}
	if edges != nil {
		sum.Histogram, sum.Outside = Histogram(values, edges)
	}
	return sum, nil
}

// ValidateEdges checks that edges has at least two strictly increasing entries
func ValidateEdges(edges []float64) error {
	if len(edges) < 2 {
		return fmt.Errorf("%w: need at least 2 edges, got %d", core.ErrInvalidBinEdges, len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return fmt.Errorf("%w: edge %d (%g) does not exceed edge %d (%g)",
				core.ErrInvalidBinEdges, i, edges[i], i-1, edges[i-1])
		}
	}
	return nil
}

// Histogram bins values over validated edges and reports how many values
// fell outside [edges[0], edges[last]]. NaN counts as outside.
func Histogram(values, edges []float64) ([]stats.Bin, int) {
	last := edges[len(edges)-1]

	inside := make([]float64, 0, len(values))
	atTop, outside := 0, 0
	for _, v := range values {
		switch {
		case math.IsNaN(v) || v < edges[0] || v > last:
			outside++
		case v == last:
			atTop++
		default:
			inside = append(inside, v)
		}
	}
	slices.Sort(inside)

	// stat.Histogram needs sorted input inside [edges[0], last)
	counts := make([]float64, len(edges)-1)
	if len(inside) > 0 {
		counts = stat.Histogram(counts, edges, inside, nil)
	}
	counts[len(counts)-1] += float64(atTop)

	bins := make([]stats.Bin, len(counts))
	for i, c := range counts {
		bins[i] = stats.Bin{Low: edges[i], High: edges[i+1], Count: int(c)}
	}
	return bins, outside
}
