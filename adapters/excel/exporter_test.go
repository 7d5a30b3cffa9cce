package excel

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"imfitboot/domain/core"
	"imfitboot/domain/ensemble"
	"imfitboot/domain/fit"
	"imfitboot/domain/run"
	"imfitboot/domain/stats"
)

func sampleRun(t *testing.T) *run.Run {
	t.Helper()
	ens, err := ensemble.New([][]float64{{100, 16}, {200, 31}, {0, 0}}, []string{"total", "bulge"})
	require.NoError(t, err)
	return &run.Run{
		ID:        core.NewRunID(),
		ModelName: "bulge+disk",
		Quantity:  "fraction:bulge",
		Requested: 3,
		CreatedAt: core.Now(),
		Fit:       fit.NewResult(true, []float64{100, 16}, nil),
		Ensemble:  ens,
		Distribution: &stats.Distribution{
			Rows:      3,
			Succeeded: []stats.RowValue{{Index: 0, Value: 0.16}, {Index: 1, Value: 0.155}},
			Failed:    []stats.RowFailure{{Index: 2, Kind: core.KindUndefinedQuantity}},
		},
		Summary: &stats.Summary{
			Mean: 0.1575, Count: 2, PointEstimate: 0.16,
			Histogram: []stats.Bin{{Low: 0.14, High: 0.16, Count: 1}, {Low: 0.16, High: 0.18, Count: 1}},
		},
		Manifest: run.NewManifest(ens, "fraction:bulge", nil, 1, false),
	}
}

func TestExporterWritesSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.xlsx")
	require.NoError(t, NewExporter().Write(path, sampleRun(t)))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{SheetSummary, SheetEnsemble, SheetHistogram}, f.GetSheetList())

	ensRows, err := f.GetRows(SheetEnsemble)
	require.NoError(t, err)
	assert.Equal(t, []string{"row", "total", "bulge", "value", "failure"}, ensRows[0])
	assert.Len(t, ensRows, 4)
	assert.Equal(t, "undefined_quantity", ensRows[3][4])

	hist, err := f.GetRows(SheetHistogram)
	require.NoError(t, err)
	assert.Equal(t, []string{"low", "high", "count"}, hist[0])
	assert.Len(t, hist, 3)

	id, err := f.GetCellValue(SheetSummary, "B1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestEnsembleReaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.xlsx")
	want := sampleRun(t)
	require.NoError(t, NewExporter().Write(path, want))

	ens, err := NewEnsembleReader(path, quiet).Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"total", "bulge"}, ens.Columns())
	assert.Equal(t, want.Ensemble.Fingerprint(), ens.Fingerprint())
}

func TestExporterFailureKindsSorted(t *testing.T) {
	r := sampleRun(t)
	r.Distribution = &stats.Distribution{
		Rows: 3,
		Failed: []stats.RowFailure{
			{Index: 0, Kind: core.KindUndefinedQuantity},
			{Index: 1, Kind: core.KindDimensionMismatch},
			{Index: 2, Kind: core.KindUndefinedQuantity},
		},
	}
	path := filepath.Join(t.TempDir(), "run.xlsx")
	require.NoError(t, NewExporter().Write(path, r))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	var failed [][]string
	for _, row := range rows {
		if len(row) == 2 && strings.HasPrefix(row[0], "failed: ") {
			failed = append(failed, row)
		}
	}
	assert.Equal(t, [][]string{
		{"failed: dimension_mismatch", "1"},
		{"failed: undefined_quantity", "2"},
	}, failed)
}
