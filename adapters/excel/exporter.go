package excel

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"imfitboot/domain/run"
	"imfitboot/internal/errors"
)

// Exporter writes runs to .xlsx workbooks
type Exporter struct{}

// NewExporter creates an Excel exporter
func NewExporter() *Exporter { return &Exporter{} }

// Write saves r to path with Summary, Ensemble and (when binned) Histogram sheets
func (e *Exporter) Write(path string, r *run.Run) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return errors.ExportError("xlsx", err)
	}
	if err := writeSummary(f, r); err != nil {
		return errors.ExportError("xlsx", err)
	}
	if r.Ensemble != nil {
		if err := writeEnsemble(f, r); err != nil {
			return errors.ExportError("xlsx", err)
		}
	}
	if r.Summary != nil && len(r.Summary.Histogram) > 0 {
		if err := writeHistogram(f, r); err != nil {
			return errors.ExportError("xlsx", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return errors.ExportError("xlsx", fmt.Errorf("saving %s: %w", path, err))
	}
	return nil
}

func writeSummary(f *excelize.File, r *run.Run) error {
	rows := [][]interface{}{
		{"run", r.ID.String()},
		{"model", r.ModelName},
		{"quantity", r.Quantity},
		{"created", r.CreatedAt.String()},
		{"trials requested", r.Requested},
		{"trials obtained", r.Trials()},
	}
	if d := r.Distribution; d != nil {
		rows = append(rows,
			[]interface{}{"succeeded", len(d.Succeeded)},
			[]interface{}{"failed", len(d.Failed)})
		counts := d.FailureCounts()
		for _, kind := range d.FailureKinds() {
			rows = append(rows, []interface{}{"failed: " + string(kind), counts[kind]})
		}
	}
	if s := r.Summary; s != nil {
		rows = append(rows,
			[]interface{}{"point estimate", s.PointEstimate},
			[]interface{}{"mean", s.Mean},
			[]interface{}{"std dev", s.StdDev},
			[]interface{}{"median", s.Median},
			[]interface{}{"min", s.Min},
			[]interface{}{"max", s.Max},
			[]interface{}{fmt.Sprintf("%.2f%% lower", s.IntervalPercent), s.Lower},
			[]interface{}{fmt.Sprintf("%.2f%% upper", s.IntervalPercent), s.Upper},
			[]interface{}{"outside histogram", s.Outside})
	}
	rows = append(rows,
		[]interface{}{"fit converged", r.Fit.Converged},
		[]interface{}{r.Fit.StatisticName, r.Fit.Statistic},
		[]interface{}{"reduced statistic", r.Fit.ReducedStatistic},
		[]interface{}{"AIC", r.Fit.AIC},
		[]interface{}{"BIC", r.Fit.BIC},
		[]interface{}{"fingerprint", r.Manifest.Fingerprint.String()})

	return setRows(f, SheetSummary, rows)
}

func writeEnsemble(f *excelize.File, r *run.Run) error {
	if _, err := f.NewSheet(SheetEnsemble); err != nil {
		return err
	}
	ens := r.Ensemble

	columns := ens.Columns()
	if columns == nil {
		columns = make([]string, ens.Cols())
		for j := range columns {
			columns[j] = fmt.Sprintf("p%d", j+1)
		}
	}
	header := []interface{}{rowHeader}
	for _, c := range columns {
		header = append(header, c)
	}
	header = append(header, valueHeader, failureHeader)

	values := make(map[int]float64)
	failures := make(map[int]string)
	if d := r.Distribution; d != nil {
		for _, rv := range d.Succeeded {
			values[rv.Index] = rv.Value
		}
		for _, rf := range d.Failed {
			failures[rf.Index] = string(rf.Kind)
		}
	}

	rows := [][]interface{}{header}
	for i := 0; i < ens.Rows(); i++ {
		row := []interface{}{i}
		for _, v := range ens.Row(i) {
			row = append(row, v)
		}
		if v, ok := values[i]; ok {
			row = append(row, v, "")
		} else {
			row = append(row, "", failures[i])
		}
		rows = append(rows, row)
	}
	return setRows(f, SheetEnsemble, rows)
}

func writeHistogram(f *excelize.File, r *run.Run) error {
	if _, err := f.NewSheet(SheetHistogram); err != nil {
		return err
	}
	rows := [][]interface{}{{"low", "high", "count"}}
	for _, b := range r.Summary.Histogram {
		rows = append(rows, []interface{}{b.Low, b.High, b.Count})
	}
	return setRows(f, SheetHistogram, rows)
}

func setRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
