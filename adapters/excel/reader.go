package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"imfitboot/domain/ensemble"
	"imfitboot/internal"
)

// EnsembleReader loads parameter ensembles from Excel or CSV files: a
// header row of column names followed by one row per bootstrap trial.
// Sheets written by Exporter are read back with their bookkeeping columns
// (row, value, failure) dropped.
type EnsembleReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	logger   *internal.Logger
}

// NewEnsembleReader creates a reader; the file type follows the extension
func NewEnsembleReader(filePath string, logger *internal.Logger) *EnsembleReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &EnsembleReader{filePath: filePath, fileType: fileType, logger: logger.WithComponent("EnsembleReader")}
}

// Read parses the file into an ensemble
func (r *EnsembleReader) Read() (*ensemble.Ensemble, error) {
	r.logger.Debug("reading %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	var (
		rows [][]string
		err  error
	)
	switch r.fileType {
	case "csv":
		rows, err = r.readCSV()
	default:
		rows, err = r.readExcel()
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%s must have a header row and at least one data row", r.filePath)
	}
	return r.processRows(rows)
}

// readExcel reads the Ensemble sheet, or the first sheet when there is none
func (r *EnsembleReader) readExcel() ([][]string, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := SheetEnsemble
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s has no sheets", r.filePath)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	r.logger.Debug("sheet %s read in %v (%d rows)", sheet, time.Since(startTime), len(rows))
	return rows, nil
}

func (r *EnsembleReader) readCSV() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

// processRows converts raw string rows into an ensemble
func (r *EnsembleReader) processRows(rows [][]string) (*ensemble.Ensemble, error) {
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}

	first, last := 0, len(header)
	if len(header) > 0 && strings.EqualFold(header[0], rowHeader) {
		first = 1
	}
	for i := first; i < len(header); i++ {
		if strings.EqualFold(header[i], valueHeader) || strings.EqualFold(header[i], failureHeader) {
			last = i
			break
		}
	}
	if last <= first {
		return nil, fmt.Errorf("%s has no parameter columns", r.filePath)
	}

	data := make([][]float64, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		values := make([]float64, last-first)
		for j := first; j < last; j++ {
			if j >= len(row) {
				return nil, fmt.Errorf("row %d: missing column %s", i+2, header[j])
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[j]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i+2, header[j], err)
			}
			values[j-first] = v
		}
		data = append(data, values)
	}

	r.logger.Info("%s: %d trials × %d parameters", filepath.Base(r.filePath), len(data), last-first)
	return ensemble.New(data, header[first:last])
}
