package imfit

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"imfitboot/domain/fit"
)

var (
	statLine     = regexp.MustCompile(`(?i)^#\s*(chi-square|chi\^2|poisson-mlr statistic|cash statistic)\s*=\s*([-+0-9.eE]+)`)
	reducedLine  = regexp.MustCompile(`(?i)reduced chi\^2(?: equivalent)?\s*=\s*([-+0-9.eE]+)`)
	aicBICLine   = regexp.MustCompile(`(?i)AIC\s*=\s*([-+0-9.eE]+)\s*,\s*BIC\s*=\s*([-+0-9.eE]+)`)
	notConverged = regexp.MustCompile(`(?i)(did not converge|failed to converge|maximum number of iterations)`)
)

// imageOptions are the image-description keywords that can precede the
// function sets in a config or params file.
var imageOptions = map[string]bool{
	"GAIN": true, "READNOISE": true, "ORIGINAL_SKY": true, "NCOMBINED": true, "EXPTIME": true,
}

// paramsFile is the parsed content of imfit's --save-params output
type paramsFile struct {
	values        []float64
	uncertainties []float64
	statName      string
	stat          float64
	reduced       float64
	aic, bic      float64
}

func parseParams(r io.Reader) (*paramsFile, error) {
	pf := &paramsFile{}
	haveErrors := false
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			if m := statLine.FindStringSubmatch(line); m != nil {
				pf.statName = statisticName(m[1])
				pf.stat, _ = strconv.ParseFloat(m[2], 64)
			}
			if m := reducedLine.FindStringSubmatch(line); m != nil {
				pf.reduced, _ = strconv.ParseFloat(m[1], 64)
			}
			if m := aicBICLine.FindStringSubmatch(line); m != nil {
				pf.aic, _ = strconv.ParseFloat(m[1], 64)
				pf.bic, _ = strconv.ParseFloat(m[2], 64)
			}
			continue
		}

		body, comment, _ := strings.Cut(line, "#")
		fields := strings.Fields(body)
		if len(fields) == 0 || fields[0] == "FUNCTION" || imageOptions[fields[0]] {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: parameter %q has no value", lineNo, fields[0])
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parameter %s: %w", lineNo, fields[0], err)
		}
		pf.values = append(pf.values, v)

		sigma := 0.0
		if _, after, ok := strings.Cut(comment, "+/-"); ok {
			if f := strings.Fields(after); len(f) > 0 {
				if s, err := strconv.ParseFloat(f[0], 64); err == nil {
					sigma = s
					haveErrors = true
				}
			}
		}
		pf.uncertainties = append(pf.uncertainties, sigma)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(pf.values) == 0 {
		return nil, fmt.Errorf("no parameter values found")
	}
	if !haveErrors {
		pf.uncertainties = nil
	}
	if pf.statName == "" {
		pf.statName = fit.StatChiSquare
	}
	return pf, nil
}

func statisticName(raw string) string {
	switch strings.ToLower(raw) {
	case "poisson-mlr statistic":
		return fit.StatPoissonMLR
	case "cash statistic":
		return fit.StatCash
	default:
		return fit.StatChiSquare
	}
}

// bootstrapFile is the parsed content of imfit's --save-bootstrap output
type bootstrapFile struct {
	columns []string
	rows    [][]float64
}

// parseBootstrap reads whitespace-separated rows. Column names come from the
// last comment line whose field count matches the data width.
func parseBootstrap(r io.Reader) (*bootstrapFile, error) {
	var comments [][]string
	bf := &bootstrapFile{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			comments = append(comments, strings.Fields(strings.TrimLeft(line, "# ")))
			continue
		}
		fields := strings.Fields(line)
		row := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", lineNo, i+1, err)
			}
			row[i] = v
		}
		if len(bf.rows) > 0 && len(row) != len(bf.rows[0]) {
			return nil, fmt.Errorf("line %d: %d columns, expected %d", lineNo, len(row), len(bf.rows[0]))
		}
		bf.rows = append(bf.rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(bf.rows) == 0 {
		return bf, nil
	}

	width := len(bf.rows[0])
	for i := len(comments) - 1; i >= 0; i-- {
		if len(comments[i]) == width {
			bf.columns = comments[i]
			break
		}
	}
	return bf, nil
}
