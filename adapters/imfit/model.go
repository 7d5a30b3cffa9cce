package imfit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"imfitboot/adapters/flux"
	"imfitboot/domain/core"
	"imfitboot/domain/ensemble"
	"imfitboot/domain/fit"
	"imfitboot/domain/model"
	"imfitboot/internal/errors"
)

// FittedModel is the immutable handle returned by Fit. It re-invokes imfit
// for bootstrap resampling and computes fluxes analytically.
type FittedModel struct {
	fitter  *Fitter
	desc    *model.Description
	spec    fit.ImageSpec
	result  fit.Result
	fluxes  *flux.Evaluator
	fluxErr error
}

func newFittedModel(f *Fitter, desc *model.Description, spec fit.ImageSpec, result fit.Result) *FittedModel {
	ev, err := flux.NewEvaluator(desc)
	return &FittedModel{fitter: f, desc: desc, spec: spec, result: result, fluxes: ev, fluxErr: err}
}

// Result implements ports.FittedModel
func (m *FittedModel) Result() fit.Result { return m.result }

// Description returns a copy of the model with best-fit values
func (m *FittedModel) Description() *model.Description { return m.desc.Clone() }

// EvaluateFluxes implements ports.FluxEvaluator
func (m *FittedModel) EvaluateFluxes(ctx context.Context, params ensemble.Vector) (ensemble.Fluxes, error) {
	if m.fluxErr != nil {
		return ensemble.Fluxes{}, m.fluxErr
	}
	return m.fluxes.EvaluateFluxes(ctx, params)
}

// RunBootstrap runs n imfit bootstrap iterations starting from the best fit
func (m *FittedModel) RunBootstrap(ctx context.Context, n int) (*ensemble.Ensemble, error) {
	if n <= 0 {
		return nil, core.NewTrialCountError(n)
	}
	if m.spec.ImagePath == "" {
		return nil, fmt.Errorf("%w: bootstrap needs the fitted image", core.ErrNoData)
	}

	f := m.fitter
	start := time.Now()
	var boot *bootstrapFile
	err := f.inWorkDir(func(dir string) error {
		args, err := f.prepare(dir, m.desc, m.spec)
		if err != nil {
			return err
		}
		args = append(args, "--bootstrap", strconv.Itoa(n), "--save-bootstrap", bootstrapName)

		if _, err := f.run(ctx, dir, args); err != nil {
			return err
		}
		fh, err := os.Open(filepath.Join(dir, bootstrapName))
		if err != nil {
			return errors.ExternalToolError("imfit", fmt.Errorf("reading bootstrap output: %w", err))
		}
		defer fh.Close()
		if boot, err = parseBootstrap(fh); err != nil {
			return errors.ExternalToolError("imfit", fmt.Errorf("parsing bootstrap output: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(boot.rows) == 0 {
		return nil, fmt.Errorf("%w: imfit produced no bootstrap rows", core.ErrInvalidTrialCount)
	}

	rows, columns := m.expandFixed(boot)
	f.logger.Info("bootstrap: %d iterations in %v", len(rows), time.Since(start))
	return ensemble.New(rows, columns)
}

// expandFixed restores fixed-parameter columns when imfit reports only the
// free parameters, so rows always have the full parameter count.
func (m *FittedModel) expandFixed(boot *bootstrapFile) ([][]float64, []string) {
	names := m.desc.ColumnNames()
	width := len(boot.rows[0])
	if width != m.desc.FreeParameterCount() || width == len(names) {
		return boot.rows, boot.columns
	}

	params := m.desc.ParameterList()
	rows := make([][]float64, len(boot.rows))
	for i, src := range boot.rows {
		row := make([]float64, len(params))
		k := 0
		for j, p := range params {
			if p.Fixed {
				row[j] = p.Value
				continue
			}
			row[j] = src[k]
			k++
		}
		rows[i] = row
	}
	return rows, names
}
