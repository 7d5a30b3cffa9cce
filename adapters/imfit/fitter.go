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
	"imfitboot/domain/fit"
	"imfitboot/domain/model"
	"imfitboot/internal"
	"imfitboot/internal/errors"
	"imfitboot/ports"
)

const (
	configFile    = "model.cfg"
	paramsName    = "bestfit_params.dat"
	bootstrapName = "bootstrap.dat"
)

// Options configures the imfit executable
type Options struct {
	Path       string        // imfit binary
	MaxThreads int           // 0 lets imfit decide
	Timeout    time.Duration // per invocation; 0 means none
	WorkDir    string        // parent for temporary run directories; "" uses os.TempDir
}

// Fitter drives the imfit executable. It implements ports.Fitter.
type Fitter struct {
	opts   Options
	runner CommandRunner
	images ports.ImageLoader
	logger *internal.Logger
}

// NewFitter creates an imfit-backed fitter. images may be nil to skip FITS preflight.
func NewFitter(opts Options, runner CommandRunner, images ports.ImageLoader, logger *internal.Logger) *Fitter {
	if opts.Path == "" {
		opts.Path = "imfit"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Fitter{opts: opts, runner: runner, images: images, logger: logger.WithComponent("Imfit")}
}

// Fit runs one imfit minimization and returns an immutable fitted model
func (f *Fitter) Fit(ctx context.Context, desc *model.Description, spec fit.ImageSpec) (ports.FittedModel, error) {
	if spec.ImagePath == "" {
		return nil, fmt.Errorf("%w: no image path given", core.ErrNoData)
	}
	if f.images != nil {
		prepared, err := f.images.Prepare(spec)
		if err != nil {
			return nil, err
		}
		spec = prepared
	}

	start := time.Now()
	f.logger.Info("fitting %s (%d parameters, %d free) to %s",
		desc.Name, desc.ParameterCount(), desc.FreeParameterCount(), spec.ImagePath)

	var (
		params *paramsFile
		output []byte
	)
	err := f.inWorkDir(func(dir string) error {
		args, err := f.prepare(dir, desc, spec)
		if err != nil {
			return err
		}
		args = append(args, "--save-params", paramsName)

		output, err = f.run(ctx, dir, args)
		if err != nil {
			return err
		}
		params, err = readParams(filepath.Join(dir, paramsName))
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(params.values) != desc.ParameterCount() {
		return nil, core.NewDimensionError(desc.ParameterCount(), len(params.values))
	}

	converged := !notConverged.Match(output)
	result := fit.NewResult(converged, params.values, params.uncertainties)
	result.StatisticName = params.statName
	result.Statistic = params.stat
	result.ReducedStatistic = params.reduced
	result.AIC = params.aic
	result.BIC = params.bic

	fitted, err := desc.WithValues(params.values)
	if err != nil {
		return nil, err
	}

	if converged {
		f.logger.Info("fit converged in %v: %s=%.4f reduced=%.4f", time.Since(start), result.StatisticName, result.Statistic, result.ReducedStatistic)
	} else {
		f.logger.Warn("fit did not converge after %v", time.Since(start))
	}

	return newFittedModel(f, fitted, spec, result), nil
}

// prepare writes the config file and returns the shared command-line arguments
func (f *Fitter) prepare(dir string, desc *model.Description, spec fit.ImageSpec) ([]string, error) {
	if err := os.WriteFile(filepath.Join(dir, configFile), []byte(desc.String()), 0o644); err != nil {
		return nil, errors.ExternalToolError("imfit", fmt.Errorf("writing config: %w", err))
	}

	args := []string{spec.ImagePath, "-c", configFile}
	if spec.MaskPath != "" {
		args = append(args, "--mask", spec.MaskPath)
	}
	if spec.NoisePath != "" {
		args = append(args, "--noise", spec.NoisePath)
	}
	if spec.PSFPath != "" {
		args = append(args, "--psf", spec.PSFPath)
	}
	if spec.Gain > 0 {
		args = append(args, "--gain="+formatFloat(spec.Gain))
	}
	if spec.ReadNoise > 0 {
		args = append(args, "--readnoise="+formatFloat(spec.ReadNoise))
	}
	if spec.OriginalSky != 0 {
		args = append(args, "--sky="+formatFloat(spec.OriginalSky))
	}
	switch {
	case spec.UseCashStat:
		args = append(args, "--cashstat")
	case spec.UsePoissonMLR:
		args = append(args, "--poisson-mlr")
	}
	if f.opts.MaxThreads > 0 {
		args = append(args, "--max-threads", strconv.Itoa(f.opts.MaxThreads))
	}
	return args, nil
}

func (f *Fitter) run(ctx context.Context, dir string, args []string) ([]byte, error) {
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}
	f.logger.Debug("%s %v", f.opts.Path, args)
	out, err := f.runner.Run(ctx, dir, f.opts.Path, args...)
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, errors.ExternalToolError("imfit", err)
	}
	return out, nil
}

func (f *Fitter) inWorkDir(fn func(dir string) error) error {
	dir, err := os.MkdirTemp(f.opts.WorkDir, "imfitboot-*")
	if err != nil {
		return errors.ExternalToolError("imfit", fmt.Errorf("creating work directory: %w", err))
	}
	defer os.RemoveAll(dir)
	return fn(dir)
}

func readParams(path string) (*paramsFile, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.ExternalToolError("imfit", fmt.Errorf("reading best-fit parameters: %w", err))
	}
	defer fh.Close()
	pf, err := parseParams(fh)
	if err != nil {
		return nil, errors.ExternalToolError("imfit", fmt.Errorf("parsing %s: %w", filepath.Base(path), err))
	}
	return pf, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var _ ports.Fitter = (*Fitter)(nil)
var _ ports.FittedModel = (*FittedModel)(nil)
var _ ports.FluxEvaluator = (*flux.Evaluator)(nil)
