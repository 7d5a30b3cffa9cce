package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"imfitboot/adapters/excel"
	"imfitboot/app"
	"imfitboot/domain/core"
	"imfitboot/domain/fit"
	"imfitboot/domain/run"
	"imfitboot/internal/config"
	"imfitboot/internal/container"
	"imfitboot/internal/derived"
	"imfitboot/ports"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	rootCmd := &cobra.Command{
		Use:           "imfitboot",
		Short:         "Bootstrap uncertainties for quantities derived from imfit models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newFitCmd(),
		newBootstrapCmd(),
		newRatioCmd(),
		newRunsCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// imageFlags binds the ImageSpec options shared by fit, bootstrap and ratio
func imageFlags(cmd *cobra.Command, spec *fit.ImageSpec) {
	cmd.Flags().StringVar(&spec.MaskPath, "mask", "", "Mask image (FITS)")
	cmd.Flags().StringVar(&spec.NoisePath, "noise", "", "Noise image (FITS)")
	cmd.Flags().StringVar(&spec.PSFPath, "psf", "", "PSF image (FITS)")
	cmd.Flags().Float64Var(&spec.Gain, "gain", 0, "Gain in e-/ADU (default: image header)")
	cmd.Flags().Float64Var(&spec.ReadNoise, "readnoise", 0, "Read noise in e- (default: image header)")
	cmd.Flags().Float64Var(&spec.OriginalSky, "sky", 0, "Sky level subtracted from the image (default: image header)")
	cmd.Flags().BoolVar(&spec.UsePoissonMLR, "mlr", false, "Use the Poisson maximum-likelihood-ratio statistic")
	cmd.Flags().BoolVar(&spec.UseCashStat, "cash", false, "Use the Cash statistic")
}

func setup(withDatabase bool) (*container.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	c, err := container.New(cfg)
	if err != nil {
		return nil, err
	}
	if withDatabase {
		if err := c.InitWithDatabase(context.Background()); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func fitModel(ctx context.Context, c *container.Container, modelPath string, spec fit.ImageSpec) (ports.FittedModel, error) {
	desc, err := c.Models.Load(modelPath)
	if err != nil {
		return nil, err
	}
	return c.Fitter.Fit(ctx, desc, spec)
}

func newFitCmd() *cobra.Command {
	var spec fit.ImageSpec

	cmd := &cobra.Command{
		Use:   "fit [model.yaml] [image.fits]",
		Short: "Fit a model to an image and print the best-fit parameters",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(false)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			spec.ImagePath = args[1]
			fitted, err := fitModel(cmd.Context(), c, args[0], spec)
			if err != nil {
				return err
			}
			printFit(fitted)
			return nil
		},
	}
	imageFlags(cmd, &spec)
	return cmd
}

func newBootstrapCmd() *cobra.Command {
	var (
		spec   fit.ImageSpec
		trials int
		out    string
	)

	cmd := &cobra.Command{
		Use:   "bootstrap [model.yaml] [image.fits]",
		Short: "Fit, then run bootstrap resampling and save the parameter ensemble",
		Long: `Fit the model, run imfit bootstrap resampling from the best fit and
write the resulting parameter ensemble to an .xlsx workbook.

Example: imfitboot bootstrap bulge_disk.yaml ic3478.fits -n 500 --out ensemble.xlsx`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(false)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			if trials <= 0 {
				trials = c.Config.Bootstrap.Trials
			}
			spec.ImagePath = args[1]
			fitted, err := fitModel(cmd.Context(), c, args[0], spec)
			if err != nil {
				return err
			}
			printFit(fitted)

			ens, err := fitted.RunBootstrap(cmd.Context(), trials)
			if err != nil {
				return err
			}
			fmt.Printf("\nBootstrap: %d trials x %d parameters\n", ens.Rows(), ens.Cols())
			c.Metrics.ObserveTrials(ens.Rows())

			if out != "" {
				r := &run.Run{
					ID:        core.NewRunID(),
					ModelName: fitted.Description().Name,
					Requested: trials,
					CreatedAt: core.Now(),
					Fit:       fitted.Result(),
					Ensemble:  ens,
				}
				if err := c.Exporter.Write(out, r); err != nil {
					return err
				}
				fmt.Printf("Ensemble written to %s\n", out)
			}
			return nil
		},
	}
	imageFlags(cmd, &spec)
	cmd.Flags().IntVarP(&trials, "trials", "n", 0, "Bootstrap trials (default: BOOT_TRIALS)")
	cmd.Flags().StringVar(&out, "out", "", "Write the ensemble to this .xlsx file")
	return cmd
}

func newRatioCmd() *cobra.Command {
	var (
		spec         fit.ImageSpec
		trials       int
		quantitySpec string
		bins         string
		workers      int
		failFast     bool
		save         bool
		xlsx         string
		ensemblePath string
	)

	cmd := &cobra.Command{
		Use:   "ratio [model.yaml] [image.fits]",
		Short: "Bootstrap the distribution of a flux-derived quantity such as B/T",
		Long: `Fit the model, bootstrap the parameters and evaluate a derived quantity
for every trial. Quantities: fraction:<label>, ratio:<a>/<b>, flux:<label>, total.

Example: imfitboot ratio bulge_disk.yaml ic3478.fits -q fraction:bulge -n 500 --bins 0.1,0.15,0.2,0.25 --save`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(save)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			cfg := c.Config.Bootstrap
			if trials <= 0 {
				trials = cfg.Trials
			}
			if workers <= 0 {
				workers = cfg.Workers
			}
			edges := cfg.BinEdges
			if bins != "" {
				if edges, err = config.ParseFloatList(bins); err != nil {
					return err
				}
			}

			spec.ImagePath = args[1]
			fitted, err := fitModel(cmd.Context(), c, args[0], spec)
			if err != nil {
				return err
			}
			printFit(fitted)

			quantity, err := derived.Parse(quantitySpec, fitted.Description().FunctionLabels())
			if err != nil {
				return err
			}

			req := app.RatioRequest{
				Fitted:   fitted,
				Quantity: quantity,
				Trials:   trials,
				BinEdges: edges,
				Options:  derived.Options{Workers: workers, FailFast: failFast || cfg.FailFast},
			}

			var r *run.Run
			if ensemblePath != "" {
				ens, readErr := excel.NewEnsembleReader(ensemblePath, c.Logger).Read()
				if readErr != nil {
					return readErr
				}
				r, err = c.Ratio.RunWithEnsemble(cmd.Context(), req, ens)
			} else {
				r, err = c.Ratio.Run(cmd.Context(), req)
			}
			if err := reportRatio(os.Stdout, r, err); err != nil {
				return err
			}

			if save {
				fmt.Printf("\nSaved run %s\n", r.ID)
			}
			if xlsx != "" {
				if err := c.Exporter.Write(xlsx, r); err != nil {
					return err
				}
				fmt.Printf("Workbook written to %s\n", xlsx)
			}
			return nil
		},
	}
	imageFlags(cmd, &spec)
	cmd.Flags().IntVarP(&trials, "trials", "n", 0, "Bootstrap trials (default: BOOT_TRIALS)")
	cmd.Flags().StringVarP(&quantitySpec, "quantity", "q", "fraction:bulge", "Derived quantity to evaluate")
	cmd.Flags().StringVar(&bins, "bins", "", "Comma-separated histogram bin edges (default: BOOT_BIN_EDGES)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel evaluation workers (default: BOOT_WORKERS)")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop at the first failing trial")
	cmd.Flags().BoolVar(&save, "save", false, "Store the run in the database")
	cmd.Flags().StringVar(&xlsx, "xlsx", "", "Write the run to this .xlsx file")
	cmd.Flags().StringVar(&ensemblePath, "ensemble", "", "Evaluate a saved ensemble (.xlsx or .csv) instead of resampling")
	return cmd
}

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(true)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			runs, err := c.Runs.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs stored")
				return nil
			}
			fmt.Printf("%-36s  %-20s  %-18s  %7s  %10s  %10s\n", "ID", "CREATED", "QUANTITY", "TRIALS", "MEAN", "POINT")
			for _, r := range runs {
				fmt.Printf("%-36s  %-20s  %-18s  %3d/%-3d  %10s  %10s\n",
					r.ID, r.CreatedAt, r.Quantity, r.Succeeded, r.Trials, optional(r.Mean), optional(r.PointEstimate))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list (0 for all)")
	cmd.AddCommand(newShowRunCmd())
	return cmd
}

func newShowRunCmd() *cobra.Command {
	var xlsx string

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := core.ParseRunID(args[0])
			if err != nil {
				return err
			}
			c, err := setup(true)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			r, err := c.Runs.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			printRun(os.Stdout, r)
			if xlsx != "" {
				if err := c.Exporter.Write(xlsx, r); err != nil {
					return err
				}
				fmt.Printf("Workbook written to %s\n", xlsx)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&xlsx, "xlsx", "", "Write the run to this .xlsx file")
	return cmd
}

func printFit(fitted ports.FittedModel) {
	res := fitted.Result()
	desc := fitted.Description()

	status := "converged"
	if !res.Converged {
		status = "NOT converged"
	}
	fmt.Printf("Fit %s: %s = %.4f (reduced %.4f), AIC %.2f, BIC %.2f\n",
		status, res.StatisticName, res.Statistic, res.ReducedStatistic, res.AIC, res.BIC)

	names := desc.ColumnNames()
	for i, v := range res.BestFit {
		line := fmt.Sprintf("  %-10s %14.6f", names[i], v)
		if i < len(res.Uncertainties) && res.Uncertainties[i] > 0 {
			line += fmt.Sprintf(" +/- %.6f", res.Uncertainties[i])
		}
		fmt.Println(line)
	}
}

func printRun(w io.Writer, r *run.Run) {
	fmt.Fprintf(w, "\nRun %s (%s)\n", r.ID, r.Quantity)
	if fp := r.Manifest.Fingerprint; fp != "" {
		fmt.Fprintf(w, "Fingerprint: %s\n", fp.Short())
	}
	if d := r.Distribution; d != nil {
		fmt.Fprintf(w, "Trials: %d requested, %d obtained, %d evaluated, %d failed\n",
			r.Requested, r.Trials(), len(d.Succeeded), len(d.Failed))

		counts := d.FailureCounts()
		for _, k := range d.FailureKinds() {
			fmt.Fprintf(w, "  %-22s %d\n", k, counts[k])
		}
	}

	s := r.Summary
	if s == nil {
		return
	}
	fmt.Fprintf(w, "Best fit: %.6f\n", s.PointEstimate)
	fmt.Fprintf(w, "Mean:     %.6f  (std dev %.6f, median %.6f)\n", s.Mean, s.StdDev, s.Median)
	fmt.Fprintf(w, "%.2f%% interval: [%.6f, %.6f]\n", s.IntervalPercent, s.Lower, s.Upper)

	if len(s.Histogram) > 0 {
		fmt.Fprintln(w, "Histogram:")
		peak := 0
		for _, b := range s.Histogram {
			if b.Count > peak {
				peak = b.Count
			}
		}
		for _, b := range s.Histogram {
			width := 0
			if peak > 0 {
				width = b.Count * 40 / peak
			}
			fmt.Fprintf(w, "  [%8.4f, %8.4f) %5d %s\n", b.Low, b.High, b.Count, strings.Repeat("#", width))
		}
		if s.Outside > 0 {
			fmt.Fprintf(w, "  %d values outside the binned range\n", s.Outside)
		}
	}
}

// reportRatio prints whatever run the service produced, including one whose
// save failed, and then passes the service error through.
func reportRatio(w io.Writer, r *run.Run, err error) error {
	if r != nil {
		printRun(w, r)
	}
	return err
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.6f", *v)
}
