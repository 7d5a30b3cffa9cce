package container

import (
	"context"
	"fmt"

	"imfitboot/adapters/excel"
	"imfitboot/adapters/fits"
	"imfitboot/adapters/imfit"
	"imfitboot/adapters/modelfile"
	"imfitboot/adapters/sqlstore"
	"imfitboot/app"
	"imfitboot/internal"
	"imfitboot/internal/config"
	"imfitboot/internal/metrics"
	"imfitboot/internal/summary"
	"imfitboot/ports"

	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB      *sqlx.DB
	Metrics *metrics.Collector

	// Adapters
	Models   ports.ModelLoader
	Images   ports.ImageLoader
	Fitter   ports.Fitter
	Runs     ports.RunRepository
	Exporter *excel.Exporter

	// Services
	Ratio *app.RatioService
}

// New creates a container with every component that needs no database
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	logger := internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))
	images := fits.NewLoader(logger)

	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics.NewCollector(),
		Models:   modelfile.NewLoader(),
		Images:   images,
		Exporter: excel.NewExporter(),
		Fitter: imfit.NewFitter(imfit.Options{
			Path:       cfg.Imfit.Path,
			MaxThreads: cfg.Imfit.MaxThreads,
			Timeout:    cfg.Imfit.Timeout,
			WorkDir:    cfg.Imfit.WorkDir,
		}, imfit.ExecRunner{}, images, logger),
	}
	c.Ratio = c.newRatioService()
	return c, nil
}

// InitWithDatabase opens and migrates the run store, then rebuilds the
// services that persist runs.
func (c *Container) InitWithDatabase(ctx context.Context) error {
	db, err := sqlstore.Open(ctx, c.Config.Database.Driver, c.Config.Database.URL)
	if err != nil {
		return err
	}
	c.DB = db
	c.Runs = sqlstore.NewRunRepository(db)
	c.Ratio = c.newRatioService()

	c.Logger.WithComponent("Container").Debug("run store ready (%s)", c.Config.Database.Driver)
	return nil
}

func (c *Container) newRatioService() *app.RatioService {
	return app.NewRatioService(summary.NewSummarizer(c.Config.Bootstrap.Interval), c.Runs, c.Metrics, c.Logger)
}

// Shutdown flushes metrics and closes the database
func (c *Container) Shutdown(ctx context.Context) error {
	if path := c.Config.Metrics.Textfile; path != "" {
		if err := c.Metrics.WriteTextfile(path); err != nil {
			c.Logger.Warn("failed to write metrics to %s: %v", path, err)
		}
	}

	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
