package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imfitboot/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Imfit:     config.ImfitConfig{Path: "imfit"},
		Bootstrap: config.BootstrapConfig{Trials: 10, Workers: 2, Interval: 68.27},
		Database:  config.DatabaseConfig{Driver: "sqlite", URL: ":memory:"},
		Metrics:   config.MetricsConfig{Textfile: filepath.Join(t.TempDir(), "imfitboot.prom")},
		LogLevel:  "ERROR",
	}
}

func TestContainerLifecycle(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(cfg)
	require.NoError(t, err)
	assert.NotNil(t, c.Ratio)
	assert.Nil(t, c.Runs)

	require.NoError(t, c.InitWithDatabase(context.Background()))
	assert.NotNil(t, c.Runs)

	runs, err := c.Runs.List(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, runs)

	c.Metrics.ObserveTrials(3)
	require.NoError(t, c.Shutdown(context.Background()))
	_, err = os.Stat(cfg.Metrics.Textfile)
	assert.NoError(t, err)
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
