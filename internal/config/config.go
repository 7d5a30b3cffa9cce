package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"imfitboot/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Imfit     ImfitConfig
	Bootstrap BootstrapConfig
	Database  DatabaseConfig
	Metrics   MetricsConfig
	LogLevel  string
}

// ImfitConfig locates the external fitting executable
type ImfitConfig struct {
	Path       string
	MaxThreads int
	Timeout    time.Duration
	WorkDir    string
}

// BootstrapConfig holds resampling and evaluation settings
type BootstrapConfig struct {
	Trials   int
	Workers  int
	FailFast bool
	Interval float64 // central interval width in percent, e.g. 68.27
	BinEdges []float64
}

// DatabaseConfig holds run-store connection settings
type DatabaseConfig struct {
	Driver string // sqlite or postgres
	URL    string
}

// MetricsConfig holds batch-metrics output settings
type MetricsConfig struct {
	Textfile string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	edges, err := parseFloatList(getEnvOrDefault("BOOT_BIN_EDGES", ""))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load bootstrap configuration")
	}

	config := &Config{
		Imfit: ImfitConfig{
			Path:       getEnvOrDefault("IMFIT_PATH", "imfit"),
			MaxThreads: getEnvIntOrDefault("IMFIT_MAX_THREADS", 0),
			Timeout:    getEnvDurationOrDefault("IMFIT_TIMEOUT", 30*time.Minute),
			WorkDir:    getEnvOrDefault("IMFIT_WORKDIR", os.TempDir()),
		},
		Bootstrap: BootstrapConfig{
			Trials:   getEnvIntOrDefault("BOOT_TRIALS", 500),
			Workers:  getEnvIntOrDefault("BOOT_WORKERS", runtime.NumCPU()),
			FailFast: getEnvBoolOrDefault("BOOT_FAIL_FAST", false),
			Interval: getEnvFloatOrDefault("BOOT_INTERVAL", 68.27),
			BinEdges: edges,
		},
		Database: DatabaseConfig{
			Driver: getEnvOrDefault("DATABASE_DRIVER", "sqlite"),
			URL:    getEnvOrDefault("DATABASE_URL", "imfitboot.db"),
		},
		Metrics: MetricsConfig{
			Textfile: getEnvOrDefault("METRICS_TEXTFILE", ""),
		},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func validateConfig(config *Config) error {
	if config.Imfit.Path == "" {
		return errors.ConfigInvalid("IMFIT_PATH must not be empty")
	}
	if config.Bootstrap.Trials <= 0 {
		return errors.ConfigInvalid("BOOT_TRIALS must be positive")
	}
	if config.Bootstrap.Workers <= 0 {
		return errors.ConfigInvalid("BOOT_WORKERS must be positive")
	}
	if config.Bootstrap.Interval <= 0 || config.Bootstrap.Interval >= 100 {
		return errors.ConfigInvalid("BOOT_INTERVAL must lie in (0, 100)")
	}
	for i := 1; i < len(config.Bootstrap.BinEdges); i++ {
		if config.Bootstrap.BinEdges[i] <= config.Bootstrap.BinEdges[i-1] {
			return errors.ConfigInvalid("BOOT_BIN_EDGES must be strictly increasing")
		}
	}
	switch config.Database.Driver {
	case "sqlite", "postgres":
	default:
		return errors.ConfigInvalid("DATABASE_DRIVER must be sqlite or postgres")
	}
	if config.Database.URL == "" {
		return errors.ConfigInvalid("DATABASE_URL is required")
	}
	return nil
}

// ParseFloatList parses a comma-separated list such as "0.14,0.16,0.18".
// An empty string yields nil.
func ParseFloatList(s string) ([]float64, error) {
	return parseFloatList(s)
}

func parseFloatList(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, errors.InvalidInput("invalid number in list: " + part)
		}
		out = append(out, v)
	}
	return out, nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
