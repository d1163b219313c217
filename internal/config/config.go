package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"goale/internal/errors"
)

// Config represents the process-level configuration read from the environment
type Config struct {
	Log         LogConfig
	Backend     BackendConfig
	Ledger      LedgerConfig
	CodeVersion string
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string
}

// BackendConfig holds ALE engine settings that are not part of a plan
type BackendConfig struct {
	Workers         int
	VoxelSize       float64
	MinExperiments  int
	DefaultSubjects int
}

// LedgerConfig holds the run ledger connection. An empty DSN disables the
// ledger.
type LedgerConfig struct {
	DSN string
}

// Enabled reports whether runs are recorded
func (c LedgerConfig) Enabled() bool { return c.DSN != "" }

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Log:         LogConfig{Level: getEnvOrDefault("LOG_LEVEL", "INFO")},
		Backend:     *loadBackendConfig(),
		Ledger:      *loadLedgerConfig(),
		CodeVersion: getEnvOrDefault("GOALE_CODE_VERSION", "dev"),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadBackendConfig() *BackendConfig {
	return &BackendConfig{
		Workers:         getEnvIntOrDefault("GOALE_WORKERS", runtime.GOMAXPROCS(0)),
		VoxelSize:       getEnvFloatOrDefault("GOALE_VOXEL_SIZE", 4),
		MinExperiments:  getEnvIntOrDefault("GOALE_MIN_EXPERIMENTS", 2),
		DefaultSubjects: getEnvIntOrDefault("GOALE_DEFAULT_SUBJECTS", 20),
	}
}

func loadLedgerConfig() *LedgerConfig {
	dsn := getEnvOrDefault("GOALE_LEDGER_DSN", "results/ledger.db")
	if strings.EqualFold(dsn, "none") {
		dsn = ""
	}
	return &LedgerConfig{DSN: dsn}
}

func validateConfig(config *Config) error {
	if config.Backend.Workers < 1 {
		return errors.ConfigInvalid(fmt.Sprintf("GOALE_WORKERS must be at least 1, got %d", config.Backend.Workers))
	}
	if config.Backend.VoxelSize <= 0 {
		return errors.ConfigInvalid(fmt.Sprintf("GOALE_VOXEL_SIZE must be positive, got %g", config.Backend.VoxelSize))
	}
	if config.Backend.MinExperiments < 1 {
		return errors.ConfigInvalid(fmt.Sprintf("GOALE_MIN_EXPERIMENTS must be at least 1, got %d", config.Backend.MinExperiments))
	}
	if config.Backend.DefaultSubjects < 1 {
		return errors.ConfigInvalid(fmt.Sprintf("GOALE_DEFAULT_SUBJECTS must be at least 1, got %d", config.Backend.DefaultSubjects))
	}
	return nil
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
