package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gometa/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig `validate:"required"`
	Database  DatabaseConfig
	Analysis  AnalysisConfig `validate:"required"`
	Data      DataConfig
	Profiling ProfilingConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port       string `validate:"required"`
	ReportPort string // report pages listen separately from the JSON API
	GinMode    string
}

// DatabaseConfig holds database connection settings. An empty URL disables
// persistence; services run in-memory only.
type DatabaseConfig struct {
	URL     string
	SSLMode string
}

// AnalysisConfig holds the numeric defaults applied when callers omit them
type AnalysisConfig struct {
	DefaultAlpha  float64
	Tolerance     float64
	MaxIterations int
	Permutations  int
	PermWorkers   int
	Seed          int64
}

// DataConfig holds the default tabular input and its column mapping
type DataConfig struct {
	File       string
	YColumn    string
	VColumn    string
	NColumn    string
	Moderators []string
	Intercept  bool
}

// ProfilingConfig holds performance profiling settings
type ProfilingConfig struct {
	Port    string
	Enabled bool
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{}

	config.Server = *loadServerConfig()
	config.Database = *loadDatabaseConfig()
	config.Analysis = *loadAnalysisConfig()
	config.Data = *loadDataConfig()
	config.Profiling = *loadProfilingConfig()

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:       getEnvOrDefault("PORT", "8080"),
		ReportPort: getEnvOrDefault("REPORT_PORT", "8081"),
		GinMode:    getEnvOrDefault("GIN_MODE", "debug"),
	}
}

func loadDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		URL:     getEnvOrDefault("DATABASE_URL", ""),
		SSLMode: getEnvOrDefault("SSL_MODE", "disable"),
	}
}

func loadAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		DefaultAlpha:  getEnvFloatOrDefault("DEFAULT_ALPHA", 0.05),
		Tolerance:     getEnvFloatOrDefault("ESTIMATOR_TOLERANCE", 1e-5),
		MaxIterations: getEnvIntOrDefault("ESTIMATOR_MAX_ITER", 100),
		Permutations:  getEnvIntOrDefault("PERMUTATIONS", 1000),
		PermWorkers:   getEnvIntOrDefault("PERM_WORKERS", 4),
		Seed:          int64(getEnvIntOrDefault("SEED", 42)),
	}
}

func loadDataConfig() *DataConfig {
	var moderators []string
	if raw := getEnvOrDefault("MODERATOR_COLUMNS", ""); raw != "" {
		for _, col := range strings.Split(raw, ",") {
			if col = strings.TrimSpace(col); col != "" {
				moderators = append(moderators, col)
			}
		}
	}
	return &DataConfig{
		File:       getEnvOrDefault("DATA_FILE", ""),
		YColumn:    getEnvOrDefault("Y_COLUMN", "y"),
		VColumn:    getEnvOrDefault("V_COLUMN", "v"),
		NColumn:    getEnvOrDefault("N_COLUMN", ""),
		Moderators: moderators,
		Intercept:  getEnvBoolOrDefault("ADD_INTERCEPT", true),
	}
}

func loadProfilingConfig() *ProfilingConfig {
	return &ProfilingConfig{
		Port:    getEnvOrDefault("PPROF_PORT", "6060"),
		Enabled: getEnvBoolOrDefault("PPROF_ENABLED", false),
	}
}

func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return errors.ConfigInvalid("server port is required")
	}
	if a := config.Analysis.DefaultAlpha; a <= 0 || a >= 1 {
		return errors.ConfigInvalid("DEFAULT_ALPHA must be in (0, 1)")
	}
	if tol := config.Analysis.Tolerance; tol <= 0 || tol >= 1 {
		return errors.ConfigInvalid("ESTIMATOR_TOLERANCE must be in (0, 1)")
	}
	if config.Analysis.MaxIterations < 1 {
		return errors.ConfigInvalid("ESTIMATOR_MAX_ITER must be positive")
	}
	if config.Analysis.Permutations < 1 {
		return errors.ConfigInvalid("PERMUTATIONS must be positive")
	}
	if w := config.Analysis.PermWorkers; w < 1 || w > 32 {
		return errors.ConfigInvalid("PERM_WORKERS must be in [1, 32]")
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

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// Duration parsing helper (for future use)
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
