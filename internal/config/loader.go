package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{
		rootDir: rootDir,
	}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (NODULES_*), a .env file in the root fills unset ones
// 2. Config file (.nodules/config.yml or .nodules/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	// .env never overrides variables already set in the environment
	envFile := filepath.Join(l.rootDir, ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
	}

	v := viper.New()

	configDir := filepath.Join(l.rootDir, ".nodules")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	// Enable environment variable overrides
	v.SetEnvPrefix("NODULES")
	v.AutomaticEnv()
	// Replace . with _ in env var names (e.g., NODULES_EXTRACTION_WORKERS)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, key := range envKeys {
		v.BindEnv(key)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - we'll use defaults + env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// envKeys are the scalar keys that can be set from the environment.
var envKeys = []string{
	"paths.annotations",
	"paths.diagnosis",
	"paths.images",
	"paths.output",

	"extraction.workers",
	"extraction.export_full",
	"extraction.skip_unclassified",
	"extraction.boundary_tolerance",
	"extraction.image_format",
	"extraction.unknown_diagnosis",
	"extraction.raster_cache_mb",

	"cache.enabled",
	"cache.location",
	"cache.max_age_days",
	"cache.max_size_mb",

	"logging.level",
	"logging.format",
	"logging.output",

	"metrics.textfile",
	"prepare.size",
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("paths.annotations", defaults.Paths.Annotations)
	v.SetDefault("paths.diagnosis", defaults.Paths.Diagnosis)
	v.SetDefault("paths.images", defaults.Paths.Images)
	v.SetDefault("paths.output", defaults.Paths.Output)

	v.SetDefault("discovery.annotations", defaults.Discovery.Annotations)
	v.SetDefault("discovery.diagnosis", defaults.Discovery.Diagnosis)
	v.SetDefault("discovery.images", defaults.Discovery.Images)
	v.SetDefault("discovery.ignore", defaults.Discovery.Ignore)

	v.SetDefault("extraction.workers", defaults.Extraction.Workers)
	v.SetDefault("extraction.export_full", defaults.Extraction.ExportFull)
	v.SetDefault("extraction.skip_unclassified", defaults.Extraction.SkipUnclassified)
	v.SetDefault("extraction.boundary_tolerance", defaults.Extraction.BoundaryTolerance)
	v.SetDefault("extraction.image_format", defaults.Extraction.ImageFormat)
	v.SetDefault("extraction.unknown_diagnosis", defaults.Extraction.UnknownDiagnosis)
	v.SetDefault("extraction.raster_cache_mb", defaults.Extraction.RasterCacheMB)

	v.SetDefault("cache.enabled", defaults.Cache.Enabled)
	v.SetDefault("cache.location", defaults.Cache.Location)
	v.SetDefault("cache.max_age_days", defaults.Cache.MaxAgeDays)
	v.SetDefault("cache.max_size_mb", defaults.Cache.MaxSizeMB)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.output", defaults.Logging.Output)

	v.SetDefault("metrics.textfile", defaults.Metrics.Textfile)
	v.SetDefault("prepare.size", defaults.Prepare.Size)
	v.SetDefault("prepare.signed", defaults.Prepare.Signed)
}

// LoadConfig is a convenience function that creates a loader and loads config.
// It uses the current working directory as the root.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
