// Package config loads the pipeline configuration from .nodules/config.yml,
// a .env file and NODULES_* environment variables.
//
// Configuration hierarchy (highest to lowest priority):
//  1. Command line flags (applied by the CLI)
//  2. Environment variables (NODULES_*, including values from .env)
//  3. Project config (.nodules/config.yml)
//  4. Built-in defaults
package config

import (
	"github.com/mvp-joe/nodule-extract/internal/discovery"
	"github.com/mvp-joe/nodule-extract/internal/nodule"
	"github.com/mvp-joe/nodule-extract/internal/region"
)

// Config represents the complete nodules configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths" mapstructure:"paths"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Prepare    PrepareConfig    `yaml:"prepare" mapstructure:"prepare"`
}

// PathsConfig locates the three input sources and the output directory.
type PathsConfig struct {
	Annotations string `yaml:"annotations" mapstructure:"annotations"` // directory of XML annotation documents
	Diagnosis   string `yaml:"diagnosis" mapstructure:"diagnosis"`     // directory of patient,diagnosis CSV files
	Images      string `yaml:"images" mapstructure:"images"`           // directory of DICOM files
	Output      string `yaml:"output" mapstructure:"output"`           // receives full/, nodules/ and manifest.yaml
}

// DiscoveryConfig defines which files of each input are read.
type DiscoveryConfig struct {
	Annotations []string `yaml:"annotations" mapstructure:"annotations"` // glob patterns for annotation documents
	Diagnosis   []string `yaml:"diagnosis" mapstructure:"diagnosis"`     // glob patterns for diagnosis tables
	Images      []string `yaml:"images" mapstructure:"images"`           // glob patterns for image files
	Ignore      []string `yaml:"ignore" mapstructure:"ignore"`           // glob patterns to ignore in every input
}

// ExtractionConfig controls the per-slice extraction.
type ExtractionConfig struct {
	Workers           int     `yaml:"workers" mapstructure:"workers"`                       // nodules extracted in parallel
	ExportFull        bool    `yaml:"export_full" mapstructure:"export_full"`               // also write the unmasked image
	SkipUnclassified  bool    `yaml:"skip_unclassified" mapstructure:"skip_unclassified"`   // skip patients without a diagnosis
	BoundaryTolerance float64 `yaml:"boundary_tolerance" mapstructure:"boundary_tolerance"` // pixels near the contour counted as inside
	ImageFormat       string  `yaml:"image_format" mapstructure:"image_format"`             // png, tiff or bmp
	UnknownDiagnosis  string  `yaml:"unknown_diagnosis" mapstructure:"unknown_diagnosis"`   // code used when a patient has no diagnosis
	RasterCacheMB     int     `yaml:"raster_cache_mb" mapstructure:"raster_cache_mb"`       // decoded images kept in memory
}

// CacheConfig defines stage cache behavior.
type CacheConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Location   string  `yaml:"location" mapstructure:"location"`         // Override default ~/.nodules/cache
	MaxAgeDays int     `yaml:"max_age_days" mapstructure:"max_age_days"` // Evict entries unused for this long
	MaxSizeMB  float64 `yaml:"max_size_mb" mapstructure:"max_size_mb"`   // Evict least recently used above this size
}

// LoggingConfig configures the zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // auto, console, json
	Output string `yaml:"output" mapstructure:"output"` // stderr, stdout or a file path
}

// MetricsConfig configures the run metrics export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"` // Prometheus textfile path, empty disables
}

// PrepareConfig configures the image scaler.
type PrepareConfig struct {
	Size   int  `yaml:"size" mapstructure:"size"`     // edge length of the square output images
	Signed bool `yaml:"signed" mapstructure:"signed"` // inputs hold two's complement samples
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Annotations: "data/annotations",
			Diagnosis:   "data/diagnosis",
			Images:      "data/images",
			Output:      "output",
		},
		Discovery: DiscoveryConfig{
			Annotations: discovery.DefaultAnnotationPatterns,
			Diagnosis:   discovery.DefaultDiagnosisPatterns,
			Images:      discovery.DefaultImagePatterns,
			Ignore:      discovery.DefaultIgnorePatterns,
		},
		Extraction: ExtractionConfig{
			Workers:           4,
			ExportFull:        true,
			SkipUnclassified:  false,
			BoundaryTolerance: region.DefaultTolerance,
			ImageFormat:       "png",
			UnknownDiagnosis:  nodule.UnknownMalignancy,
			RasterCacheMB:     256,
		},
		Cache: CacheConfig{
			Enabled:    true,
			Location:   "", // Empty means use default ~/.nodules/cache
			MaxAgeDays: 30,
			MaxSizeMB:  500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
			Output: "stderr",
		},
		Prepare: PrepareConfig{
			Size: 64,
		},
	}
}
