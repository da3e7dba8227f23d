package config

import (
	"path/filepath"

	"github.com/mvp-joe/nodule-extract/internal/cache"
	"github.com/mvp-joe/nodule-extract/internal/logging"
	"github.com/mvp-joe/nodule-extract/internal/pipeline"
	"github.com/mvp-joe/nodule-extract/internal/raster"
)

// ToPipelineConfig converts a Config to a pipeline.Config.
// Relative paths are resolved against rootDir.
func (c *Config) ToPipelineConfig(rootDir string) *pipeline.Config {
	// Validate already rejected unknown formats
	format, err := raster.ParseFormat(c.Extraction.ImageFormat)
	if err != nil {
		format = raster.PNG
	}

	return &pipeline.Config{
		AnnotationsDir:     resolve(rootDir, c.Paths.Annotations),
		DiagnosisDir:       resolve(rootDir, c.Paths.Diagnosis),
		ImagesDir:          resolve(rootDir, c.Paths.Images),
		OutputDir:          resolve(rootDir, c.Paths.Output),
		AnnotationPatterns: c.Discovery.Annotations,
		DiagnosisPatterns:  c.Discovery.Diagnosis,
		ImagePatterns:      c.Discovery.Images,
		IgnorePatterns:     c.Discovery.Ignore,
		Workers:            c.Extraction.Workers,
		ExportFull:         c.Extraction.ExportFull,
		SkipUnclassified:   c.Extraction.SkipUnclassified,
		Tolerance:          c.Extraction.BoundaryTolerance,
		Format:             format,
		UnknownDiagnosis:   c.Extraction.UnknownDiagnosis,
		RasterCacheMB:      c.Extraction.RasterCacheMB,
	}
}

// ToLoggingConfig converts the logging section to a logging.Config.
func (c *Config) ToLoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if c.Logging.Level != "" {
		cfg.Level = c.Logging.Level
	}
	if c.Logging.Format != "" {
		cfg.Format = c.Logging.Format
	}
	if c.Logging.Output != "" {
		cfg.Output = c.Logging.Output
	}
	return cfg
}

// EvictionPolicy returns the cache eviction limits.
func (c *Config) EvictionPolicy() cache.EvictionPolicy {
	return cache.EvictionPolicy{
		MaxAgeDays: c.Cache.MaxAgeDays,
		MaxSizeMB:  c.Cache.MaxSizeMB,
	}
}

func resolve(rootDir, path string) string {
	if path == "" || filepath.IsAbs(path) || rootDir == "" {
		return path
	}
	return filepath.Join(rootDir, path)
}
