package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mvp-joe/nodule-extract/internal/raster"
)

var (
	// ErrEmptyPath indicates a missing input or output directory
	ErrEmptyPath = errors.New("empty path")

	// ErrInvalidWorkers indicates a non-positive worker count
	ErrInvalidWorkers = errors.New("invalid worker count")

	// ErrInvalidFormat indicates an unsupported output image format
	ErrInvalidFormat = errors.New("invalid image format")

	// ErrInvalidTolerance indicates a negative boundary tolerance
	ErrInvalidTolerance = errors.New("invalid boundary tolerance")

	// ErrEmptyDiagnosis indicates an empty unknown diagnosis code
	ErrEmptyDiagnosis = errors.New("empty unknown diagnosis")

	// ErrEmptyPatterns indicates a source without discovery patterns
	ErrEmptyPatterns = errors.New("empty discovery patterns")

	// ErrInvalidCacheSettings indicates invalid cache configuration
	ErrInvalidCacheSettings = errors.New("invalid cache settings")

	// ErrInvalidLogLevel indicates an unknown log level
	ErrInvalidLogLevel = errors.New("invalid log level")

	// ErrInvalidSize indicates a non-positive prepare size
	ErrInvalidSize = errors.New("invalid size")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validatePaths(&cfg.Paths); err != nil {
		errs = append(errs, err)
	}

	if err := validateDiscovery(&cfg.Discovery); err != nil {
		errs = append(errs, err)
	}

	if err := validateExtraction(&cfg.Extraction); err != nil {
		errs = append(errs, err)
	}

	if err := validateCache(&cfg.Cache); err != nil {
		errs = append(errs, err)
	}

	if err := validateLogging(&cfg.Logging); err != nil {
		errs = append(errs, err)
	}

	if cfg.Prepare.Size <= 0 {
		errs = append(errs, fmt.Errorf("%w: prepare.size must be positive, got %d", ErrInvalidSize, cfg.Prepare.Size))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validatePaths(cfg *PathsConfig) error {
	var errs []error

	fields := []struct {
		name  string
		value string
	}{
		{"annotations", cfg.Annotations},
		{"diagnosis", cfg.Diagnosis},
		{"images", cfg.Images},
		{"output", cfg.Output},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, fmt.Errorf("%w: paths.%s is required", ErrEmptyPath, f.name))
		}
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateDiscovery(cfg *DiscoveryConfig) error {
	var errs []error

	// Ignore may be empty, every source needs at least one pattern
	if len(cfg.Annotations) == 0 {
		errs = append(errs, fmt.Errorf("%w: discovery.annotations", ErrEmptyPatterns))
	}
	if len(cfg.Diagnosis) == 0 {
		errs = append(errs, fmt.Errorf("%w: discovery.diagnosis", ErrEmptyPatterns))
	}
	if len(cfg.Images) == 0 {
		errs = append(errs, fmt.Errorf("%w: discovery.images", ErrEmptyPatterns))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateExtraction(cfg *ExtractionConfig) error {
	var errs []error

	if cfg.Workers <= 0 {
		errs = append(errs, fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidWorkers, cfg.Workers))
	}

	if _, err := raster.ParseFormat(cfg.ImageFormat); err != nil {
		errs = append(errs, fmt.Errorf("%w: must be 'png', 'tiff' or 'bmp', got '%s'", ErrInvalidFormat, cfg.ImageFormat))
	}

	if cfg.BoundaryTolerance < 0 {
		errs = append(errs, fmt.Errorf("%w: boundary_tolerance cannot be negative, got %.2f", ErrInvalidTolerance, cfg.BoundaryTolerance))
	}

	if strings.TrimSpace(cfg.UnknownDiagnosis) == "" {
		errs = append(errs, fmt.Errorf("%w: unknown_diagnosis is required", ErrEmptyDiagnosis))
	}

	// Zero disables the decoded image cache
	if cfg.RasterCacheMB < 0 {
		errs = append(errs, fmt.Errorf("%w: raster_cache_mb cannot be negative, got %d", ErrInvalidCacheSettings, cfg.RasterCacheMB))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateCache(cfg *CacheConfig) error {
	var errs []error

	// Validate cache max age (negative is invalid, zero means no age-based eviction)
	if cfg.MaxAgeDays < 0 {
		errs = append(errs, fmt.Errorf("%w: max_age_days cannot be negative, got %d", ErrInvalidCacheSettings, cfg.MaxAgeDays))
	}

	// Validate cache max size (negative is invalid, zero means no size-based eviction)
	if cfg.MaxSizeMB < 0 {
		errs = append(errs, fmt.Errorf("%w: max_size_mb cannot be negative, got %.2f", ErrInvalidCacheSettings, cfg.MaxSizeMB))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	var errs []error

	switch strings.ToLower(cfg.Level) {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("%w: must be 'debug', 'info', 'warn' or 'error', got '%s'", ErrInvalidLogLevel, cfg.Level))
	}

	switch strings.ToLower(cfg.Format) {
	case "", "auto", "console", "pretty", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format: %s (valid: auto, console, json)", cfg.Format))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

// joinErrors combines multiple errors into a single error with clear formatting.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	var msgs []string
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}

	return fmt.Errorf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
