package pipeline

import (
	"github.com/mvp-joe/nodule-extract/internal/discovery"
	"github.com/mvp-joe/nodule-extract/internal/nodule"
	"github.com/mvp-joe/nodule-extract/internal/raster"
	"github.com/mvp-joe/nodule-extract/internal/region"
)

// Config holds the settings for one extraction run.
type Config struct {
	// Input roots. All three must be readable directories.
	AnnotationsDir string
	DiagnosisDir   string
	ImagesDir      string

	// OutputDir receives nodules/, full/ and manifest.yaml.
	OutputDir string

	// Discovery patterns per input
	AnnotationPatterns []string
	DiagnosisPatterns  []string
	ImagePatterns      []string
	IgnorePatterns     []string

	// Extraction
	Workers          int
	ExportFull       bool
	SkipUnclassified bool
	Tolerance        float64
	Format           raster.Format
	UnknownDiagnosis string
	RasterCacheMB    int
}

// DefaultConfig returns a configuration for the given directories with
// default patterns and extraction settings.
func DefaultConfig(annotationsDir, diagnosisDir, imagesDir, outputDir string) *Config {
	return &Config{
		AnnotationsDir:     annotationsDir,
		DiagnosisDir:       diagnosisDir,
		ImagesDir:          imagesDir,
		OutputDir:          outputDir,
		AnnotationPatterns: discovery.DefaultAnnotationPatterns,
		DiagnosisPatterns:  discovery.DefaultDiagnosisPatterns,
		ImagePatterns:      discovery.DefaultImagePatterns,
		IgnorePatterns:     discovery.DefaultIgnorePatterns,
		Workers:            4,
		ExportFull:         true,
		Tolerance:          region.DefaultTolerance,
		Format:             raster.PNG,
		UnknownDiagnosis:   nodule.UnknownMalignancy,
		RasterCacheMB:      256,
	}
}

func (c *Config) workers() int {
	if c.Workers <= 0 {
		return 1
	}
	return c.Workers
}

func (c *Config) format() raster.Format {
	if c.Format == "" {
		return raster.PNG
	}
	return c.Format
}

func (c *Config) unknownDiagnosis() string {
	if c.UnknownDiagnosis == "" {
		return nodule.UnknownMalignancy
	}
	return c.UnknownDiagnosis
}
