// Package pipeline runs the extraction: it loads the three sources, joins
// them per slice and writes the masked region of every resolvable slice.
//
// The flow of a run:
//  1. Verify the input directories and lock the output directory
//  2. Load annotations, diagnoses and the image index, each through the stage cache
//  3. Extract nodules in parallel, one goroutine per nodule
//  4. Write manifest.yaml and cache the manifest
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mvp-joe/nodule-extract/internal/annotations"
	"github.com/mvp-joe/nodule-extract/internal/cache"
	"github.com/mvp-joe/nodule-extract/internal/diagnosis"
	"github.com/mvp-joe/nodule-extract/internal/dicomfile"
	"github.com/mvp-joe/nodule-extract/internal/errors"
	"github.com/mvp-joe/nodule-extract/internal/imageindex"
	"github.com/mvp-joe/nodule-extract/internal/metrics"
	"github.com/mvp-joe/nodule-extract/internal/nodule"
	"github.com/mvp-joe/nodule-extract/internal/progress"
	"github.com/mvp-joe/nodule-extract/internal/runlock"
)

// Reader reads both the header-only view used for indexing and the full
// image used for extraction.
type Reader interface {
	imageindex.HeaderReader
	ImageReader
}

// Orchestrator runs the pipeline. Collaborators left nil get defaults:
// the DICOM reader, no cache, no metrics and no progress output.
type Orchestrator struct {
	Config   *Config
	Reader   Reader
	Store    cache.Store
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Progress progress.Reporter
}

// New creates an orchestrator reading DICOM files.
func New(cfg *Config, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		Config: cfg,
		Reader: dicomfile.NewReader(),
		Logger: logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes one full pass. Per-record failures are logged and counted in
// the summary; an error is returned only for an unreadable input directory,
// an unwritable output directory or a cancelled context.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	runID := uuid.New()
	log := o.Logger.With().Str("run", runID.String()).Logger()
	reporter := progress.OrNoOp(o.Progress)

	if err := o.checkInputs(); err != nil {
		return nil, err
	}

	lock := runlock.New(o.Config.OutputDir)
	if err := lock.Acquire(); err != nil {
		return nil, err
	}
	defer lock.Release()

	result := &Result{RunID: runID}
	summary := &result.Summary

	// 1. Annotations
	notes, err := loadStage(o, log, summary, progress.StageAnnotations, o.Config.AnnotationsDir, o.loadAnnotations)
	if err != nil {
		return nil, err
	}
	summary.Nodules = notes.Nodules.Len()
	summary.Slices = notes.Nodules.SliceCount()
	summary.addFailed(progress.StageAnnotations, notes.Failed)

	// 2. Diagnoses
	diag, err := loadStage(o, log, summary, progress.StageDiagnosis, o.Config.DiagnosisDir, o.loadDiagnosis)
	if err != nil {
		return nil, err
	}
	if diag.Table == nil {
		diag.Table = diagnosis.Table{}
	}
	summary.Diagnoses = len(diag.Table)
	summary.addFailed(progress.StageDiagnosis, diag.Failed)

	// 3. Image index
	images, err := loadStage(o, log, summary, progress.StageImages, o.Config.ImagesDir, o.buildIndex)
	if err != nil {
		return nil, err
	}
	if images.Index == nil {
		images.Index = imageindex.New()
	}
	summary.Images = images.Index.Len()
	summary.addFailed(progress.StageImages, images.Failed)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 4. Extraction
	extractStart := time.Now()
	ex, err := o.newExtraction(log, diag.Table, images.Index, summary)
	if err != nil {
		return nil, err
	}
	defer ex.close()

	nodules := notes.Nodules.Sorted()
	reporter.OnExtractionStart(len(nodules))
	if err := ex.run(ctx, nodules); err != nil {
		return nil, err
	}
	result.Manifest = ex.manifest
	summary.ExtractedNodules = ex.manifest.Len()
	summary.ExtractedSlices = ex.manifest.SliceCount()
	summary.Unclassified = ex.unclassified.count()
	o.Metrics.ObserveStage(progress.StageExtraction, time.Since(extractStart))
	reporter.OnExtractionComplete(summary.ExtractedNodules, summary.ExtractedSlices, time.Since(extractStart))

	// 5. Manifest
	if err := o.writeManifest(log, runID, ex.manifest); err != nil {
		return nil, err
	}

	summary.Duration = time.Since(start)
	log.Info().
		Int("nodules", summary.ExtractedNodules).
		Int("slices", summary.ExtractedSlices).
		Int("unresolved", summary.Unresolved).
		Int("degenerate", summary.Degenerate).
		Int("unclassified", summary.Unclassified).
		Dur("duration", summary.Duration).
		Msg("Extraction complete")
	return result, nil
}

// checkInputs verifies that every input root is a readable directory.
func (o *Orchestrator) checkInputs() error {
	inputs := []struct {
		source string
		path   string
	}{
		{progress.StageAnnotations, o.Config.AnnotationsDir},
		{progress.StageDiagnosis, o.Config.DiagnosisDir},
		{progress.StageImages, o.Config.ImagesDir},
	}
	for _, in := range inputs {
		info, err := os.Stat(in.path)
		if err != nil {
			return errors.NewInputDirectoryError(in.source, in.path, err)
		}
		if !info.IsDir() {
			return errors.NewInputDirectoryError(in.source, in.path, fmt.Errorf("not a directory"))
		}
	}
	return nil
}

// loadStage serves a loading stage from the cache or computes it.
func loadStage[T any](o *Orchestrator, log zerolog.Logger, summary *Summary, stage, dir string, compute func() (T, error)) (T, error) {
	start := time.Now()
	value, hit, err := cache.Load(o.store(), log, stage, dir, compute)
	o.Metrics.CacheLookup(stage, hit)
	if hit {
		summary.CachedStages = append(summary.CachedStages, stage)
		progress.OrNoOp(o.Progress).OnCacheHit(stage)
		log.Info().Str("stage", stage).Str("source", dir).Msg("Loaded stage from cache")
	}
	o.Metrics.ObserveStage(stage, time.Since(start))
	return value, err
}

func (o *Orchestrator) loadAnnotations() (*annotations.Result, error) {
	l, err := annotations.NewLoader(o.Config.AnnotationPatterns, o.Config.IgnorePatterns, o.Logger)
	if err != nil {
		return nil, err
	}
	l.Metrics = o.Metrics
	l.Progress = o.Progress
	return l.Load(o.Config.AnnotationsDir)
}

func (o *Orchestrator) loadDiagnosis() (*diagnosis.Result, error) {
	l, err := diagnosis.NewLoader(o.Config.DiagnosisPatterns, o.Config.IgnorePatterns, o.Logger)
	if err != nil {
		return nil, err
	}
	l.Metrics = o.Metrics
	l.Progress = o.Progress
	return l.Load(o.Config.DiagnosisDir)
}

func (o *Orchestrator) buildIndex() (*imageindex.Result, error) {
	ix, err := imageindex.NewIndexer(o.Config.ImagePatterns, o.Config.IgnorePatterns, o.Logger)
	if err != nil {
		return nil, err
	}
	if o.Reader != nil {
		ix.Reader = o.Reader
	}
	ix.Metrics = o.Metrics
	ix.Progress = o.Progress
	return ix.Build(o.Config.ImagesDir)
}

func (o *Orchestrator) writeManifest(log zerolog.Logger, runID uuid.UUID, set *nodule.Set) error {
	m := &Manifest{
		RunID:   runID.String(),
		Created: time.Now().UTC().Format(time.RFC3339),
		Format:  string(o.Config.format()),
		Nodules: set.Records(),
	}

	path := filepath.Join(o.Config.OutputDir, ManifestFile)
	if err := WriteManifest(path, m); err != nil {
		return err
	}
	log.Info().Str("path", path).Int("nodules", len(m.Nodules)).Msg("Manifest written")

	// Later runs and the cache commands can read the last manifest back
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := o.store().Put(progress.StageExtraction, o.Config.OutputDir, data); err != nil {
		log.Warn().Err(err).Msg("Failed to cache manifest")
	}
	return nil
}

func (o *Orchestrator) store() cache.Store {
	if o.Store == nil {
		return cache.Nop{}
	}
	return o.Store
}
