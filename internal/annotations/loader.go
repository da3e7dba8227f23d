// Package annotations reconciles annotation documents into one nodule set.
// Nodules are keyed by (study, series, nodule id); the same nodule read in
// several sessions or files ends up as one record holding the union of its
// slices.
package annotations

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/mvp-joe/nodule-extract/internal/discovery"
	"github.com/mvp-joe/nodule-extract/internal/errors"
	"github.com/mvp-joe/nodule-extract/internal/metrics"
	"github.com/mvp-joe/nodule-extract/internal/nodule"
	"github.com/mvp-joe/nodule-extract/internal/progress"
)

// Result is the outcome of loading an annotation directory.
type Result struct {
	Nodules *nodule.Set        `json:"nodules"`
	Failed  []errors.FileError `json:"-"`
	Files   int                `json:"files"`
}

// Loader loads every annotation document under a directory.
type Loader struct {
	Discovery *discovery.Discovery
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	Progress  progress.Reporter
}

// NewLoader creates a loader using the given file patterns.
func NewLoader(patterns, ignore []string, logger zerolog.Logger) (*Loader, error) {
	d, err := discovery.New(patterns, ignore)
	if err != nil {
		return nil, err
	}
	return &Loader{
		Discovery: d,
		Logger:    logger.With().Str("component", progress.StageAnnotations).Logger(),
	}, nil
}

// Load parses every matching file under dir. A file that fails is recorded
// in Result.Failed and contributes nothing; only an unreadable dir is an
// error.
func (l *Loader) Load(dir string) (*Result, error) {
	start := time.Now()
	reporter := progress.OrNoOp(l.Progress)

	files, err := l.Discovery.Discover(dir)
	if err != nil {
		return nil, errors.NewInputDirectoryError(progress.StageAnnotations, dir, err)
	}
	reporter.OnStageStart(progress.StageAnnotations, len(files))

	result := &Result{Nodules: nodule.NewSet(), Files: len(files)}
	for _, path := range files {
		err := l.loadFile(path, result.Nodules)
		l.Metrics.File(progress.StageAnnotations, err)
		if err != nil {
			l.Logger.Error().Err(err).Str("file", path).Msg("Failed to load annotation file")
			result.Failed = append(result.Failed, errors.FileError{Path: path, Err: err})
		} else {
			l.Logger.Debug().Str("file", path).Msg("Loaded annotation file")
		}
		reporter.OnFileProcessed(progress.StageAnnotations, path)
	}

	l.Metrics.Records("nodules", result.Nodules.Len())
	l.Metrics.Records("slices", result.Nodules.SliceCount())
	l.Logger.Info().
		Int("files", len(files)).
		Int("failed", len(result.Failed)).
		Int("nodules", result.Nodules.Len()).
		Int("slices", result.Nodules.SliceCount()).
		Msg("Annotations loaded")
	reporter.OnStageComplete(progress.StageAnnotations, result.Nodules.Len(), time.Since(start))
	return result, nil
}

func (l *Loader) loadFile(path string, set *nodule.Set) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	err = ParseDocument(f, set)
	var perr *errors.ParseError
	if errors.As(err, &perr) && perr.File == "" {
		perr.File = path
	}
	return err
}
