package imageindex

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/mvp-joe/nodule-extract/internal/dicomfile"
	"github.com/mvp-joe/nodule-extract/internal/discovery"
	"github.com/mvp-joe/nodule-extract/internal/errors"
	"github.com/mvp-joe/nodule-extract/internal/metrics"
	"github.com/mvp-joe/nodule-extract/internal/progress"
)

// HeaderReader reads the identifiers of an image file without its pixels.
type HeaderReader interface {
	ReadHeader(path string) (dicomfile.Header, error)
}

// Result is the outcome of indexing an image directory.
type Result struct {
	Index      *Index             `json:"index"`
	Failed     []errors.FileError `json:"-"`
	Files      int                `json:"files"`
	Duplicates int                `json:"duplicates"`
}

// Indexer builds an Index from an image directory.
type Indexer struct {
	Discovery *discovery.Discovery
	Reader    HeaderReader
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	Progress  progress.Reporter
}

// NewIndexer creates an indexer reading DICOM headers.
func NewIndexer(patterns, ignore []string, logger zerolog.Logger) (*Indexer, error) {
	d, err := discovery.New(patterns, ignore)
	if err != nil {
		return nil, err
	}
	return &Indexer{
		Discovery: d,
		Reader:    dicomfile.NewReader(),
		Logger:    logger.With().Str("component", progress.StageImages).Logger(),
	}, nil
}

// Build reads the header of every matching file under dir. Files without a
// study, series or image uid are skipped. When two files carry the same
// triple the later one wins and both paths are logged.
func (ix *Indexer) Build(dir string) (*Result, error) {
	start := time.Now()
	reporter := progress.OrNoOp(ix.Progress)

	files, err := ix.Discovery.Discover(dir)
	if err != nil {
		return nil, errors.NewInputDirectoryError(progress.StageImages, dir, err)
	}
	reporter.OnStageStart(progress.StageImages, len(files))

	result := &Result{Index: New(), Files: len(files)}
	for _, path := range files {
		h, err := ix.Reader.ReadHeader(path)
		ix.Metrics.File(progress.StageImages, err)
		if err != nil {
			ix.Logger.Error().Err(err).Str("file", path).Msg("Failed to read image header")
			result.Failed = append(result.Failed, errors.FileError{Path: path, Err: err})
			reporter.OnFileProcessed(progress.StageImages, path)
			continue
		}

		prev, replaced := result.Index.Add(h.StudyUID, h.SeriesUID, h.ImageUID, Entry{Path: path, PatientID: h.PatientID})
		if replaced {
			result.Duplicates++
			ix.Metrics.Duplicate(progress.StageImages)
			ix.Logger.Warn().
				Str("study", h.StudyUID).
				Str("series", h.SeriesUID).
				Str("image", h.ImageUID).
				Str("previous", prev.Path).
				Str("file", path).
				Msg("Duplicate image, keeping the later file")
		}
		reporter.OnFileProcessed(progress.StageImages, path)
	}

	ix.Metrics.Records("images", result.Index.Len())
	ix.Logger.Info().
		Int("files", len(files)).
		Int("failed", len(result.Failed)).
		Int("images", result.Index.Len()).
		Int("studies", result.Index.Studies()).
		Int("duplicates", result.Duplicates).
		Msg("Image index built")
	reporter.OnStageComplete(progress.StageImages, result.Index.Len(), time.Since(start))
	return result, nil
}
