package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/nodule-extract/internal/diagnosis"
	"github.com/mvp-joe/nodule-extract/internal/errors"
	"github.com/mvp-joe/nodule-extract/internal/imageindex"
	"github.com/mvp-joe/nodule-extract/internal/metrics"
	"github.com/mvp-joe/nodule-extract/internal/nodule"
	"github.com/mvp-joe/nodule-extract/internal/progress"
	"github.com/mvp-joe/nodule-extract/internal/raster"
	"github.com/mvp-joe/nodule-extract/internal/region"
)

// Extraction results recorded in metrics.
const (
	resultExtracted    = "extracted"
	resultUnresolved   = "unresolved"
	resultDegenerate   = "degenerate"
	resultUnclassified = "unclassified"
	resultFailed       = "failed"
)

// extraction holds the state shared by the nodule workers of one run. The
// diagnosis table and image index are read-only; everything else is
// guarded by mu or is safe for concurrent use.
type extraction struct {
	cfg      *Config
	log      zerolog.Logger
	metrics  *metrics.Metrics
	reporter progress.Reporter

	table  diagnosis.Table
	index  *imageindex.Index
	images *imageCache
	opts   region.Options

	nodulesDir string
	fullDir    string

	unclassified *unclassifiedTracker

	mu       sync.Mutex
	manifest *nodule.Set
	summary  *Summary
}

func (o *Orchestrator) newExtraction(log zerolog.Logger, table diagnosis.Table, index *imageindex.Index, summary *Summary) (*extraction, error) {
	reader := o.Reader
	if reader == nil {
		return nil, fmt.Errorf("no image reader configured")
	}

	ex := &extraction{
		cfg:          o.Config,
		log:          log,
		metrics:      o.Metrics,
		reporter:     progress.OrNoOp(o.Progress),
		table:        table,
		index:        index,
		opts:         region.Options{Tolerance: o.Config.Tolerance},
		nodulesDir:   filepath.Join(o.Config.OutputDir, NodulesDir),
		unclassified: newUnclassifiedTracker(log),
		manifest:     nodule.NewSet(),
		summary:      summary,
	}

	if err := os.MkdirAll(ex.nodulesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if o.Config.ExportFull {
		ex.fullDir = filepath.Join(o.Config.OutputDir, FullDir)
		if err := os.MkdirAll(ex.fullDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	images, err := newImageCache(reader, o.Config.RasterCacheMB)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}
	ex.images = images
	return ex, nil
}

func (ex *extraction) close() {
	ex.images.close()
}

// run extracts every nodule with at most cfg.Workers in flight. Only a
// cancelled context stops it early.
func (ex *extraction) run(ctx context.Context, nodules []*nodule.Nodule) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ex.cfg.workers())

	for _, n := range nodules {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			extracted := ex.nodule(n)
			ex.reporter.OnNoduleProcessed(n.Key().String(), extracted)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// nodule extracts every resolvable slice of n and adds the extracted subset
// to the manifest. It returns the number of slices extracted.
func (ex *extraction) nodule(n *nodule.Nodule) int {
	log := ex.log.With().
		Str("study", n.Study).
		Str("series", n.Series).
		Str("nodule", n.ID).
		Logger()

	images, level, ok := ex.index.Series(n.Study, n.Series)
	if !ok {
		key := n.Study
		if level == "series" {
			key = n.Series
		}
		ex.unresolved(log, errors.NewReferenceError(level, key), n.Len())
		return 0
	}

	out := n.Clone()
	var extracted []nodule.Slice
	for _, s := range n.Slices() {
		entry, ok := images[s.ImageUID]
		if !ok {
			ex.unresolved(log, errors.NewReferenceError("image", s.ImageUID), 1)
			continue
		}

		malignancy, ok := ex.slice(log, out, s, entry)
		if !ok {
			continue
		}
		if len(extracted) == 0 {
			out.Malignancy = malignancy
		}
		extracted = append(extracted, s)
	}

	if len(extracted) == 0 {
		log.Debug().Msg("No slice extracted, nodule dropped")
		return 0
	}

	out.ReplaceSlices(extracted)
	ex.mu.Lock()
	ex.manifest.Merge(out)
	ex.mu.Unlock()
	return len(extracted)
}

// slice extracts one slice and writes its files. It returns the malignancy
// used in the file name and whether the slice was extracted.
func (ex *extraction) slice(log zerolog.Logger, n *nodule.Nodule, s nodule.Slice, entry imageindex.Entry) (string, bool) {
	log = log.With().Str("image", s.ImageUID).Float64("z", s.ZPosition).Logger()

	img, err := ex.images.get(entry.Path)
	if err != nil {
		log.Error().Err(err).Str("file", entry.Path).Msg("Failed to read image")
		ex.count(resultFailed, func(sum *Summary) { sum.Unreadable++ })
		return "", false
	}

	patient := img.Header.PatientID
	if patient == "" {
		patient = entry.PatientID
	}
	malignancy, ok := ex.table.Lookup(patient)
	if !ok {
		ex.unclassified.miss(patient)
		if ex.cfg.SkipUnclassified {
			ex.count(resultUnclassified, func(sum *Summary) { sum.SkippedSlices++ })
			return "", false
		}
		malignancy = ex.cfg.unknownDiagnosis()
	}

	roi, err := region.Extract(img.Pixels, s.Points, ex.opts)
	if err != nil {
		log.Error().Err(err).Int("points", len(s.Points)).Msg("Failed to extract region")
		ex.count(resultDegenerate, func(sum *Summary) { sum.Degenerate++ })
		return "", false
	}

	format := ex.cfg.format()
	var written []string
	if ex.fullDir != "" {
		path := filepath.Join(ex.fullDir, FullImageName(n, s, format))
		if err := writeRaster(path, img.Pixels, format); err != nil {
			log.Error().Err(err).Str("file", path).Msg("Failed to write image")
			ex.count(resultFailed, func(sum *Summary) { sum.Unreadable++ })
			return "", false
		}
		written = append(written, path)
	}

	path := filepath.Join(ex.nodulesDir, NoduleImageName(n, s, malignancy, format))
	if err := writeRaster(path, roi, format); err != nil {
		log.Error().Err(err).Str("file", path).Msg("Failed to write image")
		for _, p := range written {
			os.Remove(p)
		}
		ex.count(resultFailed, func(sum *Summary) { sum.Unreadable++ })
		return "", false
	}
	written = append(written, path)

	ex.count(resultExtracted, func(sum *Summary) { sum.FilesWritten += len(written) })
	return malignancy, true
}

func (ex *extraction) unresolved(log zerolog.Logger, err *errors.ReferenceError, slices int) {
	log.Error().Err(err).Int("slices", slices).Msg("Unresolved reference, skipping")
	ex.metrics.Unresolved(err.Level)
	ex.count(resultUnresolved, func(sum *Summary) { sum.Unresolved++ })
}

// count updates the summary under the lock and records the metric.
func (ex *extraction) count(result string, update func(*Summary)) {
	ex.metrics.Extraction(result)
	ex.mu.Lock()
	update(ex.summary)
	ex.mu.Unlock()
}

// writeRaster encodes r into a new file at path, removing it on failure.
func writeRaster(path string, r *raster.Raster, format raster.Format) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := raster.Encode(f, r, format); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// unclassifiedTracker warns once per patient without a diagnosis.
type unclassifiedTracker struct {
	log zerolog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

func newUnclassifiedTracker(log zerolog.Logger) *unclassifiedTracker {
	return &unclassifiedTracker{log: log, seen: make(map[string]struct{})}
}

// miss records a lookup miss; only the first miss of a patient is logged.
func (u *unclassifiedTracker) miss(patient string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.seen[patient]; ok {
		return
	}
	u.seen[patient] = struct{}{}
	u.log.Warn().
		Err(errors.ErrUnclassifiedPatient).
		Str("patient", patient).
		Msg("Diagnosis not found")
}

func (u *unclassifiedTracker) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.seen)
}
