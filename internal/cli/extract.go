package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/nodule-extract/internal/cache"
	"github.com/mvp-joe/nodule-extract/internal/config"
	"github.com/mvp-joe/nodule-extract/internal/discovery"
	"github.com/mvp-joe/nodule-extract/internal/metrics"
	"github.com/mvp-joe/nodule-extract/internal/pipeline"
	"github.com/mvp-joe/nodule-extract/internal/progress"
	"github.com/mvp-joe/nodule-extract/internal/watcher"
)

var extractFlags struct {
	annotations      string
	diagnosis        string
	images           string
	output           string
	full             bool
	skipUnclassified bool
	workers          int
	format           string
	tolerance        float64
	noCache          bool
	watch            bool
	quiet            bool
	metrics          string
}

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract nodule regions from annotated CT slices",
	Long: `Extract reconciles annotation documents, diagnosis spreadsheets and the
image tree into one record per nodule, then writes a masked crop of every
annotated slice to {output}/nodules and a manifest to {output}/manifest.yaml.

Files that cannot be parsed are logged and skipped; the run fails only when
an input directory cannot be read or the output cannot be written.

With --watch, extract keeps running and re-extracts whenever an input file
changes.`,
	RunE: runExtract,
}

func init() {
	f := extractCmd.Flags()
	f.StringVarP(&extractFlags.annotations, "annotations", "a", "", "annotation document directory")
	f.StringVarP(&extractFlags.diagnosis, "diagnosis", "d", "", "diagnosis spreadsheet directory")
	f.StringVarP(&extractFlags.images, "images", "D", "", "DICOM image directory")
	f.StringVarP(&extractFlags.output, "output", "o", "", "output directory")
	f.BoolVarP(&extractFlags.full, "full", "f", true, "also export every full slice to {output}/full")
	f.BoolVar(&extractFlags.skipUnclassified, "skip-unclassified", false, "skip slices of patients without a diagnosis")
	f.IntVar(&extractFlags.workers, "workers", 0, "number of nodules extracted in parallel")
	f.StringVar(&extractFlags.format, "format", "", "output image format: png, tiff or bmp")
	f.Float64Var(&extractFlags.tolerance, "tolerance", 0, "distance in pixels within which a boundary pixel counts as inside")
	f.BoolVar(&extractFlags.noCache, "no-cache", false, "ignore and do not update the stage cache")
	f.BoolVarP(&extractFlags.watch, "watch", "w", false, "re-extract when inputs change")
	f.BoolVarP(&extractFlags.quiet, "quiet", "q", false, "suppress progress output")
	f.StringVar(&extractFlags.metrics, "metrics", "", "write Prometheus metrics to this textfile after each run")

	rootCmd.AddCommand(extractCmd)
}

// applyExtractFlags overrides configuration with the flags the user set.
func applyExtractFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("annotations") {
		cfg.Paths.Annotations = extractFlags.annotations
	}
	if flags.Changed("diagnosis") {
		cfg.Paths.Diagnosis = extractFlags.diagnosis
	}
	if flags.Changed("images") {
		cfg.Paths.Images = extractFlags.images
	}
	if flags.Changed("output") {
		cfg.Paths.Output = extractFlags.output
	}
	if flags.Changed("full") {
		cfg.Extraction.ExportFull = extractFlags.full
	}
	if flags.Changed("skip-unclassified") {
		cfg.Extraction.SkipUnclassified = extractFlags.skipUnclassified
	}
	if flags.Changed("workers") {
		cfg.Extraction.Workers = extractFlags.workers
	}
	if flags.Changed("format") {
		cfg.Extraction.ImageFormat = extractFlags.format
	}
	if flags.Changed("tolerance") {
		cfg.Extraction.BoundaryTolerance = extractFlags.tolerance
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Textfile = extractFlags.metrics
	}
	// Flags bypass the loader, so check them the same way.
	return config.Validate(cfg)
}

func runExtract(cmd *cobra.Command, args []string) error {
	// Set up context with cancellation for Ctrl+C
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := cmd.OutOrStdout()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(out, "\nInterrupted! Cancelling extraction...")
			cancel()
		case <-ctx.Done():
		}
	}()

	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyExtractFlags(cmd, cfg); err != nil {
		return err
	}
	logger := newLogger(cfg)

	store, db, closeStore, err := openStore(cfg, extractFlags.noCache)
	if err != nil {
		return err
	}
	defer closeStore()

	pcfg := cfg.ToPipelineConfig(dir)
	run := func(ctx context.Context) error {
		m := metrics.New()
		orch := pipeline.New(pcfg, logger)
		orch.Store = store
		orch.Metrics = m
		orch.Progress = NewCLIProgressReporter(out, extractFlags.quiet)

		result, err := orch.Run(ctx)
		if err != nil {
			return err
		}
		if !extractFlags.quiet {
			printSummary(out, pcfg.OutputDir, &result.Summary)
		}
		if cfg.Metrics.Textfile != "" {
			if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
				logger.Warn().Err(err).Str("file", cfg.Metrics.Textfile).Msg("Failed to write metrics")
			}
		}
		evictCache(db, cfg.EvictionPolicy(), logger)
		return nil
	}

	if err := run(ctx); err != nil {
		return err
	}
	if !extractFlags.watch {
		return nil
	}

	var invalidator watcher.Invalidator = cache.Nop{}
	if db != nil {
		invalidator = db
	}
	return watchInputs(ctx, out, pcfg, invalidator, watcher.RunnerFunc(run), logger)
}

// watchInputs re-runs the pipeline whenever one of its inputs changes.
// Blocks until ctx is cancelled.
func watchInputs(ctx context.Context, out io.Writer, cfg *pipeline.Config, inv watcher.Invalidator, runner watcher.Runner, logger zerolog.Logger) error {
	sources, err := watchSources(cfg)
	if err != nil {
		return err
	}
	fw, err := watcher.NewFileWatcher(sources, logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	fmt.Fprintln(out, "\nWatching for changes... (Press Ctrl+C to stop)")
	err = watcher.NewCoordinator(fw, inv, runner, logger).Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchSources builds one watched source per input root, filtered by the
// same patterns the loaders discover files with.
func watchSources(cfg *pipeline.Config) ([]watcher.Source, error) {
	inputs := []struct {
		stage    string
		dir      string
		patterns []string
	}{
		{progress.StageAnnotations, cfg.AnnotationsDir, cfg.AnnotationPatterns},
		{progress.StageDiagnosis, cfg.DiagnosisDir, cfg.DiagnosisPatterns},
		{progress.StageImages, cfg.ImagesDir, cfg.ImagePatterns},
	}

	sources := make([]watcher.Source, 0, len(inputs))
	for _, in := range inputs {
		d, err := discovery.New(in.patterns, cfg.IgnorePatterns)
		if err != nil {
			return nil, fmt.Errorf("invalid %s patterns: %w", in.stage, err)
		}
		sources = append(sources, watcher.Source{Stage: in.stage, Dir: in.dir, Matcher: d})
	}
	return sources, nil
}

// evictCache trims the stage cache after a run. Failures are only logged.
func evictCache(db *cache.DB, policy cache.EvictionPolicy, logger zerolog.Logger) {
	if db == nil {
		return
	}
	result, err := db.Evict(policy)
	if err != nil {
		logger.Warn().Err(err).Msg("Cache eviction failed")
		return
	}
	if len(result.EvictedEntries) > 0 {
		logger.Debug().
			Int("entries", len(result.EvictedEntries)).
			Float64("freed_mb", result.FreedMB).
			Msg("Evicted cached stages")
	}
}

// printSummary writes the run summary.
func printSummary(w io.Writer, outputDir string, s *pipeline.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "✓ Wrote %s files to %s in %.1fs\n", formatNumber(s.FilesWritten), outputDir, s.Duration.Seconds())
	fmt.Fprintf(w, "  Nodules:      %s of %s extracted\n", formatNumber(s.ExtractedNodules), formatNumber(s.Nodules))
	fmt.Fprintf(w, "  Slices:       %s of %s extracted\n", formatNumber(s.ExtractedSlices), formatNumber(s.Slices))
	fmt.Fprintf(w, "  Diagnoses:    %s patients\n", formatNumber(s.Diagnoses))
	fmt.Fprintf(w, "  Images:       %s indexed\n", formatNumber(s.Images))

	skipped := []struct {
		label string
		n     int
	}{
		{"Unresolved references", s.Unresolved},
		{"Degenerate contours", s.Degenerate},
		{"Unreadable slices", s.Unreadable},
		{"Unclassified patients", s.Unclassified},
		{"Skipped slices", s.SkippedSlices},
	}
	for _, sk := range skipped {
		if sk.n > 0 {
			fmt.Fprintf(w, "  %-22s %s\n", sk.label+":", formatNumber(sk.n))
		}
	}

	if len(s.CachedStages) > 0 {
		fmt.Fprintf(w, "  Cached stages: %v\n", s.CachedStages)
	}

	if s.Failed() == 0 {
		return
	}
	fmt.Fprintf(w, "\n⚠ %s files could not be loaded:\n", formatNumber(s.Failed()))
	sources := make([]string, 0, len(s.FailedFiles))
	for source := range s.FailedFiles {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	for _, source := range sources {
		for _, path := range s.FailedFiles[source] {
			fmt.Fprintf(w, "  [%s] %s\n", source, path)
		}
	}
}
