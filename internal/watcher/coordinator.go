package watcher

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
)

// Coordinator routes debounced input changes to the pipeline: the stage
// caches of every changed source are invalidated, then the pipeline re-runs.
type Coordinator struct {
	files  FileWatcher
	cache  Invalidator
	runner Runner
	logger zerolog.Logger
}

// NewCoordinator creates a new watch coordinator.
func NewCoordinator(files FileWatcher, cache Invalidator, runner Runner, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		files:  files,
		cache:  cache,
		runner: runner,
		logger: logger.With().Str("component", "watcher").Logger(),
	}
}

// Start begins watching and re-running. Blocks until context is cancelled.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.files.Start(ctx, func(changes []Change) { c.handleChanges(ctx, changes) }); err != nil {
		c.cleanup()
		return err
	}

	<-ctx.Done()
	c.cleanup()
	return ctx.Err()
}

// cleanup stops the file watcher.
func (c *Coordinator) cleanup() {
	if err := c.files.Stop(); err != nil {
		c.logger.Warn().Err(err).Msg("File watcher stop failed")
	}
}

// handleChanges processes a batch of changes from the file watcher:
// 1. Pause file watching
// 2. Invalidate the cached stage of every changed source
// 3. Re-run the pipeline
// 4. Resume file watching
func (c *Coordinator) handleChanges(ctx context.Context, changes []Change) {
	if len(changes) == 0 || ctx.Err() != nil {
		return
	}

	c.files.Pause()
	defer c.files.Resume()

	for _, src := range changedSources(changes) {
		if err := c.cache.Invalidate(src.Stage, src.Dir); err != nil {
			c.logger.Warn().Err(err).Str("stage", src.Stage).Msg("Failed to invalidate cached stage")
		}
	}

	c.logger.Info().Int("files", len(changes)).Msg("Inputs changed, re-running extraction")
	if err := c.runner.Run(ctx); err != nil {
		c.logger.Error().Err(err).Msg("Extraction failed")
	}
}

// changedSources returns the distinct (stage, dir) pairs of changes.
func changedSources(changes []Change) []Source {
	seen := make(map[Source]bool)
	var out []Source
	for _, ch := range changes {
		src := Source{Stage: ch.Stage, Dir: ch.Dir}
		if !seen[src] {
			seen[src] = true
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}
