package watcher

import "context"

// FileWatcher monitors the input directories for changes with debouncing and pause/resume support.
type FileWatcher interface {
	// Start begins watching the sources, calling callback with debounced changes.
	Start(ctx context.Context, callback func(changes []Change)) error

	// Stop stops the file watcher and cleans up resources.
	Stop() error

	// Pause stops firing callbacks but continues accumulating events.
	Pause()

	// Resume resumes firing callbacks. If events accumulated during pause, fires immediately.
	Resume()
}

// Runner re-runs the pipeline after the caches of changed sources are invalidated.
type Runner interface {
	Run(ctx context.Context) error
}

// Invalidator drops a cached stage result.
type Invalidator interface {
	Invalidate(stage, source string) error
}

// Matcher decides whether a path under root belongs to a source.
type Matcher interface {
	Matches(root, path string) bool
}

// Source is one watched input directory.
type Source struct {
	Stage   string  // cache stage fed by the directory
	Dir     string  // input root
	Matcher Matcher // files of interest, nil matches everything
}

// Change is one changed file of a source.
type Change struct {
	Stage string
	Dir   string
	Path  string
}

// RunnerFunc adapts a function to a Runner.
type RunnerFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f RunnerFunc) Run(ctx context.Context) error {
	return f(ctx)
}
