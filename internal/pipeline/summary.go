package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/mvp-joe/nodule-extract/internal/errors"
	"github.com/mvp-joe/nodule-extract/internal/nodule"
)

// Summary counts what a run loaded, skipped and extracted.
type Summary struct {
	// Loading
	Nodules      int                 // nodules after reconciliation
	Slices       int                 // inclusion slices after reconciliation
	Diagnoses    int                 // patients with a diagnosis
	Images       int                 // indexed image files
	FailedFiles  map[string][]string // source → files that contributed nothing
	CachedStages []string            // stages served from the cache

	// Extraction
	Unresolved       int // references missing from the image index
	Degenerate       int // contours without area
	Unreadable       int // slices whose image or output could not be read or written
	Unclassified     int // distinct patients without a diagnosis
	SkippedSlices    int // slices skipped because their patient is unclassified
	ExtractedNodules int
	ExtractedSlices  int
	FilesWritten     int

	Duration time.Duration
}

// Failed returns the total number of failed source files.
func (s *Summary) Failed() int {
	total := 0
	for _, files := range s.FailedFiles {
		total += len(files)
	}
	return total
}

func (s *Summary) addFailed(source string, failed []errors.FileError) {
	if len(failed) == 0 {
		return
	}
	if s.FailedFiles == nil {
		s.FailedFiles = make(map[string][]string)
	}
	s.FailedFiles[source] = append(s.FailedFiles[source], errors.Paths(failed)...)
}

// Result is the outcome of a run.
type Result struct {
	RunID    uuid.UUID
	Manifest *nodule.Set // extracted nodules holding only their extracted slices
	Summary  Summary
}
