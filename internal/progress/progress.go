// Package progress defines the callbacks pipeline stages use to report
// progress. Implementations can display progress bars, log messages, or
// remain silent.
package progress

import "time"

// Stage names shared by loaders, the cache and the reporters.
const (
	StageAnnotations = "annotations"
	StageDiagnosis   = "diagnosis"
	StageImages      = "images"
	StageExtraction  = "extracted"
)

// Reporter receives progress callbacks. OnNoduleProcessed may be called
// from several goroutines at once.
type Reporter interface {
	// OnStageStart is called once the files of a loading stage are discovered.
	OnStageStart(stage string, totalFiles int)

	// OnFileProcessed is called after each source file of a stage.
	OnFileProcessed(stage, fileName string)

	// OnStageComplete is called when a loading stage finishes.
	OnStageComplete(stage string, records int, duration time.Duration)

	// OnCacheHit is called when a stage is served from the cache.
	OnCacheHit(stage string)

	// Extraction progress
	OnExtractionStart(totalNodules int)
	OnNoduleProcessed(nodule string, extractedSlices int)
	OnExtractionComplete(nodules, slices int, duration time.Duration)
}

// NoOp is a reporter that does nothing.
// Used when progress reporting is disabled (e.g., --quiet flag).
type NoOp struct{}

func (NoOp) OnStageStart(stage string, totalFiles int)                         {}
func (NoOp) OnFileProcessed(stage, fileName string)                            {}
func (NoOp) OnStageComplete(stage string, records int, duration time.Duration) {}
func (NoOp) OnCacheHit(stage string)                                           {}
func (NoOp) OnExtractionStart(totalNodules int)                                {}
func (NoOp) OnNoduleProcessed(nodule string, extractedSlices int)              {}
func (NoOp) OnExtractionComplete(nodules, slices int, duration time.Duration)  {}

// OrNoOp returns r, or NoOp when r is nil.
func OrNoOp(r Reporter) Reporter {
	if r == nil {
		return NoOp{}
	}
	return r
}
