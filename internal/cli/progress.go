package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mvp-joe/nodule-extract/internal/progress"
)

// CLIProgressReporter implements progress.Reporter with progress bars.
// OnNoduleProcessed arrives from the extraction workers, so every callback
// takes the mutex.
type CLIProgressReporter struct {
	mu        sync.Mutex
	out       io.Writer
	quiet     bool
	stageBar  *progressbar.ProgressBar
	noduleBar *progressbar.ProgressBar
}

// NewCLIProgressReporter creates a new CLI progress reporter.
func NewCLIProgressReporter(out io.Writer, quiet bool) *CLIProgressReporter {
	return &CLIProgressReporter{out: out, quiet: quiet}
}

var _ progress.Reporter = (*CLIProgressReporter)(nil)

func (c *CLIProgressReporter) newBar(total int, description, its string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(its),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(c.out)
		}),
	)
}

func (c *CLIProgressReporter) OnStageStart(stage string, totalFiles int) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stageBar != nil {
		c.stageBar.Finish()
	}
	c.stageBar = c.newBar(totalFiles, "Loading "+stage, "files/s")
}

func (c *CLIProgressReporter) OnFileProcessed(stage, fileName string) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stageBar != nil {
		c.stageBar.Add(1)
	}
}

func (c *CLIProgressReporter) OnStageComplete(stage string, records int, duration time.Duration) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stageBar != nil {
		c.stageBar.Finish()
		c.stageBar = nil
	}
	fmt.Fprintf(c.out, "✓ Loaded %s: %s records (took %.1fs)\n", stage, formatNumber(records), duration.Seconds())
}

func (c *CLIProgressReporter) OnCacheHit(stage string) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "✓ Loaded %s from cache\n", stage)
}

func (c *CLIProgressReporter) OnExtractionStart(totalNodules int) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noduleBar = c.newBar(totalNodules, "Extracting nodules", "nodules/s")
}

func (c *CLIProgressReporter) OnNoduleProcessed(nodule string, extractedSlices int) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.noduleBar != nil {
		c.noduleBar.Add(1)
	}
}

func (c *CLIProgressReporter) OnExtractionComplete(nodules, slices int, duration time.Duration) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.noduleBar != nil {
		c.noduleBar.Finish()
		c.noduleBar = nil
	}
	fmt.Fprintf(c.out, "✓ Extraction complete: %s nodules, %s slices in %.1fs\n",
		formatNumber(nodules), formatNumber(slices), duration.Seconds())
}

// formatNumber formats an integer with thousands separators.
func formatNumber(n int) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return formatNumber(n/1000) + fmt.Sprintf(",%03d", n%1000)
}
