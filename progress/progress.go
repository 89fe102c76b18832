// Package progress prints run progress from pipeline counter snapshots.
// It only reads snapshots and never changes pipeline state.
package progress

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/poiesic/photoscan/pipeline"
)

// DefaultInterval is how often Run redraws the progress line.
const DefaultInterval = time.Second

// Reporter redraws a single progress line on a terminal.
type Reporter struct {
	writer   io.Writer
	source   func() pipeline.Snapshot
	interval time.Duration
	mu       sync.Mutex
	finished bool
}

// NewReporter creates a reporter that reads counters from source every
// interval. A non-positive interval uses DefaultInterval.
func NewReporter(w io.Writer, source func() pipeline.Snapshot, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{
		writer:   w,
		source:   source,
		interval: interval,
	}
}

// Run reports until ctx is done. It always returns nil so it can run in an
// errgroup next to the pipeline.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report prints the current progress line.
func (r *Reporter) Report() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.report(r.source())
}

// Finish prints the final progress line followed by a newline. Later calls
// to Report and Finish print nothing.
func (r *Reporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.finished = true
	r.report(r.source())
	fmt.Fprintln(r.writer)
}

// report prints one line. Must be called with lock held.
func (r *Reporter) report(s pipeline.Snapshot) {
	fmt.Fprintf(r.writer, "\r%s", Line(s))
}

// Line formats the progress line for s.
func Line(s pipeline.Snapshot) string {
	return fmt.Sprintf("Progress: %d done (%d processed, %d skipped, %d failed) - %.1f items/s",
		s.Done(), s.Processed, s.Skipped, s.Failed, Rate(s))
}

// Rate returns finished items per second.
func Rate(s pipeline.Snapshot) float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Done()) / s.Elapsed.Seconds()
}

// PrintSummary prints the final counts and every failed path with its error
// kind, so the operator can re-run selectively.
func PrintSummary(w io.Writer, s *pipeline.Summary) {
	if s == nil {
		return
	}
	status := "completed"
	if s.Canceled {
		status = "canceled"
	}
	fmt.Fprintf(w, "Run %s in %s\n", status, s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  discovered: %d\n", s.Discovered)
	fmt.Fprintf(w, "  processed:  %d (%d described, %d embedded)\n", s.Processed, s.Described, s.Embedded)
	fmt.Fprintf(w, "  skipped:    %d\n", s.Skipped)
	fmt.Fprintf(w, "  failed:     %d\n", s.Failed)
	if len(s.Failures) == 0 {
		return
	}
	fmt.Fprintln(w, "Failed photos:")
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  %s [%s]: %v\n", f.Path, f.Kind, f.Err)
	}
}
