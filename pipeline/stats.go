package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/poiesic/photoscan/core"
)

// Stats are the run counters. Every field is updated atomically by workers
// and may be read at any time.
type Stats struct {
	discovered atomic.Int64
	processed  atomic.Int64
	skipped    atomic.Int64
	failed     atomic.Int64
	described  atomic.Int64
	embedded   atomic.Int64
	active     atomic.Int64
	peakActive atomic.Int64
	started    atomic.Int64 // unix nanos

	mu       sync.Mutex
	failures []Failure
}

func (s *Stats) reset() {
	s.discovered.Store(0)
	s.processed.Store(0)
	s.skipped.Store(0)
	s.failed.Store(0)
	s.described.Store(0)
	s.embedded.Store(0)
	s.active.Store(0)
	s.peakActive.Store(0)
	s.started.Store(time.Now().UnixNano())

	s.mu.Lock()
	s.failures = nil
	s.mu.Unlock()
}

func (s *Stats) enter() {
	n := s.active.Add(1)
	for {
		peak := s.peakActive.Load()
		if n <= peak || s.peakActive.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (s *Stats) leave() {
	s.active.Add(-1)
}

func (s *Stats) fail(path string, err error) {
	s.failed.Add(1)
	s.mu.Lock()
	s.failures = append(s.failures, Failure{Path: path, Kind: core.ErrorKind(err), Err: err})
	s.mu.Unlock()
}

func (s *Stats) elapsed() time.Duration {
	started := s.started.Load()
	if started == 0 {
		return 0
	}
	return time.Since(time.Unix(0, started))
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Discovered: s.discovered.Load(),
		Processed:  s.processed.Load(),
		Skipped:    s.skipped.Load(),
		Failed:     s.failed.Load(),
		Described:  s.described.Load(),
		Embedded:   s.embedded.Load(),
		Active:     s.active.Load(),
		PeakActive: s.peakActive.Load(),
		Elapsed:    s.elapsed(),
	}
}

// Failures returns a copy of the failure list.
func (s *Stats) Failures() []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Failure, len(s.failures))
	copy(out, s.failures)
	return out
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Discovered int64 // Files yielded by the walker
	Processed  int64 // Items that reached Persisted
	Skipped    int64
	Failed     int64
	Described  int64 // Descriptions generated this run
	Embedded   int64 // Vectors computed this run
	Active     int64 // Items currently inside a worker
	PeakActive int64
	Elapsed    time.Duration
}

// Done returns the number of items that reached a terminal state.
func (s Snapshot) Done() int64 {
	return s.Processed + s.Skipped + s.Failed
}

// Failure records one failed item.
type Failure struct {
	Path string
	Kind string // core.ErrorKind of Err
	Err  error
}

// Summary is the result of a run.
type Summary struct {
	Snapshot
	Failures []Failure
	Canceled bool // The run context was cancelled before the walk finished
}
