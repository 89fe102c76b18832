package pipeline

import (
	"time"

	"github.com/poiesic/photoscan/core"
)

// Transition is one state change of one item.
type Transition struct {
	Path    string
	ID      core.ID
	From    core.State
	To      core.State
	Err     error // Set when To is a failed state
	At      time.Time
	Outcome *core.Outcome // Set when To is terminal
}

// Observer receives transitions. It is called from worker goroutines and
// must be safe for concurrent use.
type Observer func(Transition)

// item tracks the state of one photo inside a worker.
type item struct {
	rec   *core.PhotoRecord
	state core.State
}
