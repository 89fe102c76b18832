package core

// State is a step in the per-item processing state machine.
// Items only ever move forward; retries happen inside adapters.
type State int

const (
	StatePending State = iota
	StateGated
	StateDescribing
	StateDescribeFailed
	StateDescribed
	StateEmbedding
	StateEmbedFailed
	StateEmbedded
	StatePersisting
	StatePersisted
	StatePersistFailed
	StateSkipped
)

var stateNames = map[State]string{
	StatePending:        "pending",
	StateGated:          "gated",
	StateDescribing:     "describing",
	StateDescribeFailed: "describe-failed",
	StateDescribed:      "described",
	StateEmbedding:      "embedding",
	StateEmbedFailed:    "embed-failed",
	StateEmbedded:       "embedded",
	StatePersisting:     "persisting",
	StatePersisted:      "persisted",
	StatePersistFailed:  "persist-failed",
	StateSkipped:        "skipped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	switch s {
	case StateSkipped, StatePersisted, StateDescribeFailed, StateEmbedFailed, StatePersistFailed:
		return true
	}
	return false
}

// Active reports whether an item in state s occupies a worker slot.
func (s State) Active() bool {
	return s != StatePending && !s.Terminal()
}

// validNext lists the allowed successor states.
var validNext = map[State][]State{
	StatePending:    {StateGated},
	StateGated:      {StateDescribing, StateEmbedding, StateSkipped},
	StateDescribing: {StateDescribed, StateDescribeFailed},
	StateDescribed:  {StateEmbedding},
	StateEmbedding:  {StateEmbedded, StateEmbedFailed},
	StateEmbedded:   {StatePersisting},
	StatePersisting: {StatePersisted, StatePersistFailed},
}

// CanTransition reports whether moving from s to next is a forward step
// of the state machine.
func (s State) CanTransition(next State) bool {
	for _, candidate := range validNext[s] {
		if candidate == next {
			return true
		}
	}
	return false
}
