package pipeline

import "errors"

var (
	// ErrWalkerRequired is returned when a walker is not provided.
	ErrWalkerRequired = errors.New("walker required")

	// ErrGateRequired is returned when a gate is not provided.
	ErrGateRequired = errors.New("gate required")

	// ErrInferenceRequired is returned when an inference client is not provided.
	ErrInferenceRequired = errors.New("inference client required")

	// ErrStoreRequired is returned when a metadata store is not provided.
	ErrStoreRequired = errors.New("metadata store required")

	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrAlreadyRunning is returned when Run is called while a run is in progress.
	ErrAlreadyRunning = errors.New("pipeline already running")
)
