package storage

import (
	"context"

	"github.com/poiesic/photoscan/core"
)

// Getter looks up a single point by identifier.
type Getter interface {
	// Get returns the point stored under id.
	// Returns ErrNotFound if the point doesn't exist.
	Get(ctx context.Context, id core.ID) (*Point, error)
}

// VectorIndex stores one embedding per photo and answers similarity queries.
// Implementations must be thread-safe and support concurrent access.
type VectorIndex interface {
	Getter

	// EnsureCollection creates the collection if it is missing.
	// Returns core.ErrIndexSchemaMismatch if it exists with a different dimensionality.
	EnsureCollection(ctx context.Context, dim int) error

	// Upsert stores p, replacing any point with the same ID.
	Upsert(ctx context.Context, p Point) error

	// Search returns up to limit points whose cosine similarity to vector is
	// at least minScore, best first.
	Search(ctx context.Context, vector []float32, limit int, minScore float32) ([]Match, error)

	// Close releases the backend's resources.
	Close() error
}
