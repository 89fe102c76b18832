package badger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/photoscan/core"
	"github.com/poiesic/photoscan/storage"
)

// Index implements storage.VectorIndex on BadgerDB. Search is a full scan
// of the collection, which is fine for personal photo libraries.
type Index struct {
	backend    *Backend
	collection string
	owned      bool

	mu  sync.RWMutex
	dim int
}

var _ storage.VectorIndex = (*Index)(nil)

// Open opens (or creates) a database at path and returns an index over
// collection. Closing the index closes the database.
func Open(path, collection string) (*Index, error) {
	backend, err := OpenBackend(path)
	if err != nil {
		return nil, err
	}
	return owningIndex(backend, collection)
}

// NewMemoryIndex returns an index over collection in a private in-memory
// database. Closing the index discards it.
func NewMemoryIndex(collection string) (*Index, error) {
	backend, err := OpenBackend("", WithInMemory())
	if err != nil {
		return nil, err
	}
	return owningIndex(backend, collection)
}

func owningIndex(backend *Backend, collection string) (*Index, error) {
	idx, err := NewIndex(backend, collection)
	if err != nil {
		backend.Close()
		return nil, err
	}
	idx.owned = true
	return idx, nil
}

// NewIndex creates an index over collection in an already open backend.
// The caller keeps ownership of the backend.
func NewIndex(backend *Backend, collection string) (*Index, error) {
	if collection == "" || strings.Contains(collection, ":") {
		return nil, fmt.Errorf("%w: invalid collection name %q", storage.ErrInvalidQuery, collection)
	}
	return &Index{
		backend:    backend,
		collection: collection,
	}, nil
}

// Close releases resources. The backend is closed only if the index opened it.
func (i *Index) Close() error {
	if i.owned {
		return i.backend.Close()
	}
	return nil
}

// EnsureCollection records the dimensionality of a new collection, or checks
// it against the stored one.
func (i *Index) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", storage.ErrInvalidQuery, dim)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	err := i.backend.Update(func(tx *badger.Txn) error {
		key := makeCollectionKey(i.collection)
		item, err := tx.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			if err := tx.Set(key, marshalDim(dim)); err != nil {
				return err
			}
			i.backend.logger.Info("created collection", "collection", i.collection, "dimensions", dim)
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			existing, ok := unmarshalDim(val)
			if !ok {
				return fmt.Errorf("%w: collection %s metadata", storage.ErrSerializationFailed, i.collection)
			}
			if existing != dim {
				return fmt.Errorf("%w: collection %s has %d dimensions, embeddings have %d",
					core.ErrIndexSchemaMismatch, i.collection, existing, dim)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	i.dim = dim
	return nil
}

// dimension returns the collection dimensionality, loading it if another
// process created the collection.
func (i *Index) dimension() (int, error) {
	i.mu.RLock()
	dim := i.dim
	i.mu.RUnlock()
	if dim > 0 {
		return dim, nil
	}

	err := i.backend.View(func(tx *badger.Txn) error {
		item, err := tx.Get(makeCollectionKey(i.collection))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNoCollection
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var ok bool
			if dim, ok = unmarshalDim(val); !ok {
				return fmt.Errorf("%w: collection %s metadata", storage.ErrSerializationFailed, i.collection)
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	i.mu.Lock()
	i.dim = dim
	i.mu.Unlock()
	return dim, nil
}

// Upsert stores p, replacing any point with the same ID.
func (i *Index) Upsert(ctx context.Context, p storage.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dim, err := i.dimension()
	if err != nil {
		return err
	}
	if err := p.Validate(dim); err != nil {
		return err
	}
	value, err := storage.MarshalPoint(p)
	if err != nil {
		return err
	}
	return i.backend.Update(func(tx *badger.Txn) error {
		return tx.Set(makePointKey(i.collection, p.ID), value)
	})
}

// Get retrieves a single point by ID.
func (i *Index) Get(ctx context.Context, id core.ID) (*storage.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var point *storage.Point
	err := i.backend.View(func(tx *badger.Txn) error {
		item, err := tx.Get(makePointKey(i.collection, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			point, err = storage.UnmarshalPoint(val)
			return err
		})
	})
	return point, err
}

// Search scans every point of the collection and returns the best matches.
func (i *Index) Search(ctx context.Context, vector []float32, limit int, minScore float32) ([]storage.Match, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", storage.ErrInvalidQuery, limit)
	}
	dim, err := i.dimension()
	if err != nil {
		return nil, err
	}
	if err := core.ValidateVector(vector, dim); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidQuery, err)
	}

	var results []storage.Match
	err = i.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialPointKey(i.collection)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var point *storage.Point
			err := iter.Item().Value(func(val []byte) error {
				var err error
				point, err = storage.UnmarshalPoint(val)
				return err
			})
			if err != nil {
				return err
			}
			if len(point.Vector) == 0 {
				continue
			}

			score := storage.CosineSimilarity(vector, point.Vector)
			if score >= minScore {
				results = append(results, storage.Match{
					ID:      point.ID,
					Score:   score,
					Payload: point.Payload,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending, ties by ID for stable output
	slices.SortFunc(results, func(a, b storage.Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Count returns the number of points in the collection.
func (i *Index) Count(ctx context.Context) (int, error) {
	count := 0
	err := i.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialPointKey(i.collection)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}
