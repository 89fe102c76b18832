package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/photoscan/core"
	"github.com/poiesic/photoscan/retry"
)

// Retrying wraps a VectorIndex with the shared retry policy.
type Retrying struct {
	inner  VectorIndex
	policy retry.Policy
	logger *slog.Logger
}

var _ VectorIndex = (*Retrying)(nil)

// NewRetrying wraps inner. The policy must be valid.
func NewRetrying(inner VectorIndex, policy retry.Policy, logger *slog.Logger) (*Retrying, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if logger == nil {
		logger = slog.Default().With("component", "vector-index")
	}
	return &Retrying{inner: inner, policy: policy, logger: logger}, nil
}

// EnsureCollection retries transient failures. A schema mismatch is returned at once.
func (r *Retrying) EnsureCollection(ctx context.Context, dim int) error {
	return retry.Do(ctx, r.policy, func(ctx context.Context) error {
		return classify(r.inner.EnsureCollection(ctx, dim))
	})
}

// Upsert retries transient failures. Errors wrap core.ErrIndexUpsertFailed
// unless they are schema mismatches.
func (r *Retrying) Upsert(ctx context.Context, p Point) error {
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		return classify(r.inner.Upsert(ctx, p))
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrIndexSchemaMismatch) {
		return err
	}
	r.logger.Debug("upsert failed", "id", p.ID, "path", p.Payload.Path, "err", err)
	return fmt.Errorf("%w: %w", core.ErrIndexUpsertFailed, err)
}

// Get retries transient failures. ErrNotFound is returned at once.
func (r *Retrying) Get(ctx context.Context, id core.ID) (*Point, error) {
	var p *Point
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		var err error
		p, err = r.inner.Get(ctx, id)
		return classify(err)
	})
	return p, err
}

// Search retries transient failures.
func (r *Retrying) Search(ctx context.Context, vector []float32, limit int, minScore float32) ([]Match, error) {
	var matches []Match
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		var err error
		matches, err = r.inner.Search(ctx, vector, limit, minScore)
		return classify(err)
	})
	return matches, err
}

// Close closes the wrapped index.
func (r *Retrying) Close() error {
	return r.inner.Close()
}

// classify marks errors that retrying cannot fix.
func classify(err error) error {
	if err == nil || retry.IsPermanent(err) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidQuery),
		errors.Is(err, ErrStorageClosed),
		errors.Is(err, ErrNoCollection),
		errors.Is(err, ErrSerializationFailed),
		errors.Is(err, core.ErrIndexSchemaMismatch),
		errors.Is(err, core.ErrEmptyVector),
		errors.Is(err, context.Canceled):
		return retry.Permanent(err)
	}
	return err
}
