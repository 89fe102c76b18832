// Package qdrant implements storage.VectorIndex on a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/poiesic/photoscan/core"
	"github.com/poiesic/photoscan/retry"
	"github.com/poiesic/photoscan/storage"
)

// DefaultPort is Qdrant's gRPC port.
const DefaultPort = 6334

// Config holds connection settings.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// DefaultConfig returns settings for a local Qdrant.
func DefaultConfig() Config {
	return Config{
		Host:       "localhost",
		Port:       DefaultPort,
		Collection: storage.DefaultCollection,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New("qdrant host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("qdrant port out of range: %d", c.Port)
	}
	if c.Collection == "" {
		return errors.New("qdrant collection is required")
	}
	return nil
}

// client is the subset of *qdrant.Client the index uses.
type client interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Get(ctx context.Context, request *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// Index stores points in one Qdrant collection with cosine distance.
type Index struct {
	client     client
	collection string
	logger     *slog.Logger

	mu  sync.RWMutex
	dim int
}

var _ storage.VectorIndex = (*Index)(nil)

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) {
		i.logger = logger
	}
}

// New connects to Qdrant.
func New(cfg Config, opts ...Option) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	return newIndex(c, cfg.Collection, opts...), nil
}

func newIndex(c client, collection string, opts ...Option) *Index {
	i := &Index{
		client:     c,
		collection: collection,
		logger:     slog.Default().With("component", "qdrant"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Close closes the gRPC connections.
func (i *Index) Close() error {
	return i.client.Close()
}

// EnsureCollection creates the collection or checks its vector size.
func (i *Index) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", storage.ErrInvalidQuery, dim)
	}

	exists, err := i.client.CollectionExists(ctx, i.collection)
	if err != nil {
		return classify(err)
	}
	if !exists {
		err := i.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: i.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return classify(err)
		}
		i.logger.Info("created collection", "collection", i.collection, "dimensions", dim)
	} else {
		info, err := i.client.GetCollectionInfo(ctx, i.collection)
		if err != nil {
			return classify(err)
		}
		params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
		if params == nil {
			return fmt.Errorf("%w: collection %s uses named vectors", core.ErrIndexSchemaMismatch, i.collection)
		}
		if existing := int(params.GetSize()); existing != dim {
			return fmt.Errorf("%w: collection %s has %d dimensions, embeddings have %d",
				core.ErrIndexSchemaMismatch, i.collection, existing, dim)
		}
	}

	i.mu.Lock()
	i.dim = dim
	i.mu.Unlock()
	return nil
}

func (i *Index) dimension() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.dim
}

// Upsert stores p and waits until Qdrant has applied it.
func (i *Index) Upsert(ctx context.Context, p storage.Point) error {
	if err := p.Validate(i.dimension()); err != nil {
		return err
	}
	payload, err := qdrant.TryValueMap(p.Payload.Map())
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	_, err = i.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: i.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDNum(uint64(p.ID)),
			Vectors: qdrant.NewVectorsDense(p.Vector),
			Payload: payload,
		}},
	})
	return classify(err)
}

// Get retrieves a point with its payload and vector.
func (i *Index) Get(ctx context.Context, id core.ID) (*storage.Point, error) {
	points, err := i.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: i.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDNum(uint64(id))},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(points) == 0 {
		return nil, storage.ErrNotFound
	}
	rp := points[0]
	return &storage.Point{
		ID:      core.ID(rp.GetId().GetNum()),
		Vector:  rp.GetVectors().GetVector().GetDenseVector().GetData(),
		Payload: payloadFrom(rp.GetPayload()),
	}, nil
}

// Search runs a nearest-neighbour query.
func (i *Index) Search(ctx context.Context, vector []float32, limit int, minScore float32) ([]storage.Match, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", storage.ErrInvalidQuery, limit)
	}
	if err := core.ValidateVector(vector, i.dimension()); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidQuery, err)
	}
	scored, err := i.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(limit)),
		ScoreThreshold: qdrant.PtrOf(minScore),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, classify(err)
	}
	matches := make([]storage.Match, 0, len(scored))
	for _, sp := range scored {
		matches = append(matches, storage.Match{
			ID:      core.ID(sp.GetId().GetNum()),
			Score:   sp.GetScore(),
			Payload: payloadFrom(sp.GetPayload()),
		})
	}
	return matches, nil
}

func payloadFrom(values map[string]*qdrant.Value) storage.Payload {
	m := make(map[string]any, len(values))
	for k, v := range values {
		if s, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
			m[k] = s.StringValue
		}
	}
	return storage.PayloadFromMap(m)
}

// classify marks gRPC failures that retrying cannot fix.
func classify(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists, codes.PermissionDenied,
		codes.Unauthenticated, codes.FailedPrecondition, codes.Unimplemented, codes.OutOfRange:
		return retry.Permanent(err)
	}
	return err
}
