package qdrant

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/poiesic/photoscan/core"
	"github.com/poiesic/photoscan/retry"
	"github.com/poiesic/photoscan/storage"
)

type fakeClient struct {
	mu        sync.Mutex
	size      uint64
	exists    bool
	points    map[uint64]*qdrant.PointStruct
	lastQuery *qdrant.QueryPoints
	upsertErr error
	closed    bool
}

func newFake() *fakeClient {
	return &fakeClient{points: map[uint64]*qdrant.PointStruct{}}
}

func (f *fakeClient) CollectionExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists, nil
}

func (f *fakeClient) GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &qdrant.CollectionInfo{
		Config: &qdrant.CollectionConfig{
			Params: &qdrant.CollectionParams{
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{Size: f.size, Distance: qdrant.Distance_Cosine}),
			},
		},
	}, nil
}

func (f *fakeClient) CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exists = true
	f.size = req.GetVectorsConfig().GetParams().GetSize()
	return nil
}

func (f *fakeClient) Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	for _, p := range req.Points {
		f.points[p.GetId().GetNum()] = p
	}
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeClient) Get(ctx context.Context, req *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*qdrant.RetrievedPoint
	for _, id := range req.Ids {
		if p, ok := f.points[id.GetNum()]; ok {
			out = append(out, &qdrant.RetrievedPoint{
				Id:      p.Id,
				Payload: p.Payload,
				Vectors: &qdrant.VectorsOutput{VectorsOptions: &qdrant.VectorsOutput_Vector{
					Vector: &qdrant.VectorOutput{Vector: &qdrant.VectorOutput_Dense{
						Dense: &qdrant.DenseVector{Data: p.GetVectors().GetVector().GetDense().GetData()},
					}},
				}},
			})
		}
	}
	return out, nil
}

func (f *fakeClient) Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = req
	var out []*qdrant.ScoredPoint
	for _, p := range f.points {
		out = append(out, &qdrant.ScoredPoint{Id: p.Id, Payload: p.Payload, Score: 0.9})
	}
	return out, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestEnsureCollection_Creates(t *testing.T) {
	fake := newFake()
	idx := newIndex(fake, "photos")

	require.NoError(t, idx.EnsureCollection(context.Background(), 1024))
	assert.True(t, fake.exists)
	assert.Equal(t, uint64(1024), fake.size)
}

func TestEnsureCollection_Mismatch(t *testing.T) {
	fake := newFake()
	fake.exists = true
	fake.size = 768
	idx := newIndex(fake, "photos")

	err := idx.EnsureCollection(context.Background(), 1024)
	assert.ErrorIs(t, err, core.ErrIndexSchemaMismatch)

	require.NoError(t, idx.EnsureCollection(context.Background(), 768))
}

func TestUpsertGetSearch(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	idx := newIndex(fake, "photos")
	require.NoError(t, idx.EnsureCollection(ctx, 3))

	rec := &core.PhotoRecord{Path: "/photos/2019/sizilien/4L2A3805.jpg"}
	p := storage.NewPoint(rec, &core.Description{Text: "A harbour.", Model: "llava:13b"}, []float32{0.1, 0.2, 0.3})
	require.NoError(t, idx.Upsert(ctx, p))

	got, err := idx.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.Vector, got.Vector)
	assert.Equal(t, "sizilien", got.Payload.Folder)
	assert.Equal(t, "A harbour.", got.Payload.Description)
	assert.Equal(t, "llava:13b", got.Payload.Model)

	matches, err := idx.Search(ctx, []float32{0.1, 0.2, 0.3}, 5, 0.25)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, rec.Path, matches[0].Payload.Path)
	assert.Equal(t, uint64(5), fake.lastQuery.GetLimit())
	assert.Equal(t, float32(0.25), fake.lastQuery.GetScoreThreshold())
}

func TestGet_NotFound(t *testing.T) {
	idx := newIndex(newFake(), "photos")
	_, err := idx.Get(context.Background(), 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(newFake(), "photos")
	require.NoError(t, idx.EnsureCollection(ctx, 3))

	err := idx.Upsert(ctx, storage.Point{ID: 1, Vector: []float32{1, 2}})
	assert.ErrorIs(t, err, core.ErrIndexSchemaMismatch)
}

func TestSearch_InvalidLimit(t *testing.T) {
	_, err := newIndex(newFake(), "photos").Search(context.Background(), []float32{1}, 0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil))

	transient := status.Error(codes.Unavailable, "connection refused")
	assert.False(t, retry.IsPermanent(classify(transient)))

	permanent := status.Error(codes.InvalidArgument, "bad vector")
	assert.True(t, retry.IsPermanent(classify(permanent)))

	plain := errors.New("boom")
	assert.False(t, retry.IsPermanent(classify(plain)))
}

func TestUpsert_ErrorClassified(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	idx := newIndex(fake, "photos")
	require.NoError(t, idx.EnsureCollection(ctx, 1))

	fake.upsertErr = status.Error(codes.PermissionDenied, "api key")
	err := idx.Upsert(ctx, storage.Point{ID: 1, Vector: []float32{1}})
	assert.True(t, retry.IsPermanent(err))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Host = ""
	assert.Error(t, cfg.Validate())
}

func TestClose(t *testing.T) {
	fake := newFake()
	require.NoError(t, newIndex(fake, "photos").Close())
	assert.True(t, fake.closed)
}
