package pgvector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/photoscan/core"
	"github.com/poiesic/photoscan/retry"
	"github.com/poiesic/photoscan/storage"
)

func TestOpen_RejectsInvalidCollection(t *testing.T) {
	for _, name := range []string{"", "photos;drop", "1photos", "with-dash"} {
		_, err := Open("postgres://localhost/none", name)
		assert.ErrorIs(t, err, storage.ErrInvalidQuery, name)
	}
}

func TestRowRoundTrip(t *testing.T) {
	generated := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := storage.Point{
		ID:     core.ID(^uint64(0) - 7),
		Vector: []float32{0.5, 0.25},
		Payload: storage.Payload{
			Path:        "/photos/japan/a.jpg",
			Description: "Lanterns in an alley.",
			Folder:      "japan",
			Model:       "llava:13b",
			GeneratedAt: generated,
		},
	}

	r := toRow(p)
	assert.Less(t, r.ID, int64(0), "high IDs are stored as negative bigints")
	assert.Equal(t, p.ID, core.ID(uint64(r.ID)))
	assert.Equal(t, p.Payload, r.payload())
	assert.Equal(t, p.Vector, r.Embedding.Slice())

	p.Payload.GeneratedAt = time.Time{}
	assert.Nil(t, toRow(p).GeneratedAt)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))

	syntax := &pgconn.PgError{Code: "42601", Message: "syntax error"}
	assert.True(t, retry.IsPermanent(classify(fmt.Errorf("exec: %w", syntax))))

	dataErr := &pgconn.PgError{Code: "22000"}
	assert.True(t, retry.IsPermanent(classify(dataErr)))

	tooMany := &pgconn.PgError{Code: "53300"}
	assert.False(t, retry.IsPermanent(classify(tooMany)))

	assert.False(t, retry.IsPermanent(classify(errors.New("connection reset"))))
}

// Integration tests need a PostgreSQL server with pgvector installed.
func openTestIndex(t *testing.T) *Index {
	t.Helper()
	dsn := os.Getenv("PHOTOSCAN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PHOTOSCAN_TEST_POSTGRES_DSN not set")
	}
	collection := fmt.Sprintf("photoscan_test_%d", time.Now().UnixNano())
	idx, err := Open(dsn, collection)
	require.NoError(t, err)
	t.Cleanup(func() {
		idx.db.Exec("DROP TABLE IF EXISTS " + collection)
		idx.Close()
	})
	return idx
}

func TestIndex_Integration(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.EnsureCollection(ctx, 3))
	require.NoError(t, idx.EnsureCollection(ctx, 3))
	assert.ErrorIs(t, idx.EnsureCollection(ctx, 4), core.ErrIndexSchemaMismatch)

	harbour := storage.Point{ID: core.PhotoID("/p/harbour.jpg"), Vector: []float32{1, 0, 0},
		Payload: storage.Payload{Path: "/p/harbour.jpg", Description: "Boats", Folder: "p"}}
	temple := storage.Point{ID: core.PhotoID("/p/temple.jpg"), Vector: []float32{0, 1, 0},
		Payload: storage.Payload{Path: "/p/temple.jpg", Description: "Temple", Folder: "p"}}
	require.NoError(t, idx.Upsert(ctx, harbour))
	require.NoError(t, idx.Upsert(ctx, temple))

	harbour.Payload.Description = "Fishing boats"
	require.NoError(t, idx.Upsert(ctx, harbour))

	got, err := idx.Get(ctx, harbour.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fishing boats", got.Payload.Description)

	_, err = idx.Get(ctx, core.PhotoID("/p/missing.jpg"))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	matches, err := idx.Search(ctx, []float32{0.9, 0.1, 0}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, harbour.ID, matches[0].ID)
	assert.InDelta(t, 0.99, matches[0].Score, 0.01)
}
