package search

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/photoscan/ai/mock"
	"github.com/poiesic/photoscan/core"
	"github.com/poiesic/photoscan/storage"
	"github.com/poiesic/photoscan/storage/badger"
)

var photos = map[string]string{
	"/photos/2019/japan/kyoto.jpg":     "Lanterns glow above a narrow alley in Kyoto.",
	"/photos/2019/japan/nara.jpg":      "Deer rest under maple trees in Nara park.",
	"/photos/2020/sizilien/harbor.jpg": "Fishing boats rest in a quiet harbour at dusk.",
}

// testMonitor records callbacks.
type testMonitor struct {
	noopMonitor
	started    string
	dimensions int
	found      int
	verbatim   []string
	finished   int
	answer     string
}

func (m *testMonitor) Start(question string)                         { m.started = question }
func (m *testMonitor) AfterEmbedding(dim int)                        { m.dimensions = dim }
func (m *testMonitor) AfterIndexSearch(results []*core.SearchResult) { m.found = len(results) }
func (m *testMonitor) VerbatimHit(r *core.SearchResult)              { m.verbatim = append(m.verbatim, r.Path) }
func (m *testMonitor) Finish(results []*core.SearchResult)           { m.finished = len(results) }
func (m *testMonitor) AfterAnswer(answer string)                     { m.answer = answer }

func setupIndex(t *testing.T) *badger.Index {
	t.Helper()
	ctx := context.Background()
	idx, err := badger.NewMemoryIndex(storage.DefaultCollection)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	require.NoError(t, idx.EnsureCollection(ctx, mock.DefaultDimensions))

	for path, text := range photos {
		rec := &core.PhotoRecord{Path: path}
		desc := &core.Description{Text: text}
		require.NoError(t, idx.Upsert(ctx, storage.NewPoint(rec, desc, mock.Vector(text, mock.DefaultDimensions))))
	}
	return idx
}

func TestNew(t *testing.T) {
	idx := setupIndex(t)
	embedder := mock.NewMockEmbedder()

	t.Run("valid configuration", func(t *testing.T) {
		s, err := New(embedder, mock.NewMockAnswerer(), idx)
		require.NoError(t, err)
		assert.NotNil(t, s)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		s, err := New(embedder, nil, idx, WithLogger(nil), WithLogger(slog.Default()))
		require.NoError(t, err)
		assert.NotNil(t, s)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := New(nil, nil, idx)
		assert.Equal(t, ErrEmbedderRequired, err)
	})

	t.Run("nil index", func(t *testing.T) {
		_, err := New(embedder, nil, nil)
		assert.Equal(t, ErrIndexRequired, err)
	})
}

func TestFind_RanksExactDescriptionFirst(t *testing.T) {
	idx := setupIndex(t)
	monitor := &testMonitor{}
	s, err := New(mock.NewMockEmbedder(), nil, idx, WithMonitor(monitor))
	require.NoError(t, err)

	question := photos["/photos/2019/japan/nara.jpg"]
	results, err := s.Find(context.Background(), question, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	assert.Equal(t, "/photos/2019/japan/nara.jpg", top.Path)
	assert.Equal(t, "japan", top.Folder)
	assert.Equal(t, core.PhotoID(top.Path), top.ID)
	assert.InDelta(t, 1.0+verbatimBoost, top.Score, 1e-4)

	assert.Equal(t, question, monitor.started)
	assert.Equal(t, mock.DefaultDimensions, monitor.dimensions)
	assert.Equal(t, len(results), monitor.found)
	assert.Equal(t, len(results), monitor.finished)
	assert.Contains(t, monitor.verbatim, "/photos/2019/japan/nara.jpg")

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestFind_LimitAndMinScore(t *testing.T) {
	idx := setupIndex(t)

	s, err := New(mock.NewMockEmbedder(), nil, idx)
	require.NoError(t, err)
	results, err := s.Find(context.Background(), "harbour", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	strict, err := New(mock.NewMockEmbedder(), nil, idx, WithMinScore(0.9999))
	require.NoError(t, err)
	results, err = strict.Find(context.Background(), photos["/photos/2019/japan/kyoto.jpg"], 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "/photos/2019/japan/kyoto.jpg", results[0].Path)
}

func TestFind_EmptyQuestion(t *testing.T) {
	s, err := New(mock.NewMockEmbedder(), nil, setupIndex(t))
	require.NoError(t, err)
	_, err = s.Find(context.Background(), "  ", 5)
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestFind_EmbedderError(t *testing.T) {
	embedder := mock.NewMockEmbedder().WithEmbedTextFunc(func(context.Context, string) ([]float32, error) {
		return nil, errors.New("embedding service down")
	})
	s, err := New(embedder, nil, setupIndex(t))
	require.NoError(t, err)

	_, err = s.Find(context.Background(), "boats", 5)
	assert.ErrorContains(t, err, "embedding service down")
}

func TestFind_DimensionMismatch(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.Dimensions = 4
	s, err := New(embedder, nil, setupIndex(t))
	require.NoError(t, err)

	_, err = s.Find(context.Background(), "boats", 5)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestAsk(t *testing.T) {
	idx := setupIndex(t)
	answerer := mock.NewMockAnswerer().WithAnswerFunc(func(_ context.Context, question string, options []string) (string, error) {
		assert.Equal(t, "which cities did we visit in japan", question)
		assert.NotEmpty(t, options)
		return "Kyoto and Nara.", nil
	})
	monitor := &testMonitor{}
	s, err := New(mock.NewMockEmbedder(), answerer, idx, WithMonitor(monitor))
	require.NoError(t, err)

	answer, err := s.Ask(context.Background(), " which cities did we visit in japan ", 3)
	require.NoError(t, err)
	assert.Equal(t, "Kyoto and Nara.", answer.Text)
	assert.Len(t, answer.Results, 3)
	assert.Equal(t, "Kyoto and Nara.", monitor.answer)
	assert.Equal(t, 1, answerer.CallCount())
}

func TestAsk_NoResultsSkipsModel(t *testing.T) {
	idx, err := badger.NewMemoryIndex(storage.DefaultCollection)
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, idx.EnsureCollection(context.Background(), mock.DefaultDimensions))

	answerer := mock.NewMockAnswerer()
	s, err := New(mock.NewMockEmbedder(), answerer, idx)
	require.NoError(t, err)

	answer, err := s.Ask(context.Background(), "beach holidays", 5)
	require.NoError(t, err)
	assert.Empty(t, answer.Text)
	assert.Empty(t, answer.Results)
	assert.Zero(t, answerer.CallCount())
}

func TestAsk_RequiresAnswerer(t *testing.T) {
	s, err := New(mock.NewMockEmbedder(), nil, setupIndex(t))
	require.NoError(t, err)
	_, err = s.Ask(context.Background(), "boats", 5)
	assert.ErrorIs(t, err, ErrAnswererRequired)
}

func TestMentionsAll(t *testing.T) {
	tests := []struct {
		caption, question string
		want              bool
	}{
		{"Fishing boats rest in a quiet harbour at dusk.", "boats at the harbour", true},
		{"Fishing boats rest in a quiet harbour at dusk.", "a boat in the harbour", true},
		{"Fishing boats rest in a quiet harbour at dusk.", "boats in Kyoto", false},
		{"Lanterns glow above a narrow alley in Kyoto.", "Which alley in KYOTO?", true},
		{"Lanterns glow above a narrow alley in Kyoto.", "show me photos of lanterns", true},
		{"Snow on the pass.", "glass", false},
		{"Anything.", "the a an", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mentionsAll(tt.caption, tt.question), "%q / %q", tt.caption, tt.question)
	}
}
