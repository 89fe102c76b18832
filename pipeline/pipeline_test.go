package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/photoscan/ai"
	"github.com/poiesic/photoscan/ai/mock"
	"github.com/poiesic/photoscan/core"
	"github.com/poiesic/photoscan/gate"
	"github.com/poiesic/photoscan/internal/testimage"
	"github.com/poiesic/photoscan/metadata"
	"github.com/poiesic/photoscan/metadata/exif"
	"github.com/poiesic/photoscan/retry"
	"github.com/poiesic/photoscan/storage"
	"github.com/poiesic/photoscan/storage/badger"
	"github.com/poiesic/photoscan/walker"
)

var fastPolicy = retry.Policy{
	MaxAttempts:    2,
	BaseDelay:      time.Millisecond,
	MaxDelay:       5 * time.Millisecond,
	Multiplier:     2,
	AttemptTimeout: time.Second,
}

// recorder collects transitions from concurrent workers.
type recorder struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *recorder) observe(t Transition) {
	r.mu.Lock()
	r.transitions = append(r.transitions, t)
	r.mu.Unlock()
}

func (r *recorder) count(to core.State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.transitions {
		if t.To == to {
			n++
		}
	}
	return n
}

func (r *recorder) countFor(path string, to core.State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.transitions {
		if t.Path == path && t.To == to {
			n++
		}
	}
	return n
}

type harness struct {
	root      string
	store     *exif.Store
	index     *badger.Index
	describer *mock.MockDescriber
	embedder  *mock.MockEmbedder
	client    *ai.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	idx, err := badger.NewMemoryIndex(storage.DefaultCollection)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	describer := mock.NewMockDescriber()
	embedder := mock.NewMockEmbedder()
	provider := mock.NewMockProviderWithServices(describer, embedder, mock.NewMockAnswerer())
	client, err := ai.NewClient(provider, fastPolicy)
	require.NoError(t, err)

	return &harness{
		root:      t.TempDir(),
		store:     exif.New(),
		index:     idx,
		describer: describer,
		embedder:  embedder,
		client:    client,
	}
}

func (h *harness) photo(t *testing.T, rel string) string {
	t.Helper()
	return testimage.WriteJPEG(t, filepath.Join(h.root, rel), 64, 48)
}

func (h *harness) pipeline(t *testing.T, opts ...Option) (*Pipeline, *recorder) {
	t.Helper()
	w, err := walker.New(h.root)
	require.NoError(t, err)
	g := gate.New(h.store, h.index)

	rec := &recorder{}
	opts = append([]Option{WithObserver(rec.observe), WithDimensions(mock.DefaultDimensions)}, opts...)
	p, err := New(w, g, h.client, h.store, h.index, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p, rec
}

func (h *harness) count(t *testing.T) int {
	t.Helper()
	n, err := h.index.Count(context.Background())
	require.NoError(t, err)
	return n
}

func assertForwardOnly(t *testing.T, rec *recorder) {
	t.Helper()
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, tr := range rec.transitions {
		assert.True(t, tr.From.CanTransition(tr.To), "%s: %s -> %s", tr.Path, tr.From, tr.To)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	h := newHarness(t)
	w, err := walker.New(h.root)
	require.NoError(t, err)
	g := gate.New(h.store, h.index)

	_, err = New(nil, g, h.client, h.store, h.index)
	assert.ErrorIs(t, err, ErrWalkerRequired)
	_, err = New(w, nil, h.client, h.store, h.index)
	assert.ErrorIs(t, err, ErrGateRequired)
	_, err = New(w, g, nil, h.store, h.index)
	assert.ErrorIs(t, err, ErrInferenceRequired)
	_, err = New(w, g, h.client, nil, h.index)
	assert.ErrorIs(t, err, ErrStoreRequired)
	_, err = New(w, g, h.client, h.store, nil)
	assert.ErrorIs(t, err, ErrIndexRequired)
}

func TestRun_DescribesAndIndexesEachPhotoOnce(t *testing.T) {
	h := newHarness(t)
	paths := []string{
		h.photo(t, "2019/sizilien/a.jpg"),
		h.photo(t, "2019/sizilien/b.jpg"),
		h.photo(t, "2020/japan/c.jpg"),
	}
	p, rec := h.pipeline(t)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 3, summary.Discovered)
	assert.EqualValues(t, 3, summary.Processed)
	assert.EqualValues(t, 3, summary.Described)
	assert.EqualValues(t, 0, summary.Failed)
	assert.False(t, summary.Canceled)
	assert.Equal(t, 3, h.count(t))
	assertForwardOnly(t, rec)

	for _, path := range paths {
		assert.Equal(t, 1, rec.countFor(path, core.StateDescribing), path)

		desc, err := h.store.ReadDescription(context.Background(), path)
		require.NoError(t, err)
		require.NotNil(t, desc)
		assert.Equal(t, "Quiet light over "+filepath.Base(path)+".", desc.Text)

		point, err := h.index.Get(context.Background(), core.PhotoID(path))
		require.NoError(t, err)
		assert.Equal(t, desc.Text, point.Payload.Description)
		assert.Equal(t, path, point.Payload.Path)
		assert.Equal(t, filepath.Base(filepath.Dir(path)), point.Payload.Folder)
	}

	reqs := h.describer.Requests()
	require.Len(t, reqs, 3)
	for _, r := range reqs {
		assert.NotEmpty(t, r.Image)
		assert.NotEmpty(t, r.Hints.Folder)
	}
}

func TestRun_SecondPassDoesNoWork(t *testing.T) {
	h := newHarness(t)
	h.photo(t, "a.jpg")
	h.photo(t, "nested/b.jpg")

	first, _ := h.pipeline(t)
	_, err := first.Run(context.Background())
	require.NoError(t, err)
	calls := h.describer.CallCount()

	second, rec := h.pipeline(t)
	summary, err := second.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, rec.count(core.StateDescribing))
	assert.Zero(t, rec.count(core.StateEmbedding))
	assert.Equal(t, calls, h.describer.CallCount())
	assert.EqualValues(t, 2, summary.Skipped)
	assert.EqualValues(t, 0, summary.Processed)
	assert.Equal(t, 2, h.count(t))
}

func TestRun_ThreePhotosOneDescribed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	done := h.photo(t, "trip/done.jpg")
	h.photo(t, "trip/new1.jpg")
	h.photo(t, "trip/new2.jpg")

	desc := &core.Description{Text: "Fishing boats rest in the harbour."}
	require.NoError(t, h.store.WriteDescription(ctx, done, metadata.Update{Description: desc.Text}))
	require.NoError(t, h.index.EnsureCollection(ctx, mock.DefaultDimensions))
	require.NoError(t, h.index.Upsert(ctx, storage.NewPoint(&core.PhotoRecord{Path: done}, desc, mock.Vector(desc.Text, mock.DefaultDimensions))))

	p, rec := h.pipeline(t)
	summary, err := p.Run(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 1, summary.Skipped)
	assert.EqualValues(t, 2, summary.Processed)
	assert.EqualValues(t, 0, summary.Failed)
	assert.Equal(t, 3, h.count(t))
	assert.Zero(t, rec.countFor(done, core.StateDescribing))
}

func TestRun_ResumesIndexingWithoutDescribing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := h.photo(t, "a.jpg")
	require.NoError(t, h.store.WriteDescription(ctx, path, metadata.Update{Description: "Moss on stone steps."}))

	p, rec := h.pipeline(t)
	summary, err := p.Run(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 1, summary.Processed)
	assert.EqualValues(t, 0, summary.Described)
	assert.Zero(t, h.describer.CallCount())
	assert.Zero(t, rec.count(core.StateDescribing))
	assert.Equal(t, 1, rec.count(core.StateEmbedding))
	assertForwardOnly(t, rec)

	point, err := h.index.Get(ctx, core.PhotoID(path))
	require.NoError(t, err)
	assert.Equal(t, "Moss on stone steps.", point.Payload.Description)
}

func TestRun_RespectsConcurrencyLimit(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		h.photo(t, name+".jpg")
	}
	h.describer.WithDelay(20 * time.Millisecond)

	p, _ := h.pipeline(t, WithConcurrency(2))
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 6, summary.Processed)
	assert.LessOrEqual(t, summary.PeakActive, int64(2))
	assert.GreaterOrEqual(t, summary.PeakActive, int64(1))
	assert.EqualValues(t, 0, summary.Active)
}

func TestRun_IsolatesItemFailures(t *testing.T) {
	h := newHarness(t)
	h.photo(t, "a.jpg")
	bad := h.photo(t, "b.jpg")
	h.photo(t, "c.jpg")
	h.describer.WithDescribeFunc(func(ctx context.Context, req ai.DescribeRequest) (*core.Description, error) {
		if req.Path == bad {
			return nil, retry.Permanent(errors.New("payload rejected"))
		}
		return &core.Description{Text: "Boats at dusk.", Model: mock.MockModel}, nil
	})

	p, rec := h.pipeline(t)
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 2, summary.Processed)
	assert.EqualValues(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, bad, summary.Failures[0].Path)
	assert.Equal(t, "InferenceRejected", summary.Failures[0].Kind)
	assert.Equal(t, 1, rec.countFor(bad, core.StateDescribeFailed))
	assert.Equal(t, 2, h.count(t))

	desc, err := h.store.ReadDescription(context.Background(), bad)
	require.NoError(t, err)
	assert.Nil(t, desc)
}

func TestRun_BackendUnreachable(t *testing.T) {
	h := newHarness(t)
	h.photo(t, "a.jpg")
	h.photo(t, "b.jpg")
	h.photo(t, "c.jpg")
	h.describer.WithDescribeFunc(func(context.Context, ai.DescribeRequest) (*core.Description, error) {
		return nil, errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")
	})

	p, _ := h.pipeline(t)
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 0, summary.Processed)
	assert.EqualValues(t, 3, summary.Failed)
	assert.Equal(t, 0, h.count(t))
	for _, f := range summary.Failures {
		assert.Equal(t, "InferenceUnavailable", f.Kind)
	}
	assert.Equal(t, 3*fastPolicy.MaxAttempts, h.describer.CallCount())
}

func TestRun_SkipsUnreadableMetadata(t *testing.T) {
	h := newHarness(t)
	h.photo(t, "a.jpg")
	broken := filepath.Join(h.root, "broken.jpg")
	require.NoError(t, os.WriteFile(broken, []byte("not a jpeg"), 0o644))

	p, rec := h.pipeline(t)
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, summary.Processed)
	assert.EqualValues(t, 1, summary.Skipped)
	assert.EqualValues(t, 0, summary.Failed)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var outcome *core.Outcome
	for _, tr := range rec.transitions {
		if tr.Path == broken && tr.To == core.StateSkipped {
			outcome = tr.Outcome
		}
	}
	require.NotNil(t, outcome)
	assert.Equal(t, core.OutcomeSkipped, outcome.Kind)
	assert.Equal(t, gate.SkipUnreadableMetadata.String(), outcome.Reason)
	assert.ErrorIs(t, outcome.Err, core.ErrMetadataUnreadable)
}

func TestRun_EmbeddedPreviewKeepsDimensionsConsistent(t *testing.T) {
	h := newHarness(t)
	path := testimage.WriteJPEG(t, filepath.Join(h.root, "wide.jpg"), 320, 200)

	p, _ := h.pipeline(t, WithPreview(true))
	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, summary.Processed)

	info, err := h.store.Inspect(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 320, info.Width)
	assert.Equal(t, 200, info.Height)
	assert.True(t, info.HasPreview())
	assert.Equal(t, 160, info.PreviewWidth)
	assert.Equal(t, 100, info.PreviewHeight)
}

func TestRun_SchemaMismatchBeforeDispatch(t *testing.T) {
	h := newHarness(t)
	h.photo(t, "a.jpg")
	require.NoError(t, h.index.EnsureCollection(context.Background(), 8))

	p, rec := h.pipeline(t)
	summary, err := p.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrIndexSchemaMismatch)
	assert.True(t, core.IsFatal(err))
	assert.Nil(t, summary)
	assert.Zero(t, rec.count(core.StateGated))
	assert.Zero(t, h.describer.CallCount())
}

func TestRun_SchemaMismatchMidRun(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"a", "b", "c", "d"} {
		h.photo(t, name+".jpg")
	}
	h.embedder.WithEmbedTextFunc(func(context.Context, string) ([]float32, error) {
		return mock.Vector("x", 4), nil
	})

	p, _ := h.pipeline(t, WithConcurrency(1))
	summary, err := p.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrIndexSchemaMismatch)
	require.NotNil(t, summary)
	assert.Less(t, summary.Discovered, int64(4))
	assert.Equal(t, summary.Discovered, summary.Done(), "every dispatched item is accounted for")
	assert.Equal(t, 0, h.count(t))

	require.NotEmpty(t, summary.Failures)
	first := summary.Failures[0]
	assert.Equal(t, filepath.Join(h.root, "a.jpg"), first.Path)
	assert.Equal(t, "IndexSchemaMismatch", first.Kind)
	for _, f := range summary.Failures {
		assert.ErrorIs(t, f.Err, core.ErrIndexSchemaMismatch)
	}
}

func TestRun_ProbesDimensions(t *testing.T) {
	h := newHarness(t)
	h.photo(t, "a.jpg")

	p, _ := h.pipeline(t, WithDimensions(0))
	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, summary.Processed)

	point, err := h.index.Get(context.Background(), core.PhotoID(filepath.Join(h.root, "a.jpg")))
	require.NoError(t, err)
	assert.Len(t, point.Vector, mock.DefaultDimensions)
}

func TestRun_CancellationFinishesInFlightItems(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		h.photo(t, name+".jpg")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, _ := h.pipeline(t, WithConcurrency(1), WithObserver(func(tr Transition) {
		if tr.To == core.StatePersisted {
			cancel()
		}
	}))
	summary, err := p.Run(ctx)
	require.NoError(t, err)

	assert.True(t, summary.Canceled)
	assert.Less(t, summary.Discovered, int64(5))
	assert.Equal(t, summary.Discovered, summary.Done(), "every dispatched item reaches a terminal state")
	assert.EqualValues(t, 0, summary.Failed)
}

func TestRun_MetadataWriteFailureSkipsUpsert(t *testing.T) {
	h := newHarness(t)
	path := h.photo(t, "a.jpg")

	w, err := walker.New(h.root)
	require.NoError(t, err)
	rec := &recorder{}
	p, err := New(w, gate.New(h.store, h.index), h.client, failingWriter{}, h.index,
		WithObserver(rec.observe), WithDimensions(mock.DefaultDimensions))
	require.NoError(t, err)
	defer p.Release()

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "MetadataWriteFailed", summary.Failures[0].Kind)
	assert.Equal(t, 1, rec.countFor(path, core.StatePersistFailed))
	assert.Equal(t, 0, h.count(t))
}

func TestRun_RejectsConcurrentRuns(t *testing.T) {
	h := newHarness(t)
	h.photo(t, "a.jpg")
	h.describer.WithDelay(50 * time.Millisecond)

	p, _ := h.pipeline(t)
	started := make(chan struct{})
	var once sync.Once
	p.observer = func(tr Transition) {
		if tr.To == core.StateDescribing {
			once.Do(func() { close(started) })
		}
	}

	errc := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background())
		errc <- err
	}()
	<-started
	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	require.NoError(t, <-errc)
}

func TestSnapshot_Done(t *testing.T) {
	s := Snapshot{Processed: 3, Skipped: 2, Failed: 1}
	assert.EqualValues(t, 6, s.Done())
}

type failingWriter struct{}

func (failingWriter) WriteDescription(context.Context, string, metadata.Update) error {
	return errors.New("disk full")
}
