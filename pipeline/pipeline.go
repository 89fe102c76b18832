package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/photoscan/ai"
	"github.com/poiesic/photoscan/core"
	"github.com/poiesic/photoscan/gate"
	"github.com/poiesic/photoscan/metadata"
	"github.com/poiesic/photoscan/preview"
	"github.com/poiesic/photoscan/storage"
	"github.com/poiesic/photoscan/walker"
)

// DefaultConcurrency is the worker pool size when none is configured.
const DefaultConcurrency = 2

// Inference is the part of the AI client the pipeline calls.
type Inference interface {
	ai.Describer
	ai.Embedder
}

// Pipeline enriches every photo under one root.
type Pipeline struct {
	walker    *walker.Walker
	gate      *gate.Gate
	inference Inference
	store     metadata.Writer
	index     storage.VectorIndex
	hints     metadata.HintReader

	pool        *ants.Pool
	concurrency int
	previewOpts preview.Options
	dim         int
	observer    Observer
	logger      *slog.Logger

	running atomic.Bool
	stats   Stats
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithConcurrency sets the number of items processed at once.
// Default is DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			n = 1
		}
		p.concurrency = n
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithPreview makes the pipeline embed a thumbnail in each written file.
func WithPreview(enabled bool) Option {
	return func(p *Pipeline) error {
		p.previewOpts.WithPreview = enabled
		return nil
	}
}

// WithModelInputSize sets the bounding box of the image sent to the model.
func WithModelInputSize(px int) Option {
	return func(p *Pipeline) error {
		if px <= 0 {
			return fmt.Errorf("model input size must be positive, got %d", px)
		}
		p.previewOpts.ModelSize = px
		return nil
	}
}

// WithHints reads person and location hints for the prompt from r.
func WithHints(r metadata.HintReader) Option {
	return func(p *Pipeline) error {
		p.hints = r
		return nil
	}
}

// WithObserver registers fn to receive every state transition.
func WithObserver(fn Observer) Option {
	return func(p *Pipeline) error {
		p.observer = fn
		return nil
	}
}

// WithDimensions sets the embedding dimensionality used for the collection.
// Zero probes the embedder once at the start of Run.
func WithDimensions(dim int) Option {
	return func(p *Pipeline) error {
		if dim < 0 {
			return fmt.Errorf("dimensions must not be negative, got %d", dim)
		}
		p.dim = dim
		return nil
	}
}

// New creates a pipeline. Call Release when done with it.
func New(
	w *walker.Walker,
	g *gate.Gate,
	inference Inference,
	store metadata.Writer,
	index storage.VectorIndex,
	opts ...Option,
) (*Pipeline, error) {
	switch {
	case w == nil:
		return nil, ErrWalkerRequired
	case g == nil:
		return nil, ErrGateRequired
	case inference == nil:
		return nil, ErrInferenceRequired
	case store == nil:
		return nil, ErrStoreRequired
	case index == nil:
		return nil, ErrIndexRequired
	}

	p := &Pipeline{
		walker:      w,
		gate:        g,
		inference:   inference,
		store:       store,
		index:       index,
		concurrency: DefaultConcurrency,
		previewOpts: preview.DefaultOptions(),
		logger:      slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(p.concurrency)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

// Release releases the worker pool. The pipeline should not be used after
// calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Stats returns the live counters of the current or last run.
func (p *Pipeline) Stats() *Stats {
	return &p.stats
}

// Snapshot returns the current counters.
func (p *Pipeline) Snapshot() Snapshot {
	return p.stats.Snapshot()
}

// Run walks the library and processes every photo. It returns an error only
// when the run could not be carried out as configured. Per-item failures are
// reported in the Summary.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer p.running.Store(false)

	p.stats.reset()

	dim := p.dim
	if dim == 0 {
		probed, err := ai.ProbeDimensions(ctx, p.inference)
		if err != nil {
			return nil, err
		}
		dim = probed
		p.logger.Info("probed embedding dimensions", "dimensions", dim)
	}
	if err := p.index.EnsureCollection(ctx, dim); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	dispatchCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)
	workCtx := context.WithoutCancel(ctx)

	p.logger.Info("starting run", "root", p.walker.Root(), "concurrency", p.concurrency, "dimensions", dim)

	var wg sync.WaitGroup
	walkErr := p.walker.Walk(dispatchCtx, func(path string) error {
		if err := dispatchCtx.Err(); err != nil {
			return err
		}
		p.stats.discovered.Add(1)
		rec := &core.PhotoRecord{Path: path}
		if info, err := os.Stat(path); err == nil {
			rec.ModTime = info.ModTime()
		}

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			p.process(workCtx, rec, dim, abort)
		})
		if err != nil {
			wg.Done()
			return fmt.Errorf("dispatch %s: %w", path, err)
		}
		return nil
	})
	wg.Wait()

	summary := &Summary{
		Snapshot: p.stats.Snapshot(),
		Failures: p.stats.Failures(),
		Canceled: ctx.Err() != nil,
	}

	if cause := context.Cause(dispatchCtx); errors.Is(cause, core.ErrIndexSchemaMismatch) {
		p.logger.Error("run aborted", "err", cause)
		return summary, cause
	}
	if walkErr != nil && !errors.Is(walkErr, context.Canceled) && !errors.Is(walkErr, context.DeadlineExceeded) {
		return summary, walkErr
	}

	p.logger.Info("run finished",
		"discovered", summary.Discovered,
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"elapsed", summary.Elapsed,
		"canceled", summary.Canceled,
	)
	return summary, nil
}

// process carries one photo from Pending to a terminal state.
func (p *Pipeline) process(ctx context.Context, rec *core.PhotoRecord, dim int, abort context.CancelCauseFunc) {
	p.stats.enter()
	defer p.stats.leave()

	it := &item{rec: rec, state: core.StatePending}
	p.advance(it, core.StateGated, nil)

	decision := p.gate.Check(ctx, rec)
	if decision.Skip() {
		p.skip(it, decision)
		return
	}

	desc := rec.Existing
	var prepared *preview.Result
	if decision.NeedsDescription {
		p.advance(it, core.StateDescribing, nil)

		var err error
		prepared, err = preview.Prepare(rec.Path, p.previewOpts)
		if err != nil {
			p.failItem(it, core.StateDescribeFailed, fmt.Errorf("%w: prepare image: %w", core.ErrInferenceRejected, err))
			return
		}
		desc, err = p.inference.Describe(ctx, ai.DescribeRequest{
			Path:  rec.Path,
			Image: prepared.Model,
			Hints: p.hintsFor(ctx, rec),
		})
		if err != nil {
			p.failItem(it, core.StateDescribeFailed, err)
			return
		}
		p.stats.described.Add(1)
		p.advance(it, core.StateDescribed, nil)
	}

	p.advance(it, core.StateEmbedding, nil)
	vector, err := p.inference.EmbedText(ctx, desc.Text)
	if err != nil {
		p.failItem(it, core.StateEmbedFailed, err)
		return
	}
	if err := core.ValidateVector(vector, dim); err != nil {
		// A model change mid-run; no later item can succeed either.
		mismatch := fmt.Errorf("%w: %w", core.ErrIndexSchemaMismatch, err)
		p.failItem(it, core.StateEmbedFailed, mismatch)
		abort(mismatch)
		return
	}
	p.stats.embedded.Add(1)
	p.advance(it, core.StateEmbedded, nil)

	p.advance(it, core.StatePersisting, nil)
	if decision.NeedsDescription {
		if err := p.store.WriteDescription(ctx, rec.Path, update(desc, prepared)); err != nil {
			if !errors.Is(err, core.ErrMetadataWriteFailed) {
				err = fmt.Errorf("%w: %w", core.ErrMetadataWriteFailed, err)
			}
			p.failItem(it, core.StatePersistFailed, err)
			return
		}
	}

	point := storage.NewPoint(rec, desc, vector)
	if err := p.index.Upsert(ctx, point); err != nil {
		if errors.Is(err, core.ErrIndexSchemaMismatch) {
			p.failItem(it, core.StatePersistFailed, err)
			abort(err)
			return
		}
		if !errors.Is(err, core.ErrIndexUpsertFailed) {
			err = fmt.Errorf("%w: %w", core.ErrIndexUpsertFailed, err)
		}
		p.failItem(it, core.StatePersistFailed, err)
		return
	}

	p.stats.processed.Add(1)
	p.logger.Info("photo enriched", "path", rec.Path, "id", point.ID, "described", decision.NeedsDescription)
	p.finish(it, core.StatePersisted, &core.Outcome{
		Kind:        core.OutcomeSucceeded,
		Path:        rec.Path,
		Description: desc,
		PointID:     point.ID,
	})
}

func update(desc *core.Description, prepared *preview.Result) metadata.Update {
	u := metadata.Update{
		Description:  desc.Text,
		SourceWidth:  prepared.SourceWidth,
		SourceHeight: prepared.SourceHeight,
	}
	if prepared.Preview != nil {
		u.Preview = &metadata.Preview{
			JPEG:   prepared.Preview.JPEG,
			Width:  prepared.Preview.Width,
			Height: prepared.Preview.Height,
		}
	}
	return u
}

func (p *Pipeline) hintsFor(ctx context.Context, rec *core.PhotoRecord) ai.Hints {
	h := ai.Hints{Folder: rec.Folder()}
	if p.hints == nil {
		return h
	}
	found, err := p.hints.ReadHints(ctx, rec.Path)
	if err != nil {
		p.logger.Debug("no prompt hints", "path", rec.Path, "err", err)
		return h
	}
	h.Persons = found.Persons
	h.Location = found.Location
	return h
}

func (p *Pipeline) skip(it *item, d gate.Decision) {
	p.stats.skipped.Add(1)
	if d.Verdict == gate.SkipAlreadyDescribed {
		p.logger.Debug("photo already described", "path", it.rec.Path)
	}
	p.finish(it, core.StateSkipped, &core.Outcome{
		Kind:   core.OutcomeSkipped,
		Path:   it.rec.Path,
		Reason: d.Verdict.String(),
		Err:    d.Err,
	})
}

func (p *Pipeline) failItem(it *item, state core.State, err error) {
	p.stats.fail(it.rec.Path, err)
	p.logger.Error("photo failed", "path", it.rec.Path, "state", it.state, "kind", core.ErrorKind(err), "err", err)
	p.finish(it, state, &core.Outcome{
		Kind: core.OutcomeFailed,
		Path: it.rec.Path,
		Err:  err,
	})
}

func (p *Pipeline) finish(it *item, state core.State, outcome *core.Outcome) {
	p.emit(it, state, outcome.Err, outcome)
}

func (p *Pipeline) advance(it *item, state core.State, err error) {
	p.emit(it, state, err, nil)
}

func (p *Pipeline) emit(it *item, next core.State, err error, outcome *core.Outcome) {
	if !it.state.CanTransition(next) {
		p.logger.Error("invalid state transition", "path", it.rec.Path, "from", it.state, "to", next)
	}
	t := Transition{
		Path:    it.rec.Path,
		ID:      it.rec.ID(),
		From:    it.state,
		To:      next,
		Err:     err,
		At:      time.Now(),
		Outcome: outcome,
	}
	it.state = next
	if p.logger.Enabled(context.Background(), slog.LevelDebug) {
		p.logger.Debug("transition", "path", t.Path, "state", next, "from", t.From)
	}
	if p.observer != nil {
		p.observer(t)
	}
}
