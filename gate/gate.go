// Package gate decides whether a photo needs work on this pass.
//
// A photo is done when its metadata holds a description and the vector index
// holds an entry for the same photo with the same description. Either half
// can be missing after an interrupted run, so both are checked.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/poiesic/photoscan/core"
	"github.com/poiesic/photoscan/metadata"
	"github.com/poiesic/photoscan/storage"
)

// Verdict is the gate's decision for one photo.
type Verdict int

const (
	// Process means the photo needs a description, an index entry, or both.
	Process Verdict = iota + 1
	// SkipAlreadyDescribed means the photo is fully enriched.
	SkipAlreadyDescribed
	// SkipUnreadableMetadata means the file's metadata could not be parsed.
	SkipUnreadableMetadata
)

func (v Verdict) String() string {
	switch v {
	case Process:
		return "process"
	case SkipAlreadyDescribed:
		return "already-described"
	case SkipUnreadableMetadata:
		return "unreadable-metadata"
	default:
		return "unknown"
	}
}

// Decision is the result of Check.
type Decision struct {
	Verdict          Verdict
	NeedsDescription bool
	NeedsIndex       bool
	Err              error // Set for SkipUnreadableMetadata
}

// Skip reports whether the photo should not be dispatched.
func (d Decision) Skip() bool {
	return d.Verdict != Process
}

// Gate checks photos against their metadata and the vector index.
type Gate struct {
	store             metadata.Reader
	index             storage.Getter
	force             bool
	regenerateGeneric bool
	logger            *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithForce makes every readable photo get a new description.
func WithForce(force bool) Option {
	return func(g *Gate) {
		g.force = force
	}
}

// WithRegenerateGeneric controls whether descriptions opening with a generic
// reference to the picture are replaced. Enabled by default.
func WithRegenerateGeneric(regenerate bool) Option {
	return func(g *Gate) {
		g.regenerateGeneric = regenerate
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// New creates a gate.
func New(store metadata.Reader, index storage.Getter, opts ...Option) *Gate {
	g := &Gate{
		store:             store,
		index:             index,
		regenerateGeneric: true,
		logger:            slog.Default().With("component", "gate"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check reads the photo's metadata, fills rec.Existing and rec.Indexed, and
// decides what work remains.
func (g *Gate) Check(ctx context.Context, rec *core.PhotoRecord) Decision {
	desc, err := g.store.ReadDescription(ctx, rec.Path)
	if err != nil {
		g.logger.Warn("skipping photo with unreadable metadata", "path", rec.Path, "err", err)
		if !errors.Is(err, core.ErrMetadataUnreadable) {
			err = errors.Join(core.ErrMetadataUnreadable, err)
		}
		return Decision{Verdict: SkipUnreadableMetadata, Err: err}
	}
	rec.Existing = desc

	if desc == nil || g.force {
		return Decision{Verdict: Process, NeedsDescription: true, NeedsIndex: true}
	}
	if g.regenerateGeneric && desc.IsGeneric() {
		g.logger.Debug("regenerating generic description", "path", rec.Path)
		return Decision{Verdict: Process, NeedsDescription: true, NeedsIndex: true}
	}

	point, err := g.index.Get(ctx, rec.ID())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		g.logger.Debug("described but not indexed", "path", rec.Path)
		return Decision{Verdict: Process, NeedsIndex: true}
	case err != nil:
		g.logger.Warn("index lookup failed", "path", rec.Path, "err", err)
		return Decision{Verdict: Process, NeedsIndex: true}
	}

	if strings.TrimSpace(point.Payload.Description) != strings.TrimSpace(desc.Text) {
		g.logger.Debug("index entry is stale", "path", rec.Path)
		return Decision{Verdict: Process, NeedsIndex: true}
	}
	rec.Indexed = true
	return Decision{Verdict: SkipAlreadyDescribed}
}
