// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package photoscan enriches a photo library with generated descriptions and
// makes it searchable by meaning.
//
// A Library assembles the configured inference provider, metadata store and
// vector index once. Pipelines and searchers created from it share them.
package photoscan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/photoscan/ai"
	"github.com/poiesic/photoscan/ai/openai"
	"github.com/poiesic/photoscan/ai/vertex"
	"github.com/poiesic/photoscan/gate"
	"github.com/poiesic/photoscan/metadata"
	"github.com/poiesic/photoscan/metadata/exif"
	"github.com/poiesic/photoscan/metadata/exiftool"
	"github.com/poiesic/photoscan/pipeline"
	"github.com/poiesic/photoscan/retry"
	"github.com/poiesic/photoscan/search"
	"github.com/poiesic/photoscan/storage"
	"github.com/poiesic/photoscan/storage/badger"
	"github.com/poiesic/photoscan/storage/pgvector"
	"github.com/poiesic/photoscan/storage/qdrant"
	"github.com/poiesic/photoscan/walker"
)

// Backend names accepted in Config.
const (
	ProviderOpenAI = "openai"
	ProviderVertex = "vertex"

	IndexBadger   = "badger"
	IndexQdrant   = "qdrant"
	IndexPgvector = "pgvector"

	MetadataExif     = "exif"
	MetadataExiftool = "exiftool"
)

// ErrNeedsExiftool is returned by NewPipeline when an enabled extension
// cannot be written by the built-in EXIF store.
var ErrNeedsExiftool = errors.New("extension needs the exiftool metadata store")

// DefaultDimensions matches the output of mxbai-embed-large.
const DefaultDimensions = 1024

// Config selects and configures every backend of a Library.
type Config struct {
	Provider string // ProviderOpenAI or ProviderVertex
	AI       *ai.Config
	Vertex   vertex.Config
	Retry    retry.Policy

	// EmbedCacheSize is the number of embeddings kept in memory. Zero disables the cache.
	EmbedCacheSize int

	Index       string // IndexBadger, IndexQdrant or IndexPgvector
	Collection  string
	IndexPath   string // Badger directory
	InMemory    bool   // Badger without a directory, for tests
	Qdrant      qdrant.Config
	PostgresDSN string

	// Dimensions is the embedding size. Zero probes the embedder at the start of each run.
	Dimensions int

	Metadata     string // MetadataExif or MetadataExiftool
	ExiftoolPath string

	Logger *slog.Logger
}

// DefaultConfig returns a configuration for a local OpenAI-compatible server,
// an embedded badger index and the built-in EXIF writer.
func DefaultConfig() Config {
	return Config{
		Provider:       ProviderOpenAI,
		AI:             ai.DefaultConfig(),
		Vertex:         vertex.DefaultConfig(),
		Retry:          retry.DefaultPolicy(),
		EmbedCacheSize: 1024,
		Index:          IndexBadger,
		Collection:     storage.DefaultCollection,
		IndexPath:      "photoscan.db",
		Qdrant:         qdrant.DefaultConfig(),
		Dimensions:     DefaultDimensions,
		Metadata:       MetadataExif,
	}
}

// Validate checks backend names and the settings each selected backend needs.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderVertex:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.AI == nil {
		return errors.New("ai config is required")
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	if c.Collection == "" {
		return errors.New("collection is required")
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("dimensions must not be negative, got %d", c.Dimensions)
	}

	switch c.Index {
	case IndexBadger:
		if c.IndexPath == "" && !c.InMemory {
			return errors.New("badger index needs a path")
		}
	case IndexQdrant:
		q := c.Qdrant
		q.Collection = c.Collection
		if err := q.Validate(); err != nil {
			return err
		}
	case IndexPgvector:
		if c.PostgresDSN == "" {
			return errors.New("pgvector index needs a postgres DSN")
		}
	default:
		return fmt.Errorf("unknown index %q", c.Index)
	}

	switch c.Metadata {
	case MetadataExif, MetadataExiftool:
	default:
		return fmt.Errorf("unknown metadata store %q", c.Metadata)
	}
	return nil
}

// Library holds the shared backends.
type Library struct {
	cfg      Config
	provider ai.AIProvider
	client   *ai.Client
	store    metadata.Store
	index    *storage.Retrying
	logger   *slog.Logger
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	provider ai.AIProvider
}

// WithProvider uses provider instead of building one from the config.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *openOptions) {
		o.provider = provider
	}
}

// Open builds every backend named in cfg. On error nothing is left open.
func Open(cfg Config, opts ...Option) (*Library, error) {
	options := &openOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &Library{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			l.Close()
		}
	}()

	provider := options.provider
	if provider == nil {
		var err error
		if provider, err = newProvider(cfg); err != nil {
			return nil, err
		}
	}
	l.provider = provider

	var clientOpts []ai.ClientOption
	clientOpts = append(clientOpts, ai.WithClientLogger(logger.With("component", "ai-client")))
	if cfg.EmbedCacheSize > 0 {
		cached, err := ai.NewCachedEmbedder(provider.Embedder(), cfg.AI.EmbeddingModel, cfg.EmbedCacheSize)
		if err != nil {
			return nil, err
		}
		clientOpts = append(clientOpts, ai.WithEmbedder(cached))
	}
	client, err := ai.NewClient(provider, cfg.Retry, clientOpts...)
	if err != nil {
		return nil, err
	}
	l.client = client

	store, err := newStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	l.store = store

	inner, err := newIndex(cfg, logger)
	if err != nil {
		return nil, err
	}
	index, err := storage.NewRetrying(inner, cfg.Retry, logger.With("component", "index"))
	if err != nil {
		inner.Close()
		return nil, err
	}
	l.index = index

	ok = true
	return l, nil
}

func newProvider(cfg Config) (ai.AIProvider, error) {
	switch cfg.Provider {
	case ProviderVertex:
		embedder, err := openai.NewEmbedder(cfg.AI)
		if err != nil {
			return nil, err
		}
		return vertex.NewProvider(context.Background(), cfg.Vertex, embedder)
	default:
		return openai.NewProvider(cfg.AI)
	}
}

func newStore(cfg Config, logger *slog.Logger) (metadata.Store, error) {
	switch cfg.Metadata {
	case MetadataExiftool:
		opts := []exiftool.Option{exiftool.WithLogger(logger.With("component", "metadata-exiftool"))}
		if cfg.ExiftoolPath != "" {
			opts = append(opts, exiftool.WithBinary(cfg.ExiftoolPath))
		}
		return exiftool.New(opts...)
	default:
		return exif.New(exif.WithLogger(logger.With("component", "metadata-exif"))), nil
	}
}

func newIndex(cfg Config, logger *slog.Logger) (storage.VectorIndex, error) {
	switch cfg.Index {
	case IndexQdrant:
		q := cfg.Qdrant
		q.Collection = cfg.Collection
		return qdrant.New(q, qdrant.WithLogger(logger.With("component", "qdrant")))
	case IndexPgvector:
		return pgvector.Open(cfg.PostgresDSN, cfg.Collection, pgvector.WithLogger(logger.With("component", "pgvector")))
	default:
		if cfg.InMemory {
			return badger.NewMemoryIndex(cfg.Collection)
		}
		return badger.Open(cfg.IndexPath, cfg.Collection)
	}
}

// Close releases every backend. It returns all errors encountered.
func (l *Library) Close() error {
	var errs []error
	if l.client != nil {
		errs = append(errs, l.client.Close())
	} else if l.provider != nil {
		errs = append(errs, l.provider.Close())
	}
	if l.index != nil {
		errs = append(errs, l.index.Close())
	}
	if l.store != nil {
		errs = append(errs, l.store.Close())
	}
	err := errors.Join(errs...)
	if err != nil {
		l.logger.Error("error closing library", "err", err)
	}
	return err
}

// Store returns the metadata store.
func (l *Library) Store() metadata.Store {
	return l.store
}

// Index returns the retrying vector index.
func (l *Library) Index() storage.VectorIndex {
	return l.index
}

// Client returns the retrying inference client.
func (l *Library) Client() *ai.Client {
	return l.client
}

// RunConfig holds the per-run settings of an enrichment pass.
type RunConfig struct {
	Extensions        []string // Empty means walker.DefaultExtensions
	Force             bool
	RegenerateGeneric bool
	Concurrency       int
	EmbedPreview      bool
}

// DefaultRunConfig returns the settings used when no flags are given.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		RegenerateGeneric: true,
		Concurrency:       pipeline.DefaultConcurrency,
	}
}

// NewPipeline creates a pipeline over root. It fails with core.ErrInvalidRoot
// when root is not a directory. opts are applied after the ones derived from run.
func (l *Library) NewPipeline(root string, run RunConfig, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	if l.cfg.Metadata == MetadataExif {
		for _, ext := range run.Extensions {
			if !exif.Supports("photo." + strings.TrimPrefix(ext, ".")) {
				return nil, fmt.Errorf("%w: %s", ErrNeedsExiftool, ext)
			}
		}
	}

	walkOpts := []walker.Option{walker.WithLogger(l.logger.With("component", "walker"))}
	if len(run.Extensions) > 0 {
		walkOpts = append(walkOpts, walker.WithExtensions(run.Extensions...))
	}
	w, err := walker.New(root, walkOpts...)
	if err != nil {
		return nil, err
	}

	g := gate.New(l.store, l.index,
		gate.WithForce(run.Force),
		gate.WithRegenerateGeneric(run.RegenerateGeneric),
		gate.WithLogger(l.logger.With("component", "gate")),
	)

	if run.EmbedPreview && l.cfg.Metadata == MetadataExiftool {
		l.logger.Warn("exiftool store cannot embed previews; only dimensions will be written")
	}

	base := []pipeline.Option{
		pipeline.WithLogger(l.logger.With("component", "pipeline")),
		pipeline.WithConcurrency(run.Concurrency),
		pipeline.WithPreview(run.EmbedPreview),
		pipeline.WithHints(l.store),
		pipeline.WithDimensions(l.cfg.Dimensions),
	}
	return pipeline.New(w, g, l.client, l.store, l.index, append(base, opts...)...)
}

// NewSearcher creates a searcher over the index.
func (l *Library) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	base := []search.Option{search.WithLogger(l.logger.With("component", "search"))}
	return search.New(l.client, l.client, l.index, append(base, opts...)...)
}
