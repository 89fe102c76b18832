package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/photoscan/ai"
	"github.com/poiesic/photoscan/core"
	"github.com/poiesic/photoscan/storage"
)

const (
	// DefaultLimit is the number of photos returned when no limit is given.
	DefaultLimit = 5

	// verbatimBoost is added to the score of a photo whose description
	// contains every significant question word.
	verbatimBoost = 0.3
)

// Searcher finds photos by meaning.
type Searcher struct {
	embedder ai.Embedder
	answerer ai.Answerer
	index    storage.VectorIndex
	minScore float32
	monitor  SearchMonitor
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinScore drops matches whose cosine similarity is below score.
func WithMinScore(score float32) Option {
	return func(s *Searcher) error {
		s.minScore = score
		return nil
	}
}

// WithMonitor registers a monitor for every search.
func WithMonitor(m SearchMonitor) Option {
	return func(s *Searcher) error {
		if m == nil {
			m = &noopMonitor{}
		}
		s.monitor = m
		return nil
	}
}

// New creates a searcher. answerer may be nil when Ask is not used.
func New(embedder ai.Embedder, answerer ai.Answerer, index storage.VectorIndex, opts ...Option) (*Searcher, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}

	s := &Searcher{
		embedder: embedder,
		answerer: answerer,
		index:    index,
		monitor:  &noopMonitor{},
		logger:   slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Find returns up to limit photos ranked by relevance to question.
func (s *Searcher) Find(ctx context.Context, question string, limit int) ([]*core.SearchResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	s.monitor.Start(question)

	embedding, err := s.embedder.EmbedText(ctx, question)
	if err != nil {
		s.logger.Error("error generating embedding for question", "question", question, "err", err)
		return nil, err
	}
	s.monitor.AfterEmbedding(len(embedding))

	matches, err := s.index.Search(ctx, embedding, limit, s.minScore)
	if err != nil {
		s.logger.Error("error querying for similar photos", "err", err)
		return nil, err
	}

	results := make([]*core.SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, m.Result())
	}
	s.monitor.AfterIndexSearch(results)

	for _, r := range results {
		if mentionsAll(r.Description, question) {
			r.Score += verbatimBoost
			s.monitor.VerbatimHit(r)
		}
	}

	// Sort by score descending
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	s.monitor.Finish(results)

	return results, nil
}

// Answer is the result of Ask.
type Answer struct {
	Text    string
	Results []*core.SearchResult
}

// Ask finds photos for question and lets the text model answer it from
// their descriptions. With no matching photos the answer text is empty and
// the model is not called.
func (s *Searcher) Ask(ctx context.Context, question string, limit int) (*Answer, error) {
	if s.answerer == nil {
		return nil, ErrAnswererRequired
	}
	results, err := s.Find(ctx, question, limit)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &Answer{Results: results}, nil
	}

	options := make([]string, 0, len(results))
	for _, r := range results {
		if r.Description != "" {
			options = append(options, r.Description)
		}
	}

	text, err := s.answerer.Answer(ctx, strings.TrimSpace(question), options)
	if err != nil {
		s.logger.Error("error answering question", "err", err)
		return nil, err
	}
	s.monitor.AfterAnswer(text)

	return &Answer{Text: text, Results: results}, nil
}
