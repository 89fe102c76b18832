package ai

import (
	"context"

	"github.com/poiesic/photoscan/core"
)

// Describer produces a natural-language description of a photo.
// Implementations must be thread-safe for concurrent use.
type Describer interface {
	// Describe sends the prepared image to a vision-capable model and returns
	// its caption. The request image is JPEG encoded.
	// Errors that retrying cannot fix should be wrapped with retry.Permanent.
	Describe(ctx context.Context, req DescribeRequest) (*core.Description, error)
}

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Answerer picks or composes an answer to a question from a set of options.
type Answerer interface {
	Answer(ctx context.Context, question string, options []string) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Describer returns the image description service.
	Describer() Describer

	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Answerer returns the question answering service.
	Answerer() Answerer

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
