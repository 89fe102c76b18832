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

package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/photoscan/core"
	"github.com/poiesic/photoscan/retry"
)

// Client wraps a provider with per-attempt timeouts and retries.
// It holds no per-call state and is safe for concurrent use.
type Client struct {
	describer Describer
	embedder  Embedder
	answerer  Answerer
	closer    func() error
	policy    retry.Policy
	logger    *slog.Logger
}

var (
	_ Describer = (*Client)(nil)
	_ Embedder  = (*Client)(nil)
	_ Answerer  = (*Client)(nil)
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithEmbedder replaces the provider's embedder, for example with a CachedEmbedder
// or with an embedder from a different provider.
func WithEmbedder(e Embedder) ClientOption {
	return func(c *Client) {
		c.embedder = e
	}
}

// NewClient creates a retrying client around provider.
func NewClient(provider AIProvider, policy retry.Policy, opts ...ClientOption) (*Client, error) {
	if provider == nil {
		return nil, errors.New("ai client: provider is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("ai client: %w", err)
	}
	c := &Client{
		describer: provider.Describer(),
		embedder:  provider.Embedder(),
		answerer:  provider.Answerer(),
		closer:    provider.Close,
		policy:    policy,
		logger:    slog.Default().With("component", "ai-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Describe generates a description for the image, retrying transient failures.
func (c *Client) Describe(ctx context.Context, req DescribeRequest) (*core.Description, error) {
	if c.describer == nil {
		return nil, fmt.Errorf("%w: provider has no describer", core.ErrInferenceRejected)
	}
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("%w: empty image", core.ErrInferenceRejected)
	}

	var desc *core.Description
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		d, err := c.describer.Describe(ctx, req)
		if err != nil {
			return err
		}
		if err := core.ValidateDescription(d); err != nil {
			return retry.Permanent(err)
		}
		desc = d
		return nil
	})
	if err != nil {
		c.logger.Warn("describe failed", "path", req.Path, "err", err)
		return nil, classify("describe", err)
	}
	return desc, nil
}

// EmbedText embeds a single text, retrying transient failures.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		v, err := c.embedder.EmbedText(ctx, text)
		if err != nil {
			return err
		}
		if err := core.ValidateVector(v, 0); err != nil {
			return retry.Permanent(err)
		}
		vector = v
		return nil
	})
	if err != nil {
		return nil, classify("embed", err)
	}
	return vector, nil
}

// EmbedTexts embeds a batch of texts, retrying the whole batch on transient failures.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		v, err := c.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(v) != len(texts) {
			return retry.Permanent(fmt.Errorf("got %d embeddings for %d texts", len(v), len(texts)))
		}
		vectors = v
		return nil
	})
	if err != nil {
		return nil, classify("embed batch", err)
	}
	return vectors, nil
}

// Answer asks the text model to answer question from options.
func (c *Client) Answer(ctx context.Context, question string, options []string) (string, error) {
	if c.answerer == nil {
		return "", fmt.Errorf("%w: provider has no answerer", core.ErrInferenceRejected)
	}
	var answer string
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		a, err := c.answerer.Answer(ctx, question, options)
		if err != nil {
			return err
		}
		answer = a
		return nil
	})
	if err != nil {
		return "", classify("answer", err)
	}
	return answer, nil
}

// Close releases the underlying provider.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// ProbeDimensions embeds a short text once and returns the vector length.
func ProbeDimensions(ctx context.Context, e Embedder) (int, error) {
	v, err := e.EmbedText(ctx, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimensions: %w", err)
	}
	return len(v), nil
}

func classify(op string, err error) error {
	if retry.IsPermanent(err) {
		return fmt.Errorf("%s: %w: %w", op, core.ErrInferenceRejected, err)
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrInferenceUnavailable, err)
}
