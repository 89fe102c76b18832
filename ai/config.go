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
	"errors"
	"strings"
)

// DefaultHost is the OpenAI-compatible endpoint of a local Ollama server.
const DefaultHost = "http://localhost:11434/v1"

// Config holds configuration for AI service providers.
type Config struct {
	// VisionHost is the base URL for the image description API.
	// Example: "http://localhost:11434/v1" for a local OpenAI-compatible server
	VisionHost string

	// EmbeddingHost is the base URL for the embedding service API.
	EmbeddingHost string

	// APIKey is sent as the bearer token. Local servers ignore it.
	APIKey string

	// VisionModel is the vision-capable model used to describe photos.
	// Example: "llava:13b", "gpt-4o-mini"
	VisionModel string

	// TextModel answers questions over search results.
	TextModel string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "mxbai-embed-large", "text-embedding-3-small"
	EmbeddingModel string

	// MaxTokens caps the length of generated descriptions and answers.
	MaxTokens int

	// ImageDetail is the OpenAI image detail level ("low", "high" or "auto").
	ImageDetail string

	// AnswerTemperature is the sampling temperature for answers.
	AnswerTemperature float64
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithVisionHost sets the image description host URL.
func WithVisionHost(host string) ConfigOption {
	return func(c *Config) {
		c.VisionHost = host
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithHost sets both vision and embedding hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.VisionHost = host
		c.EmbeddingHost = host
	}
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithVisionModel sets the image description model.
func WithVisionModel(model string) ConfigOption {
	return func(c *Config) {
		c.VisionModel = model
	}
}

// WithTextModel sets the answering model.
func WithTextModel(model string) ConfigOption {
	return func(c *Config) {
		c.TextModel = model
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithMaxTokens sets the generation length limit.
func WithMaxTokens(n int) ConfigOption {
	return func(c *Config) {
		c.MaxTokens = n
	}
}

// DefaultConfig returns a Config with sensible defaults for a local Ollama server.
func DefaultConfig() *Config {
	return &Config{
		VisionHost:        DefaultHost,
		EmbeddingHost:     DefaultHost,
		VisionModel:       "llava:13b",
		TextModel:         "llama3.1:8b",
		EmbeddingModel:    "mxbai-embed-large",
		MaxTokens:         512,
		ImageDetail:       "high",
		AnswerTemperature: 0.2,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://gpu-box:11434"),
//	    WithVisionModel("llava:34b"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to hosts if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	c.VisionHost = normalizeHost(c.VisionHost)
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	if c.ImageDetail == "" {
		c.ImageDetail = "high"
	}
}

func normalizeHost(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.VisionHost == "" {
		return errors.New("ai config: VisionHost is required")
	}
	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.VisionModel == "" {
		return errors.New("ai config: VisionModel is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.TextModel == "" {
		return errors.New("ai config: TextModel is required")
	}
	if c.MaxTokens <= 0 {
		return errors.New("ai config: MaxTokens must be positive")
	}
	switch c.ImageDetail {
	case "low", "high", "auto":
	default:
		return errors.New("ai config: ImageDetail must be low, high or auto")
	}
	if c.AnswerTemperature < 0 || c.AnswerTemperature > 2 {
		return errors.New("ai config: AnswerTemperature must be between 0 and 2")
	}
	return nil
}
