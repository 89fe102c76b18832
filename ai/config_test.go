package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:11434/v1", cfg.VisionHost)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "llava:13b", cfg.VisionModel)
	assert.Equal(t, "llama3.1:8b", cfg.TextModel)
	assert.Equal(t, "mxbai-embed-large", cfg.EmbeddingModel)
	assert.Equal(t, 512, cfg.MaxTokens)
	assert.Equal(t, "high", cfg.ImageDetail)
	assert.InDelta(t, 0.2, cfg.AnswerTemperature, 1e-9)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()

		assert.Equal(t, DefaultHost, cfg.VisionHost)
		assert.Equal(t, DefaultHost, cfg.EmbeddingHost)
	})

	t.Run("with custom host", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://custom:8080/v1"))

		assert.Equal(t, "http://custom:8080/v1", cfg.VisionHost)
		assert.Equal(t, "http://custom:8080/v1", cfg.EmbeddingHost)
	})

	t.Run("with separate hosts", func(t *testing.T) {
		cfg := NewConfig(
			WithVisionHost("http://vision:8080/v1"),
			WithEmbeddingHost("http://embed:9090/v1"),
		)

		assert.Equal(t, "http://vision:8080/v1", cfg.VisionHost)
		assert.Equal(t, "http://embed:9090/v1", cfg.EmbeddingHost)
	})

	t.Run("with custom models", func(t *testing.T) {
		cfg := NewConfig(
			WithVisionModel("gpt-4o-mini"),
			WithTextModel("gpt-4o"),
			WithEmbeddingModel("text-embedding-3-small"),
			WithAPIKey("sk-test"),
			WithMaxTokens(256),
		)

		assert.Equal(t, "gpt-4o-mini", cfg.VisionModel)
		assert.Equal(t, "gpt-4o", cfg.TextModel)
		assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
		assert.Equal(t, "sk-test", cfg.APIKey)
		assert.Equal(t, 256, cfg.MaxTokens)
	})
}

func TestConfig_Normalize(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"already normalized", "http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"missing suffix", "http://localhost:11434", "http://localhost:11434/v1"},
		{"trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"empty stays empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{VisionHost: tt.host, EmbeddingHost: tt.host}
			cfg.Normalize()
			assert.Equal(t, tt.want, cfg.VisionHost)
			assert.Equal(t, tt.want, cfg.EmbeddingHost)
			assert.Equal(t, "high", cfg.ImageDetail)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		require.NoError(t, DefaultConfig().Validate())
	})

	t.Run("normalizes before validating", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://gpu:11434"))
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "http://gpu:11434/v1", cfg.VisionHost)
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing vision host", func(c *Config) { c.VisionHost = "" }, "VisionHost is required"},
		{"missing embedding host", func(c *Config) { c.EmbeddingHost = "" }, "EmbeddingHost is required"},
		{"missing vision model", func(c *Config) { c.VisionModel = "" }, "VisionModel is required"},
		{"missing embedding model", func(c *Config) { c.EmbeddingModel = "" }, "EmbeddingModel is required"},
		{"missing text model", func(c *Config) { c.TextModel = "" }, "TextModel is required"},
		{"zero max tokens", func(c *Config) { c.MaxTokens = 0 }, "MaxTokens must be positive"},
		{"bad detail", func(c *Config) { c.ImageDetail = "ultra" }, "ImageDetail"},
		{"bad temperature", func(c *Config) { c.AnswerTemperature = 3 }, "AnswerTemperature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
