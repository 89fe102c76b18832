package openai

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/poiesic/photoscan/ai"
	"github.com/poiesic/photoscan/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Describer implements ai.Describer using an OpenAI-compatible vision model.
type Describer struct {
	client    llms.Model
	model     string
	maxTokens int
	detail    string
	logger    *slog.Logger
}

// newDescriber is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newDescriber(config *ai.Config) (*Describer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.VisionHost),
		openai.WithToken(token(config)),
		openai.WithModel(config.VisionModel),
	)
	if err != nil {
		return nil, err
	}

	return &Describer{
		client:    client,
		model:     config.VisionModel,
		maxTokens: config.MaxTokens,
		detail:    config.ImageDetail,
		logger:    slog.Default().With("component", "openai-describer"),
	}, nil
}

// NewDescriber creates a new describer using the provided configuration.
//
// Returns ai.Describer interface to enforce abstraction.
func NewDescriber(config *ai.Config) (ai.Describer, error) {
	return newDescriber(config)
}

// Describe sends the image as a data URL together with the caption instructions.
func (d *Describer) Describe(ctx context.Context, req ai.DescribeRequest) (*core.Description, error) {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(req.Image)

	parts := []llms.ContentPart{
		llms.TextPart(ai.PhotoPrefix),
		llms.ImageURLWithDetailPart(dataURL, d.detail),
	}
	for _, rule := range ai.StyleRules {
		parts = append(parts, llms.TextPart(rule))
	}
	for _, hint := range req.Hints.Prompts() {
		parts = append(parts, llms.TextPart(hint))
	}

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(ai.DescribeSystemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: parts,
		},
	}

	start := time.Now()
	response, err := d.client.GenerateContent(ctx, content,
		llms.WithModel(d.model),
		llms.WithMaxTokens(d.maxTokens),
		openai.WithLegacyMaxTokensField(),
	)
	if err != nil {
		d.logger.Debug("describe request failed", "path", req.Path, "err", err)
		return nil, classifyError(err)
	}
	if len(response.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	text := cleanCaption(response.Choices[0].Content)
	elapsed := time.Since(start)
	d.logger.Debug("described image", "path", req.Path, "model", d.model, "duration", elapsed)

	return &core.Description{
		Text:        text,
		Model:       d.model,
		Duration:    elapsed,
		GeneratedAt: time.Now(),
	}, nil
}

func token(config *ai.Config) string {
	if config.APIKey == "" {
		// Local OpenAI-compatible services do not require authentication
		return "none"
	}
	return config.APIKey
}
