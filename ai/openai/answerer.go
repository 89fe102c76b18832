package openai

import (
	"context"
	"log/slog"

	"github.com/poiesic/photoscan/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Answerer implements ai.Answerer with an OpenAI-compatible chat model.
type Answerer struct {
	client      llms.Model
	model       string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

func newAnswerer(config *ai.Config) (*Answerer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.VisionHost),
		openai.WithToken(token(config)),
		openai.WithModel(config.TextModel),
	)
	if err != nil {
		return nil, err
	}

	return &Answerer{
		client:      client,
		model:       config.TextModel,
		maxTokens:   config.MaxTokens,
		temperature: config.AnswerTemperature,
		logger:      slog.Default().With("component", "openai-answerer"),
	}, nil
}

// NewAnswerer creates a new answerer using the provided configuration.
func NewAnswerer(config *ai.Config) (ai.Answerer, error) {
	return newAnswerer(config)
}

// Answer asks the text model to answer question using options as context.
func (a *Answerer) Answer(ctx context.Context, question string, options []string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ai.AnswerSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, ai.AnswerPrompt(question, options)),
	}

	response, err := a.client.GenerateContent(ctx, content,
		llms.WithModel(a.model),
		llms.WithMaxTokens(a.maxTokens),
		openai.WithLegacyMaxTokensField(),
		llms.WithTemperature(a.temperature),
	)
	if err != nil {
		a.logger.Debug("answer request failed", "err", err)
		return "", classifyError(err)
	}
	if len(response.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return cleanCaption(response.Choices[0].Content), nil
}
