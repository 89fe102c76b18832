// Package vertex implements image description and question answering with
// Gemini models on Vertex AI.
//
// Vertex AI has no OpenAI-compatible embedding endpoint for the models the
// index is built with, so the provider takes its embedder from elsewhere
// (usually openai.NewEmbedder).
package vertex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/poiesic/photoscan/ai"
	"github.com/poiesic/photoscan/core"
	"github.com/poiesic/photoscan/retry"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Config selects the Vertex AI project and model.
type Config struct {
	Project     string
	Region      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		Region:      "us-central1",
		Model:       "gemini-1.5-flash",
		MaxTokens:   512,
		Temperature: 0.2,
	}
}

// Validate checks that the configuration is complete.
func (c Config) Validate() error {
	if c.Project == "" {
		return errors.New("vertex config: Project is required")
	}
	if c.Region == "" {
		return errors.New("vertex config: Region is required")
	}
	if c.Model == "" {
		return errors.New("vertex config: Model is required")
	}
	if c.MaxTokens <= 0 {
		return errors.New("vertex config: MaxTokens must be positive")
	}
	return nil
}

// generator is the part of *genai.GenerativeModel the services use.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Provider implements ai.AIProvider on top of a genai client.
type Provider struct {
	client    *genai.Client
	describer *Describer
	answerer  *Answerer
	embedder  ai.Embedder
	logger    *slog.Logger
}

// NewProvider connects to Vertex AI. Credentials come from the environment
// (Application Default Credentials).
func NewProvider(ctx context.Context, cfg Config, embedder ai.Embedder) (ai.AIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, errors.New("vertex provider: embedder is required")
	}

	client, err := genai.NewClient(ctx, cfg.Project, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	visionModel := client.GenerativeModel(cfg.Model)
	visionModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ai.DescribeSystemPrompt)},
	}
	visionModel.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: genai.Ptr(int32(cfg.MaxTokens)),
	}

	answerModel := client.GenerativeModel(cfg.Model)
	answerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ai.AnswerSystemPrompt)},
	}
	answerModel.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: genai.Ptr(int32(cfg.MaxTokens)),
		Temperature:     genai.Ptr(cfg.Temperature),
	}

	return &Provider{
		client:    client,
		describer: newDescriber(visionModel, cfg.Model),
		answerer:  newAnswerer(answerModel),
		embedder:  embedder,
		logger:    slog.Default().With("component", "vertex-provider"),
	}, nil
}

// Describer returns the Gemini describer.
func (p *Provider) Describer() ai.Describer { return p.describer }

// Embedder returns the embedder supplied at construction.
func (p *Provider) Embedder() ai.Embedder { return p.embedder }

// Answerer returns the Gemini answerer.
func (p *Provider) Answerer() ai.Answerer { return p.answerer }

// Close closes the genai client.
func (p *Provider) Close() error {
	p.logger.Debug("closing Vertex AI provider")
	return p.client.Close()
}

// Describer implements ai.Describer with a Gemini vision model.
type Describer struct {
	model  generator
	name   string
	logger *slog.Logger
}

func newDescriber(model generator, name string) *Describer {
	return &Describer{
		model:  model,
		name:   name,
		logger: slog.Default().With("component", "vertex-describer"),
	}
}

// Describe sends the JPEG and the caption instructions to Gemini.
func (d *Describer) Describe(ctx context.Context, req ai.DescribeRequest) (*core.Description, error) {
	parts := []genai.Part{
		genai.Text(ai.PhotoPrefix),
		genai.ImageData("jpeg", req.Image),
	}
	for _, rule := range ai.StyleRules {
		parts = append(parts, genai.Text(rule))
	}
	for _, hint := range req.Hints.Prompts() {
		parts = append(parts, genai.Text(hint))
	}

	start := time.Now()
	resp, err := d.model.GenerateContent(ctx, parts...)
	if err != nil {
		d.logger.Debug("describe request failed", "path", req.Path, "err", err)
		return nil, classifyError(err)
	}
	text := responseText(resp)
	if text == "" {
		return nil, retry.Permanent(core.ErrEmptyDescription)
	}

	return &core.Description{
		Text:        text,
		Model:       d.name,
		Duration:    time.Since(start),
		GeneratedAt: time.Now(),
	}, nil
}

// Answerer implements ai.Answerer with a Gemini text model.
type Answerer struct {
	model  generator
	logger *slog.Logger
}

func newAnswerer(model generator) *Answerer {
	return &Answerer{
		model:  model,
		logger: slog.Default().With("component", "vertex-answerer"),
	}
}

// Answer asks Gemini to answer question from options.
func (a *Answerer) Answer(ctx context.Context, question string, options []string) (string, error) {
	resp, err := a.model.GenerateContent(ctx, genai.Text(ai.AnswerPrompt(question, options)))
	if err != nil {
		a.logger.Debug("answer request failed", "err", err)
		return "", classifyError(err)
	}
	return responseText(resp), nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

// classifyError marks blocked responses and client-side gRPC failures permanent.
func classifyError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return retry.Permanent(err)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.InvalidArgument, codes.PermissionDenied, codes.Unauthenticated,
			codes.NotFound, codes.FailedPrecondition, codes.Unimplemented:
			return retry.Permanent(err)
		}
	}
	return err
}
