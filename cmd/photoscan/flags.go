package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/photoscan"
	"github.com/poiesic/photoscan/ai"
	"github.com/poiesic/photoscan/retry"
	"github.com/poiesic/photoscan/storage"
	"github.com/poiesic/photoscan/storage/qdrant"
	"github.com/poiesic/photoscan/walker"
)

// backendFlags configure the inference provider, the vector index and the
// metadata store. enrich and query share them.
func backendFlags() []cli.Flag {
	aiDefaults := ai.DefaultConfig()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "provider",
			Usage:   "Inference provider (openai, vertex)",
			Value:   photoscan.ProviderOpenAI,
			EnvVars: []string{"PHOTOSCAN_PROVIDER"},
		},
		&cli.StringFlag{
			Name:    "vision-host",
			Usage:   "OpenAI-compatible API base URL for image descriptions",
			Value:   aiDefaults.VisionHost,
			EnvVars: []string{"CHAT_API_BASE"},
		},
		&cli.StringFlag{
			Name:    "embedding-host",
			Usage:   "OpenAI-compatible API base URL for embeddings",
			Value:   aiDefaults.EmbeddingHost,
			EnvVars: []string{"CHAT_API_BASE"},
		},
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "API key sent to the OpenAI-compatible server",
			EnvVars: []string{"CHAT_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "vision-model",
			Usage:   "Vision model name",
			Value:   aiDefaults.VisionModel,
			EnvVars: []string{"CHAT_MODEL_IMAGE"},
		},
		&cli.StringFlag{
			Name:    "text-model",
			Usage:   "Text model name used to answer questions",
			Value:   aiDefaults.TextModel,
			EnvVars: []string{"CHAT_MODEL"},
		},
		&cli.StringFlag{
			Name:    "embedding-model",
			Usage:   "Embedding model name",
			Value:   aiDefaults.EmbeddingModel,
			EnvVars: []string{"CHAT_MODEL_EMBEDDINGS"},
		},
		&cli.StringFlag{
			Name:    "vertex-project",
			Usage:   "Google Cloud project for the vertex provider",
			EnvVars: []string{"GOOGLE_CLOUD_PROJECT"},
		},
		&cli.StringFlag{
			Name:    "vertex-region",
			Usage:   "Google Cloud region for the vertex provider",
			Value:   "us-central1",
			EnvVars: []string{"GOOGLE_CLOUD_REGION"},
		},
		&cli.StringFlag{
			Name:    "vertex-model",
			Usage:   "Gemini model for the vertex provider",
			Value:   "gemini-1.5-flash",
			EnvVars: []string{"VERTEX_MODEL"},
		},
		&cli.StringFlag{
			Name:    "index",
			Usage:   "Vector index backend (badger, qdrant, pgvector)",
			Value:   photoscan.IndexBadger,
			EnvVars: []string{"PHOTOSCAN_INDEX"},
		},
		&cli.StringFlag{
			Name:    "index-path",
			Usage:   "Path to BadgerDB index directory",
			Value:   "photoscan.db",
			EnvVars: []string{"PHOTOSCAN_INDEX_PATH"},
		},
		&cli.StringFlag{
			Name:    "qdrant-host",
			Usage:   "Qdrant host",
			Value:   "localhost",
			EnvVars: []string{"QDRANT_HOST"},
		},
		&cli.IntFlag{
			Name:    "qdrant-port",
			Usage:   "Qdrant gRPC port",
			Value:   qdrant.DefaultPort,
			EnvVars: []string{"QDRANT_PORT"},
		},
		&cli.StringFlag{
			Name:    "qdrant-api-key",
			Usage:   "Qdrant API key",
			EnvVars: []string{"QDRANT_API_KEY"},
		},
		&cli.BoolFlag{
			Name:    "qdrant-tls",
			Usage:   "Connect to Qdrant over TLS",
			EnvVars: []string{"QDRANT_TLS"},
		},
		&cli.StringFlag{
			Name:    "postgres-dsn",
			Usage:   "PostgreSQL connection string for the pgvector index",
			EnvVars: []string{"POSTGRES_DSN"},
		},
		&cli.StringFlag{
			Name:    "collection",
			Usage:   "Vector collection name",
			Value:   storage.DefaultCollection,
			EnvVars: []string{"PHOTOSCAN_COLLECTION"},
		},
		&cli.IntFlag{
			Name:    "dimensions",
			Usage:   "Embedding dimensions (0 probes the embedding model)",
			Value:   photoscan.DefaultDimensions,
			EnvVars: []string{"PHOTOSCAN_DIMENSIONS"},
		},
		&cli.StringFlag{
			Name:    "metadata",
			Usage:   "Metadata store (exif, exiftool)",
			Value:   photoscan.MetadataExif,
			EnvVars: []string{"PHOTOSCAN_METADATA"},
		},
		&cli.StringFlag{
			Name:    "exiftool",
			Usage:   "Path to the exiftool executable",
			EnvVars: []string{"EXIFTOOL_PATH"},
		},
		&cli.IntFlag{
			Name:  "max-retries",
			Usage: "Maximum attempts for failed inference and index calls",
			Value: 3,
		},
		&cli.DurationFlag{
			Name:  "retry-delay",
			Usage: "Base delay for exponential backoff",
			Value: 1 * time.Second,
		},
		&cli.DurationFlag{
			Name:  "request-timeout",
			Usage: "Timeout for each inference or index call",
			Value: 2 * time.Minute,
		},
	}
}

// libraryConfig maps the backend flags onto a library configuration.
func libraryConfig(c *cli.Context) (photoscan.Config, error) {
	cfg := photoscan.DefaultConfig()
	cfg.Provider = strings.ToLower(c.String("provider"))

	cfg.AI = ai.NewConfig(
		ai.WithVisionHost(c.String("vision-host")),
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithAPIKey(c.String("api-key")),
		ai.WithVisionModel(c.String("vision-model")),
		ai.WithTextModel(c.String("text-model")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
	)
	if err := cfg.AI.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid AI configuration: %w", err)
	}

	cfg.Vertex.Project = c.String("vertex-project")
	cfg.Vertex.Region = c.String("vertex-region")
	cfg.Vertex.Model = c.String("vertex-model")

	if c.Int("max-retries") <= 0 {
		return cfg, fmt.Errorf("max-retries must be greater than 0")
	}
	cfg.Retry = retry.DefaultPolicy()
	cfg.Retry.MaxAttempts = c.Int("max-retries")
	cfg.Retry.BaseDelay = c.Duration("retry-delay")
	cfg.Retry.AttemptTimeout = c.Duration("request-timeout")

	cfg.Index = strings.ToLower(c.String("index"))
	cfg.IndexPath = c.String("index-path")
	cfg.Collection = c.String("collection")
	cfg.Qdrant = qdrant.Config{
		Host:   c.String("qdrant-host"),
		Port:   c.Int("qdrant-port"),
		APIKey: c.String("qdrant-api-key"),
		UseTLS: c.Bool("qdrant-tls"),
	}
	cfg.PostgresDSN = c.String("postgres-dsn")
	cfg.Dimensions = c.Int("dimensions")

	cfg.Metadata = strings.ToLower(c.String("metadata"))
	cfg.ExiftoolPath = c.String("exiftool")

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// splitList splits a comma separated flag value.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func extensionsUsage() string {
	return "Comma separated file extensions to include (" + strings.Join(walker.SupportedExtensions, ", ") + ")"
}
