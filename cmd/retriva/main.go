// Command retriva is a local document ingestion and hybrid retrieval
// tool. It chunks documents, embeds them and answers queries by
// combining dense, lexical and pattern search.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/retriva-cli/internal/adapters/driven/config/file"
	"github.com/custodia-labs/retriva-cli/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/retriva-cli/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/retriva-cli/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/retriva-cli/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/retriva-cli/internal/adapters/driving/cli"
	"github.com/custodia-labs/retriva-cli/internal/chunker"
	"github.com/custodia-labs/retriva-cli/internal/connectors/filesystem"
	"github.com/custodia-labs/retriva-cli/internal/converters"
	"github.com/custodia-labs/retriva-cli/internal/converters/markdown"
	"github.com/custodia-labs/retriva-cli/internal/converters/plaintext"
	"github.com/custodia-labs/retriva-cli/internal/core/domain"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driven"
	"github.com/custodia-labs/retriva-cli/internal/core/services"
	"github.com/custodia-labs/retriva-cli/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configStore, err := file.NewConfigStore("")
	if err != nil {
		return fmt.Errorf("initializing config store: %w", err)
	}
	settings, err := configStore.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger.SetVerbose(settings.Logging.Verbose)

	store, err := openStore(ctx, settings.Storage)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	embedder, err := newEmbedder(settings.Embedding)
	if err != nil {
		return fmt.Errorf("initializing embedding client: %w", err)
	}
	defer embedder.Close()

	ch, err := chunker.New(chunker.Bounds{
		MinChars:     settings.Chunk.MinChars,
		MaxChars:     settings.Chunk.MaxChars,
		OverlapChars: settings.Chunk.OverlapChars,
	})
	if err != nil {
		return fmt.Errorf("initializing chunker: %w", err)
	}

	registry := converters.NewRegistry()
	registry.Register(markdown.New())
	registry.Register(plaintext.New())

	factory := filesystem.NewFactory(settings.Ingestion.GlobPatterns)

	ingestService := services.NewIngestService(store, embedder, registry, factory, ch, settings.Ingestion)
	retrieveService := services.NewRetrieveService(store, embedder, settings.Retrieval)
	sourceService := services.NewSourceService(store)

	return cli.Execute(&cli.Ports{
		Ingest:   ingestService,
		Retrieve: retrieveService,
		Source:   sourceService,
		Config:   configStore,
	}, version)
}

// persistenceStore is the store plus the lifecycle method the services
// do not need.
type persistenceStore interface {
	driven.PersistenceStore
	Close() error
}

func openStore(ctx context.Context, cfg domain.StorageSettings) (persistenceStore, error) {
	switch cfg.Backend {
	case domain.StorageBackendPostgres:
		return postgres.NewStore(ctx, cfg.DSN)
	case domain.StorageBackendSQLite:
		return sqlite.NewStore(cfg.Path)
	default:
		return nil, &domain.ConfigError{Field: "storage.backend", Reason: fmt.Sprintf("unknown backend %q", cfg.Backend)}
	}
}

func newEmbedder(cfg domain.EmbeddingSettings) (driven.EmbeddingClient, error) {
	switch cfg.Provider {
	case domain.EmbeddingProviderOllama:
		return ollama.NewClient(ollama.Config{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			RetryCount: cfg.RetryCount,
			Backoff:    time.Duration(cfg.BackoffSeconds * float64(time.Second)),
			Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
	case domain.EmbeddingProviderOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:            os.Getenv(cfg.APIKeyEnv),
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Dimensions:        cfg.Dimensions,
			BatchSize:         cfg.BatchSize,
			RetryCount:        cfg.RetryCount,
			Backoff:           time.Duration(cfg.BackoffSeconds * float64(time.Second)),
			RequestsPerSecond: cfg.RequestsPerSecond,
			Timeout:           time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
	default:
		return nil, &domain.ConfigError{Field: "embedding.provider", Reason: fmt.Sprintf("unknown provider %q", cfg.Provider)}
	}
}
