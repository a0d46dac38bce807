// Command jam is a content-addressed document store with keyword and
// embedding retrieval.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/jam/internal/adapters/driven/ai"
	"github.com/custodia-labs/jam/internal/adapters/driven/config/file"
	"github.com/custodia-labs/jam/internal/adapters/driven/storage"
	"github.com/custodia-labs/jam/internal/adapters/driving/cli"
	"github.com/custodia-labs/jam/internal/core/domain"
	"github.com/custodia-labs/jam/internal/core/ports/driving"
	"github.com/custodia-labs/jam/internal/core/services"
	"github.com/custodia-labs/jam/internal/logger"
	"github.com/custodia-labs/jam/internal/normalisers"
	"github.com/custodia-labs/jam/internal/normalisers/html"
	"github.com/custodia-labs/jam/internal/normalisers/markdown"
	"github.com/custodia-labs/jam/internal/normalisers/plaintext"
	"github.com/custodia-labs/jam/internal/postprocessors"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = logger.Sync() }()

	if err := file.LoadEnvFile(".env"); err != nil {
		logger.Warn("ignoring .env: %v", err)
	}

	root := cli.NewRootCommand(version, cli.Wiring{
		Settings: openSettings,
		Services: func(settings *domain.AppSettings) (*cli.Services, error) {
			return buildServices(ctx, settings)
		},
	})
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 130
		}
		return 1
	}
	return 0
}

func openSettings(configDir string) (driving.SettingsService, error) {
	store, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, err
	}
	return services.NewSettingsService(store, ai.NewConfigValidator()), nil
}

func buildServices(ctx context.Context, settings *domain.AppSettings) (*cli.Services, error) {
	backend, err := storage.NewBackend(ctx, settings.Store)
	if err != nil {
		return nil, err
	}

	embedder, err := ai.CreateEmbeddingService(&settings.Embedding)
	if err != nil {
		backend.Close()
		return nil, err
	}

	store := services.NewDocumentStore(backend, settings.Store)
	ingest := services.NewIngestService(
		store,
		normalisers.NewRegistry(plaintext.New(), markdown.New(), html.New()),
		embedder,
		postprocessors.NewDefaultRegistry().SplitterFactory(postprocessors.Chunker),
	)

	retrievers := map[string]driving.Retriever{
		cli.ModeKeyword: services.NewKeywordRetriever(store),
	}
	if embedder != nil {
		retrievers[cli.ModeEmbedding] = services.NewEmbeddingRetriever(store, embedder)
	}

	return &cli.Services{
		Documents:  store,
		Ingest:     ingest,
		Retrievers: retrievers,
		Close: func() error {
			var errs []error
			if embedder != nil {
				errs = append(errs, embedder.Close())
			}
			errs = append(errs, backend.Close())
			return errors.Join(errs...)
		},
	}, nil
}
