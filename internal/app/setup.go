package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aerodoc/aerodoc/db"
	"github.com/aerodoc/aerodoc/internal/chunker"
	"github.com/aerodoc/aerodoc/internal/config"
	"github.com/aerodoc/aerodoc/internal/conversation"
	"github.com/aerodoc/aerodoc/internal/gateway"
	"github.com/aerodoc/aerodoc/internal/index"
	"github.com/aerodoc/aerodoc/internal/log"
	"github.com/aerodoc/aerodoc/internal/prompt"
	"github.com/aerodoc/aerodoc/internal/rag"
)

// Setup initializes the application: logger, storage backend, migrations,
// model gateway, and the pipeline. Call Close on the returned App to
// release resources.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	a := &App{
		Config: cfg,
		Logger: log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON}),
	}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	if os.Getenv("GEMINI_API_KEY") == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is not set", config.ErrMissingAPIKey)
	}

	splitter, err := chunker.New(cfg.ChunkMaxChars, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("creating splitter: %w", err)
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with googleai provider")
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	gw := gateway.NewGenkit(g, embedder, cfg.FullModelName(), cfg.EmbedderDimension, a.Logger)

	var idx rag.Index
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := providePool(ctx, cfg, a.Logger)
		if err != nil {
			return nil, err
		}
		a.Pool = pool
		idx = index.NewPostgres(pool, cfg.EmbedderDimension, a.Logger)
		a.Sessions = conversation.NewPostgres(pool, a.Logger)
	case config.BackendMemory:
		idx = index.NewMemory()
		a.Sessions = conversation.NewMemory()
		a.Logger.Warn("using in-memory backend, nothing survives a restart")
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidBackend, cfg.Backend)
	}

	a.Registry = prompt.NewRegistry()
	a.Engine = rag.New(gw, gw, idx, a.Sessions, a.Registry, splitter, a.Logger,
		rag.WithTopK(cfg.TopK),
		rag.WithMaxHistoryTurns(cfg.MaxHistoryTurns),
	)
	return a, nil
}

// providePool connects to PostgreSQL and applies pending migrations.
func providePool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}
