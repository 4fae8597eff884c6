// Package app wires configuration, storage, model gateways, and the
// pipeline into a runnable application. All dependencies are constructed
// explicitly here; no component reaches for ambient singletons.
package app

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aerodoc/aerodoc/internal/config"
	"github.com/aerodoc/aerodoc/internal/conversation"
	"github.com/aerodoc/aerodoc/internal/log"
	"github.com/aerodoc/aerodoc/internal/prompt"
	"github.com/aerodoc/aerodoc/internal/rag"
)

// ConversationStore is the full conversation surface the application wires:
// the pipeline appends and reads, the API lists and deletes, and the idle
// eviction loop prunes.
type ConversationStore interface {
	GetOrCreate(ctx context.Context, sessionID string) error
	Append(ctx context.Context, sessionID string, turns ...conversation.Turn) error
	History(ctx context.Context, sessionID string) ([]conversation.Turn, error)
	Exists(ctx context.Context, sessionID string) (bool, error)
	Delete(ctx context.Context, sessionID string) error
	ListIDs(ctx context.Context) ([]string, error)
	EvictIdle(ctx context.Context, before time.Time) (int, error)
}

// App holds the initialized application.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	Pool     *pgxpool.Pool // nil with the memory backend
	Genkit   *genkit.Genkit
	Registry *prompt.Registry
	Sessions ConversationStore
	Engine   *rag.Engine
}

// Close releases everything Setup acquired. Safe to call on a partially
// initialized App and more than once.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
		a.Pool = nil
	}
}
