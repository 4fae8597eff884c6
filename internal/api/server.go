// Package api exposes the question answering pipeline over a JSON HTTP API.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aerodoc/aerodoc/internal/conversation"
	"github.com/aerodoc/aerodoc/internal/prompt"
	"github.com/aerodoc/aerodoc/internal/rag"
)

// Pipeline is what the transport needs from the orchestrator.
type Pipeline interface {
	Answer(ctx context.Context, question, sessionID, strategy string) (rag.Answer, error)
	Ingest(ctx context.Context, documentID string, pages []rag.Page) (int, error)
}

// SessionStore is what the transport needs from the conversation store.
// History is lenient (empty for unknown sessions); Exists carries the
// known/unknown distinction so the history endpoint can 404.
type SessionStore interface {
	History(ctx context.Context, sessionID string) ([]conversation.Turn, error)
	Exists(ctx context.Context, sessionID string) (bool, error)
	Delete(ctx context.Context, sessionID string) error
	ListIDs(ctx context.Context) ([]string, error)
}

// ServerConfig contains the dependencies and settings for the API server.
type ServerConfig struct {
	Logger     *slog.Logger
	Pipeline   Pipeline         // Required
	Registry   *prompt.Registry // Required
	Sessions   SessionStore     // Required
	Pool       *pgxpool.Pool    // Optional: nil disables the database check in /ready
	TrustProxy bool             // Trust X-Real-IP/X-Forwarded-For (behind a reverse proxy)
	RateRPS    float64          // Token refill per second per IP (0 = default 10)
	RateBurst  int              // Burst size per IP (0 = default 20)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("strategy registry is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	qh := &queryHandler{pipeline: cfg.Pipeline, registry: cfg.Registry, logger: logger}
	ih := &ingestHandler{pipeline: cfg.Pipeline, logger: logger}
	sth := &strategiesHandler{registry: cfg.Registry, logger: logger}
	sh := &sessionsHandler{store: cfg.Sessions, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/query", qh.query)
	mux.HandleFunc("POST /api/ingest", ih.ingest)
	mux.HandleFunc("GET /api/strategies", sth.list)
	mux.HandleFunc("GET /api/sessions", sh.list)
	mux.HandleFunc("GET /api/sessions/{id}/history", sh.history)
	mux.HandleFunc("DELETE /api/sessions/{id}", sh.delete)

	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 20
	}
	rl := newRateLimiter(rps, burst)

	// Middleware stack, outermost first: Recovery → Logging → RateLimit.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack so they are never rate
	// limited away from an orchestrator.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
