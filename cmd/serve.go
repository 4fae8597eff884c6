package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aerodoc/aerodoc/internal/api"
	"github.com/aerodoc/aerodoc/internal/app"
	"github.com/aerodoc/aerodoc/internal/config"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // generation calls can be slow
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second

	// Idle sessions older than this are evicted by the background sweep.
	sessionIdleTTL     = 24 * time.Hour
	sessionSweepPeriod = 15 * time.Minute
)

// runServe initializes the application and starts the HTTP API server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var serveArgs []string
	if len(os.Args) > 2 {
		serveArgs = os.Args[2:]
	}
	addr, err := listenAddr(serveArgs, cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("resolving listen address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	logger := a.Logger
	logger.Info("starting HTTP API server", "version", AppVersion, "backend", cfg.Backend)

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:     logger,
		Pipeline:   a.Engine,
		Registry:   a.Registry,
		Sessions:   a.Sessions,
		Pool:       a.Pool,
		TrustProxy: cfg.TrustProxy,
		RateRPS:    cfg.RateLimitRPS,
		RateBurst:  cfg.RateLimitBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	go sweepIdleSessions(ctx, a)

	logger.Info("HTTP server ready",
		"addr", addr,
		"api", "/api/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}

// sweepIdleSessions periodically evicts conversations that have been idle
// longer than sessionIdleTTL. Runs until ctx is cancelled.
func sweepIdleSessions(ctx context.Context, a *app.App) {
	ticker := time.NewTicker(sessionSweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.Sessions.EvictIdle(ctx, time.Now().Add(-sessionIdleTTL))
			if err != nil {
				a.Logger.Warn("evicting idle sessions", "error", err)
				continue
			}
			if n > 0 {
				a.Logger.Info("evicted idle sessions", "count", n)
			}
		}
	}
}
