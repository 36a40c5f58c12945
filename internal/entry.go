// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/kallestad/driftmark/internal/api"
	"github.com/kallestad/driftmark/internal/classify"
	"github.com/kallestad/driftmark/internal/gitsync"
	"github.com/kallestad/driftmark/internal/journal"
	"github.com/kallestad/driftmark/internal/localstore"
	"github.com/kallestad/driftmark/internal/mcpserver"
	"github.com/kallestad/driftmark/internal/remote"
	"github.com/kallestad/driftmark/internal/sse"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger. MCP mode must keep stdout
	// clean for the protocol, so logs go to stderr there.
	logDest := os.Stdout
	if app.mcpMode {
		logDest = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logDest, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	// Initialize the local file cache: vault directory plus state DB.
	vault, err := localstore.NewVault(cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}
	db, err := localstore.OpenState(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init state db: %w", err)
	}
	defer db.Close()

	store := localstore.NewStore(vault, db)

	// Remote client factories, one per consumer interface.
	baseURL := cfg.GitHub.APIBaseURL
	coord := gitsync.NewCoordinator(func(token string) (gitsync.RemoteStore, error) {
		return remote.NewClient(token, baseURL, logger)
	}, logger)
	analyzer := classify.NewAnalyzer(func(token string) (classify.Inspector, error) {
		return remote.NewClient(token, baseURL, logger)
	}, logger)
	browsers := func(token string) (journal.RepoBrowser, error) {
		return remote.NewClient(token, baseURL, logger)
	}

	// SSE broker.
	broker := sse.NewBroker()
	defer broker.Close()

	svc := journal.NewService(store, coord, analyzer, browsers, logger,
		journal.WithEvents(broker),
		journal.WithPushDelay(cfg.Sync.PushDebounce()),
	)
	if err := svc.Startup(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer svc.FlushPendingPushes()

	if app.mcpMode {
		logger.Info("Starting MCP server on stdio")
		return mcpserver.New(svc).ServeStdio()
	}

	// Build API router.
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start vault watcher with SSE callback so out-of-band edits show
	// up live.
	g.Go(func() error {
		if err := localstore.Watch(gCtx, store, logger, func(kind, name string) {
			broker.FileChanged(kind, name)
		}); err != nil {
			logger.Warn("vault watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
