// AG-UI protocol runner server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/jwm4/ambient-runner/internal/api"
	"github.com/jwm4/ambient-runner/internal/claude"
	"github.com/jwm4/ambient-runner/internal/config"
	"github.com/jwm4/ambient-runner/internal/middleware"
	"github.com/jwm4/ambient-runner/internal/runner"
	"github.com/jwm4/ambient-runner/internal/session"
	"github.com/jwm4/ambient-runner/internal/store"
	"github.com/jwm4/ambient-runner/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	baseOpts := claude.Options{
		CLIPath:           cfg.CLIPath,
		Model:             cfg.Model,
		WorkDir:           cfg.WorkDir,
		SystemPrompt:      cfg.SystemPrompt,
		PermissionMode:    cfg.PermissionMode,
		AllowedTools:      cfg.AllowedTools,
		MaxThinkingTokens: cfg.MaxThinkingTokens,
	}

	manager := session.NewManager(claude.NewCLIClient, store.ThreadSessions{Repo: repo})
	svc := runner.New(manager, repo, baseOpts)

	// Initialize handlers.
	hub := api.NewHub()
	baseHandler := api.NewHandler(svc, repo, hub)
	healthHandler := api.NewHealthHandler(repo)
	eventsHandler := api.NewEventsHandler(hub, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	healthHandler.RegisterHealth(r)
	baseHandler.RegisterRoutes(r)

	// WebSocket live tail.
	r.Get("/agui/events", eventsHandler.ServeHTTP)

	// Serve embedded debug console (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// SSE run streams require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// Stop workers after the HTTP server stops accepting runs so their
	// resumption tokens get captured.
	svc.Shutdown(shutdownCtx)

	slog.Info("Server stopped successfully")
}
