// CourseForge - course material generation backend
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

	"github.com/courseforge/backend/internal/api"
	"github.com/courseforge/backend/internal/config"
	"github.com/courseforge/backend/internal/content"
	"github.com/courseforge/backend/internal/generation"
	"github.com/courseforge/backend/internal/middleware"
	"github.com/courseforge/backend/internal/progress"
	"github.com/courseforge/backend/internal/session"
	"github.com/courseforge/backend/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
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

	for _, dir := range []string{cfg.OutputDir, cfg.UploadDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create data directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	// Server lifetime context: background runs and the cleanup worker stop
	// at their next checkpoint when this is cancelled.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize services.
	tracker := session.NewTracker()
	mgr := session.NewManager(repo, cfg.OutputDir, cfg.UploadDir, tracker)
	plog := progress.NewLog(repo)

	// External generation service (optional). Without it, ingestion and
	// planning fall back to documented defaults and jobs cannot run against
	// a real model backend.
	var ingestor generation.Ingestor
	var planner generation.Planner
	var generator generation.Generator
	if cfg.Generator.BaseURL != "" {
		client := content.NewClient(content.ClientConfig{
			BaseURL:        cfg.Generator.BaseURL,
			RequestTimeout: cfg.Generator.RequestTimeout,
			WeeksPerModule: cfg.WeeksPerModule,
		}, logger)
		ingestor = client
		planner = client
		generator = client
		slog.Info("Generation service configured", "url", cfg.Generator.BaseURL)
	} else {
		generator = content.NewEchoGenerator()
		slog.Info("No generation service configured, using local echo generator")
	}

	ctrl := generation.NewController(ctx, repo, plog, generator, content.NewFileExporter(), cfg.OutputDir)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo)
	healthHandler := api.NewHealthHandler(repo, cfg)
	sessionHandler := api.NewSessionHandler(baseHandler, mgr, ingestor, planner, cfg.UploadDir, cfg.OutputDir, cfg.WeeksPerModule)
	generationHandler := api.NewGenerationHandler(baseHandler, ctrl, plog, tracker)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	allowedOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		allowedOrigins = []string{cfg.FrontendURL}
	}
	r.Use(middleware.CORS(middleware.CORSOptions{AllowedOrigins: allowedOrigins}))

	healthHandler.RegisterHealth(r)
	sessionHandler.RegisterRoutes(r)
	generationHandler.RegisterRoutes(r)

	// WebSocket progress feed.
	r.Get("/ws/progress", generationHandler.ServeWS)

	// Create server.
	// Note: SSE connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start cleanup worker.
	session.StartCleanupWorker(ctx, mgr, cfg.CleanupEvery, cfg.SessionTTL)
	slog.Info("Cleanup worker started", "interval", cfg.CleanupEvery, "session_ttl", cfg.SessionTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
