// zapbridge - chat-relay middleware between a messaging channel and a
// remote dialogue-flow service.
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
	"github.com/pbarbosa/zapbridge/internal/api"
	"github.com/pbarbosa/zapbridge/internal/channel"
	"github.com/pbarbosa/zapbridge/internal/config"
	"github.com/pbarbosa/zapbridge/internal/flow"
	"github.com/pbarbosa/zapbridge/internal/pipeline"
	"github.com/pbarbosa/zapbridge/internal/state"
	"github.com/pbarbosa/zapbridge/internal/store"
	"github.com/pbarbosa/zapbridge/internal/userlock"
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

	slog.Info("Starting server", "port", cfg.Port, "store_driver", cfg.StoreDriver)

	// Initialize dependencies.
	var repo store.Repository
	switch cfg.StoreDriver {
	case config.DriverRedis:
		repo, err = store.NewRedis(cfg.RedisAddr)
	default:
		repo, err = store.NewSQLite(cfg.DBPath)
	}
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Store connected")

	// Initialize services.
	stateStore := state.New(repo, cfg.StateTTL)
	if err := stateStore.LoadPersisted(context.Background()); err != nil {
		slog.Error("Failed to load persisted state", "error", err)
		os.Exit(1)
	}

	dialogue := flow.NewClient(flow.ClientConfig{
		BaseURL: cfg.FlowBaseURL,
		Token:   cfg.FlowAPIToken,
	})
	resolver := flow.NewResolver(stateStore, dialogue, cfg.DefaultFlowID, logger)
	pipe := pipeline.New(userlock.New(), stateStore, resolver, nil, logger)

	// Initialize handlers.
	webhookHandler := api.NewWebhookHandler(pipe)
	healthHandler := api.NewHealthHandler(repo)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	healthHandler.RegisterRoutes(r)
	webhookHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start state sweeper.
	stateStore.StartSweeper(ctx, cfg.SweepInterval)

	// Start socket channel adapter when a gateway is configured.
	if cfg.ChannelSocketURL != "" {
		socket := channel.NewSocketClient(cfg.ChannelSocketURL, pipe, logger)
		go func() {
			if err := socket.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Channel socket stopped", "error", err)
			}
		}()
		slog.Info("Channel socket adapter started", "url", cfg.ChannelSocketURL)
	}

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
