package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/notes-bin/photoleader/internal/api"
	"github.com/notes-bin/photoleader/internal/cache"
	"github.com/notes-bin/photoleader/internal/config"
	"github.com/notes-bin/photoleader/internal/service"
	"github.com/notes-bin/photoleader/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load("config/config.json")
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := store.Connect(ctx, cfg.MongoURI, cfg.Database, cfg.FallbackPrimary)
	if err != nil {
		slog.Error("Failed to connect to replica set", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			slog.Error("Store disconnect failed", "error", err)
		}
	}()

	snapshot := &cache.Status{}
	go snapshot.StartRefresh(ctx, client, cfg.StatusRefreshInterval)

	photos := service.NewPhotos(client, client)
	router := api.SetupRouter(cfg, photos, client, snapshot)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		slog.Info("Server starting on port", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}
