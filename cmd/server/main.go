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

	"github.com/PRYePR/moreyudeals-sub000/internal/app"
	"github.com/PRYePR/moreyudeals-sub000/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(app.NewLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel))
	slog.Info("Starting deal ingestion server...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		slog.Error("Critical error opening store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}

	pipeline, err := app.New(ctx, cfg, store, nil)
	if err != nil {
		store.Close()
		slog.Error("Critical error building pipeline", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newServer(pipeline).routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	runDone := make(chan error, 1)
	go func() {
		err := pipeline.Run(ctx)
		if err != nil {
			stop()
		}
		runDone <- err
	}()

	go func() {
		<-ctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	slog.Info("Listening on port", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Failed to listen and serve", "error", err)
		stop()
	}

	if err := <-runDone; err != nil {
		slog.Error("Scheduler error", "error", err)
	}
	if err := pipeline.Close(); err != nil {
		slog.Error("Failed to close store", "error", err)
	}
	slog.Info("Server stopped.")
}
