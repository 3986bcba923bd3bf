package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"progresskit/leaderboard"
)

func main() {
	ctx := context.Background()
	app, err := BuildApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	cfg := app.Config

	slog.Info("starting progresskit server",
		"environment", cfg.Environment,
		"profile", cfg.Profile,
		"address", cfg.Server.Address,
		"storage_adapter", cfg.Storage.Adapter)

	srv := app.Server

	// Periodic leaderboard recompute for the all-time window
	recomputeCtx, stopRecompute := context.WithCancel(ctx)
	defer stopRecompute()
	go runRecomputeLoop(recomputeCtx, app, cfg.Leaderboard.RecomputeInterval)

	// Start server in a goroutine
	go func() {
		slog.Info("server listening", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				return
			}
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)

	stopRecompute()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during server shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

// runRecomputeLoop refreshes the all-time leaderboard snapshot on a timer so
// readers always find a recent ranking even without explicit recompute calls.
func runRecomputeLoop(ctx context.Context, app *App, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			key := allTimeWindow()
			snap, err := app.Ranker.Recompute(ctx, key)
			if err != nil {
				slog.Error("leaderboard recompute failed", "window", key.String(), "error", err)
				continue
			}
			slog.Debug("leaderboard recomputed", "window", key.String(), "entries", len(snap.Rankings))
		}
	}
}

func allTimeWindow() leaderboard.WindowKey {
	return leaderboard.WindowKey{Type: leaderboard.WindowAllTime, Category: "overall"}
}
