package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Veraticus/spice-assign/internal/common"
	"github.com/Veraticus/spice-assign/internal/config"
	"github.com/Veraticus/spice-assign/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// loadedConfig returns the configuration read by the root command, or the
// defaults when a subcommand runs on its own.
func loadedConfig() *config.Config {
	if appConfig != nil {
		return appConfig
	}
	cfg := config.DefaultConfig()
	cfg.DatabasePath = config.ExpandPath(cfg.DatabasePath)
	return &cfg
}

// initStorage opens the ledger and brings its schema up to date.
func initStorage(ctx context.Context, cfg *config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return nil, common.NewUserError(
			fmt.Sprintf("Could not open the ledger at %s.", cfg.DatabasePath), err)
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// startMetricsServer exposes prometheus metrics on addr until the returned
// shutdown function is called. An empty addr disables the endpoint.
func startMetricsServer(addr string) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server stopped", "error", err)
		}
	}()
	slog.Info("Serving metrics", "addr", listener.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("Failed to stop metrics server", "error", err)
		}
	}, nil
}
