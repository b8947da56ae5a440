// cmd/lulinksd/main.go
// Package main implements the entry point for the lulinks API.
// It initializes all components and starts the HTTP server.
package main

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

	"github.com/julioonmartinez/lulinks-api/internal/config"
	"github.com/julioonmartinez/lulinks-api/internal/event"
	"github.com/julioonmartinez/lulinks-api/internal/jwks"
	"github.com/julioonmartinez/lulinks-api/internal/server"
	"github.com/julioonmartinez/lulinks-api/internal/statistics"
	"github.com/julioonmartinez/lulinks-api/internal/storage"
	"github.com/julioonmartinez/lulinks-api/internal/telemetry"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("lulinksd exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if _, err := telemetry.InitTracer(os.Stdout, version, cfg.IsDevelopment()); err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.ShutdownTracer(ctx)
	}()

	// Documents: PostgreSQL when configured, memory otherwise
	var store storage.Store
	if cfg.DatabaseDSN != "" {
		pg, err := storage.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("failed to initialize postgres storage: %w", err)
		}
		defer pg.Close()
		store = pg
		logger.Info("using postgres document store")
	} else {
		store = storage.NewMemory()
		logger.Warn("no database configured, documents are kept in memory")
	}

	// Statistics: Redis when configured, the document store otherwise
	var statsStore storage.StatisticsStore
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rs, err := storage.NewRedisStatistics(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to initialize redis statistics: %w", err)
		}
		defer rs.Close()
		statsStore = rs
		logger.Info("using redis statistics store")
	} else {
		ss, ok := store.(storage.StatisticsStore)
		if !ok {
			return fmt.Errorf("document store does not keep statistics and no redis is configured")
		}
		statsStore = ss
	}

	pub := event.NewPublisher(cfg.NATSURL)
	defer pub.Close()

	verifier := jwks.NewClient(cfg.AuthJWKSURL, cfg.AuthIssuer, cfg.AuthAudience, jwks.WithTTL(cfg.JWKSCacheTTL))

	handler, err := server.NewRouter(server.Deps{
		Store:      store,
		Statistics: statistics.NewAggregator(statsStore, pub),
		Verifier:   verifier,
		Publisher:  pub,
	}, server.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		StatsRateLimit: cfg.StatsRateLimit,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", addr, "env", cfg.Env, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("server exited")
	return nil
}
