// Copyright 2026 The OpenFav Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/openfav/sessiond/internal/audit"
	"github.com/openfav/sessiond/internal/cacheserver"
	"github.com/openfav/sessiond/internal/cacheserver/pgstore"
	"github.com/openfav/sessiond/internal/cacheserver/redisstore"
	"github.com/openfav/sessiond/internal/config"
	"github.com/openfav/sessiond/internal/observability/logger"
	"github.com/openfav/sessiond/internal/observability/metrics"
	"github.com/openfav/sessiond/internal/observability/tracing"
	"github.com/openfav/sessiond/internal/transport/ratelimit"
)

func main() {
	// Best effort: absent .env is fine
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateCacheStore(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: "cached",
	})
	slog.Info("starting openfav session cache service")

	// Phase: CLI Commands
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Initialize context
	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    "cached",
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter
	_, err = metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, "cached")
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	// Initialize store
	store, err := newStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize cache store", logger.Error(err))
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("cache store ready", logger.CacheBackend(cfg.CacheStore.Backend))

	// Initialize HTTP handler
	auditLogger := audit.NewSlogLogger()
	handler := cacheserver.NewHandler(store, cfg.CacheStore.AuthToken, auditLogger)
	limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	router := cacheserver.NewRouter(handler, limiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start expired entry cleanup goroutine
	go func() {
		ticker := time.NewTicker(cfg.CacheStore.CleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			if err := store.DeleteExpired(ctx); err != nil {
				slog.ErrorContext(ctx, "failed to cleanup expired sessions", logger.Error(err))
			}
		}
	}()

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

// newStore selects and connects the configured storage backend.
func newStore(ctx context.Context, cfg *config.Config) (cacheserver.Store, error) {
	switch cfg.CacheStore.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.CacheStore.RedisAddr,
			Password: cfg.CacheStore.RedisPassword,
			DB:       cfg.CacheStore.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return redisstore.New(redisstore.Config{
			Client:    client,
			KeyPrefix: cfg.CacheStore.RedisKeyPrefix,
		})
	case "postgres":
		return pgstore.New(ctx, pgConfig(cfg))
	default:
		return cacheserver.NewMemStore(), nil
	}
}

func pgConfig(cfg *config.Config) pgstore.Config {
	return pgstore.Config{
		Host:         cfg.CacheStore.DBHost,
		Port:         cfg.CacheStore.DBPort,
		User:         cfg.CacheStore.DBUser,
		Password:     cfg.CacheStore.DBPassword,
		Database:     cfg.CacheStore.DBName,
		SSLMode:      cfg.CacheStore.DBSSLMode,
		MaxOpenConns: cfg.CacheStore.DBMaxConns,
		MaxIdleConns: cfg.CacheStore.DBMinConns,
	}
}

func runMigrate(cfg *config.Config) error {
	if cfg.CacheStore.Backend != "postgres" {
		return fmt.Errorf("migrate applies to the postgres backend, got %q", cfg.CacheStore.Backend)
	}

	ctx := context.Background()
	store, err := pgstore.New(ctx, pgConfig(cfg))
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Println("Applying session cache schema...")
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}
