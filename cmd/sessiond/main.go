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

	"github.com/openfav/sessiond/internal/audit"
	"github.com/openfav/sessiond/internal/backend"
	"github.com/openfav/sessiond/internal/cacheclient"
	"github.com/openfav/sessiond/internal/config"
	"github.com/openfav/sessiond/internal/identify"
	"github.com/openfav/sessiond/internal/manager"
	"github.com/openfav/sessiond/internal/observability/logger"
	"github.com/openfav/sessiond/internal/observability/metrics"
	"github.com/openfav/sessiond/internal/observability/tracing"
	"github.com/openfav/sessiond/internal/resolver"
	"github.com/openfav/sessiond/internal/store"
	transportHTTP "github.com/openfav/sessiond/internal/transport/http"
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
	if err := cfg.ValidateGateway(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Durable local identification, loaded before the logger so every
	// record carries the install id
	identity := identify.New(cfg.Identify.StatePath)
	if err := identity.Load(); err != nil {
		fmt.Printf("Failed to load identity state: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
		InstallID:   identity.InstallID(),
	})
	slog.Info("starting openfav session gateway")

	// Initialize context
	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
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
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	// Initialize clients
	cacheClient := cacheclient.New(cacheclient.Config{
		BaseURL: cfg.CacheService.URL,
		Token:   cfg.CacheService.Token,
		Timeout: cfg.CacheService.Timeout,
	})
	backendClient := backend.New(backend.Config{
		BaseURL: cfg.Backend.URL,
		APIKey:  cfg.Backend.APIKey,
		Timeout: cfg.Backend.Timeout,
	})

	// Initialize session state and services
	sessionStore := store.New()
	auditLogger := audit.NewSlogLogger()

	sessionResolver := resolver.New(resolver.Config{
		Store:    sessionStore,
		Cache:    cacheClient,
		Backend:  backendClient,
		Identity: identity,
		CacheTTL: cfg.Session.CacheTTL,
	})

	sessionManager := manager.New(manager.Config{
		Resolver: sessionResolver,
		Store:    sessionStore,
		Cache:    cacheClient,
		Identity: identity,
		Audit:    auditLogger,
		Window:   cfg.Session.FreshnessWindow,
		CacheTTL: cfg.Session.CacheTTL,
	})

	// Rate Limiter
	limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(sessionManager)

	// Create router
	router := transportHTTP.NewRouter(handler, limiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

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

	// Let in-flight detached cache writes finish
	sessionResolver.Drain()

	slog.Info("server stopped")
}
