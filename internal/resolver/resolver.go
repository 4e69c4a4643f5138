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

// Package resolver produces an up-to-date session from the cheapest valid
// source: local store, then cache service, then identity backend, then the
// empty session. Resolution never fails; every internal error becomes a
// fallback decision and is logged, not surfaced.
package resolver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openfav/sessiond/internal/observability/logger"
	"github.com/openfav/sessiond/internal/session"
	"github.com/openfav/sessiond/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Source names the fallback rung that produced a resolution.
type Source string

const (
	SourceStore   Source = "store"
	SourceCache   Source = "cache"
	SourceBackend Source = "backend"
	// SourceEmpty means the whole chain fell through. This is always
	// error-driven: the empty rung is only reached after the backend call
	// failed.
	SourceEmpty Source = "empty"
)

// CacheClient is the session cache service surface the resolver needs.
type CacheClient interface {
	Get(ctx context.Context, userID string) (*session.Session, error)
	Set(ctx context.Context, userID string, s *session.Session, ttl time.Duration) error
	Delete(ctx context.Context, userID string) error
}

// BackendClient is the identity backend surface the resolver needs.
type BackendClient interface {
	RefreshSession(ctx context.Context, refreshToken string) (*session.Session, error)
}

// IdentityStore is the durable local identification surface.
type IdentityStore interface {
	UserID() string
	SetUserID(id string) error
	Clear() error
}

// Resolver walks the fallback chain and keeps the local store consistent with
// whatever it returns.
type Resolver struct {
	store    *store.Store
	cache    CacheClient
	backend  BackendClient
	identity IdentityStore
	cacheTTL time.Duration

	now func() time.Time

	// pending tracks detached cache writes so shutdown can drain them.
	pending sync.WaitGroup

	resolutions metric.Int64Counter
}

// Config holds resolver construction parameters.
type Config struct {
	Store    *store.Store
	Cache    CacheClient
	Backend  BackendClient
	Identity IdentityStore

	// CacheTTL is the expiry handed to the cache service on writes.
	// Default: 1h.
	CacheTTL time.Duration
}

// New creates a resolver.
func New(cfg Config) *Resolver {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	resolutions, err := otel.Meter("sessiond/resolver").Int64Counter(
		"session_resolutions_total",
		metric.WithDescription("Session resolutions by producing source"),
	)
	if err != nil {
		slog.Warn("failed to create resolution counter", logger.Error(err))
	}

	return &Resolver{
		store:       cfg.Store,
		cache:       cfg.Cache,
		backend:     cfg.Backend,
		identity:    cfg.Identity,
		cacheTTL:    ttl,
		now:         time.Now,
		resolutions: resolutions,
	}
}

// Resolve walks the chain and returns the session plus the source that
// produced it. It never returns an error; the worst outcome is the empty
// session, which is also written to the store so subsequent reads agree with
// this resolution.
func (r *Resolver) Resolve(ctx context.Context) (*session.Session, Source) {
	s, src := r.resolve(ctx)
	r.count(ctx, src)
	return s, src
}

func (r *Resolver) resolve(ctx context.Context) (*session.Session, Source) {
	now := r.now()

	// Step 1: the store itself. Valid means authenticated with an unexpired
	// token; anything else is equivalent to absent for this step.
	current := r.store.Get()
	if current.Valid(now) {
		return current, SourceStore
	}

	// Step 2: the cache service, keyed by the stale store id or, on cold
	// start, the durably persisted one. An expired store session still gets
	// its cache lookup before the backend is bothered.
	userID := ""
	if current != nil {
		userID = current.ID
	}
	if userID == "" {
		userID = r.identity.UserID()
	}
	if userID != "" {
		cached, err := r.cache.Get(ctx, userID)
		switch {
		case err != nil:
			slog.DebugContext(ctx, "cache lookup failed, falling through to backend",
				logger.Component("resolver"), logger.UserID(userID), logger.Error(err))
		case cached.Valid(now):
			r.store.Set(cached)
			return cached, SourceCache
		case cached != nil:
			slog.DebugContext(ctx, "cached session expired, falling through to backend",
				logger.Component("resolver"), logger.UserID(userID))
		}
	}

	// Step 3: the identity backend.
	refreshToken := ""
	if current != nil {
		refreshToken = current.Tokens.RefreshToken
	}
	fresh, err := r.backend.RefreshSession(ctx, refreshToken)
	if err == nil {
		if err := r.identity.SetUserID(fresh.ID); err != nil {
			slog.WarnContext(ctx, "failed to persist user id",
				logger.Component("resolver"), logger.UserID(fresh.ID), logger.Error(err))
		}
		r.store.Set(fresh)
		if fresh.IsAuthenticated {
			r.writeCacheDetached(fresh)
		}
		return fresh, SourceBackend
	}
	slog.WarnContext(ctx, "backend refresh failed, degrading to empty session",
		logger.Component("resolver"), logger.Error(err))

	// Step 4: the canonical empty session.
	empty := session.Empty()
	r.store.Set(empty)
	return empty, SourceEmpty
}

// writeCacheDetached pushes a freshly refreshed session to the cache service
// without making the caller wait for it. Failures are logged only.
func (r *Resolver) writeCacheDetached(s *session.Session) {
	snapshot := s.Clone()
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.cache.Set(ctx, snapshot.ID, snapshot, r.cacheTTL); err != nil {
			slog.Warn("detached cache write failed",
				logger.Component("resolver"), logger.UserID(snapshot.ID), logger.Error(err))
		}
	}()
}

// Drain blocks until all detached cache writes have finished. Used by
// shutdown and by tests observing the fire-and-forget path.
func (r *Resolver) Drain() {
	r.pending.Wait()
}

func (r *Resolver) count(ctx context.Context, src Source) {
	if r.resolutions == nil {
		return
	}
	r.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(src))))
}
