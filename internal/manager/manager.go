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

// Package manager is the memoizing facade in front of the resolver: repeated
// calls inside a short freshness window reuse the last resolution instead of
// re-running the fallback chain. Constructed once at application start and
// handed to consumers explicitly; there is no package-level instance.
package manager

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openfav/sessiond/internal/audit"
	"github.com/openfav/sessiond/internal/observability/logger"
	"github.com/openfav/sessiond/internal/resolver"
	"github.com/openfav/sessiond/internal/session"
	"github.com/openfav/sessiond/internal/store"
)

// SessionResolver is the resolver surface the manager needs.
type SessionResolver interface {
	Resolve(ctx context.Context) (*session.Session, resolver.Source)
}

// entry is the memoized resolution: a copy of the last known session plus the
// instant it was produced. It is never an alternate source of truth, only a
// guard against redundant resolver invocations.
type entry struct {
	session   *session.Session
	timestamp time.Time
}

// Config holds manager construction parameters.
type Config struct {
	Resolver SessionResolver
	Store    *store.Store
	Cache    resolver.CacheClient
	Identity resolver.IdentityStore
	Audit    audit.Logger

	// Window bounds how long a memoized session may be reused without
	// re-resolving. Default: 5m.
	Window time.Duration

	// CacheTTL is the expiry handed to the cache service by CreateSession.
	// Default: 1h.
	CacheTTL time.Duration
}

// Manager exposes the session lifecycle operations.
type Manager struct {
	resolver SessionResolver
	store    *store.Store
	cache    resolver.CacheClient
	identity resolver.IdentityStore
	audit    audit.Logger
	window   time.Duration
	cacheTTL time.Duration

	now func() time.Time

	mu     sync.Mutex
	cached *entry
}

// New creates a manager.
func New(cfg Config) *Manager {
	window := cfg.Window
	if window <= 0 {
		window = 5 * time.Minute
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	auditLogger := cfg.Audit
	if auditLogger == nil {
		auditLogger = audit.NewSlogLogger()
	}
	return &Manager{
		resolver: cfg.Resolver,
		store:    cfg.Store,
		cache:    cfg.Cache,
		identity: cfg.Identity,
		audit:    auditLogger,
		window:   window,
		cacheTTL: ttl,
		now:      time.Now,
	}
}

// GetCompleteSession returns the current session, reusing the memoized entry
// when it is both inside the freshness window and temporally valid. On an
// empty resolution caused by source failures, a previously memoized session
// is served instead: degraded availability over correctness. Callers that
// need a definitive sign-out go through InvalidateSession.
func (m *Manager) GetCompleteSession(ctx context.Context) *session.Session {
	now := m.now()

	m.mu.Lock()
	if m.cached != nil && m.cached.session != nil && m.cached.session.Expired(now) {
		// Memoization freshness must never outlive token validity.
		m.cached = nil
	}
	if m.cached != nil && m.cached.session != nil && now.Sub(m.cached.timestamp) < m.window {
		s := m.cached.session.Clone()
		m.mu.Unlock()
		return s
	}
	previous := m.cached
	m.mu.Unlock()

	resolved, src := m.resolver.Resolve(ctx)

	if src == resolver.SourceEmpty && previous != nil && previous.session != nil {
		// The chain fell all the way through, which only happens on source
		// failures. Keep the stale entry instead of clobbering it; it stays
		// stale, so the next call re-resolves.
		m.audit.Log(ctx, audit.Event{
			Type:   audit.TypeSessionDegraded,
			UserID: previous.session.ID,
		})
		return previous.session.Clone()
	}

	m.mu.Lock()
	m.cached = &entry{session: resolved.Clone(), timestamp: m.now()}
	m.mu.Unlock()
	return resolved
}

// InvalidateSession clears the memoized entry, the local store, the cache
// service entry and the durable local id. Idempotent; remote failures are
// logged and returned for observability but never block the local clears.
func (m *Manager) InvalidateSession(ctx context.Context) error {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()

	userID := ""
	if current := m.store.Get(); current != nil {
		userID = current.ID
	}
	if userID == "" {
		userID = m.identity.UserID()
	}

	m.store.Set(session.Empty())

	var firstErr error
	if userID != "" {
		if err := m.cache.Delete(ctx, userID); err != nil {
			slog.WarnContext(ctx, "failed to delete cache service entry",
				logger.Component("manager"), logger.UserID(userID), logger.Error(err))
			firstErr = err
		}
	}
	if err := m.identity.Clear(); err != nil {
		slog.WarnContext(ctx, "failed to clear persisted user id",
			logger.Component("manager"), logger.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	m.audit.Log(ctx, audit.Event{Type: audit.TypeSessionInvalidated, UserID: userID})
	return firstErr
}

// CreateSession materializes a cache service entry for the current user,
// resolving through the backend path first when the store holds nothing
// usable. Returns whether the remote write succeeded.
func (m *Manager) CreateSession(ctx context.Context) bool {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()

	now := m.now()
	current := m.store.Get()
	if !current.Valid(now) {
		current, _ = m.resolver.Resolve(ctx)
	}
	if !current.IsAuthenticated {
		return false
	}

	if err := m.cache.Set(ctx, current.ID, current, m.cacheTTL); err != nil {
		slog.WarnContext(ctx, "failed to create cache service entry",
			logger.Component("manager"), logger.UserID(current.ID), logger.Error(err))
		return false
	}

	m.mu.Lock()
	m.cached = &entry{session: current.Clone(), timestamp: m.now()}
	m.mu.Unlock()

	m.audit.Log(ctx, audit.Event{Type: audit.TypeSessionCreated, UserID: current.ID})
	return true
}

// RefreshSession drops the memoized entry and re-resolves unconditionally.
func (m *Manager) RefreshSession(ctx context.Context) *session.Session {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()

	s := m.GetCompleteSession(ctx)
	m.audit.Log(ctx, audit.Event{Type: audit.TypeSessionRefreshed, UserID: s.ID})
	return s
}

// IsAuthenticated reports the local store's current flag without forcing a
// resolution. Cheap, synchronous, may be stale.
func (m *Manager) IsAuthenticated() bool {
	return m.store.IsAuthenticated()
}
