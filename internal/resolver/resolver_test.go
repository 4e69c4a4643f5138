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

package resolver

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/openfav/sessiond/internal/session"
	"github.com/openfav/sessiond/internal/store"
)

// fakeCache is an in-memory CacheClient recording calls.
type fakeCache struct {
	mu      sync.Mutex
	session *session.Session
	getErr  error
	setErr  error

	gets    int
	sets    int
	deletes int
	lastKey string
	lastTTL time.Duration
}

func (f *fakeCache) Get(ctx context.Context, userID string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	f.lastKey = userID
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.session.Clone(), nil
}

func (f *fakeCache) Set(ctx context.Context, userID string, s *session.Session, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.lastKey = userID
	f.lastTTL = ttl
	if f.setErr != nil {
		return f.setErr
	}
	f.session = s.Clone()
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	f.session = nil
	return nil
}

func (f *fakeCache) counts() (gets, sets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets, f.sets
}

// fakeBackend is a scripted BackendClient.
type fakeBackend struct {
	session *session.Session
	err     error

	calls       int
	lastRefresh string
}

func (f *fakeBackend) RefreshSession(ctx context.Context, refreshToken string) (*session.Session, error) {
	f.calls++
	f.lastRefresh = refreshToken
	if f.err != nil {
		return nil, f.err
	}
	return f.session.Clone(), nil
}

// fakeIdentity is an in-memory IdentityStore.
type fakeIdentity struct {
	id string
}

func (f *fakeIdentity) UserID() string { return f.id }

func (f *fakeIdentity) SetUserID(id string) error { f.id = id; return nil }

func (f *fakeIdentity) Clear() error { f.id = ""; return nil }

func fixedNow() time.Time {
	return time.Unix(1_700_000_000, 0)
}

func validSession(id string, now time.Time) *session.Session {
	return &session.Session{
		ID:              id,
		Email:           id + "@example.com",
		IsAuthenticated: true,
		Provider:        "email",
		Tokens: session.Tokens{
			AccessToken:  "access-" + id,
			RefreshToken: "refresh-" + id,
			ExpiresAt:    now.Add(time.Hour).Unix(),
		},
		Metadata: session.Metadata{Provider: "email"},
	}
}

func expiredSession(id string, now time.Time) *session.Session {
	s := validSession(id, now)
	s.Tokens.ExpiresAt = now.Add(-time.Hour).Unix()
	s.IsAuthenticated = false
	return s
}

func newResolver(st *store.Store, cache *fakeCache, backend *fakeBackend, identity *fakeIdentity) *Resolver {
	r := New(Config{Store: st, Cache: cache, Backend: backend, Identity: identity, CacheTTL: 30 * time.Minute})
	r.now = fixedNow
	return r
}

// TestPurpose: Validates the store short-circuit: a valid, unexpired store session is returned untouched with zero network calls.
// Scope: Unit Test
// Expected: Source is the store; cache and backend are never consulted.
// Test Case ID: RES-01
func TestResolver_StoreHit_NoNetworkCalls(t *testing.T) {
	now := fixedNow()
	st := store.New()
	st.Set(validSession("u1", now))
	cache := &fakeCache{}
	backend := &fakeBackend{}
	r := newResolver(st, cache, backend, &fakeIdentity{})

	got, src := r.Resolve(context.Background())

	if src != SourceStore {
		t.Fatalf("expected store source, got %s", src)
	}
	if got.ID != "u1" || !got.IsAuthenticated {
		t.Errorf("unexpected session: %+v", got)
	}
	if gets, _ := cache.counts(); gets != 0 {
		t.Errorf("expected zero cache calls, got %d", gets)
	}
	if backend.calls != 0 {
		t.Errorf("expected zero backend calls, got %d", backend.calls)
	}
}

// TestPurpose: Validates fallback ordering: with an expired store session, a valid cache entry and a healthy backend, the cache wins and the backend is not invoked.
// Scope: Unit Test
// Expected: Cache-derived session adopted into the store; zero backend calls.
// Test Case ID: RES-02
func TestResolver_FallbackOrdering_CacheBeforeBackend(t *testing.T) {
	now := fixedNow()
	st := store.New()
	st.Set(expiredSession("u1", now))
	cache := &fakeCache{session: validSession("u1", now)}
	backend := &fakeBackend{session: validSession("u1", now)}
	r := newResolver(st, cache, backend, &fakeIdentity{})

	got, src := r.Resolve(context.Background())

	if src != SourceCache {
		t.Fatalf("expected cache source, got %s", src)
	}
	if backend.calls != 0 {
		t.Errorf("backend must not be invoked when the cache holds a valid session, got %d calls", backend.calls)
	}
	if cache.lastKey != "u1" {
		t.Errorf("expected cache lookup keyed by the stale store id, got %q", cache.lastKey)
	}
	if st.Get().Tokens.AccessToken != got.Tokens.AccessToken {
		t.Error("cache-derived session must be written into the store")
	}
}

// TestPurpose: Validates the cold-start path: with an empty store, the durably persisted user id seeds the cache lookup.
// Scope: Unit Test
// Expected: Cache queried with the persisted id; its session adopted.
func TestResolver_ColdStart_UsesPersistedID(t *testing.T) {
	now := fixedNow()
	st := store.New()
	cache := &fakeCache{session: validSession("u7", now)}
	backend := &fakeBackend{}
	r := newResolver(st, cache, backend, &fakeIdentity{id: "u7"})

	got, src := r.Resolve(context.Background())

	if src != SourceCache || got.ID != "u7" {
		t.Fatalf("expected cache hit for u7, got %s / %+v", src, got)
	}
	if cache.lastKey != "u7" {
		t.Errorf("expected lookup keyed by persisted id, got %q", cache.lastKey)
	}
}

// TestPurpose: Validates the backend refresh rung: cache 404 then backend success adopts the fresh session, persists the user id, and pushes the session to the cache without blocking.
// Scope: Unit Test
// Expected: Final session is authenticated u1; store and cache both receive the write; persisted id updated.
// Test Case ID: RES-03
func TestResolver_BackendRefresh_ScenarioA(t *testing.T) {
	now := fixedNow()
	st := store.New()
	st.Set(session.Empty())
	cache := &fakeCache{} // empty: Get returns (nil, nil), a plain miss
	backend := &fakeBackend{session: validSession("u1", now)}
	identity := &fakeIdentity{}
	r := newResolver(st, cache, backend, identity)

	got, src := r.Resolve(context.Background())
	r.Drain()

	if src != SourceBackend {
		t.Fatalf("expected backend source, got %s", src)
	}
	if got.ID != "u1" || !got.IsAuthenticated {
		t.Errorf("unexpected session: %+v", got)
	}
	if st.Get().ID != "u1" {
		t.Error("fresh session must be written into the store")
	}
	if identity.id != "u1" {
		t.Errorf("expected persisted user id u1, got %q", identity.id)
	}
	if _, sets := cache.counts(); sets != 1 {
		t.Errorf("expected one detached cache write, got %d", sets)
	}
	if cache.lastTTL != 30*time.Minute {
		t.Errorf("expected configured cache TTL, got %v", cache.lastTTL)
	}
}

// TestPurpose: Validates that a stale refresh token from the expired store session is presented to the backend.
// Scope: Unit Test
// Expected: RefreshSession receives the stale session's refresh token.
func TestResolver_BackendRefresh_UsesStaleRefreshToken(t *testing.T) {
	now := fixedNow()
	st := store.New()
	st.Set(expiredSession("u1", now))
	cache := &fakeCache{getErr: session.ErrCacheUnavailable}
	backend := &fakeBackend{session: validSession("u1", now)}
	r := newResolver(st, cache, backend, &fakeIdentity{})

	_, src := r.Resolve(context.Background())
	r.Drain()

	if src != SourceBackend {
		t.Fatalf("expected backend source, got %s", src)
	}
	if backend.lastRefresh != "refresh-u1" {
		t.Errorf("expected stale refresh token, got %q", backend.lastRefresh)
	}
}

// TestPurpose: Validates full degradation: expired store, malformed cache answer, backend error yield the empty session, also written to the store.
// Scope: Unit Test
// Expected: Empty session returned; store left consistent with it.
// Test Case ID: RES-04
func TestResolver_FullFallback_ScenarioC(t *testing.T) {
	now := fixedNow()
	st := store.New()
	st.Set(expiredSession("u1", now))
	cache := &fakeCache{getErr: session.ErrMalformedPayload}
	backend := &fakeBackend{err: session.ErrBackendAuthFailed}
	r := newResolver(st, cache, backend, &fakeIdentity{})

	got, src := r.Resolve(context.Background())

	if src != SourceEmpty {
		t.Fatalf("expected empty source, got %s", src)
	}
	if got.ID != "" || got.IsAuthenticated || got.Tokens.ExpiresAt != 0 {
		t.Errorf("expected canonical empty session, got %+v", got)
	}
	stored := st.Get()
	if stored == nil || stored.ID != "" || stored.IsAuthenticated {
		t.Errorf("store must hold the empty session after full fallback, got %+v", stored)
	}
}

// TestPurpose: Validates idempotence: two immediate resolutions with no state change yield structurally equal sessions.
// Scope: Unit Test
// Expected: Deep-equal results; the second resolution is served by the store.
// Test Case ID: RES-05
func TestResolver_Idempotence(t *testing.T) {
	now := fixedNow()
	st := store.New()
	cache := &fakeCache{}
	backend := &fakeBackend{session: validSession("u1", now)}
	r := newResolver(st, cache, backend, &fakeIdentity{})

	first, firstSrc := r.Resolve(context.Background())
	second, secondSrc := r.Resolve(context.Background())
	r.Drain()

	if !reflect.DeepEqual(first, second) {
		t.Errorf("resolutions differ:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if firstSrc != SourceBackend || secondSrc != SourceStore {
		t.Errorf("expected backend then store, got %s then %s", firstSrc, secondSrc)
	}
	if backend.calls != 1 {
		t.Errorf("expected a single backend call, got %d", backend.calls)
	}
}

// TestPurpose: Validates that an expired session from the cache is equivalent to a miss and advances the chain.
// Scope: Unit Test
// Expected: Backend consulted after the cache returns a temporally expired session.
func TestResolver_ExpiredCacheEntry_AdvancesChain(t *testing.T) {
	now := fixedNow()
	st := store.New()
	st.Set(expiredSession("u1", now))
	cache := &fakeCache{session: expiredSession("u1", now)}
	backend := &fakeBackend{session: validSession("u1", now)}
	r := newResolver(st, cache, backend, &fakeIdentity{})

	_, src := r.Resolve(context.Background())
	r.Drain()

	if src != SourceBackend {
		t.Fatalf("expected backend source, got %s", src)
	}
	if backend.calls != 1 {
		t.Errorf("expected one backend call, got %d", backend.calls)
	}
}

// TestPurpose: Validates that a failed detached cache write is swallowed and does not affect the resolution.
// Scope: Unit Test
// Expected: Resolution succeeds from the backend even when the cache rejects the write.
func TestResolver_DetachedCacheWriteFailure_Ignored(t *testing.T) {
	now := fixedNow()
	st := store.New()
	cache := &fakeCache{setErr: session.ErrCacheUnavailable}
	backend := &fakeBackend{session: validSession("u1", now)}
	r := newResolver(st, cache, backend, &fakeIdentity{})

	got, src := r.Resolve(context.Background())
	r.Drain()

	if src != SourceBackend || got.ID != "u1" {
		t.Fatalf("expected backend resolution, got %s / %+v", src, got)
	}
}
