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

package system

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfav/sessiond/internal/audit"
	"github.com/openfav/sessiond/internal/backend"
	"github.com/openfav/sessiond/internal/cacheclient"
	"github.com/openfav/sessiond/internal/cacheserver"
	"github.com/openfav/sessiond/internal/identify"
	"github.com/openfav/sessiond/internal/manager"
	"github.com/openfav/sessiond/internal/resolver"
	"github.com/openfav/sessiond/internal/store"
	transportHTTP "github.com/openfav/sessiond/internal/transport/http"
	"github.com/openfav/sessiond/internal/transport/ratelimit"
)

const testAPIKey = "system-test-key"

// fakeBackend plays the identity backend over real HTTP.
type fakeBackend struct {
	allow  atomic.Bool
	calls  atomic.Int64
	userID string
}

func (f *fakeBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)

		if r.Header.Get("apikey") != testAPIKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !f.allow.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		expires := time.Now().Add(time.Hour).Unix()
		fmt.Fprintf(w, `{
			"access_token": "backend-access",
			"refresh_token": "backend-refresh",
			"expires_at": %d,
			"user": {
				"id": %q,
				"email": "ada@example.com",
				"app_metadata": {"provider": "github"},
				"user_metadata": {"full_name": "Ada Lovelace", "user_name": "ada"}
			}
		}`, expires, f.userID)
	})
}

// stack wires every real component over loopback HTTP: the cache service on
// a memory store, the resolver and manager, and the gateway router.
type stack struct {
	backend   *fakeBackend
	cacheSrv  *httptest.Server
	gateway   *httptest.Server
	resolver  *resolver.Resolver
	identity  *identify.Store
	statePath string
}

func newStack(t *testing.T, statePath string) *stack {
	t.Helper()

	fb := &fakeBackend{userID: "user-sys-1"}
	backendSrv := httptest.NewServer(fb.handler())
	t.Cleanup(backendSrv.Close)

	cacheHandler := cacheserver.NewHandler(cacheserver.NewMemStore(), "", audit.NewNopLogger())
	cacheSrv := httptest.NewServer(cacheserver.NewRouter(cacheHandler, ratelimit.New(1000, 1000)))
	t.Cleanup(cacheSrv.Close)

	identity := identify.New(statePath)
	require.NoError(t, identity.Load())

	sessionStore := store.New()
	cacheClient := cacheclient.New(cacheclient.Config{BaseURL: cacheSrv.URL})
	backendClient := backend.New(backend.Config{BaseURL: backendSrv.URL, APIKey: testAPIKey})

	res := resolver.New(resolver.Config{
		Store:    sessionStore,
		Cache:    cacheClient,
		Backend:  backendClient,
		Identity: identity,
	})

	mgr := manager.New(manager.Config{
		Resolver: res,
		Store:    sessionStore,
		Cache:    cacheClient,
		Identity: identity,
		Audit:    audit.NewNopLogger(),
		Window:   time.Minute,
	})

	gateway := httptest.NewServer(transportHTTP.NewRouter(transportHTTP.NewHandler(mgr), ratelimit.New(1000, 1000)))
	t.Cleanup(gateway.Close)

	return &stack{
		backend:   fb,
		cacheSrv:  cacheSrv,
		gateway:   gateway,
		resolver:  res,
		identity:  identity,
		statePath: statePath,
	}
}

func (s *stack) seedCache(t *testing.T, userID string) {
	t.Helper()

	session := fmt.Sprintf(`{
		"id": %q,
		"email": "ada@example.com",
		"fullName": "Ada Lovelace",
		"provider": "github",
		"tokens": {
			"accessToken": "cached-access",
			"refreshToken": "cached-refresh",
			"expiresAt": %d
		},
		"metadata": {"provider": "github"}
	}`, userID, time.Now().Add(time.Hour).Unix())

	body := fmt.Sprintf(`{"userId": %q, "session": %s, "expirySeconds": 3600}`, userID, session)
	resp, err := http.Post(s.cacheSrv.URL+"/set-session", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (s *stack) getSession(t *testing.T) map[string]any {
	t.Helper()

	resp, err := http.Get(s.gateway.URL + "/api/v1/session")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// TestPurpose: Verify a warm cache satisfies resolution across a restart
// without any backend traffic.
// Scope: System Test
// Expected: With the user id persisted from a prior run and the cache
// service holding the session, the gateway answers authenticated and the
// backend records zero calls.
// Test Case ID: SYS-01
func TestSystem_WarmCacheAcrossRestart(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "identify.json")

	// Prior run: persist the user id.
	prior := identify.New(statePath)
	require.NoError(t, prior.Load())
	require.NoError(t, prior.SetUserID("user-sys-1"))

	s := newStack(t, statePath)
	s.seedCache(t, "user-sys-1")

	got := s.getSession(t)
	assert.Equal(t, "user-sys-1", got["id"])
	assert.Equal(t, true, got["isAuthenticated"])
	assert.Equal(t, int64(0), s.backend.calls.Load())
}

// TestPurpose: Verify the backend rung repopulates both durable stores.
// Scope: System Test
// Expected: With an empty cache the gateway resolves through the backend,
// the user id lands in the state file, and the detached write makes the
// session readable from the cache service.
// Test Case ID: SYS-02
func TestSystem_BackendRefreshRepopulates(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "identify.json")
	s := newStack(t, statePath)
	s.backend.allow.Store(true)

	got := s.getSession(t)
	assert.Equal(t, "user-sys-1", got["id"])
	assert.Equal(t, true, got["isAuthenticated"])
	assert.GreaterOrEqual(t, s.backend.calls.Load(), int64(1))

	// The fire-and-forget cache write must land before we look.
	s.resolver.Drain()

	resp, err := http.Get(s.cacheSrv.URL + "/session/user-sys-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The user id survives a restart via the state file.
	reloaded := identify.New(statePath)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, "user-sys-1", reloaded.UserID())
}

// TestPurpose: Verify sign-out tears down every layer and the guard closes.
// Scope: System Test
// Expected: Invalidation answers 204, the cached entry is gone, the state
// file keeps its install id but loses the user id, and /api/v1/me flips from
// 200 to the uniform 401.
// Test Case ID: SYS-03
func TestSystem_InvalidationTearsDownAllLayers(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "identify.json")
	s := newStack(t, statePath)
	s.backend.allow.Store(true)

	// Establish the session and confirm the guard admits it.
	_ = s.getSession(t)
	s.resolver.Drain()

	resp, err := http.Get(s.gateway.URL + "/api/v1/me")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	installID := s.identity.InstallID()
	require.NotEmpty(t, installID)

	// Sign out. The backend must not resurrect the session afterwards.
	s.backend.allow.Store(false)

	resp, err = http.Post(s.gateway.URL+"/api/v1/session/invalidate", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(s.cacheSrv.URL + "/session/user-sys-1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	reloaded := identify.New(statePath)
	require.NoError(t, reloaded.Load())
	assert.Empty(t, reloaded.UserID())
	assert.Equal(t, installID, reloaded.InstallID())

	resp, err = http.Get(s.gateway.URL + "/api/v1/me")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "please sign in to continue", body["error"])
}
