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

package cacheserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/openfav/sessiond/internal/audit"
	"github.com/openfav/sessiond/internal/observability/logger"
	"github.com/openfav/sessiond/internal/transport/ratelimit"
)

// DefaultTTL applies when a write carries no explicit expiry.
const DefaultTTL = time.Hour

// Handler serves the cache service HTTP API.
type Handler struct {
	store       Store
	authToken   string
	auditLogger audit.Logger
}

// NewHandler creates a cache service handler. An empty authToken disables
// bearer authentication.
func NewHandler(store Store, authToken string, auditLogger audit.Logger) *Handler {
	return &Handler{
		store:       store,
		authToken:   authToken,
		auditLogger: auditLogger,
	}
}

// NewRouter creates the cache service router.
func NewRouter(h *Handler, limiter *ratelimit.Limiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(ratelimit.Middleware(limiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "cache_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", h.HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Get("/session/{id}", h.GetSession)
		r.Post("/set-session", h.SetSession)
		r.Delete("/session/{id}", h.DeleteSession)
	})

	return r
}

// AuthMiddleware enforces the shared bearer token when one is configured.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.authToken != "" {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token != h.authToken {
				respondError(w, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "cached",
	})
}

// GetSession returns the cached session for a user id, or 404 when the entry
// is absent or expired.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	payload, err := h.store.Get(r.Context(), userID)
	if err != nil {
		if err == ErrNotFound {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		slog.ErrorContext(r.Context(), "cache read failed",
			logger.Error(err),
			logger.CacheKey(userID),
		)
		respondError(w, http.StatusInternalServerError, "failed to read session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]json.RawMessage{
		"session": payload,
	})
}

// SetSessionRequest is the write envelope.
type SetSessionRequest struct {
	UserID        string          `json:"userId"`
	Session       json.RawMessage `json:"session"`
	ExpirySeconds int64           `json:"expirySeconds"`
}

// SetSession stores a session payload under a user id.
func (h *Handler) SetSession(w http.ResponseWriter, r *http.Request) {
	var req SetSessionRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if len(req.Session) == 0 || string(req.Session) == "null" {
		respondError(w, http.StatusBadRequest, "session is required")
		return
	}

	ttl := DefaultTTL
	if req.ExpirySeconds > 0 {
		ttl = time.Duration(req.ExpirySeconds) * time.Second
	}

	if err := h.store.Set(r.Context(), req.UserID, req.Session, ttl); err != nil {
		slog.ErrorContext(r.Context(), "cache write failed",
			logger.Error(err),
			logger.CacheKey(req.UserID),
			logger.TTLSeconds(int64(ttl.Seconds())),
		)
		respondJSON(w, http.StatusInternalServerError, map[string]bool{"success": false})
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DeleteSession evicts the cached session for a user id. Deleting an absent
// entry still succeeds.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	if err := h.store.Delete(r.Context(), userID); err != nil {
		slog.ErrorContext(r.Context(), "cache delete failed",
			logger.Error(err),
			logger.CacheKey(userID),
		)
		respondJSON(w, http.StatusInternalServerError, map[string]bool{"success": false})
		return
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:   audit.TypeCacheEvicted,
		UserID: userID,
	})

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// requestLogger logs each request with its status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.InfoContext(r.Context(), "cache_request",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.StatusCode(ww.Status()),
				logger.Duration(time.Since(start).Milliseconds()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
