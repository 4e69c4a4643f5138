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

// Package http exposes the session gateway API: session resolution,
// refresh, invalidation, and the navigation guard for protected routes.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/openfav/sessiond/internal/observability/logger"
	"github.com/openfav/sessiond/internal/session"
	"github.com/openfav/sessiond/internal/transport/ratelimit"
)

// SessionManager is the slice of the session manager the transport needs.
type SessionManager interface {
	GetCompleteSession(ctx context.Context) *session.Session
	RefreshSession(ctx context.Context) *session.Session
	InvalidateSession(ctx context.Context) error
	CreateSession(ctx context.Context) bool
	IsAuthenticated() bool
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	sessions SessionManager
}

// NewHandler creates a new HTTP handler
func NewHandler(sessions SessionManager) *Handler {
	return &Handler{sessions: sessions}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, limiter *ratelimit.Limiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(ratelimit.Middleware(limiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/session", h.GetSession)
		r.Post("/session/refresh", h.RefreshSession)
		r.Post("/session/invalidate", h.InvalidateSession)
		r.Post("/session/create", h.CreateSession)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.RequireSession)

			r.Get("/me", h.GetCurrentUser)
		})
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "sessiond",
	})
}

// SessionResponse is the wire view of a session. Token values never leave
// the gateway; only the expiry instant is exposed.
type SessionResponse struct {
	ID              string           `json:"id"`
	Email           string           `json:"email"`
	FullName        string           `json:"fullName"`
	IsAuthenticated bool             `json:"isAuthenticated"`
	Provider        string           `json:"provider"`
	CreatedAt       time.Time        `json:"createdAt"`
	LastLogin       time.Time        `json:"lastLogin"`
	ExpiresAt       int64            `json:"expiresAt"`
	Metadata        session.Metadata `json:"metadata"`
}

func newSessionResponse(s *session.Session) SessionResponse {
	if s == nil {
		s = session.Empty()
	}
	return SessionResponse{
		ID:              s.ID,
		Email:           s.Email,
		FullName:        s.FullName,
		IsAuthenticated: s.IsAuthenticated,
		Provider:        s.Provider,
		CreatedAt:       s.CreatedAt,
		LastLogin:       s.LastLogin,
		ExpiresAt:       s.Tokens.ExpiresAt,
		Metadata:        s.Metadata,
	}
}

// GetSession resolves and returns the current session. Resolution never
// errors at this surface: on total failure the body is the unauthenticated
// session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.GetCompleteSession(r.Context())
	respondJSON(w, http.StatusOK, newSessionResponse(sess))
}

// RefreshSession forces re-resolution, bypassing the freshness window.
func (h *Handler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.RefreshSession(r.Context())
	respondJSON(w, http.StatusOK, newSessionResponse(sess))
}

// InvalidateSession signs the user out everywhere the gateway can reach.
// Local state is always cleared; a cache eviction failure surfaces as 500 so
// the caller knows a remote copy may linger.
func (h *Handler) InvalidateSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.InvalidateSession(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "session invalidation incomplete",
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "failed to fully invalidate session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateSession establishes the session after a sign-in and reports whether
// an authenticated session now exists.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ok := h.sessions.CreateSession(r.Context())
	respondJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

// GetCurrentUser returns the authenticated user's profile. Reachable only
// through RequireSession.
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())

	respondJSON(w, http.StatusOK, map[string]any{
		"id":       sess.ID,
		"email":    sess.Email,
		"fullName": sess.FullName,
		"provider": sess.Provider,
		"metadata": sess.Metadata,
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
