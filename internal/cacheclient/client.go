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

// Package cacheclient is the thin HTTP client for the session cache service.
// Unreachable service, non-2xx answers and timeouts all surface as
// session.ErrCacheUnavailable; callers treat that as a cache miss, never as a
// fatal condition.
package cacheclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openfav/sessiond/internal/session"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config holds cache client configuration.
type Config struct {
	// BaseURL is the cache service root, e.g. "https://cache.openfav.dev".
	BaseURL string

	// Token, when set, is sent as a bearer token on every request.
	Token string

	// Timeout bounds each call. Default: 3s.
	Timeout time.Duration
}

// Client talks to the session cache service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a cache client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Get fetches the cached session for a user id. A 404 is a plain miss and
// returns (nil, nil). Both the bare and enveloped response shapes are
// accepted.
func (c *Client) Get(ctx context.Context, userID string) (*session.Session, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/session/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrCacheUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", session.ErrCacheUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrCacheUnavailable, err)
	}
	return session.DecodeCachePayload(body, time.Now())
}

// setRequest is the set-session envelope.
type setRequest struct {
	UserID        string          `json:"userId"`
	Session       json.RawMessage `json:"session"`
	ExpirySeconds int64           `json:"expirySeconds"`
}

type statusResponse struct {
	Success bool `json:"success"`
}

// Set writes a session for a user id with the given TTL.
func (c *Client) Set(ctx context.Context, userID string, s *session.Session, ttl time.Duration) error {
	payload, err := session.EncodeCachePayload(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	body, err := json.Marshal(setRequest{
		UserID:        userID,
		Session:       payload,
		ExpirySeconds: int64(ttl.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("failed to encode set-session request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/set-session", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doStatus(req)
}

// Delete removes the cached session for a user id.
func (c *Client) Delete(ctx context.Context, userID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/session/"+url.PathEscape(userID), nil)
	if err != nil {
		return err
	}
	return c.doStatus(req)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrCacheUnavailable, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) doStatus(req *http.Request) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrCacheUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: unexpected status %d", session.ErrCacheUnavailable, resp.StatusCode)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("%w: %v", session.ErrCacheUnavailable, err)
	}
	if !status.Success {
		return fmt.Errorf("%w: service reported failure", session.ErrCacheUnavailable)
	}
	return nil
}
