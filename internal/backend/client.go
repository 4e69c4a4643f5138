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

// Package backend adapts the identity provider. The provider's internal
// protocol (OAuth flows, password handling) is not modeled here; sessiond only
// depends on the session refresh contract.
package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openfav/sessiond/internal/session"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config holds identity backend configuration.
type Config struct {
	// BaseURL is the identity backend root.
	BaseURL string

	// APIKey is the project key sent with every request.
	APIKey string

	// Timeout bounds each call. Default: 8s.
	Timeout time.Duration
}

// Client calls the identity backend.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a backend client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// RefreshSession asks the backend for a fresh token pair. The refresh token,
// when known from a stale session, is presented as the credential. Non-2xx
// answers and transport failures surface as session.ErrBackendAuthFailed;
// incomplete payloads as session.ErrMalformedPayload. Both advance the
// resolver to its empty-session fallback.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*session.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/session", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrBackendAuthFailed, err)
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if refreshToken != "" {
		req.Header.Set("Authorization", "Bearer "+refreshToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrBackendAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", session.ErrBackendAuthFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrBackendAuthFailed, err)
	}
	return session.DecodeBackendPayload(body, time.Now())
}
