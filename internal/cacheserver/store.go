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

// Package cacheserver implements the session cache service: a key-value
// store of serialized sessions addressed by user id, with per-entry TTL,
// exposed over HTTP.
package cacheserver

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports an absent (or expired) entry.
var ErrNotFound = errors.New("session cache entry not found")

// Store defines the interface for session cache persistence. Payloads are
// opaque serialized sessions; the store never inspects them.
type Store interface {
	// Get retrieves the payload for a user id. Expired entries are absent.
	Get(ctx context.Context, userID string) ([]byte, error)

	// Set writes the payload with the given TTL, replacing any prior entry.
	Set(ctx context.Context, userID string, payload []byte, ttl time.Duration) error

	// Delete removes the entry. Deleting an absent entry is not an error.
	Delete(ctx context.Context, userID string) error

	// DeleteExpired removes all expired entries. Backends with native TTL
	// may make this a no-op.
	DeleteExpired(ctx context.Context) error

	// Close releases the backend connection.
	Close()
}
