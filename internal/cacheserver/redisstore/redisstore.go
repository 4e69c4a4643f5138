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

// Package redisstore implements the session cache Store on Redis, using
// native key TTLs for expiry.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openfav/sessiond/internal/cacheserver"
)

// Config contains configuration options for the Redis store.
type Config struct {
	// Client is the Redis client instance.
	Client *redis.Client

	// KeyPrefix is the prefix for all session keys.
	// Default: "openfav:session:"
	KeyPrefix string
}

// Store implements cacheserver.Store on Redis.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// New creates a Redis-backed session store.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "openfav:session:"
	}

	return &Store{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
	}, nil
}

func (s *Store) Get(ctx context.Context, userID string) ([]byte, error) {
	result := s.client.Get(ctx, s.keyPrefix+userID)
	if err := result.Err(); err != nil {
		if err == redis.Nil {
			return nil, cacheserver.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session for %s: %w", userID, err)
	}
	return []byte(result.Val()), nil
}

func (s *Store) Set(ctx context.Context, userID string, payload []byte, ttl time.Duration) error {
	result := s.client.Set(ctx, s.keyPrefix+userID, payload, ttl)
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to set session for %s: %w", userID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID string) error {
	result := s.client.Del(ctx, s.keyPrefix+userID)
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts expired keys natively.
func (s *Store) DeleteExpired(_ context.Context) error {
	return nil
}

func (s *Store) Close() {
	_ = s.client.Close()
}

// Compile-time interface check
var _ cacheserver.Store = (*Store)(nil)
