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

// Package pgstore implements the session cache Store on PostgreSQL.
package pgstore

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openfav/sessiond/internal/cacheserver"
)

//go:embed migrations/001_session_cache.up.sql
var Schema string

// Config holds database configuration
type Config struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// Store implements cacheserver.Store on a PostgreSQL connection pool.
// Expiry is enforced on read; DeleteExpired reclaims dead rows.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New creates a new database-backed session store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d pool_min_conns=%d",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
		cfg.MaxOpenConns,
		cfg.MaxIdleConns,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, now: time.Now}, nil
}

// Migrate creates the session_cache table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to run session cache migration: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, userID string) ([]byte, error) {
	var payload []byte

	err := s.pool.QueryRow(ctx, `
		SELECT payload
		FROM session_cache
		WHERE user_id = $1 AND expires_at > $2
	`, userID, s.now()).Scan(&payload)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, cacheserver.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cached session: %w", err)
	}

	return payload, nil
}

func (s *Store) Set(ctx context.Context, userID string, payload []byte, ttl time.Duration) error {
	now := s.now()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_cache (user_id, payload, expires_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id)
		DO UPDATE SET payload = $2, expires_at = $3, updated_at = $4
	`, userID, payload, now.Add(ttl), now)

	if err != nil {
		return fmt.Errorf("failed to set cached session: %w", err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM session_cache WHERE user_id = $1
	`, userID)

	if err != nil {
		return fmt.Errorf("failed to delete cached session: %w", err)
	}

	return nil
}

// DeleteExpired deletes all expired cache entries
func (s *Store) DeleteExpired(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM session_cache WHERE expires_at <= $1
	`, s.now())

	if err != nil {
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Compile-time interface check
var _ cacheserver.Store = (*Store)(nil)
