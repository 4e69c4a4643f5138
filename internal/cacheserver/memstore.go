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
	"context"
	"sync"
	"time"
)

type memEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemStore is an in-memory Store for development and tests. Entries are
// evicted lazily on read and in bulk by DeleteExpired.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

func (m *MemStore) Get(_ context.Context, userID string) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.entries[userID]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if m.now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, userID)
		m.mu.Unlock()
		return nil, ErrNotFound
	}

	payload := make([]byte, len(entry.payload))
	copy(payload, entry.payload)
	return payload, nil
}

func (m *MemStore) Set(_ context.Context, userID string, payload []byte, ttl time.Duration) error {
	stored := make([]byte, len(payload))
	copy(stored, payload)

	m.mu.Lock()
	m.entries[userID] = memEntry{
		payload:   stored,
		expiresAt: m.now().Add(ttl),
	}
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	delete(m.entries, userID)
	m.mu.Unlock()
	return nil
}

func (m *MemStore) DeleteExpired(_ context.Context) error {
	now := m.now()
	m.mu.Lock()
	for id, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, id)
		}
	}
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Close() {}
