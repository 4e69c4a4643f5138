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

// Package store holds the process-wide session cell. It is the single source
// read by consumers; only the resolver and explicit invalidation paths write
// to it. Concurrent writers get last-write-wins semantics.
package store

import (
	"sync"

	"github.com/openfav/sessiond/internal/session"
)

// Listener receives the new value on every Set.
type Listener func(*session.Session)

// Store is a mutable cell holding the currently known session, or nil when no
// resolution has happened yet, with publish/subscribe change notification.
type Store struct {
	mu        sync.RWMutex
	current   *session.Session
	listeners map[int]Listener
	nextID    int
}

// New creates an empty store.
func New() *Store {
	return &Store{listeners: make(map[int]Listener)}
}

// Get returns a snapshot of the current session, or nil.
func (s *Store) Get() *session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Set replaces the current session and notifies subscribers with the new
// value. Listeners run synchronously, outside the lock, so a listener may
// itself read the store.
func (s *Store) Set(sess *session.Session) {
	s.mu.Lock()
	s.current = sess.Clone()
	notify := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		notify = append(notify, l)
	}
	s.mu.Unlock()

	for _, l := range notify {
		l(sess.Clone())
	}
}

// Subscribe registers a listener and returns its disposer. The disposer is
// idempotent.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// IsAuthenticated reports the current session's flag without triggering any
// resolution. Cheap and possibly stale.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil && s.current.IsAuthenticated
}
