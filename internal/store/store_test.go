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

package store

import (
	"sync"
	"testing"
	"time"

	"github.com/openfav/sessiond/internal/session"
)

// TestPurpose: Validates the cell semantics: Get returns nil before any Set, and snapshots after.
// Scope: Unit Test
// Expected: Get reflects the last Set; returned values are independent copies.
func TestStore_GetSet(t *testing.T) {
	s := New()

	if got := s.Get(); got != nil {
		t.Fatalf("expected nil before first set, got %+v", got)
	}

	sess := &session.Session{ID: "u1", IsAuthenticated: true, Tokens: session.Tokens{ExpiresAt: time.Now().Add(time.Hour).Unix()}}
	s.Set(sess)

	got := s.Get()
	if got == nil || got.ID != "u1" {
		t.Fatalf("expected u1, got %+v", got)
	}

	// Mutating the snapshot must not leak back into the cell.
	got.ID = "mutated"
	if s.Get().ID != "u1" {
		t.Error("snapshot mutation leaked into the store")
	}
}

// TestPurpose: Validates the publish/subscribe contract: every Set notifies live listeners with the new value; disposed listeners stop receiving.
// Scope: Unit Test
// Expected: Listener sees each value in order; no notifications after unsubscribe.
// Test Case ID: STO-01
func TestStore_Subscribe(t *testing.T) {
	s := New()

	var seen []string
	unsubscribe := s.Subscribe(func(sess *session.Session) {
		if sess == nil {
			seen = append(seen, "<nil>")
			return
		}
		seen = append(seen, sess.ID)
	})

	s.Set(&session.Session{ID: "u1"})
	s.Set(session.Empty())

	unsubscribe()
	unsubscribe() // disposer is idempotent

	s.Set(&session.Session{ID: "u2"})

	if len(seen) != 2 || seen[0] != "u1" || seen[1] != "" {
		t.Errorf("unexpected notifications: %v", seen)
	}
}

// TestPurpose: Validates that IsAuthenticated reads the cell without resolution and without nil panics.
// Scope: Unit Test
// Expected: false for empty cell and empty session, true for an authenticated one.
func TestStore_IsAuthenticated(t *testing.T) {
	s := New()
	if s.IsAuthenticated() {
		t.Error("empty cell must not be authenticated")
	}

	s.Set(session.Empty())
	if s.IsAuthenticated() {
		t.Error("empty session must not be authenticated")
	}

	s.Set(&session.Session{ID: "u1", IsAuthenticated: true})
	if !s.IsAuthenticated() {
		t.Error("expected authenticated")
	}
}

// TestPurpose: Validates last-write-wins under concurrent writers without data races.
// Scope: Unit Test
// Expected: After all writers finish, the cell holds one of the written values intact.
func TestStore_ConcurrentSet(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Set(&session.Session{ID: "u1", IsAuthenticated: true})
			}
		}()
	}
	wg.Wait()

	got := s.Get()
	if got == nil || got.ID != "u1" || !got.IsAuthenticated {
		t.Errorf("expected intact final value, got %+v", got)
	}
}
