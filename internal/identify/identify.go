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

// Package identify persists the last known user id across process restarts.
// On cold start the resolver reads it to key cache lookups before any session
// exists in the local store.
package identify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// userIDKey matches the key the original clients persisted.
const userIDKey = "openfav-userId"

type state struct {
	UserID    string `json:"openfav-userId"`
	InstallID string `json:"installId"`
}

// Store is a file-backed single-key store holding the persisted user id and a
// per-installation id generated on first load.
type Store struct {
	mu   sync.Mutex
	path string
	st   state
}

// New creates a store persisting to the given path. Call Load before use.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the state file. A missing file is a normal cold start: the store
// comes up empty and an installation id is generated and persisted.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read identification state: %w", err)
		}
	} else if err := json.Unmarshal(data, &s.st); err != nil {
		// A corrupt state file is discarded, not fatal: losing the persisted
		// id only costs one cache lookup opportunity.
		s.st = state{}
	}

	if s.st.InstallID == "" {
		s.st.InstallID = uuid.NewString()
		return s.persistLocked()
	}
	return nil
}

// UserID returns the persisted user id, or "" when none is known.
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UserID
}

// InstallID returns the per-installation id.
func (s *Store) InstallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.InstallID
}

// SetUserID persists the user id immediately.
func (s *Store) SetUserID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.UserID == id {
		return nil
	}
	s.st.UserID = id
	return s.persistLocked()
}

// Clear forgets the persisted user id. The installation id survives.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.UserID == "" {
		return nil
	}
	s.st.UserID = ""
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	data, err := json.Marshal(s.st)
	if err != nil {
		return fmt.Errorf("failed to encode identification state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write identification state: %w", err)
	}
	return nil
}
