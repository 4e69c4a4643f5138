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

package session

import (
	"time"
)

// Tokens holds the credential pair attached to a session.
// ExpiresAt is epoch seconds; 0 means "no valid token / already expired".
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// Metadata carries provider-specific display extras. Non-authoritative.
type Metadata struct {
	Provider       string `json:"provider"`
	AvatarURL      string `json:"avatarUrl,omitempty"`
	GithubUsername string `json:"githubUsername,omitempty"`
}

// Session is the canonical record of authentication state for the current
// user. Values are immutable snapshots: writers replace the whole value,
// never patch fields in place.
type Session struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	FullName        string    `json:"fullName"`
	CreatedAt       time.Time `json:"createdAt"`
	LastLogin       time.Time `json:"lastLogin"`
	IsAuthenticated bool      `json:"isAuthenticated"`
	Provider        string    `json:"provider"`
	Tokens          Tokens    `json:"tokens"`
	Metadata        Metadata  `json:"metadata"`
}

// Empty returns the canonical unauthenticated session: empty id, no tokens,
// IsAuthenticated false.
func Empty() *Session {
	return &Session{
		Provider: "email",
		Metadata: Metadata{Provider: "email"},
	}
}

// TokenExpired reports whether an epoch-second expiry has passed at the given
// instant. A zero expiry is always expired. The comparison is inclusive: a
// token is expired at exactly its expiry instant.
func TokenExpired(expiresAt int64, now time.Time) bool {
	if expiresAt == 0 {
		return true
	}
	return now.UnixMilli() >= expiresAt*1000
}

// Expired reports whether the session's access token has expired at now.
func (s *Session) Expired(now time.Time) bool {
	return TokenExpired(s.Tokens.ExpiresAt, now)
}

// Valid reports whether the session can satisfy a resolution at now: it must
// be authenticated and hold an unexpired token. A structurally valid but
// temporally expired session is equivalent to absent.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.IsAuthenticated && s.ID != "" && !s.Expired(now)
}

// Clone returns an independent copy so callers can hand out snapshots without
// sharing the underlying value with concurrent observers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
