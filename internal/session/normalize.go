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
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// The cache service and the identity backend answer in different shapes, and
// the cache additionally answers in two spellings depending on which writer
// populated it. Everything funnels through this file and comes out as a
// *Session with IsAuthenticated computed at decode time.

// envelope is the optional wrapper both collaborators may apply.
type envelope struct {
	Session json.RawMessage `json:"session"`
}

// wireSession is the normalized shape sessiond itself writes to the cache.
type wireSession struct {
	ID              string   `json:"id"`
	Email           string   `json:"email"`
	FullName        string   `json:"fullName"`
	CreatedAt       string   `json:"createdAt"`
	LastLogin       string   `json:"lastLogin"`
	IsAuthenticated bool     `json:"isAuthenticated"`
	Provider        string   `json:"provider"`
	Tokens          Tokens   `json:"tokens"`
	Metadata        Metadata `json:"metadata"`
}

// backendUser is the nested user object of the identity backend response.
type backendUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	CreatedAt    string `json:"created_at"`
	LastSignInAt string `json:"last_sign_in_at"`
	AppMetadata  struct {
		Provider string `json:"provider"`
	} `json:"app_metadata"`
	UserMetadata struct {
		FullName          string `json:"full_name"`
		PreferredUsername string `json:"preferred_username"`
		UserName          string `json:"user_name"`
		AvatarURL         string `json:"avatar_url"`
	} `json:"user_metadata"`
}

// backendSession is the identity backend's token payload.
type backendSession struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    int64        `json:"expires_at"`
	User         *backendUser `json:"user"`
}

// DecodeCachePayload normalizes a cache service response body. Both accepted
// shapes produce identical sessions:
//
//	{ "id": "u1", ... }
//	{ "session": { "id": "u1", ... } }
//
// Bodies whose session object is null or lacks a user id decode to
// ErrMalformedPayload. Entries written by older clients in the backend's
// snake_case spelling are accepted as well.
func DecodeCachePayload(data []byte, now time.Time) (*Session, error) {
	inner, err := unwrap(data)
	if err != nil {
		return nil, err
	}

	var w wireSession
	if err := json.Unmarshal(inner, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if w.ID != "" {
		return fromWire(w, now), nil
	}

	// Older writers cached the raw backend payload. Give the snake_case
	// shape a chance before declaring the entry malformed.
	sess, berr := decodeBackendSession(inner, now)
	if berr != nil {
		return nil, fmt.Errorf("%w: missing user id", ErrMalformedPayload)
	}
	return sess, nil
}

// DecodeBackendPayload normalizes an identity backend response body, with or
// without the session envelope.
func DecodeBackendPayload(data []byte, now time.Time) (*Session, error) {
	inner, err := unwrap(data)
	if err != nil {
		return nil, err
	}
	return decodeBackendSession(inner, now)
}

// EncodeCachePayload renders the shape sessiond writes into the cache
// service's set-session envelope.
func EncodeCachePayload(s *Session) ([]byte, error) {
	w := wireSession{
		ID:              s.ID,
		Email:           s.Email,
		FullName:        s.FullName,
		IsAuthenticated: s.IsAuthenticated,
		Provider:        s.Provider,
		Tokens:          s.Tokens,
		Metadata:        s.Metadata,
	}
	if !s.CreatedAt.IsZero() {
		w.CreatedAt = s.CreatedAt.Format(time.RFC3339)
	}
	if !s.LastLogin.IsZero() {
		w.LastLogin = s.LastLogin.Format(time.RFC3339)
	}
	return json.Marshal(w)
}

func unwrap(data []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Session == nil {
		// No envelope; the body is the session itself.
		return data, nil
	}
	if bytes.Equal(bytes.TrimSpace(env.Session), []byte("null")) {
		return nil, fmt.Errorf("%w: null session", ErrMalformedPayload)
	}
	return env.Session, nil
}

func fromWire(w wireSession, now time.Time) *Session {
	s := &Session{
		ID:        w.ID,
		Email:     w.Email,
		FullName:  w.FullName,
		CreatedAt: parseInstant(w.CreatedAt),
		LastLogin: parseInstant(w.LastLogin),
		Provider:  w.Provider,
		Tokens:    w.Tokens,
		Metadata:  w.Metadata,
	}
	if s.Provider == "" {
		s.Provider = s.Metadata.Provider
	}
	// IsAuthenticated is a computed snapshot; the cached flag is not trusted.
	s.IsAuthenticated = s.ID != "" && s.Tokens.AccessToken != "" && !TokenExpired(s.Tokens.ExpiresAt, now)
	return s
}

func decodeBackendSession(inner json.RawMessage, now time.Time) (*Session, error) {
	var b backendSession
	if err := json.Unmarshal(inner, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if b.User == nil || b.User.ID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrMalformedPayload)
	}

	expiresAt := b.ExpiresAt
	if expiresAt == 0 && b.AccessToken != "" {
		// Some backend responses omit expires_at; the access token itself
		// still carries the expiry in its exp claim.
		expiresAt = jwtExpiry(b.AccessToken)
	}

	provider := b.User.AppMetadata.Provider
	if provider == "" {
		provider = "email"
	}

	fullName := b.User.UserMetadata.FullName
	if fullName == "" {
		fullName = b.User.UserMetadata.PreferredUsername
	}
	if fullName == "" {
		fullName = b.User.UserMetadata.UserName
	}

	s := &Session{
		ID:        b.User.ID,
		Email:     b.User.Email,
		FullName:  fullName,
		CreatedAt: parseInstant(b.User.CreatedAt),
		LastLogin: parseInstant(b.User.LastSignInAt),
		Provider:  provider,
		Tokens: Tokens{
			AccessToken:  b.AccessToken,
			RefreshToken: b.RefreshToken,
			ExpiresAt:    expiresAt,
		},
		Metadata: Metadata{
			Provider:       provider,
			AvatarURL:      b.User.UserMetadata.AvatarURL,
			GithubUsername: b.User.UserMetadata.UserName,
		},
	}
	s.IsAuthenticated = s.Tokens.AccessToken != "" && !TokenExpired(s.Tokens.ExpiresAt, now)
	return s, nil
}

// jwtExpiry extracts the exp claim from an access token without verifying the
// signature. The token is otherwise opaque to sessiond; verification belongs
// to the identity backend that issued it.
func jwtExpiry(token string) int64 {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	return exp.Unix()
}

func parseInstant(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
