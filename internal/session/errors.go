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

import "errors"

// Domain errors. All three are internal to the resolution chain: each one
// advances the fallback to the next source and none of them ever reaches a
// caller of the resolver or manager.
var (
	ErrCacheUnavailable  = errors.New("session cache unavailable")
	ErrBackendAuthFailed = errors.New("identity backend auth failed")
	ErrMalformedPayload  = errors.New("malformed session payload")
)
