// Copyright 2018-2025 CERN
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
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlake/delta-sharing/pkg/auth"
)

func newProtected(t *testing.T, token string, unprotected []string) http.Handler {
	t.Helper()
	mw, err := New(map[string]interface{}{"token": token}, unprotected)
	require.NoError(t, err)
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.ContextGetPrincipal(r.Context())
		if ok {
			w.Header().Set("X-Principal", p.Username)
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestValidBearerToken(t *testing.T) {
	h := newProtected(t, "hunter2", nil)

	r := httptest.NewRequest(http.MethodGet, "/delta-sharing/shares", nil)
	r.Header.Set("Authorization", "Bearer hunter2")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, auth.DevPrincipal, w.Header().Get("X-Principal"))
}

func TestMissingOrInvalidToken(t *testing.T) {
	h := newProtected(t, "hunter2", nil)

	for name, set := range map[string]func(*http.Request){
		"no header":      func(r *http.Request) {},
		"wrong token":    func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
		"not bearer":     func(r *http.Request) { r.Header.Set("Authorization", "Basic aGk6aGk=") },
		"empty bearer":   func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") },
		"scheme only":    func(r *http.Request) { r.Header.Set("Authorization", "Bearer") },
		"token no space": func(r *http.Request) { r.Header.Set("Authorization", "Bearerhunter2") },
	} {
		r := httptest.NewRequest(http.MethodGet, "/delta-sharing/shares", nil)
		set(r)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		require.Equal(t, http.StatusUnauthorized, w.Code, name)

		var body struct {
			ErrorCode string `json:"errorCode"`
			Message   string `json:"message"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), name)
		assert.Equal(t, "UNAUTHENTICATED", body.ErrorCode, name)
		assert.Equal(t, "Missing or invalid Authorization header", body.Message, name)
	}
}

func TestUnprotectedPathsSkipAuth(t *testing.T) {
	h := newProtected(t, "hunter2", []string{"/healthz", "/data"})

	for _, target := range []string{"/healthz", "/data/t1/part-0.parquet"} {
		r := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code, target)
	}

	// prefix match is on path segments, /datax stays protected.
	r := httptest.NewRequest(http.MethodGet, "/datax", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthDisabled(t *testing.T) {
	mw, err := New(map[string]interface{}{"enabled": false, "token": "hunter2"}, nil)
	require.NoError(t, err)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.ContextGetPrincipal(r.Context())
		if ok {
			w.Header().Set("X-Principal", p.Username)
		}
		w.WriteHeader(http.StatusOK)
	}))

	// no Authorization header, the request still passes under the development
	// principal.
	r := httptest.NewRequest(http.MethodGet, "/delta-sharing/shares", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, auth.DevPrincipal, w.Header().Get("X-Principal"))
}

func TestBearerSchemeCaseInsensitive(t *testing.T) {
	h := newProtected(t, "hunter2", nil)

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.Header.Set("Authorization", "bearer hunter2")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}
