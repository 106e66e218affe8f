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

// Package auth validates opaque bearer tokens and resolves them to principals.
package auth

import (
	"context"
	"time"

	"github.com/openlake/delta-sharing/pkg/appctx"
	"github.com/openlake/delta-sharing/pkg/errtypes"
)

// DevPrincipal is the principal assigned to every request when the server
// runs without a configured token and without a token store.
const DevPrincipal = "delta-sharing-user"

// Principal identifies the authenticated caller for the lifetime of one request.
type Principal struct {
	Username    string
	DisplayName string
}

// User is the record a token store resolves a bearer token to.
type User struct {
	Username       string
	DisplayName    string
	Active         bool
	TokenExpiresAt *time.Time
}

// TokenStore resolves recipient bearer tokens minted by the external user
// service. Implementations return errtypes.NotFound for unknown tokens.
type TokenStore interface {
	Lookup(ctx context.Context, token string) (*User, error)
}

// Authenticator validates bearer tokens against a statically configured token
// or a token store. It retains no per-request state and never stores tokens.
type Authenticator struct {
	configuredToken string
	store           TokenStore
	now             func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithConfiguredToken sets the single shared bearer token.
func WithConfiguredToken(token string) Option {
	return func(a *Authenticator) { a.configuredToken = token }
}

// WithTokenStore sets the per-recipient token store.
func WithTokenStore(store TokenStore) Option {
	return func(a *Authenticator) { a.store = store }
}

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// New returns a new Authenticator.
func New(opts ...Option) *Authenticator {
	a := &Authenticator{now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Authenticate resolves the given bearer token to a principal.
// It returns errtypes.InvalidCredentials when the token does not validate.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, errtypes.InvalidCredentials("empty token")
	}

	if a.configuredToken != "" {
		if token != a.configuredToken {
			return nil, errtypes.InvalidCredentials("token mismatch")
		}
		return &Principal{Username: DevPrincipal}, nil
	}

	if a.store != nil {
		u, err := a.store.Lookup(ctx, token)
		if err != nil {
			return nil, errtypes.InvalidCredentials("unknown token")
		}
		if !u.Active {
			return nil, errtypes.InvalidCredentials("principal is not active")
		}
		if u.TokenExpiresAt != nil && !u.TokenExpiresAt.After(a.now()) {
			return nil, errtypes.InvalidCredentials("token expired")
		}
		return &Principal{Username: u.Username, DisplayName: u.DisplayName}, nil
	}

	// development mode: no token configured and no store wired, accept any
	// non-empty token.
	log := appctx.GetLogger(ctx)
	log.Warn().Msg("auth: no bearer token configured, accepting any token (development mode)")
	return &Principal{Username: DevPrincipal}, nil
}
