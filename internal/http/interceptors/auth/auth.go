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

// Package auth enforces bearer authentication on every endpoint that is not
// registered as unprotected.
package auth

import (
	"net/http"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/openlake/delta-sharing/pkg/appctx"
	"github.com/openlake/delta-sharing/pkg/auth"
	"github.com/openlake/delta-sharing/pkg/rhttp/global"
	"github.com/openlake/delta-sharing/pkg/utils/cfg"
)

type config struct {
	// Enabled switches bearer enforcement. When false every request passes
	// through under the development principal, for local setups only.
	Enabled *bool `mapstructure:"enabled"`
	// Token is the shared bearer token recipients present. When empty the
	// server accepts any non-empty token and logs a warning per request.
	Token string `mapstructure:"token"`
}

func (c *config) ApplyDefaults() {
	if c.Enabled == nil {
		enabled := true
		c.Enabled = &enabled
	}
}

// New returns the authentication middleware. The unprotected paths are
// collected from the registered services before the middleware chain is
// built.
func New(m map[string]interface{}, unprotected []string) (global.Middleware, error) {
	var c config
	if err := cfg.Decode(m, &c); err != nil {
		return nil, errors.Wrap(err, "auth: error decoding config")
	}

	if !*c.Enabled {
		passthrough := func(h http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := r.Context()
				appctx.GetLogger(ctx).Warn().Str("path", r.URL.Path).Msg("auth: authentication disabled, accepting request")
				ctx = auth.ContextSetPrincipal(ctx, &auth.Principal{Username: auth.DevPrincipal})
				h.ServeHTTP(w, r.WithContext(ctx))
			})
		}
		return passthrough, nil
	}

	authenticator := auth.New(auth.WithConfiguredToken(c.Token))

	skip := make([]string, 0, len(unprotected))
	for _, u := range unprotected {
		skip = append(skip, path.Join("/", u))
	}

	chain := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isUnprotected(r.URL.Path, skip) {
				h.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			log := appctx.GetLogger(ctx)

			token := bearerToken(r.Header.Get("Authorization"))
			p, err := authenticator.Authenticate(ctx, token)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("auth: rejecting request")
				writeUnauthenticated(w)
				return
			}

			ctx = auth.ContextSetPrincipal(ctx, p)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	return chain, nil
}

func isUnprotected(p string, unprotected []string) bool {
	for _, u := range unprotected {
		if p == u || strings.HasPrefix(p, u+"/") {
			return true
		}
	}
	return false
}

// bearerToken extracts the token from an `Authorization: Bearer <token>`
// header, empty when the header has any other shape.
func bearerToken(h string) string {
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// writeUnauthenticated writes the protocol 401 body. The message is fixed so
// the response leaks nothing about why the token failed.
func writeUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"errorCode":"UNAUTHENTICATED","message":"Missing or invalid Authorization header"}` + "\n"))
}
