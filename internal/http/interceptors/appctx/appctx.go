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

// Package appctx injects the server logger into every request context.
package appctx

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/openlake/delta-sharing/pkg/appctx"
)

// New returns a middleware that stores a request-scoped logger in the context.
func New(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub := log.With().Str("method", r.Method).Str("uri", r.RequestURI).Logger()
			ctx := appctx.WithLogger(r.Context(), &sub)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
