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

// Package log provides an access-log middleware.
package log

import (
	"net/http"
	"time"

	"github.com/openlake/delta-sharing/pkg/appctx"
	"github.com/openlake/delta-sharing/pkg/rhttp/global"
)

const defaultPriority = 200

func init() {
	global.RegisterMiddleware("log", New)
}

// New returns a middleware that logs every request with its status and duration.
func New(_ map[string]interface{}) (global.Middleware, int, error) {
	m := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lw := &loggingWriter{ResponseWriter: w, status: http.StatusOK}
			h.ServeHTTP(lw, r)
			log := appctx.GetLogger(r.Context())
			log.Info().
				Str("host", r.RemoteAddr).
				Str("proto", r.Proto).
				Int("status", lw.status).
				Dur("duration", time.Since(start)).
				Msg("http")
		})
	}
	return m, defaultPriority, nil
}

type loggingWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *loggingWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *loggingWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// Flush forwards flushes so streaming responses keep per-line backpressure.
func (w *loggingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
