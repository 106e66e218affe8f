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

package deltasharing

import (
	"encoding/json"
	"net/http"
)

// ndjsonContentType is the content type of streamed responses.
const ndjsonContentType = "application/x-ndjson; charset=utf-8"

// streamWriter emits one JSON value per line and flushes after every line so
// slow clients throttle the server instead of buffering whole snapshots.
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool

	// minExpiration tracks the smallest expiration timestamp of the signed
	// URLs written so far, reported in the end-stream action.
	minExpiration int64
}

func newStreamWriter(w http.ResponseWriter) *streamWriter {
	f, _ := w.(http.Flusher)
	return &streamWriter{w: w, flusher: f}
}

// Started reports whether any byte was written. Once true the HTTP status
// cannot change anymore.
func (s *streamWriter) Started() bool {
	return s.started
}

// WriteLine marshals v onto one line and flushes it.
func (s *streamWriter) WriteLine(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !s.started {
		s.w.Header().Set("Content-Type", ndjsonContentType)
		s.started = true
	}
	if _, err := s.w.Write(append(b, '\n')); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// TrackExpiration records the expiration of a signed URL.
func (s *streamWriter) TrackExpiration(expirationMs int64) {
	if s.minExpiration == 0 || expirationMs < s.minExpiration {
		s.minExpiration = expirationMs
	}
}

// MinExpiration returns the smallest tracked expiration, zero when no URL was
// signed.
func (s *streamWriter) MinExpiration() int64 {
	return s.minExpiration
}
