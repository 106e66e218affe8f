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
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openlake/delta-sharing/pkg/appctx"
	"github.com/openlake/delta-sharing/pkg/errtypes"
)

// Protocol error codes.
const (
	codeUnauthenticated    = "UNAUTHENTICATED"
	codePermissionDenied   = "PERMISSION_DENIED"
	codeNotFound           = "RESOURCE_DOES_NOT_EXIST"
	codeInvalidParameter   = "INVALID_PARAMETER_VALUE"
	codeInternal           = "INTERNAL_ERROR"
	codeTemporarilyUnavail = "TEMPORARILY_UNAVAILABLE"
)

type errorBody struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// mapError translates a tagged error into the protocol status and body.
// Internal structural failures are sanitized, the details stay in the server
// log.
func mapError(err error) (status int, body errorBody) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, errorBody{codeTemporarilyUnavail, "request deadline exceeded"}
	}
	switch err.(type) {
	case errtypes.IsNotFound:
		return http.StatusNotFound, errorBody{codeNotFound, err.Error()}
	case errtypes.IsInvalidCredentials:
		return http.StatusUnauthorized, errorBody{codeUnauthenticated, "Missing or invalid Authorization header"}
	case errtypes.IsPermissionDenied:
		return http.StatusForbidden, errorBody{codePermissionDenied, err.Error()}
	case errtypes.IsBadRequest:
		return http.StatusBadRequest, errorBody{codeInvalidParameter, err.Error()}
	case errtypes.IsCorruptLog, errtypes.IsIncompleteLog:
		return http.StatusInternalServerError, errorBody{codeInternal, "error reading table log"}
	case errtypes.IsTemporarilyUnavailable:
		return http.StatusServiceUnavailable, errorBody{codeTemporarilyUnavail, "backing store temporarily unavailable"}
	}
	return http.StatusInternalServerError, errorBody{codeInternal, "internal error"}
}

// writeError maps the error once at the boundary and writes the JSON body.
// Must not be called after the first stream byte went out.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := appctx.GetLogger(r.Context())
	status, body := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("deltasharing: request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("deltasharing: request rejected")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		log.Error().Err(encErr).Msg("deltasharing: error writing error body")
	}
}
