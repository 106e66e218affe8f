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
	"strconv"

	"github.com/openlake/delta-sharing/pkg/appctx"
	"github.com/openlake/delta-sharing/pkg/catalog"
	"github.com/openlake/delta-sharing/pkg/errtypes"
)

// listParams extracts maxResults and pageToken from the query and decodes the
// token against the given scope.
func (s *svc) listParams(r *http.Request, scope string) (catalog.ListOptions, error) {
	opts := catalog.ListOptions{Limit: s.conf.DefaultPageSize}

	if raw := r.URL.Query().Get("maxResults"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, errtypes.BadRequest("invalid maxResults: " + raw)
		}
		if n > 0 {
			opts.Limit = n
		}
	}
	if opts.Limit > s.conf.MaxPageSize {
		opts.Limit = s.conf.MaxPageSize
	}

	if token := r.URL.Query().Get("pageToken"); token != "" {
		cur, err := s.tokens.Decode(token, scope)
		if err != nil {
			return opts, err
		}
		opts.After = cur.Last
	}
	return opts, nil
}

func (s *svc) nextToken(scope, last string, hasMore bool) string {
	if !hasMore {
		return ""
	}
	return s.tokens.Encode(catalog.Cursor{Scope: scope, Last: last})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appctx.GetLogger(r.Context()).Error().Err(err).Msg("deltasharing: error writing response")
	}
}

func (s *svc) handleListShares(w http.ResponseWriter, r *http.Request) {
	const scope = "shares"
	opts, err := s.listParams(r, scope)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items, hasMore, err := s.catalog.ListShares(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := listSharesResponse{Items: []shareJSON{}}
	for _, sh := range items {
		resp.Items = append(resp.Items, shareJSON{Name: sh.Name, ID: sh.ID})
	}
	if len(items) > 0 {
		resp.NextPageToken = s.nextToken(scope, items[len(items)-1].Name, hasMore)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *svc) handleGetShare(w http.ResponseWriter, r *http.Request) {
	name, err := pathParam(r, "share")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sh, err := s.catalog.GetShare(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, getShareResponse{Share: shareJSON{Name: sh.Name, ID: sh.ID}})
}

func (s *svc) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	share, err := pathParam(r, "share")
	if err != nil {
		writeError(w, r, err)
		return
	}
	scope := "schemas:" + share
	opts, err := s.listParams(r, scope)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items, hasMore, err := s.catalog.ListSchemas(r.Context(), share, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := listSchemasResponse{Items: []schemaJSON{}}
	for _, sc := range items {
		resp.Items = append(resp.Items, schemaJSON{Name: sc.Name, Share: sc.Share})
	}
	if len(items) > 0 {
		resp.NextPageToken = s.nextToken(scope, items[len(items)-1].Name, hasMore)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *svc) handleListTables(w http.ResponseWriter, r *http.Request) {
	share, err := pathParam(r, "share")
	if err != nil {
		writeError(w, r, err)
		return
	}
	schema, err := pathParam(r, "schema")
	if err != nil {
		writeError(w, r, err)
		return
	}
	scope := "tables:" + share + "." + schema
	opts, err := s.listParams(r, scope)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items, hasMore, err := s.catalog.ListTables(r.Context(), share, schema, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeTables(w, r, scope, items, hasMore)
}

func (s *svc) handleListAllTables(w http.ResponseWriter, r *http.Request) {
	share, err := pathParam(r, "share")
	if err != nil {
		writeError(w, r, err)
		return
	}
	scope := "all-tables:" + share
	opts, err := s.listParams(r, scope)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items, hasMore, err := s.catalog.ListAllTables(r.Context(), share, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeTables(w, r, scope, items, hasMore)
}

func (s *svc) writeTables(w http.ResponseWriter, r *http.Request, scope string, items []*catalog.Table, hasMore bool) {
	resp := listTablesResponse{Items: []tableJSON{}}
	for _, t := range items {
		resp.Items = append(resp.Items, tableJSON{Name: t.Name, Schema: t.Schema, Share: t.Share, ID: t.ID})
	}
	if len(items) > 0 {
		resp.NextPageToken = s.nextToken(scope, items[len(items)-1].Name, hasMore)
	}
	writeJSON(w, r, http.StatusOK, resp)
}
