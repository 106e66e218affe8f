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

// Package deltasharing implements the Delta Sharing Protocol endpoints: the
// share/schema/table listings and the NDJSON streams serving table metadata,
// query results and the change data feed.
package deltasharing

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/openlake/delta-sharing/pkg/catalog"
	catalogregistry "github.com/openlake/delta-sharing/pkg/catalog/registry"
	"github.com/openlake/delta-sharing/pkg/delta"
	snapshotcache "github.com/openlake/delta-sharing/pkg/delta/cache"
	"github.com/openlake/delta-sharing/pkg/errtypes"
	"github.com/openlake/delta-sharing/pkg/rhttp/global"
	storageregistry "github.com/openlake/delta-sharing/pkg/storage/registry"
	"github.com/openlake/delta-sharing/pkg/utils/cfg"
)

func init() {
	global.Register("deltasharing", New)
}

type config struct {
	Prefix                  string                            `mapstructure:"prefix"`
	URLTTLSeconds           int                               `mapstructure:"url_ttl_seconds"`
	SnapshotCacheCapacity   int                               `mapstructure:"snapshot_cache_capacity"`
	SnapshotCacheTTLSeconds int                               `mapstructure:"snapshot_cache_ttl_seconds"`
	DefaultPageSize         int                               `mapstructure:"default_page_size"`
	MaxPageSize             int                               `mapstructure:"max_page_size"`
	CatalogTimeoutSeconds   int                               `mapstructure:"catalog_timeout_seconds"`
	QueryTimeoutSeconds     int                               `mapstructure:"query_timeout_seconds"`
	PageTokenSecret         string                            `mapstructure:"page_token_secret" validate:"required"`
	Catalog                 map[string]map[string]interface{} `mapstructure:"catalog"`
	Storage                 map[string]map[string]interface{} `mapstructure:"storage"`
}

func (c *config) ApplyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "delta-sharing"
	}
	// signed URLs must live at least 15 minutes.
	if c.URLTTLSeconds < 900 {
		c.URLTTLSeconds = 900
	}
	if c.SnapshotCacheCapacity == 0 {
		c.SnapshotCacheCapacity = 128
	}
	if c.DefaultPageSize == 0 {
		c.DefaultPageSize = 500
	}
	if c.MaxPageSize == 0 || c.MaxPageSize > 2000 {
		c.MaxPageSize = 2000
	}
	if c.CatalogTimeoutSeconds == 0 {
		c.CatalogTimeoutSeconds = 60
	}
	if c.QueryTimeoutSeconds == 0 {
		c.QueryTimeoutSeconds = 300
	}
}

type svc struct {
	conf      *config
	router    chi.Router
	log       *zerolog.Logger
	catalog   catalog.Catalog
	store     *storageregistry.Router
	reader    *delta.Reader
	snapshots *snapshotcache.Cache
	tokens    *catalog.TokenCodec
}

// New returns the delta sharing protocol service.
func New(m map[string]interface{}, log *zerolog.Logger) (global.Service, error) {
	var c config
	if err := cfg.Decode(m, &c); err != nil {
		return nil, errors.Wrap(err, "deltasharing: error decoding config")
	}

	if len(c.Catalog) != 1 {
		return nil, errors.New("deltasharing: exactly one catalog driver must be configured")
	}
	var cat catalog.Catalog
	for name, driverConf := range c.Catalog {
		f, ok := catalogregistry.NewFuncs[name]
		if !ok {
			return nil, errtypes.NotSupported("catalog driver:" + name)
		}
		var err error
		if cat, err = f(driverConf); err != nil {
			return nil, errors.Wrapf(err, "deltasharing: error creating catalog driver %s", name)
		}
	}

	store, err := storageregistry.NewRouter(c.Storage)
	if err != nil {
		return nil, errors.Wrap(err, "deltasharing: error creating storage router")
	}

	s := &svc{
		conf:      &c,
		log:       log,
		catalog:   cat,
		store:     store,
		reader:    delta.NewReader(store),
		snapshots: snapshotcache.New(c.SnapshotCacheCapacity, time.Duration(c.SnapshotCacheTTLSeconds)*time.Second),
		tokens:    catalog.NewTokenCodec(c.PageTokenSecret),
	}
	s.initRouter()
	return s, nil
}

func (s *svc) Prefix() string {
	return s.conf.Prefix
}

func (s *svc) Handler() http.Handler {
	return s.router
}

func (s *svc) Unprotected() []string {
	return nil
}

func (s *svc) Close() error {
	return nil
}

// InvalidateTable implements catalog.Invalidator for catalog mutations.
func (s *svc) InvalidateTable(tableID string) {
	s.snapshots.InvalidateTable(tableID)
}

func (s *svc) initRouter() {
	catalogOp := s.conf.CatalogTimeoutSeconds
	queryOp := s.conf.QueryTimeoutSeconds

	r := chi.NewRouter()
	r.Get("/shares", s.timed(catalogOp, s.handleListShares))
	r.Get("/shares/{share}", s.timed(catalogOp, s.handleGetShare))
	r.Get("/shares/{share}/schemas", s.timed(catalogOp, s.handleListSchemas))
	r.Get("/shares/{share}/all-tables", s.timed(catalogOp, s.handleListAllTables))
	r.Get("/shares/{share}/schemas/{schema}/tables", s.timed(catalogOp, s.handleListTables))
	r.Get("/shares/{share}/schemas/{schema}/tables/{table}/version", s.timed(catalogOp, s.handleTableVersion))
	r.Get("/shares/{share}/schemas/{schema}/tables/{table}/metadata", s.timed(queryOp, s.handleTableMetadata))
	r.Post("/shares/{share}/schemas/{schema}/tables/{table}/query", s.timed(queryOp, s.handleTableQuery))
	r.Get("/shares/{share}/schemas/{schema}/tables/{table}/changes", s.timed(queryOp, s.handleTableChanges))
	s.router = r
}

// timed bounds the request context so a hung catalog or storage backend
// cannot stall a worker forever. Streaming handlers surface the expiry
// through the end-stream action.
func (s *svc) timed(seconds int, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Duration(seconds)*time.Second)
		defer cancel()
		h(w, r.WithContext(ctx))
	}
}

// pathParam returns the percent-decoded URL parameter. Names containing a
// slash or control characters are rejected.
func pathParam(r *http.Request, key string) (string, error) {
	raw := chi.URLParam(r, key)
	v, err := url.PathUnescape(raw)
	if err != nil {
		return "", errtypes.BadRequest("invalid " + key + " name")
	}
	if v == "" || strings.ContainsRune(v, '/') {
		return "", errtypes.BadRequest("invalid " + key + " name")
	}
	for _, c := range v {
		if c < 0x20 || c == 0x7f {
			return "", errtypes.BadRequest("invalid " + key + " name")
		}
	}
	return v, nil
}
