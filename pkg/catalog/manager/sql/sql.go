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

// Package sql provides a catalog driver backed by a SQLite database, shared
// with the administrative surface that maintains it.
package sql

import (
	"context"
	dbsql "database/sql"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/openlake/delta-sharing/pkg/catalog"
	"github.com/openlake/delta-sharing/pkg/catalog/registry"
	"github.com/openlake/delta-sharing/pkg/errtypes"
	"github.com/openlake/delta-sharing/pkg/utils/cfg"
)

func init() {
	registry.Register("sql", New)
}

type config struct {
	DSN string `mapstructure:"dsn" validate:"required"`
}

type mgr struct {
	c  *config
	db *dbsql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS shares (
	id          TEXT PRIMARY KEY,
	name        TEXT UNIQUE NOT NULL,
	active      INTEGER NOT NULL DEFAULT 1,
	description TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS schemas (
	name        TEXT NOT NULL,
	share       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (share, name)
);
CREATE TABLE IF NOT EXISTS tables (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	schema_name   TEXT NOT NULL,
	share         TEXT NOT NULL,
	storage_uri   TEXT NOT NULL,
	format        TEXT NOT NULL DEFAULT 'parquet',
	share_as_view INTEGER NOT NULL DEFAULT 0,
	UNIQUE (share, schema_name, name)
);
`

// New returns a catalog manager backed by a SQLite database.
func New(m map[string]interface{}) (catalog.Catalog, error) {
	var c config
	if err := cfg.Decode(m, &c); err != nil {
		return nil, errors.Wrap(err, "sql: error decoding config")
	}

	db, err := dbsql.Open("sqlite", c.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "sql: error opening database")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Wrap(err, "sql: error creating schema")
	}

	return &mgr{c: &c, db: db}, nil
}

func (m *mgr) ListShares(ctx context.Context, opts catalog.ListOptions) ([]*catalog.Share, bool, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, name, active, description FROM shares
		 WHERE active = 1 AND name > ? ORDER BY name, id LIMIT ?`,
		opts.After, limitPlusOne(opts.Limit))
	if err != nil {
		return nil, false, errtypes.TemporarilyUnavailable(err.Error())
	}
	defer rows.Close()

	items := []*catalog.Share{}
	for rows.Next() {
		s := &catalog.Share{}
		if err := rows.Scan(&s.ID, &s.Name, &s.Active, &s.Description); err != nil {
			return nil, false, errors.Wrap(err, "sql: error scanning share")
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, false, errtypes.TemporarilyUnavailable(err.Error())
	}
	items, hasMore := trimShares(items, opts.Limit)
	return items, hasMore, nil
}

func (m *mgr) GetShare(ctx context.Context, name string) (*catalog.Share, error) {
	s := &catalog.Share{}
	err := m.db.QueryRowContext(ctx,
		`SELECT id, name, active, description FROM shares WHERE active = 1 AND name = ?`, name).
		Scan(&s.ID, &s.Name, &s.Active, &s.Description)
	if err == dbsql.ErrNoRows {
		return nil, errtypes.NotFound("share:" + name)
	}
	if err != nil {
		return nil, errtypes.TemporarilyUnavailable(err.Error())
	}
	return s, nil
}

func (m *mgr) ListSchemas(ctx context.Context, share string, opts catalog.ListOptions) ([]*catalog.Schema, bool, error) {
	if _, err := m.GetShare(ctx, share); err != nil {
		return nil, false, err
	}
	rows, err := m.db.QueryContext(ctx,
		`SELECT name, share, description FROM schemas
		 WHERE share = ? AND name > ? ORDER BY name LIMIT ?`,
		share, opts.After, limitPlusOne(opts.Limit))
	if err != nil {
		return nil, false, errtypes.TemporarilyUnavailable(err.Error())
	}
	defer rows.Close()

	items := []*catalog.Schema{}
	for rows.Next() {
		s := &catalog.Schema{}
		if err := rows.Scan(&s.Name, &s.Share, &s.Description); err != nil {
			return nil, false, errors.Wrap(err, "sql: error scanning schema")
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, false, errtypes.TemporarilyUnavailable(err.Error())
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		return items[:opts.Limit], true, nil
	}
	return items, false, nil
}

func (m *mgr) ListTables(ctx context.Context, share, schema string, opts catalog.ListOptions) ([]*catalog.Table, bool, error) {
	if _, err := m.GetShare(ctx, share); err != nil {
		return nil, false, err
	}
	return m.queryTables(ctx,
		`SELECT id, name, schema_name, share, storage_uri, format, share_as_view FROM tables
		 WHERE share = ? AND schema_name = ? AND name > ? ORDER BY name, id LIMIT ?`,
		opts.Limit, share, schema, opts.After, limitPlusOne(opts.Limit))
}

func (m *mgr) ListAllTables(ctx context.Context, share string, opts catalog.ListOptions) ([]*catalog.Table, bool, error) {
	if _, err := m.GetShare(ctx, share); err != nil {
		return nil, false, err
	}
	return m.queryTables(ctx,
		`SELECT id, name, schema_name, share, storage_uri, format, share_as_view FROM tables
		 WHERE share = ? AND name > ? ORDER BY name, id LIMIT ?`,
		opts.Limit, share, opts.After, limitPlusOne(opts.Limit))
}

func (m *mgr) ResolveTable(ctx context.Context, share, schema, table string) (*catalog.Table, error) {
	if _, err := m.GetShare(ctx, share); err != nil {
		return nil, err
	}
	t := &catalog.Table{}
	err := m.db.QueryRowContext(ctx,
		`SELECT id, name, schema_name, share, storage_uri, format, share_as_view FROM tables
		 WHERE share = ? AND schema_name = ? AND name = ?`, share, schema, table).
		Scan(&t.ID, &t.Name, &t.Schema, &t.Share, &t.StorageURI, &t.Format, &t.ShareAsView)
	if err == dbsql.ErrNoRows {
		return nil, errtypes.NotFound("table:" + share + "/" + schema + "/" + table)
	}
	if err != nil {
		return nil, errtypes.TemporarilyUnavailable(err.Error())
	}
	return t, nil
}

func (m *mgr) queryTables(ctx context.Context, q string, limit int, args ...interface{}) ([]*catalog.Table, bool, error) {
	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, false, errtypes.TemporarilyUnavailable(err.Error())
	}
	defer rows.Close()

	items := []*catalog.Table{}
	for rows.Next() {
		t := &catalog.Table{}
		if err := rows.Scan(&t.ID, &t.Name, &t.Schema, &t.Share, &t.StorageURI, &t.Format, &t.ShareAsView); err != nil {
			return nil, false, errors.Wrap(err, "sql: error scanning table")
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, false, errtypes.TemporarilyUnavailable(err.Error())
	}
	if limit > 0 && len(items) > limit {
		return items[:limit], true, nil
	}
	return items, false, nil
}

func limitPlusOne(limit int) int {
	if limit <= 0 {
		return -1 // no LIMIT
	}
	return limit + 1
}

func trimShares(items []*catalog.Share, limit int) ([]*catalog.Share, bool) {
	if limit > 0 && len(items) > limit {
		return items[:limit], true
	}
	return items, false
}
