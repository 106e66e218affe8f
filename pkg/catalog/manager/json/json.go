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

// Package json provides a catalog driver backed by a single JSON file.
package json

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/openlake/delta-sharing/pkg/catalog"
	"github.com/openlake/delta-sharing/pkg/catalog/registry"
	"github.com/openlake/delta-sharing/pkg/errtypes"
	"github.com/openlake/delta-sharing/pkg/utils/cfg"
)

func init() {
	registry.Register("json", New)
}

type config struct {
	File string `mapstructure:"file" validate:"required"`
}

type model struct {
	Shares  []*catalog.Share  `json:"shares"`
	Schemas []*catalog.Schema `json:"schemas"`
	Tables  []*catalog.Table  `json:"tables"`
}

type mgr struct {
	c *config

	sync.RWMutex
	model *model
}

// New returns a catalog manager that keeps shares, schemas and tables in a
// JSON file maintained by the operator or the admin surface.
func New(m map[string]interface{}) (catalog.Catalog, error) {
	var c config
	if err := cfg.Decode(m, &c); err != nil {
		return nil, errors.Wrap(err, "json: error decoding config")
	}

	mod, err := loadOrCreate(c.File)
	if err != nil {
		return nil, errors.Wrap(err, "json: error loading the catalog file")
	}

	return &mgr{c: &c, model: mod}, nil
}

func loadOrCreate(file string) (*model, error) {
	info, err := os.Stat(file)
	if os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		if err := os.WriteFile(file, []byte("{}"), 0600); err != nil {
			return nil, errors.Wrap(err, "error opening/creating the file: "+file)
		}
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, "error reading the data")
	}

	m := &model{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Wrap(err, "error decoding catalog data from json")
	}

	changed := false
	for _, s := range m.Shares {
		if s.ID == "" {
			s.ID = uuid.New().String()
			changed = true
		}
	}
	for _, t := range m.Tables {
		if t.ID == "" {
			t.ID = uuid.New().String()
			changed = true
		}
		if t.Format == "" {
			t.Format = "parquet"
			changed = true
		}
	}
	if changed {
		if err := save(file, m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func save(file string, m *model) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "error encoding catalog to json")
	}
	if err := os.WriteFile(file, data, 0600); err != nil {
		return errors.Wrap(err, "error writing catalog file: "+file)
	}
	return nil
}

func (m *mgr) shareByName(name string) *catalog.Share {
	for _, s := range m.model.Shares {
		if s.Name == name && s.Active {
			return s
		}
	}
	return nil
}

func (m *mgr) ListShares(ctx context.Context, opts catalog.ListOptions) ([]*catalog.Share, bool, error) {
	m.RLock()
	defer m.RUnlock()

	items := make([]*catalog.Share, 0, len(m.model.Shares))
	for _, s := range m.model.Shares {
		if s.Active {
			items = append(items, s)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})
	items, hasMore := pageShares(items, opts)
	return items, hasMore, nil
}

func (m *mgr) GetShare(ctx context.Context, name string) (*catalog.Share, error) {
	m.RLock()
	defer m.RUnlock()

	if s := m.shareByName(name); s != nil {
		return s, nil
	}
	return nil, errtypes.NotFound("share:" + name)
}

func (m *mgr) ListSchemas(ctx context.Context, share string, opts catalog.ListOptions) ([]*catalog.Schema, bool, error) {
	m.RLock()
	defer m.RUnlock()

	if m.shareByName(share) == nil {
		return nil, false, errtypes.NotFound("share:" + share)
	}
	items := []*catalog.Schema{}
	for _, sc := range m.model.Schemas {
		if sc.Share == share {
			items = append(items, sc)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	items, hasMore := pageSchemas(items, opts)
	return items, hasMore, nil
}

func (m *mgr) ListTables(ctx context.Context, share, schema string, opts catalog.ListOptions) ([]*catalog.Table, bool, error) {
	m.RLock()
	defer m.RUnlock()

	if m.shareByName(share) == nil {
		return nil, false, errtypes.NotFound("share:" + share)
	}
	if !m.schemaExists(share, schema) {
		return nil, false, errtypes.NotFound("schema:" + schema)
	}
	items := []*catalog.Table{}
	for _, t := range m.model.Tables {
		if t.Share == share && t.Schema == schema {
			items = append(items, t)
		}
	}
	sortTables(items)
	items, hasMore := pageTables(items, opts)
	return items, hasMore, nil
}

func (m *mgr) ListAllTables(ctx context.Context, share string, opts catalog.ListOptions) ([]*catalog.Table, bool, error) {
	m.RLock()
	defer m.RUnlock()

	if m.shareByName(share) == nil {
		return nil, false, errtypes.NotFound("share:" + share)
	}
	items := []*catalog.Table{}
	for _, t := range m.model.Tables {
		if t.Share == share {
			items = append(items, t)
		}
	}
	sortTables(items)
	items, hasMore := pageTables(items, opts)
	return items, hasMore, nil
}

func (m *mgr) ResolveTable(ctx context.Context, share, schema, table string) (*catalog.Table, error) {
	m.RLock()
	defer m.RUnlock()

	if m.shareByName(share) == nil {
		return nil, errtypes.NotFound("share:" + share)
	}
	for _, t := range m.model.Tables {
		if t.Share == share && t.Schema == schema && t.Name == table {
			return t, nil
		}
	}
	return nil, errtypes.NotFound("table:" + share + "/" + schema + "/" + table)
}

func (m *mgr) schemaExists(share, schema string) bool {
	for _, sc := range m.model.Schemas {
		if sc.Share == share && sc.Name == schema {
			return true
		}
	}
	// schemas may exist only implicitly through their tables.
	for _, t := range m.model.Tables {
		if t.Share == share && t.Schema == schema {
			return true
		}
	}
	return false
}

func sortTables(items []*catalog.Table) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})
}

func pageShares(items []*catalog.Share, opts catalog.ListOptions) ([]*catalog.Share, bool) {
	start := 0
	for start < len(items) && opts.After != "" && items[start].Name <= opts.After {
		start++
	}
	items = items[start:]
	if opts.Limit > 0 && len(items) > opts.Limit {
		return items[:opts.Limit], true
	}
	return items, false
}

func pageSchemas(items []*catalog.Schema, opts catalog.ListOptions) ([]*catalog.Schema, bool) {
	start := 0
	for start < len(items) && opts.After != "" && items[start].Name <= opts.After {
		start++
	}
	items = items[start:]
	if opts.Limit > 0 && len(items) > opts.Limit {
		return items[:opts.Limit], true
	}
	return items, false
}

func pageTables(items []*catalog.Table, opts catalog.ListOptions) ([]*catalog.Table, bool) {
	start := 0
	for start < len(items) && opts.After != "" && items[start].Name <= opts.After {
		start++
	}
	items = items[start:]
	if opts.Limit > 0 && len(items) > opts.Limit {
		return items[:opts.Limit], true
	}
	return items, false
}
