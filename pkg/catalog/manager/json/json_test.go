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

package json

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlake/delta-sharing/pkg/catalog"
	"github.com/openlake/delta-sharing/pkg/errtypes"
)

const fixture = `{
  "shares": [
    {"name": "sales", "active": true},
    {"name": "archive", "active": false},
    {"name": "analytics", "active": true}
  ],
  "schemas": [
    {"name": "emea", "share": "sales"},
    {"name": "apac", "share": "sales"}
  ],
  "tables": [
    {"name": "orders", "schema": "emea", "share": "sales", "storageUri": "/data/orders"},
    {"name": "refunds", "schema": "emea", "share": "sales", "storageUri": "/data/refunds"},
    {"name": "orders", "schema": "apac", "share": "sales", "storageUri": "/data/orders-apac"},
    {"name": "events", "schema": "web", "share": "analytics", "storageUri": "/data/events"}
  ]
}`

func newTestCatalog(t *testing.T) catalog.Catalog {
	t.Helper()
	file := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(file, []byte(fixture), 0600))
	c, err := New(map[string]interface{}{"file": file})
	require.NoError(t, err)
	return c
}

func TestListSharesFiltersAndSorts(t *testing.T) {
	c := newTestCatalog(t)

	items, hasMore, err := c.ListShares(context.Background(), catalog.ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, items, 2)
	assert.Equal(t, "analytics", items[0].Name)
	assert.Equal(t, "sales", items[1].Name)
	assert.NotEmpty(t, items[0].ID, "ids are assigned on load")
}

func TestListSharesPaginationConcatenation(t *testing.T) {
	c := newTestCatalog(t)

	first, hasMore, err := c.ListShares(context.Background(), catalog.ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, first, 1)

	second, hasMore, err := c.ListShares(context.Background(), catalog.ListOptions{After: first[0].Name, Limit: 1})
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, second, 1)

	full, _, err := c.ListShares(context.Background(), catalog.ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, full, append(first, second...))
}

func TestGetShare(t *testing.T) {
	c := newTestCatalog(t)

	s, err := c.GetShare(context.Background(), "sales")
	require.NoError(t, err)
	assert.Equal(t, "sales", s.Name)

	_, err = c.GetShare(context.Background(), "nope")
	assert.IsType(t, errtypes.NotFound(""), err)

	// inactive shares are invisible.
	_, err = c.GetShare(context.Background(), "archive")
	assert.IsType(t, errtypes.NotFound(""), err)
}

func TestListSchemas(t *testing.T) {
	c := newTestCatalog(t)

	items, _, err := c.ListSchemas(context.Background(), "sales", catalog.ListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "apac", items[0].Name)
	assert.Equal(t, "emea", items[1].Name)

	_, _, err = c.ListSchemas(context.Background(), "nope", catalog.ListOptions{})
	assert.IsType(t, errtypes.NotFound(""), err)
}

func TestListTables(t *testing.T) {
	c := newTestCatalog(t)

	items, _, err := c.ListTables(context.Background(), "sales", "emea", catalog.ListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "orders", items[0].Name)
	assert.Equal(t, "refunds", items[1].Name)
	assert.Equal(t, "parquet", items[0].Format, "format defaults on load")

	// schema existing only implicitly through tables is listable.
	items, _, err = c.ListTables(context.Background(), "analytics", "web", catalog.ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, _, err = c.ListTables(context.Background(), "sales", "nope", catalog.ListOptions{})
	assert.IsType(t, errtypes.NotFound(""), err)
}

func TestListAllTables(t *testing.T) {
	c := newTestCatalog(t)

	items, _, err := c.ListAllTables(context.Background(), "sales", catalog.ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestResolveTable(t *testing.T) {
	c := newTestCatalog(t)

	tbl, err := c.ResolveTable(context.Background(), "sales", "emea", "orders")
	require.NoError(t, err)
	assert.Equal(t, "/data/orders", tbl.StorageURI)

	_, err = c.ResolveTable(context.Background(), "sales", "emea", "nope")
	assert.IsType(t, errtypes.NotFound(""), err)

	_, err = c.ResolveTable(context.Background(), "archive", "any", "any")
	assert.IsType(t, errtypes.NotFound(""), err)
}

func TestLoadCreatesMissingFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "missing.json")
	c, err := New(map[string]interface{}{"file": file})
	require.NoError(t, err)

	items, _, err := c.ListShares(context.Background(), catalog.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = os.Stat(file)
	assert.NoError(t, err)
}
