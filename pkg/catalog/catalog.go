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

// Package catalog defines the share/schema/table namespace exposed over the
// sharing protocol and the interface drivers implement to back it.
package catalog

import (
	"context"
)

// Share is the top level of the namespace.
type Share struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Active      bool   `json:"active"`
	Description string `json:"description,omitempty"`
}

// Schema groups tables inside a share. (Name, Share) is unique.
type Schema struct {
	Name        string `json:"name"`
	Share       string `json:"share"`
	Description string `json:"description,omitempty"`
}

// Table is a shared table. (Name, Schema, Share) is unique. StorageURI points
// at the directory holding the `_delta_log` directory and the data files.
type Table struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Schema      string `json:"schema"`
	Share       string `json:"share"`
	StorageURI  string `json:"storageUri"`
	Format      string `json:"format"` // "parquet" or "delta"
	ShareAsView bool   `json:"shareAsView"`
}

// ListOptions drive pagination. After is the exclusive lower bound on the
// entity name (decoded from the page cursor); Limit caps the page size.
// Drivers order results by name ascending, ties broken by id, and may return
// hasMore=true when entries beyond the page exist.
type ListOptions struct {
	After string
	Limit int
}

// Invalidator is implemented by collaborators that want to know when a table
// changed in the catalog so dependent state can be dropped.
type Invalidator interface {
	InvalidateTable(tableID string)
}

// Catalog answers the name-resolution questions of the sharing protocol.
// Implementations must return errtypes.NotFound when a name does not resolve
// and must produce deterministic results over an unchanged backing store.
type Catalog interface {
	ListShares(ctx context.Context, opts ListOptions) (items []*Share, hasMore bool, err error)
	GetShare(ctx context.Context, name string) (*Share, error)
	ListSchemas(ctx context.Context, share string, opts ListOptions) (items []*Schema, hasMore bool, err error)
	ListTables(ctx context.Context, share, schema string, opts ListOptions) (items []*Table, hasMore bool, err error)
	ListAllTables(ctx context.Context, share string, opts ListOptions) (items []*Table, hasMore bool, err error)
	ResolveTable(ctx context.Context, share, schema, table string) (*Table, error)
}
