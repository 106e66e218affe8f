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

// Package registry holds the storage driver registry and the scheme router
// that picks a driver for a table's storage URI.
package registry

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/openlake/delta-sharing/pkg/errtypes"
	"github.com/openlake/delta-sharing/pkg/storage"
)

// NewFunc is the function that storage drivers register at init time.
type NewFunc func(conf map[string]interface{}) (storage.FS, error)

// NewFuncs is a map containing all the registered storage drivers.
var NewFuncs = map[string]NewFunc{}

// Register registers a new storage driver new function.
// Not safe for concurrent use. Safe for use from package init.
func Register(name string, f NewFunc) {
	NewFuncs[name] = f
}

// Router dispatches by storage-URI scheme to the configured drivers.
// URIs without a scheme are treated as local filesystem paths.
type Router struct {
	drivers map[string]storage.FS
}

// NewRouter builds the configured drivers. The conf maps driver name to its
// raw config section.
func NewRouter(conf map[string]map[string]interface{}) (*Router, error) {
	r := &Router{drivers: map[string]storage.FS{}}
	for name, c := range conf {
		f, ok := NewFuncs[name]
		if !ok {
			return nil, errtypes.NotSupported("storage driver:" + name)
		}
		fs, err := f(c)
		if err != nil {
			return nil, err
		}
		r.drivers[name] = fs
	}
	return r, nil
}

// ForURI returns the driver responsible for the given storage URI.
func (r *Router) ForURI(uri string) (storage.FS, error) {
	name := "local"
	if strings.HasPrefix(uri, "s3://") {
		name = "s3"
	}
	fs, ok := r.drivers[name]
	if !ok {
		return nil, errtypes.NotSupported("no storage driver configured for:" + uri)
	}
	return fs, nil
}

// ListDir implements storage.FS over the routed drivers.
func (r *Router) ListDir(ctx context.Context, uri, dir string) ([]storage.FileInfo, error) {
	fs, err := r.ForURI(uri)
	if err != nil {
		return nil, err
	}
	return fs.ListDir(ctx, uri, dir)
}

// Open implements storage.FS over the routed drivers.
func (r *Router) Open(ctx context.Context, uri, name string) (io.ReadCloser, error) {
	fs, err := r.ForURI(uri)
	if err != nil {
		return nil, err
	}
	return fs.Open(ctx, uri, name)
}

// Sign implements storage.FS over the routed drivers.
func (r *Router) Sign(ctx context.Context, uri, name string, ttl time.Duration) (storage.SignedURL, error) {
	fs, err := r.ForURI(uri)
	if err != nil {
		return storage.SignedURL{}, err
	}
	return fs.Sign(ctx, uri, name, ttl)
}
