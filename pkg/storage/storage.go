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

// Package storage defines the access layer for table directories: listing the
// transaction log, reading log files and minting time-bounded download URLs
// for data files.
package storage

import (
	"context"
	"io"
	"time"
)

// FileInfo describes one entry of a table directory.
type FileInfo struct {
	// Name is the path relative to the table root.
	Name    string
	Size    int64
	ModTime time.Time
}

// SignedURL is a time-bounded URL granting read access to one data file.
type SignedURL struct {
	URL                   string
	ExpirationTimestampMs int64
}

// FS gives access to the directory a table's storage URI points at.
// All names are relative to that URI.
type FS interface {
	// ListDir lists the entries of dir under the table root. A missing
	// directory yields errtypes.NotFound.
	ListDir(ctx context.Context, uri, dir string) ([]FileInfo, error)
	// Open opens a file under the table root for reading.
	Open(ctx context.Context, uri, name string) (io.ReadCloser, error)
	// Sign mints a download URL for name valid for at least ttl.
	Sign(ctx context.Context, uri, name string, ttl time.Duration) (SignedURL, error)
}
