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

package delta

// FileEntry is one live data file of a snapshot together with its parsed
// statistics. ParsedStats is nil when the stats string was absent or did not
// parse.
type FileEntry struct {
	*Add
	ParsedStats *FileStats
}

// Snapshot is the immutable state of a table at one version: the latest
// protocol and metadata seen through that version and the set of add actions
// not superseded by a remove. Protocol and Metadata are nil for a table whose
// log directory does not exist yet.
type Snapshot struct {
	Version  int64
	Protocol *Protocol
	Metadata *Metadata
	Files    []*FileEntry

	// Timestamp is the commit timestamp of Version in milliseconds.
	Timestamp int64
}

// NumFiles returns the number of live files.
func (s *Snapshot) NumFiles() int64 {
	return int64(len(s.Files))
}

// TotalSize returns the cumulative byte size of the live files.
func (s *Snapshot) TotalSize() int64 {
	var size int64
	for _, f := range s.Files {
		size += f.Size
	}
	return size
}
