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
	"crypto/md5"
	"encoding/hex"

	"github.com/openlake/delta-sharing/pkg/delta"
)

// Wire DTOs of the sharing protocol. The parquet family carries structured
// stats; the delta family wraps the original log actions and keeps stats as
// the raw JSON string.

type shareJSON struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

type schemaJSON struct {
	Name  string `json:"name"`
	Share string `json:"share"`
}

type tableJSON struct {
	Name   string `json:"name"`
	Schema string `json:"schema"`
	Share  string `json:"share"`
	ID     string `json:"id,omitempty"`
}

type listSharesResponse struct {
	Items         []shareJSON `json:"items"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
}

type getShareResponse struct {
	Share shareJSON `json:"share"`
}

type listSchemasResponse struct {
	Items         []schemaJSON `json:"items"`
	NextPageToken string       `json:"nextPageToken,omitempty"`
}

type listTablesResponse struct {
	Items         []tableJSON `json:"items"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
}

type versionResponse struct {
	DeltaTableVersion int64 `json:"deltaTableVersion"`
}

// parquet family.

type parquetProtocol struct {
	MinReaderVersion int `json:"minReaderVersion"`
}

type parquetProtocolWrapper struct {
	Protocol parquetProtocol `json:"protocol"`
}

type formatJSON struct {
	Provider string            `json:"provider"`
	Options  map[string]string `json:"options"`
}

type metadataJSON struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	Description      string            `json:"description,omitempty"`
	Format           formatJSON        `json:"format"`
	SchemaString     string            `json:"schemaString"`
	PartitionColumns []string          `json:"partitionColumns"`
	Configuration    map[string]string `json:"configuration"`
	CreatedTime      *int64            `json:"createdTime,omitempty"`
}

type parquetMetadataWrapper struct {
	MetaData metadataJSON `json:"metaData"`
}

type parquetFile struct {
	URL                 string            `json:"url"`
	ID                  string            `json:"id"`
	PartitionValues     map[string]string `json:"partitionValues"`
	Size                int64             `json:"size"`
	Stats               *delta.FileStats  `json:"stats,omitempty"`
	ExpirationTimestamp int64             `json:"expirationTimestamp"`
	Version             int64             `json:"version,omitempty"`
	Timestamp           int64             `json:"timestamp,omitempty"`
	ChangeType          string            `json:"changeType,omitempty"`
}

type parquetFileWrapper struct {
	File parquetFile `json:"file"`
}

// delta family.

type deltaProtocolInner struct {
	DeltaProtocol delta.Protocol `json:"deltaProtocol"`
}

type deltaProtocolWrapper struct {
	Protocol deltaProtocolInner `json:"protocol"`
}

type deltaMetadataInner struct {
	DeltaMetadata metadataJSON `json:"deltaMetadata"`
	Size          int64        `json:"size"`
	NumFiles      int64        `json:"numFiles"`
}

type deltaMetadataWrapper struct {
	MetaData deltaMetadataInner `json:"metaData"`
}

type deltaAdd struct {
	Path             string                `json:"path"`
	PartitionValues  map[string]string     `json:"partitionValues"`
	Size             int64                 `json:"size"`
	ModificationTime int64                 `json:"modificationTime,omitempty"`
	DataChange       bool                  `json:"dataChange"`
	Stats            string                `json:"stats,omitempty"`
	DeletionVector   *delta.DeletionVector `json:"deletionVector,omitempty"`
}

type deltaRemove struct {
	Path            string            `json:"path"`
	PartitionValues map[string]string `json:"partitionValues,omitempty"`
	Size            int64             `json:"size,omitempty"`
	DataChange      bool              `json:"dataChange"`
}

type deltaCDC struct {
	Path            string            `json:"path"`
	PartitionValues map[string]string `json:"partitionValues"`
	Size            int64             `json:"size"`
	DataChange      bool              `json:"dataChange"`
}

type deltaSingleAction struct {
	Add    *deltaAdd    `json:"add,omitempty"`
	Remove *deltaRemove `json:"remove,omitempty"`
	CDC    *deltaCDC    `json:"cdc,omitempty"`
}

type deltaFile struct {
	ID                  string            `json:"id"`
	Size                int64             `json:"size"`
	ExpirationTimestamp int64             `json:"expirationTimestamp"`
	Version             int64             `json:"version,omitempty"`
	Timestamp           int64             `json:"timestamp,omitempty"`
	DeltaSingleAction   deltaSingleAction `json:"deltaSingleAction"`
}

type deltaFileWrapper struct {
	File deltaFile `json:"file"`
}

// end-stream action, shared by both families.

type endStreamAction struct {
	RefreshToken              string `json:"refreshToken,omitempty"`
	NextPageToken             string `json:"nextPageToken,omitempty"`
	MinURLExpirationTimestamp int64  `json:"minUrlExpirationTimestamp,omitempty"`
	ErrorMessage              string `json:"errorMessage,omitempty"`
}

type endStreamActionWrapper struct {
	EndStreamAction endStreamAction `json:"endStreamAction"`
}

// fileID derives the stable file id from the log-relative path, identical
// across response formats.
func fileID(path string) string {
	sum := md5.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}

// metadataToJSON converts log metadata to the wire shape. Configuration,
// format options and partition columns are always present, possibly empty,
// never null.
func metadataToJSON(m *delta.Metadata) metadataJSON {
	out := metadataJSON{
		Format: formatJSON{Provider: "parquet", Options: map[string]string{}},
	}
	if m == nil {
		out.PartitionColumns = []string{}
		out.Configuration = map[string]string{}
		return out
	}
	out.ID = m.ID
	out.Name = m.Name
	out.Description = m.Description
	out.SchemaString = m.SchemaString
	out.CreatedTime = m.CreatedTime
	if m.Format.Provider != "" {
		out.Format.Provider = m.Format.Provider
	}
	if m.Format.Options != nil {
		out.Format.Options = m.Format.Options
	}
	out.PartitionColumns = m.PartitionColumns
	if out.PartitionColumns == nil {
		out.PartitionColumns = []string{}
	}
	out.Configuration = m.Configuration
	if out.Configuration == nil {
		out.Configuration = map[string]string{}
	}
	return out
}
