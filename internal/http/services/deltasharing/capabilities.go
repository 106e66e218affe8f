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
	"net/http"
	"strings"

	"github.com/openlake/delta-sharing/pkg/delta"
)

// CapabilitiesHeader is the request and response header used to negotiate the
// response format.
const CapabilitiesHeader = "Delta-Sharing-Capabilities"

const (
	// FormatParquet wraps files in the classic parquet envelope with
	// structured stats.
	FormatParquet = "parquet"
	// FormatDelta wraps files in deltaSingleAction envelopes with raw stats.
	FormatDelta = "delta"
)

// capabilities is the parsed form of the request capabilities header.
type capabilities struct {
	responseFormats        []string
	readerFeatures         []string
	includeEndStreamAction bool
}

// parseCapabilities parses `k1=v1[,v2];k2=v3`. Keys and values are case
// insensitive; unknown keys are ignored. An absent header defaults to the
// parquet format without an end-stream action.
func parseCapabilities(h string) capabilities {
	c := capabilities{}
	for _, kv := range strings.Split(h, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		vals := []string{}
		for _, v := range strings.Split(parts[1], ",") {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				vals = append(vals, v)
			}
		}
		switch key {
		case "responseformat":
			c.responseFormats = vals
		case "readerfeatures":
			c.readerFeatures = vals
		case "includeendstreamaction":
			c.includeEndStreamAction = len(vals) == 1 && vals[0] == "true"
		}
	}
	return c
}

func (c capabilities) advertises(format string) bool {
	for _, f := range c.responseFormats {
		if f == format {
			return true
		}
	}
	return false
}

// responseFormat selects the format for a response over the given snapshot.
// When both formats are advertised the delta envelope is used only when the
// table requires it; clients that advertise nothing get parquet.
func (c capabilities) responseFormat(s *delta.Snapshot) string {
	parquet := c.advertises(FormatParquet)
	deltaFmt := c.advertises(FormatDelta)
	switch {
	case deltaFmt && !parquet:
		return FormatDelta
	case deltaFmt && parquet:
		if requiresDelta(s) {
			return FormatDelta
		}
		return FormatParquet
	default:
		return FormatParquet
	}
}

// requiresDelta reports whether the snapshot uses features the parquet
// envelope cannot carry, deletion vectors or column mapping.
func requiresDelta(s *delta.Snapshot) bool {
	if s == nil {
		return false
	}
	if s.Metadata != nil {
		if mode := s.Metadata.Configuration["delta.columnMapping.mode"]; mode != "" && mode != "none" {
			return true
		}
	}
	if s.Protocol != nil && s.Protocol.MinReaderVersion >= 3 {
		return true
	}
	for _, f := range s.Files {
		if f.DeletionVector != nil {
			return true
		}
	}
	return false
}

// setCapabilitiesHeader advertises both formats on every NDJSON response and
// echoes the end-stream action when the client enabled it.
func setCapabilitiesHeader(w http.ResponseWriter, c capabilities) {
	v := "responseformat=parquet,delta"
	if c.includeEndStreamAction {
		v += ";includeendstreamaction=true"
	}
	w.Header().Set(CapabilitiesHeader, v)
}
