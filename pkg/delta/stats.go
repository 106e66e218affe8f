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

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// FileStats is the parsed form of an add action's stats JSON string.
type FileStats struct {
	NumRecords int64                  `json:"numRecords"`
	MinValues  map[string]interface{} `json:"minValues,omitempty"`
	MaxValues  map[string]interface{} `json:"maxValues,omitempty"`
	NullCount  map[string]int64       `json:"nullCount,omitempty"`
}

// ParseStats parses the raw stats string carried by an add action.
// Callers keep the raw string around, the delta response format re-emits it
// verbatim.
func ParseStats(raw string) (*FileStats, error) {
	if raw == "" {
		return nil, nil
	}
	s := &FileStats{}
	if err := json.Unmarshal([]byte(raw), s); err != nil {
		return nil, errors.Wrap(err, "delta: error parsing file stats")
	}
	return s, nil
}
