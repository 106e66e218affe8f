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

package pruning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		hint string
		want Predicate
	}{
		{`date = '2025-01-01'`, Predicate{Column: "date", Op: OpEq, Values: []Value{{Str: "2025-01-01"}}}},
		{`date == "2025-01-01"`, Predicate{Column: "date", Op: OpEq, Values: []Value{{Str: "2025-01-01"}}}},
		{`x != 5`, Predicate{Column: "x", Op: OpNe, Values: []Value{{Str: "5", Num: 5, IsNum: true}}}},
		{`x <> 5`, Predicate{Column: "x", Op: OpNe, Values: []Value{{Str: "5", Num: 5, IsNum: true}}}},
		{`x >= 1.5`, Predicate{Column: "x", Op: OpGe, Values: []Value{{Str: "1.5", Num: 1.5, IsNum: true}}}},
		{`x<10`, Predicate{Column: "x", Op: OpLt, Values: []Value{{Str: "10", Num: 10, IsNum: true}}}},
		{`region IN ('us', 'eu')`, Predicate{Column: "region", Op: OpIn, Values: []Value{{Str: "us"}, {Str: "eu"}}}},
		{`region not in ('us')`, Predicate{Column: "region", Op: OpNotIn, Values: []Value{{Str: "us"}}}},
		{`REGION In (1, 2)`, Predicate{Column: "REGION", Op: OpIn, Values: []Value{{Str: "1", Num: 1, IsNum: true}, {Str: "2", Num: 2, IsNum: true}}}},
	}
	for _, tt := range tests {
		p, err := Parse(tt.hint)
		require.NoError(t, err, tt.hint)
		assert.Equal(t, tt.want, *p, tt.hint)
	}
}

func TestParseRejectsMalformedHints(t *testing.T) {
	for _, hint := range []string{
		"",
		"date",
		"date ~ 'x'",
		"date = ",
		"x IN 1, 2",
		"x IN ()",
		"= 5",
		"x = oops",
	} {
		_, err := Parse(hint)
		assert.Error(t, err, hint)
	}
}

func TestSplitListQuoteAware(t *testing.T) {
	parts := splitList(`'a,b', "c", 3`)
	assert.Equal(t, []string{`'a,b'`, `"c"`, "3"}, parts)
}
