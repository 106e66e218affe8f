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
	"context"
	"fmt"
	"strconv"

	"github.com/openlake/delta-sharing/pkg/appctx"
	"github.com/openlake/delta-sharing/pkg/delta"
)

// tolerance for numeric equality.
const tolerance = 1e-4

// Prune returns the files that could contain rows matching every hint. The
// hint list is an implicit conjunction; unparseable hints are logged and
// ignored.
func Prune(ctx context.Context, files []*delta.FileEntry, hints []string, partitionColumns []string) []*delta.FileEntry {
	if len(hints) == 0 {
		return files
	}
	log := appctx.GetLogger(ctx)

	preds := make([]*Predicate, 0, len(hints))
	for _, h := range hints {
		p, err := Parse(h)
		if err != nil {
			log.Warn().Str("hint", h).Err(err).Msg("pruning: ignoring unparseable predicate hint")
			continue
		}
		preds = append(preds, p)
	}
	if len(preds) == 0 {
		return files
	}

	partition := map[string]bool{}
	for _, c := range partitionColumns {
		partition[c] = true
	}

	kept := make([]*delta.FileEntry, 0, len(files))
	for _, f := range files {
		if keepFile(f, preds, partition) {
			kept = append(kept, f)
		}
	}
	return kept
}

// keepFile reports whether any predicate proves the file empty of matches.
func keepFile(f *delta.FileEntry, preds []*Predicate, partition map[string]bool) bool {
	for _, p := range preds {
		if partition[p.Column] {
			v, ok := f.PartitionValues[p.Column]
			if !ok || v == "" {
				// null or unknown partition value, cannot prove anything.
				continue
			}
			if !matchPartition(v, p) {
				return false
			}
			continue
		}
		if f.ParsedStats == nil {
			continue
		}
		minV, hasMin := f.ParsedStats.MinValues[p.Column]
		maxV, hasMax := f.ParsedStats.MaxValues[p.Column]
		if !hasMin || !hasMax {
			continue
		}
		if excludedByStats(minV, maxV, p) {
			return false
		}
	}
	return true
}

// matchPartition evaluates a predicate against an exact partition value.
func matchPartition(v string, p *Predicate) bool {
	switch p.Op {
	case OpEq:
		return equal(v, p.Values[0])
	case OpNe:
		return !equal(v, p.Values[0])
	case OpIn:
		for _, pv := range p.Values {
			if equal(v, pv) {
				return true
			}
		}
		return false
	case OpNotIn:
		for _, pv := range p.Values {
			if equal(v, pv) {
				return false
			}
		}
		return true
	case OpGt, OpGe, OpLt, OpLe:
		c, ok := compareString(v, p.Values[0])
		if !ok {
			return true
		}
		switch p.Op {
		case OpGt:
			return c > 0
		case OpGe:
			return c >= 0
		case OpLt:
			return c < 0
		case OpLe:
			return c <= 0
		}
	}
	return true
}

// excludedByStats applies the min/max closure. Only the provable shapes drop
// a file; everything else keeps it.
func excludedByStats(minV, maxV interface{}, p *Predicate) bool {
	switch p.Op {
	case OpEq:
		v := p.Values[0]
		if c, ok := compareStat(minV, v); ok && c > 0 { // value < min
			return true
		}
		if c, ok := compareStat(maxV, v); ok && c < 0 { // value > max
			return true
		}
	case OpGt:
		if c, ok := compareStat(maxV, p.Values[0]); ok && c <= 0 { // max <= value
			return true
		}
	case OpGe:
		if c, ok := compareStat(maxV, p.Values[0]); ok && c < 0 { // max < value
			return true
		}
	case OpLt:
		if c, ok := compareStat(minV, p.Values[0]); ok && c >= 0 { // min >= value
			return true
		}
	case OpLe:
		if c, ok := compareStat(minV, p.Values[0]); ok && c > 0 { // min > value
			return true
		}
	}
	// !=, IN and NOT IN are never provable from min/max alone.
	return false
}

// equal compares an exact string value with a predicate value, numerically
// when both sides parse as numbers.
func equal(v string, pv Value) bool {
	if pv.IsNum {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return abs(n-pv.Num) <= tolerance
		}
	}
	return v == pv.Str
}

// compareString orders an exact string value against a predicate value:
// numeric ordering when both sides are numbers, lexicographic otherwise.
func compareString(v string, pv Value) (int, bool) {
	if pv.IsNum {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return cmpFloat(n, pv.Num), true
		}
	}
	switch {
	case v < pv.Str:
		return -1, true
	case v > pv.Str:
		return 1, true
	}
	return 0, true
}

// compareStat orders a stats value (JSON-decoded) against a predicate value.
// Returns ok=false when the two are not comparable.
func compareStat(stat interface{}, pv Value) (int, bool) {
	switch s := stat.(type) {
	case float64:
		if !pv.IsNum {
			return 0, false
		}
		return cmpFloat(s, pv.Num), true
	case string:
		if pv.IsNum {
			if n, err := strconv.ParseFloat(s, 64); err == nil {
				return cmpFloat(n, pv.Num), true
			}
			return 0, false
		}
		switch {
		case s < pv.Str:
			return -1, true
		case s > pv.Str:
			return 1, true
		}
		return 0, true
	case bool:
		return compareStat(fmt.Sprintf("%t", s), pv)
	}
	return 0, false
}

func cmpFloat(a, b float64) int {
	switch {
	case abs(a-b) <= tolerance:
		return 0
	case a < b:
		return -1
	}
	return 1
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
