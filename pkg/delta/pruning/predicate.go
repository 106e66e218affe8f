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

// Package pruning drops data files that provably cannot contain rows matching
// the client's predicate hints. It is conservative: a file is kept whenever
// the available information does not rule it out.
package pruning

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/openlake/delta-sharing/pkg/errtypes"
)

// Op is a predicate operator.
type Op string

// Supported operators.
const (
	OpEq    Op = "="
	OpNe    Op = "!="
	OpGt    Op = ">"
	OpGe    Op = ">="
	OpLt    Op = "<"
	OpLe    Op = "<="
	OpIn    Op = "IN"
	OpNotIn Op = "NOT IN"
)

// Value is a parsed predicate operand. Num is valid when IsNum is set; Str is
// always the textual form.
type Value struct {
	Str   string
	Num   float64
	IsNum bool
}

// Predicate is one parsed hint. Values holds a single element except for IN
// and NOT IN.
type Predicate struct {
	Column string
	Op     Op
	Values []Value
}

// hintRE matches `COL OP VALUE`. Longer operators come first so `>=` is not
// read as `>`.
var hintRE = regexp.MustCompile(`(?is)^\s*([a-z_][a-z0-9_.]*)\s*(==|=|!=|<>|>=|<=|>|<|not\s+in|in)\s*(.+?)\s*$`)

// Parse parses a predicate hint of the form `COL OP VALUE`.
func Parse(hint string) (*Predicate, error) {
	m := hintRE.FindStringSubmatch(hint)
	if m == nil {
		return nil, errtypes.BadRequest("unparseable predicate hint: " + hint)
	}

	op, err := normalizeOp(m[2])
	if err != nil {
		return nil, err
	}

	rawVal := m[3]
	p := &Predicate{Column: m[1], Op: op}
	if op == OpIn || op == OpNotIn {
		vals, err := parseList(rawVal)
		if err != nil {
			return nil, err
		}
		p.Values = vals
		return p, nil
	}

	v, err := parseScalar(rawVal)
	if err != nil {
		return nil, err
	}
	p.Values = []Value{v}
	return p, nil
}

func normalizeOp(s string) (Op, error) {
	switch strings.ToUpper(strings.Join(strings.Fields(s), " ")) {
	case "=", "==":
		return OpEq, nil
	case "!=", "<>":
		return OpNe, nil
	case ">":
		return OpGt, nil
	case ">=":
		return OpGe, nil
	case "<":
		return OpLt, nil
	case "<=":
		return OpLe, nil
	case "IN":
		return OpIn, nil
	case "NOT IN":
		return OpNotIn, nil
	}
	return "", errtypes.BadRequest("unknown operator: " + s)
}

// parseScalar parses a decimal integer, a decimal fraction, or a single- or
// double-quoted string.
func parseScalar(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return Value{Str: s[1 : len(s)-1]}, nil
		}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return Value{Str: s, Num: n, IsNum: true}, nil
	}
	return Value{}, errtypes.BadRequest("unparseable value: " + s)
}

// parseList parses a parenthesized comma-separated list of scalars.
func parseList(s string) ([]Value, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return nil, errtypes.BadRequest("expected parenthesized list: " + s)
	}
	inner := s[1 : len(s)-1]
	parts := splitList(inner)
	if len(parts) == 0 {
		return nil, errtypes.BadRequest("empty list: " + s)
	}
	vals := make([]Value, 0, len(parts))
	for _, p := range parts {
		v, err := parseScalar(p)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

// splitList splits on commas outside quotes.
func splitList(s string) []string {
	parts := []string{}
	var b strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			b.WriteByte(c)
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
		case c == ',':
			if p := strings.TrimSpace(b.String()); p != "" {
				parts = append(parts, p)
			}
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	if p := strings.TrimSpace(b.String()); p != "" {
		parts = append(parts, p)
	}
	return parts
}
