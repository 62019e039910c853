// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package rule

import (
	"math"
	"strings"
)

// Facts is the attribute bag rules read from. Values are ints, floats,
// strings, bools, or nested Facts/map[string]any.
type Facts map[string]any

// Lookup resolves a dotted path. A flat key containing dots wins over a
// nested walk.
func (f Facts) Lookup(path string) (any, bool) {
	if f == nil {
		return nil, false
	}
	if v, ok := f[path]; ok {
		return v, true
	}
	var cur any = map[string]any(f)
	for _, seg := range strings.Split(path, ".") {
		switch m := cur.(type) {
		case map[string]any:
			v, ok := m[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case Facts:
			v, ok := m[seg]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case uint:
		return int(n), true //nolint:gosec // fact values are small game numbers
	case uint64:
		return int(n), true //nolint:gosec // fact values are small game numbers
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}
