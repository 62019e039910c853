// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package ledger

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/samber/oops"
)

// CodeInvalidDigits is returned for digit sets outside 0-9.
const CodeInvalidDigits = "LEDGER_INVALID_DIGITS"

// DigitSet is a set of last-digit values (0-9) stored as a bitmask.
// It marshals to a sorted JSON array.
type DigitSet uint16

const allDigits DigitSet = 1<<10 - 1

// Digits builds a set, ignoring values outside 0-9.
func Digits(ds ...int) DigitSet {
	var s DigitSet
	for _, d := range ds {
		s = s.With(d)
	}
	return s
}

// With returns the set with d added. Values outside 0-9 are ignored.
func (s DigitSet) With(d int) DigitSet {
	if d < 0 || d > 9 {
		return s
	}
	return s | 1<<uint(d)
}

// Has reports whether d is in the set.
func (s DigitSet) Has(d int) bool {
	if d < 0 || d > 9 {
		return false
	}
	return s&(1<<uint(d)) != 0
}

// Union returns s ∪ o.
func (s DigitSet) Union(o DigitSet) DigitSet {
	return (s | o) & allDigits
}

// Empty reports whether no digit is set.
func (s DigitSet) Empty() bool {
	return s&allDigits == 0
}

// Slice returns the digits in ascending order.
func (s DigitSet) Slice() []int {
	out := make([]int, 0, 10)
	for d := range 10 {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// String renders the set as a compact list, e.g. "0,2-4".
func (s DigitSet) String() string {
	ds := s.Slice()
	parts := make([]string, 0, len(ds))
	for i := 0; i < len(ds); {
		j := i
		for j+1 < len(ds) && ds[j+1] == ds[j]+1 {
			j++
		}
		if j-i >= 2 {
			parts = append(parts, strconv.Itoa(ds[i])+"-"+strconv.Itoa(ds[j]))
		} else {
			for k := i; k <= j; k++ {
				parts = append(parts, strconv.Itoa(ds[k]))
			}
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}

// ParseDigits parses "1-5,0" style lists. An empty string is the empty set.
func ParseDigits(text string) (DigitSet, error) {
	var s DigitSet
	text = strings.TrimSpace(text)
	if text == "" {
		return s, nil
	}
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		from, err := parseDigit(lo, text)
		if err != nil {
			return 0, err
		}
		to := from
		if isRange {
			if to, err = parseDigit(hi, text); err != nil {
				return 0, err
			}
		}
		if to < from {
			return 0, oops.Code(CodeInvalidDigits).With("digits", text).Errorf("descending digit range %q", part)
		}
		for d := from; d <= to; d++ {
			s = s.With(d)
		}
	}
	return s, nil
}

func parseDigit(raw, text string) (int, error) {
	d, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || d < 0 || d > 9 {
		return 0, oops.Code(CodeInvalidDigits).With("digits", text).Errorf("invalid digit %q", raw)
	}
	return d, nil
}

// MarshalJSON encodes the set as a sorted array.
func (s DigitSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes a digit array, rejecting values outside 0-9.
func (s *DigitSet) UnmarshalJSON(data []byte) error {
	var ds []int
	if err := json.Unmarshal(data, &ds); err != nil {
		return oops.Code(CodeInvalidDigits).Wrap(err)
	}
	var out DigitSet
	for _, d := range ds {
		if d < 0 || d > 9 {
			return oops.Code(CodeInvalidDigits).With("digit", d).Errorf("digit out of range")
		}
		out = out.With(d)
	}
	*s = out
	return nil
}
