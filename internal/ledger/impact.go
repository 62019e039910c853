// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package ledger

import (
	"fmt"
	"strings"

	"github.com/samber/oops"

	"github.com/adjudicator/adjudicator/internal/dice"
)

// CodeInvalidAspect is returned for unknown damage aspects.
const CodeInvalidAspect = "LEDGER_INVALID_ASPECT"

// Aspect tags the kind of harm an impact inflicts.
type Aspect string

// Known aspects.
const (
	AspectBlunt    Aspect = "blunt"
	AspectEdged    Aspect = "edged"
	AspectPiercing Aspect = "piercing"
	AspectFire     Aspect = "fire"
	AspectCold     Aspect = "cold"
	AspectElectric Aspect = "electric"
	AspectPoison   Aspect = "poison"
	AspectMental   Aspect = "mental"
)

// Aspects lists every known aspect.
func Aspects() []Aspect {
	return []Aspect{AspectBlunt, AspectEdged, AspectPiercing, AspectFire, AspectCold, AspectElectric, AspectPoison, AspectMental}
}

// Valid reports whether a is a known aspect. The zero value is valid and means untyped.
func (a Aspect) Valid() bool {
	if a == "" {
		return true
	}
	for _, known := range Aspects() {
		if a == known {
			return true
		}
	}
	return false
}

// UnmarshalText rejects unknown aspects.
func (a *Aspect) UnmarshalText(text []byte) error {
	v := Aspect(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return oops.Code(CodeInvalidAspect).With("aspect", string(text)).Errorf("unknown aspect %q", text)
	}
	*a = v
	return nil
}

// Impact is the ledger used to compute how hard a delivered blow lands. It
// plays no part in deciding success.
type Impact struct {
	Modifier

	DieSize int    `json:"die_size,omitempty"`
	Aspect  Aspect `json:"aspect,omitempty"`
}

// NewImpact returns an impact ledger.
func NewImpact(name string, base, dieSize int, aspect Aspect) *Impact {
	return &Impact{Modifier: Modifier{Name: name, Base: base}, DieSize: dieSize, Aspect: aspect}
}

// ImpactRoll is the result of rolling an impact ledger.
type ImpactRoll struct {
	Die    int    `json:"die"`
	Flat   int    `json:"flat"`
	Total  int    `json:"total"`
	Aspect Aspect `json:"aspect,omitempty"`
}

// Roll draws the impact die (if any) and adds the constrained flat value.
// The total never drops below zero.
func (i *Impact) Roll(src dice.Source) (ImpactRoll, error) {
	r := ImpactRoll{Flat: i.Constrained(), Aspect: i.Aspect}
	if i.DieSize > 0 {
		v, err := dice.Die(src, i.DieSize)
		if err != nil {
			return ImpactRoll{}, oops.In("ledger").With("ledger", i.Name).Wrap(err)
		}
		r.Die = v
	}
	r.Total = max(r.Die+r.Flat, 0)
	return r, nil
}

// Expression renders the impact as dice notation, e.g. "1d8+3 edged".
func (i *Impact) Expression() string {
	var b strings.Builder
	flat := i.Constrained()
	switch {
	case i.DieSize > 0 && flat != 0:
		fmt.Fprintf(&b, "1d%d%+d", i.DieSize, flat)
	case i.DieSize > 0:
		fmt.Fprintf(&b, "1d%d", i.DieSize)
	default:
		fmt.Fprintf(&b, "%d", flat)
	}
	if i.Aspect != "" {
		b.WriteString(" ")
		b.WriteString(string(i.Aspect))
	}
	return b.String()
}

// Clone returns a deep copy.
func (i *Impact) Clone() *Impact {
	if i == nil {
		return nil
	}
	out := *i
	out.Modifier = *i.Modifier.Clone()
	return &out
}
