// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

// Package ledger implements the modifier ledgers that every test resolves
// against: a base value plus a named, ordered list of adjustments.
//
// Ledgers are rebuilt on every recompute pass and are never persisted on
// their own; a test takes a deep copy (Clone) when it is created.
package ledger

import (
	"maps"
	"slices"

	"github.com/samber/oops"
)

// Error codes for ledger operations.
const (
	CodeInvalidEntry = "LEDGER_INVALID_ENTRY"
)

// Entry is a single named adjustment. Entries are never mutated in place by
// callers; re-adding the same abbreviation replaces the entry.
type Entry struct {
	Label   string `json:"label"`
	Abbrev  string `json:"abbrev"`
	Amount  int    `json:"amount"`
	Enabled bool   `json:"enabled"`
}

// Bound is a clamp applied to the effective value, with the entry that set it.
type Bound struct {
	Value  int    `json:"value"`
	Label  string `json:"label"`
	Abbrev string `json:"abbrev"`
}

// Modifier is the base ledger type.
//
// Effective = Base + sum of enabled entry amounts. Entry order is kept for
// display and never changes the total.
type Modifier struct {
	Name           string         `json:"name"`
	Base           int            `json:"base"`
	Entries        []Entry        `json:"entries,omitempty"`
	DisabledReason string         `json:"disabled_reason,omitempty"`
	DisabledBy     string         `json:"disabled_by,omitempty"`
	Min            *Bound         `json:"min,omitempty"`
	Max            *Bound         `json:"max,omitempty"`
	Computed       map[string]int `json:"computed,omitempty"`
}

// NewModifier returns an empty ledger with the given name and base.
func NewModifier(name string, base int) *Modifier {
	return &Modifier{Name: name, Base: base}
}

// SetBase replaces the base value.
func (m *Modifier) SetBase(v int) {
	m.Base = v
}

// Add records an enabled adjustment. Re-adding an abbreviation that already
// exists overwrites that entry in place (last write wins).
func (m *Modifier) Add(label, abbrev string, amount int) error {
	return m.put(Entry{Label: label, Abbrev: abbrev, Amount: amount, Enabled: true})
}

// AddDisabled records an adjustment for audit that does not count toward the total.
func (m *Modifier) AddDisabled(label, abbrev string, amount int) error {
	return m.put(Entry{Label: label, Abbrev: abbrev, Amount: amount, Enabled: false})
}

func (m *Modifier) put(e Entry) error {
	if e.Abbrev == "" {
		return oops.Code(CodeInvalidEntry).
			In("ledger").
			With("ledger", m.Name).
			With("label", e.Label).
			Errorf("modifier entry requires an abbreviation")
	}
	if i := m.index(e.Abbrev); i >= 0 {
		m.Entries[i] = e
		return nil
	}
	m.Entries = append(m.Entries, e)
	return nil
}

func (m *Modifier) index(abbrev string) int {
	return slices.IndexFunc(m.Entries, func(e Entry) bool { return e.Abbrev == abbrev })
}

// Remove deletes the entry with the given abbreviation, reporting whether one existed.
func (m *Modifier) Remove(abbrev string) bool {
	i := m.index(abbrev)
	if i < 0 {
		return false
	}
	m.Entries = slices.Delete(m.Entries, i, i+1)
	return true
}

// Has reports whether an entry with the abbreviation exists.
func (m *Modifier) Has(abbrev string) bool {
	return m.index(abbrev) >= 0
}

// Entry returns the entry with the abbreviation.
func (m *Modifier) Entry(abbrev string) (Entry, bool) {
	i := m.index(abbrev)
	if i < 0 {
		return Entry{}, false
	}
	return m.Entries[i], true
}

// Disable marks the ledger inert. The value still computes, but dependent
// logic must treat the ledger as forcing the worst outcome.
func (m *Modifier) Disable(label, abbrev string) {
	m.DisabledReason = label
	m.DisabledBy = abbrev
}

// Disabled reports whether Disable has been called.
func (m *Modifier) Disabled() bool {
	return m.DisabledReason != "" || m.DisabledBy != ""
}

// Floor sets a lower bound. An existing higher floor is kept.
func (m *Modifier) Floor(label, abbrev string, bound int) {
	if m.Min != nil && m.Min.Value >= bound {
		return
	}
	m.Min = &Bound{Value: bound, Label: label, Abbrev: abbrev}
}

// Ceiling sets an upper bound. An existing lower ceiling is kept.
func (m *Modifier) Ceiling(label, abbrev string, bound int) {
	if m.Max != nil && m.Max.Value <= bound {
		return
	}
	m.Max = &Bound{Value: bound, Label: label, Abbrev: abbrev}
}

// Effective returns Base plus every enabled entry.
func (m *Modifier) Effective() int {
	total := m.Base
	for _, e := range m.Entries {
		if e.Enabled {
			total += e.Amount
		}
	}
	return total
}

// Constrained returns Effective clamped to the configured bounds.
func (m *Modifier) Constrained() int {
	v := m.Effective()
	if m.Max != nil && v > m.Max.Value {
		v = m.Max.Value
	}
	if m.Min != nil && v < m.Min.Value {
		v = m.Min.Value
	}
	return v
}

// SetComputed stores a derived property alongside the ledger.
func (m *Modifier) SetComputed(name string, value int) {
	if m.Computed == nil {
		m.Computed = make(map[string]int)
	}
	m.Computed[name] = value
}

// ComputedValue returns a derived property.
func (m *Modifier) ComputedValue(name string) (int, bool) {
	v, ok := m.Computed[name]
	return v, ok
}

// MergeOptions controls how another ledger is folded into this one.
type MergeOptions struct {
	// IncludeBase adds the other ledger's base as an entry labelled with its name.
	IncludeBase bool
	// Criticals also unions critical digits and sums level offsets (mastery only).
	Criticals bool
}

// BaseAbbrev is the abbreviation used when a merged ledger's base is carried over.
func BaseAbbrev(name string) string {
	return "base:" + name
}

// Merge appends other's entries, keeping their labels and abbreviations so the
// provenance of every point stays visible. Merged entries follow the same
// overwrite policy as Add. A disabled source disables this ledger unless it is
// already disabled.
func (m *Modifier) Merge(other *Modifier, opts MergeOptions) error {
	if other == nil {
		return nil
	}
	if opts.IncludeBase {
		if err := m.Add(other.Name, BaseAbbrev(other.Name), other.Base); err != nil {
			return err
		}
	}
	for _, e := range other.Entries {
		if err := m.put(e); err != nil {
			return err
		}
	}
	if other.Disabled() && !m.Disabled() {
		m.Disable(other.DisabledReason, other.DisabledBy)
	}
	return nil
}

// Clone returns a deep copy.
func (m *Modifier) Clone() *Modifier {
	if m == nil {
		return nil
	}
	out := *m
	out.Entries = slices.Clone(m.Entries)
	out.Computed = maps.Clone(m.Computed)
	if m.Min != nil {
		b := *m.Min
		out.Min = &b
	}
	if m.Max != nil {
		b := *m.Max
		out.Max = &b
	}
	return &out
}

// Line is one row of a ledger breakdown.
type Line struct {
	Label   string
	Abbrev  string
	Amount  int
	Enabled bool
	Kind    LineKind
}

// LineKind classifies breakdown rows.
type LineKind string

// Breakdown row kinds.
const (
	LineBase     LineKind = "base"
	LineEntry    LineKind = "entry"
	LineFloor    LineKind = "floor"
	LineCeiling  LineKind = "ceiling"
	LineDisabled LineKind = "disabled"
	LineTotal    LineKind = "total"
)

// Breakdown lists why the ledger has its value: base, each entry, bounds, and
// the constrained total.
func (m *Modifier) Breakdown() []Line {
	lines := make([]Line, 0, len(m.Entries)+4)
	lines = append(lines, Line{Label: m.Name, Amount: m.Base, Enabled: true, Kind: LineBase})
	for _, e := range m.Entries {
		lines = append(lines, Line{Label: e.Label, Abbrev: e.Abbrev, Amount: e.Amount, Enabled: e.Enabled, Kind: LineEntry})
	}
	if m.Min != nil {
		lines = append(lines, Line{Label: m.Min.Label, Abbrev: m.Min.Abbrev, Amount: m.Min.Value, Enabled: true, Kind: LineFloor})
	}
	if m.Max != nil {
		lines = append(lines, Line{Label: m.Max.Label, Abbrev: m.Max.Abbrev, Amount: m.Max.Value, Enabled: true, Kind: LineCeiling})
	}
	if m.Disabled() {
		lines = append(lines, Line{Label: m.DisabledReason, Abbrev: m.DisabledBy, Kind: LineDisabled})
	}
	lines = append(lines, Line{Label: m.Name, Amount: m.Constrained(), Enabled: true, Kind: LineTotal})
	return lines
}
