// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package ledger

// Mastery is the ledger consumed by success tests. On top of the modifier
// value it carries the critical digit sets, a success level offset, and an
// optional luck sub-ledger.
type Mastery struct {
	Modifier

	CriticalSuccess    DigitSet `json:"critical_success"`
	CriticalFailure    DigitSet `json:"critical_failure"`
	SuccessLevelOffset int      `json:"success_level_offset,omitempty"`
	Luck               *Mastery `json:"luck,omitempty"`
}

// NewMastery returns a mastery ledger with no criticals configured.
func NewMastery(name string, base int) *Mastery {
	return &Mastery{Modifier: Modifier{Name: name, Base: base}}
}

// CriticalsAllowed reports whether any critical digit is configured. Without
// critical digits a test can only be a marginal success or failure.
func (m *Mastery) CriticalsAllowed() bool {
	return !m.CriticalSuccess.Union(m.CriticalFailure).Empty()
}

// AdjustOffset adds delta to the success level offset.
func (m *Mastery) AdjustOffset(delta int) {
	m.SuccessLevelOffset += delta
}

// LuckLedger returns the luck sub-ledger, if any.
func (m *Mastery) LuckLedger() (*Mastery, bool) {
	if m.Luck == nil {
		return nil, false
	}
	return m.Luck, true
}

// MergeMastery folds another mastery into this one. With opts.Criticals the
// digit sets are unioned and offsets summed.
func (m *Mastery) MergeMastery(other *Mastery, opts MergeOptions) error {
	if other == nil {
		return nil
	}
	if err := m.Merge(&other.Modifier, opts); err != nil {
		return err
	}
	if opts.Criticals {
		m.CriticalSuccess = m.CriticalSuccess.Union(other.CriticalSuccess)
		m.CriticalFailure = m.CriticalFailure.Union(other.CriticalFailure)
		m.SuccessLevelOffset += other.SuccessLevelOffset
	}
	return nil
}

// Clone returns a deep copy, including the luck sub-ledger.
func (m *Mastery) Clone() *Mastery {
	if m == nil {
		return nil
	}
	out := *m
	out.Modifier = *m.Modifier.Clone()
	out.Luck = m.Luck.Clone()
	return &out
}
