// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package resolve

import "github.com/adjudicator/adjudicator/internal/ledger"

// SuccessLevel is the four-point ordinal outcome of a success test.
type SuccessLevel int

// Success levels, ordered worst to best.
const (
	CriticalFailure SuccessLevel = -1
	MarginalFailure SuccessLevel = 0
	MarginalSuccess SuccessLevel = 1
	CriticalSuccess SuccessLevel = 2
)

// Description returns the presentation name of the level.
func (l SuccessLevel) Description() string {
	switch {
	case l <= CriticalFailure:
		return "critical-failure"
	case l == MarginalFailure:
		return "marginal-failure"
	case l == MarginalSuccess:
		return "marginal-success"
	default:
		return "critical-success"
	}
}

// String implements fmt.Stringer.
func (l SuccessLevel) String() string {
	return l.Description()
}

func clampLevel(l, lo, hi SuccessLevel) SuccessLevel {
	return max(lo, min(hi, l))
}

// classify maps a roll against a mastery snapshot onto a success level.
// It reports whether the mastery allows criticals.
func classify(roll int, m *ledger.Mastery) (SuccessLevel, bool) {
	baseSuccess := roll <= m.Constrained()
	criticalAllowed := m.CriticalsAllowed()
	d := roll % 10

	var level SuccessLevel
	switch {
	case baseSuccess && criticalAllowed && m.CriticalSuccess.Has(d):
		level = CriticalSuccess
	case baseSuccess:
		level = MarginalSuccess
	case criticalAllowed && m.CriticalFailure.Has(d):
		level = CriticalFailure
	default:
		level = MarginalFailure
	}

	level += SuccessLevel(m.SuccessLevelOffset)
	if criticalAllowed {
		level = clampLevel(level, CriticalFailure, CriticalSuccess)
	} else {
		level = clampLevel(level, MarginalFailure, MarginalSuccess)
	}
	return level, criticalAllowed
}
