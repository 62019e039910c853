// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package wire

import (
	"github.com/adjudicator/adjudicator/internal/ledger"
)

// ModifierPayload carries a modifier ledger with its provenance.
type ModifierPayload struct {
	Name           string         `json:"name"`
	Base           int            `json:"base"`
	Entries        []ledger.Entry `json:"entries,omitempty"`
	DisabledReason string         `json:"disabled_reason,omitempty"`
	DisabledBy     string         `json:"disabled_by,omitempty"`
	Min            *ledger.Bound  `json:"min,omitempty"`
	Max            *ledger.Bound  `json:"max,omitempty"`
	Computed       map[string]int `json:"computed,omitempty"`
	// Effective is informational; decoding recomputes it.
	Effective int `json:"effective"`
}

// MasteryPayload adds critical digits, level offset and luck.
type MasteryPayload struct {
	Ledger             ModifierPayload `json:"ledger"`
	CriticalSuccess    []int           `json:"critical_success"`
	CriticalFailure    []int           `json:"critical_failure"`
	SuccessLevelOffset int             `json:"success_level_offset,omitempty"`
	Luck               *Envelope       `json:"luck,omitempty"`
}

// ImpactPayload adds the impact die and aspect.
type ImpactPayload struct {
	Ledger  ModifierPayload `json:"ledger"`
	DieSize int             `json:"die_size,omitempty"`
	Aspect  string          `json:"aspect,omitempty" jsonschema:"enum=blunt,enum=edged,enum=piercing,enum=fire,enum=cold,enum=electric,enum=poison,enum=mental"`
}

// SuccessPayload is a success test: its mastery snapshot and roll. Level is
// written for readers and checked against the recomputed level on decode.
type SuccessPayload struct {
	Actor     string   `json:"actor"`
	Mastery   Envelope `json:"mastery"`
	Roll      int      `json:"roll,omitempty"`
	Evaluated bool     `json:"evaluated"`
	Level     *int     `json:"level,omitempty"`
}

// OpposedPayload is an opposed test. Target is absent until resumed.
type OpposedPayload struct {
	ID          string    `json:"id"`
	Source      Envelope  `json:"source"`
	Target      *Envelope `json:"target,omitempty"`
	TargetActor string    `json:"target_actor"`
	TieBreak    string    `json:"tie_break" jsonschema:"enum=none,enum=lower-roll"`
	BreakTies   bool      `json:"break_ties"`
	CoinFlip    string    `json:"coin_flip,omitempty" jsonschema:"enum=heads,enum=tails"`
	Outcome     string    `json:"outcome,omitempty"`
}

// CombatPayload adds the defense type.
type CombatPayload struct {
	OpposedPayload
	Defense string `json:"defense" jsonschema:"enum=block,enum=counterstrike,enum=dodge,enum=ignore-defense"`
}
