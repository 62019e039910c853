// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package resolve

import (
	"context"
	"fmt"
)

// Kind is the closed set of test variants.
type Kind string

// Test kinds.
const (
	KindSuccess Kind = "success"
	KindOpposed Kind = "opposed"
	KindCombat  Kind = "combat"
)

// Test is implemented only by *SuccessTest, *OpposedTest and *CombatTest.
type Test interface {
	Kind() Kind
	Evaluate(ctx context.Context, env *Env) bool
	isTest()
}

var (
	_ Test = (*SuccessTest)(nil)
	_ Test = (*OpposedTest)(nil)
	_ Test = (*CombatTest)(nil)
)

// Summary is the read-only view of a test handed to presentation.
type Summary struct {
	Kind        Kind         `json:"kind"`
	Evaluated   bool         `json:"evaluated"`
	Actor       Actor        `json:"actor,omitempty"`
	Ledger      string       `json:"ledger,omitempty"`
	Target      int          `json:"target,omitempty"`
	Roll        int          `json:"roll,omitempty"`
	Level       SuccessLevel `json:"level"`
	Description string       `json:"description,omitempty"`
	Success     bool         `json:"success"`
	Critical    bool         `json:"critical"`
	Disabled    string       `json:"disabled,omitempty"`

	ID            string   `json:"id,omitempty"`
	Source        *Summary `json:"source,omitempty"`
	Opponent      *Summary `json:"opponent,omitempty"`
	TargetActor   Actor    `json:"target_actor,omitempty"`
	Outcome       Outcome  `json:"outcome,omitempty"`
	Winner        Side     `json:"winner,omitempty"`
	VictoryMargin int      `json:"victory_margin,omitempty"`
	TieBroken     bool     `json:"tie_broken,omitempty"`

	Defense                DefenseType `json:"defense,omitempty"`
	ImpactDeliveredBy      Side        `json:"impact_delivered_by,omitempty"`
	Fumble                 bool        `json:"fumble,omitempty"`
	Stumble                bool        `json:"stumble,omitempty"`
	TacticalAdvantageCount int         `json:"tactical_advantage_count,omitempty"`
	TacticalAdvantages     []Advantage `json:"tactical_advantages,omitempty"`
}

// Describe builds the summary of any test variant.
func Describe(t Test) Summary {
	switch v := t.(type) {
	case *SuccessTest:
		return describeSuccess(v)
	case *CombatTest:
		s := describeOpposed(&v.OpposedTest)
		s.Kind = KindCombat
		s.Defense = v.defense
		s.ImpactDeliveredBy = v.impactDeliveredBy
		s.Fumble = v.Fumble()
		s.Stumble = v.Stumble()
		s.TacticalAdvantageCount = v.TacticalAdvantageCount()
		s.TacticalAdvantages = v.TacticalAdvantages()
		return s
	case *OpposedTest:
		return describeOpposed(v)
	default:
		panic(fmt.Sprintf("resolve: unknown test type %T", t))
	}
}

func describeSuccess(t *SuccessTest) Summary {
	s := Summary{
		Kind:      KindSuccess,
		Evaluated: t.evaluated,
		Actor:     t.actor,
		Ledger:    t.mastery.Name,
		Target:    t.Target(),
		Roll:      t.roll,
		Level:     t.level,
		Success:   t.IsSuccess(),
		Critical:  t.IsCritical(),
		Disabled:  t.mastery.DisabledReason,
	}
	if t.evaluated {
		s.Description = t.Description()
	}
	return s
}

func describeOpposed(o *OpposedTest) Summary {
	src := describeSuccess(o.source)
	s := Summary{
		Kind:          KindOpposed,
		Evaluated:     o.Resolved(),
		ID:            o.id,
		Source:        &src,
		TargetActor:   o.targetActor,
		Outcome:       o.outcome,
		Winner:        o.Winner(),
		VictoryMargin: o.VictoryMargin(),
		TieBroken:     o.tieBroken,
	}
	if o.target != nil {
		tgt := describeSuccess(o.target)
		s.Opponent = &tgt
	}
	return s
}
