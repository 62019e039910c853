// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package resolve

import (
	"github.com/samber/oops"

	"github.com/adjudicator/adjudicator/internal/dice"
)

// OpposedState is everything needed to rebuild an opposed test: the child
// tests with their rolls, and the stored tie-break flip. Verdicts are never
// stored; they are recomputed.
type OpposedState struct {
	ID          string
	Source      *SuccessTest
	Target      *SuccessTest
	TargetActor Actor
	TieBreak    TieBreakPolicy
	BreakTies   bool
	CoinFlip    *dice.Side
}

// CombatState adds the defense type to OpposedState.
type CombatState struct {
	OpposedState
	Defense DefenseType
}

// State captures the test for serialization.
func (o *OpposedTest) State() OpposedState {
	st := OpposedState{
		ID:          o.id,
		Source:      o.source,
		Target:      o.target,
		TargetActor: o.targetActor,
		TieBreak:    o.tieBreak,
		BreakTies:   o.breakTies,
	}
	if o.coinFlip != nil {
		flip := *o.coinFlip
		st.CoinFlip = &flip
	}
	return st
}

// State captures the combat test for serialization.
func (c *CombatTest) State() CombatState {
	return CombatState{OpposedState: c.OpposedTest.State(), Defense: c.defense}
}

// RestoreOpposedTest rebuilds an opposed test. When both children carry
// rolls the verdict is recomputed without drawing; a tie that needed a coin
// flip must carry it.
func RestoreOpposedTest(st OpposedState) (*OpposedTest, error) {
	o, err := restoreOpposed(st)
	if err != nil {
		return nil, err
	}
	if o.source.evaluated && o.target != nil && o.target.evaluated {
		if err := o.compare(dice.Failing{Err: errMissingFlip}); err != nil {
			return nil, oops.Code(CodeInvalidState).In("resolve").With("id", st.ID).Wrap(err)
		}
	}
	return o, nil
}

// RestoreCombatTest rebuilds a combat test and recomputes its verdict when
// the required rolls are present.
func RestoreCombatTest(st CombatState) (*CombatTest, error) {
	rule, err := ruleFor(st.Defense)
	if err != nil {
		return nil, err
	}
	o, err := restoreOpposed(st.OpposedState)
	if err != nil {
		return nil, err
	}
	c := &CombatTest{OpposedTest: *o, defense: st.Defense, rule: rule, impactDeliveredBy: SideNone}

	ready := c.source.evaluated
	if rule.rollsTarget {
		ready = ready && c.target != nil && c.target.evaluated
	}
	if ready {
		if err := rule.resolve(c, dice.Failing{Err: errMissingFlip}); err != nil {
			return nil, oops.Code(CodeInvalidState).In("resolve").With("id", st.ID).Wrap(err)
		}
	}
	return c, nil
}

var errMissingFlip = oops.Errorf("tie-break flip missing from stored state")

func restoreOpposed(st OpposedState) (*OpposedTest, error) {
	o, err := NewOpposedTest(st.Source, st.TargetActor, OpposedOptions{
		ID:        st.ID,
		TieBreak:  st.TieBreak,
		BreakTies: st.BreakTies,
	})
	if err != nil {
		return nil, err
	}
	if st.CoinFlip != nil {
		flip := *st.CoinFlip
		o.coinFlip = &flip
	}
	if st.Target != nil {
		if err := o.AttachTarget(st.Target); err != nil {
			return nil, err
		}
	}
	return o, nil
}
