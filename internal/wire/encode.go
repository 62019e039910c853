// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package wire

import (
	"encoding/json"
	"fmt"

	"github.com/samber/oops"

	"github.com/adjudicator/adjudicator/internal/dice"
	"github.com/adjudicator/adjudicator/internal/ledger"
	"github.com/adjudicator/adjudicator/internal/resolve"
)

// Encode wraps a ledger or test in its envelope.
func Encode(v any) (Envelope, error) {
	switch x := v.(type) {
	case *ledger.Modifier:
		return newEnvelope(KindModifier, modifierPayload(x))
	case *ledger.Mastery:
		p, err := masteryPayload(x)
		if err != nil {
			return Envelope{}, err
		}
		return newEnvelope(KindMastery, p)
	case *ledger.Impact:
		return newEnvelope(KindImpact, ImpactPayload{
			Ledger:  modifierPayload(&x.Modifier),
			DieSize: x.DieSize,
			Aspect:  string(x.Aspect),
		})
	case *resolve.SuccessTest:
		p, err := successPayload(x)
		if err != nil {
			return Envelope{}, err
		}
		return newEnvelope(KindSuccess, p)
	case *resolve.CombatTest:
		st := x.State()
		op, err := opposedPayload(st.OpposedState, x.Outcome())
		if err != nil {
			return Envelope{}, err
		}
		return newEnvelope(KindCombat, CombatPayload{OpposedPayload: op, Defense: string(st.Defense)})
	case *resolve.OpposedTest:
		op, err := opposedPayload(x.State(), x.Outcome())
		if err != nil {
			return Envelope{}, err
		}
		return newEnvelope(KindOpposed, op)
	default:
		return Envelope{}, oops.Code(CodeUnknownKind).In("wire").With("type", fmt.Sprintf("%T", v)).Errorf("cannot encode %T", v)
	}
}

// Marshal encodes v and renders the envelope as JSON.
func Marshal(v any) ([]byte, error) {
	env, err := Encode(v)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, oops.Code(CodeMalformed).In("wire").Wrap(err)
	}
	return data, nil
}

func modifierPayload(m *ledger.Modifier) ModifierPayload {
	c := m.Clone()
	return ModifierPayload{
		Name:           c.Name,
		Base:           c.Base,
		Entries:        c.Entries,
		DisabledReason: c.DisabledReason,
		DisabledBy:     c.DisabledBy,
		Min:            c.Min,
		Max:            c.Max,
		Computed:       c.Computed,
		Effective:      c.Effective(),
	}
}

func masteryPayload(m *ledger.Mastery) (MasteryPayload, error) {
	p := MasteryPayload{
		Ledger:             modifierPayload(&m.Modifier),
		CriticalSuccess:    m.CriticalSuccess.Slice(),
		CriticalFailure:    m.CriticalFailure.Slice(),
		SuccessLevelOffset: m.SuccessLevelOffset,
	}
	if m.Luck != nil {
		luck, err := Encode(m.Luck)
		if err != nil {
			return MasteryPayload{}, err
		}
		p.Luck = &luck
	}
	return p, nil
}

func successPayload(t *resolve.SuccessTest) (SuccessPayload, error) {
	mastery, err := Encode(t.Mastery())
	if err != nil {
		return SuccessPayload{}, err
	}
	p := SuccessPayload{
		Actor:     string(t.Actor()),
		Mastery:   mastery,
		Roll:      t.Roll(),
		Evaluated: t.Evaluated(),
	}
	if t.Evaluated() {
		level := int(t.Level())
		p.Level = &level
	}
	return p, nil
}

func opposedPayload(st resolve.OpposedState, outcome resolve.Outcome) (OpposedPayload, error) {
	src, err := Encode(st.Source)
	if err != nil {
		return OpposedPayload{}, err
	}
	p := OpposedPayload{
		ID:          st.ID,
		Source:      src,
		TargetActor: string(st.TargetActor),
		TieBreak:    string(st.TieBreak),
		BreakTies:   st.BreakTies,
	}
	if outcome != resolve.OutcomePending {
		p.Outcome = string(outcome)
	}
	if st.Target != nil {
		tgt, err := Encode(st.Target)
		if err != nil {
			return OpposedPayload{}, err
		}
		p.Target = &tgt
	}
	if st.CoinFlip != nil {
		p.CoinFlip = coinName(*st.CoinFlip)
	}
	return p, nil
}

func coinName(s dice.Side) string {
	if s == dice.Heads {
		return "heads"
	}
	return "tails"
}
