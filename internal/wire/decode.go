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

// Unmarshal validates data against the envelope schema and rebuilds the
// object it carries. The result is one of *ledger.Modifier, *ledger.Mastery,
// *ledger.Impact, *resolve.SuccessTest, *resolve.OpposedTest or
// *resolve.CombatTest.
func Unmarshal(data []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, oops.Code(CodeMalformed).In("wire").Wrap(err)
	}
	if !env.Kind.Valid() {
		return nil, oops.Code(CodeUnknownKind).In("wire").With("kind", string(env.Kind)).Errorf("unknown envelope kind %q", env.Kind)
	}
	if err := checkVersion(env); err != nil {
		return nil, err
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	return Decode(env)
}

// DecodeAs unmarshals data and asserts the concrete type.
func DecodeAs[T any](data []byte) (T, error) {
	var zero T
	v, err := Unmarshal(data)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, oops.Code(CodeTypeMismatch).
			In("wire").
			With("want", fmt.Sprintf("%T", zero)).
			With("got", fmt.Sprintf("%T", v)).
			Errorf("envelope holds %T", v)
	}
	return out, nil
}

// Decode rebuilds the object in an already parsed envelope.
func Decode(env Envelope) (any, error) {
	if !env.Kind.Valid() {
		return nil, oops.Code(CodeUnknownKind).In("wire").With("kind", string(env.Kind)).Errorf("unknown envelope kind %q", env.Kind)
	}
	if err := checkVersion(env); err != nil {
		return nil, err
	}
	if err := validatePayload(env.Kind, env.Payload); err != nil {
		return nil, err
	}

	switch env.Kind {
	case KindModifier:
		var p ModifierPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return p.modifier(), nil
	case KindMastery:
		var p MasteryPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return p.mastery()
	case KindImpact:
		var p ImpactPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return p.impact()
	case KindSuccess:
		var p SuccessPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return p.test()
	case KindOpposed:
		var p OpposedPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		st, err := p.state()
		if err != nil {
			return nil, err
		}
		o, err := resolve.RestoreOpposedTest(st)
		if err != nil {
			return nil, oops.Code(CodeMalformed).In("wire").With("kind", string(env.Kind)).Wrap(err)
		}
		return o, nil
	case KindCombat:
		var p CombatPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		st, err := p.state()
		if err != nil {
			return nil, err
		}
		c, err := resolve.RestoreCombatTest(resolve.CombatState{OpposedState: st, Defense: resolve.DefenseType(p.Defense)})
		if err != nil {
			return nil, oops.Code(CodeMalformed).In("wire").With("kind", string(env.Kind)).Wrap(err)
		}
		return c, nil
	default:
		return nil, oops.Code(CodeUnknownKind).In("wire").With("kind", string(env.Kind)).Errorf("no decoder for kind %q", env.Kind)
	}
}

func decodePayload(env Envelope, dst any) error {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return oops.Code(CodeMalformed).In("wire").With("kind", string(env.Kind)).Wrap(err)
	}
	return nil
}

// decodeNested decodes an embedded envelope that must be of kind want.
func decodeNested[T any](env Envelope, want Kind) (T, error) {
	var zero T
	if env.Kind != want {
		return zero, oops.Code(CodeTypeMismatch).
			In("wire").
			With("want", string(want)).
			With("got", string(env.Kind)).
			Errorf("nested envelope has kind %q, want %q", env.Kind, want)
	}
	v, err := Decode(env)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, oops.Code(CodeTypeMismatch).In("wire").With("got", fmt.Sprintf("%T", v)).Errorf("unexpected nested type")
	}
	return out, nil
}

func (p ModifierPayload) modifier() *ledger.Modifier {
	m := &ledger.Modifier{
		Name:           p.Name,
		Base:           p.Base,
		Entries:        p.Entries,
		DisabledReason: p.DisabledReason,
		DisabledBy:     p.DisabledBy,
		Min:            p.Min,
		Max:            p.Max,
		Computed:       p.Computed,
	}
	return m
}

func digitSet(name string, ds []int) (ledger.DigitSet, error) {
	var s ledger.DigitSet
	for _, d := range ds {
		if d < 0 || d > 9 {
			return 0, oops.Code(CodeMalformed).In("wire").With("field", name).With("digit", d).Errorf("digit out of range")
		}
		s = s.With(d)
	}
	return s, nil
}

func (p MasteryPayload) mastery() (*ledger.Mastery, error) {
	cs, err := digitSet("critical_success", p.CriticalSuccess)
	if err != nil {
		return nil, err
	}
	cf, err := digitSet("critical_failure", p.CriticalFailure)
	if err != nil {
		return nil, err
	}
	m := &ledger.Mastery{
		Modifier:           *p.Ledger.modifier(),
		CriticalSuccess:    cs,
		CriticalFailure:    cf,
		SuccessLevelOffset: p.SuccessLevelOffset,
	}
	if p.Luck != nil {
		luck, err := decodeNested[*ledger.Mastery](*p.Luck, KindMastery)
		if err != nil {
			return nil, err
		}
		m.Luck = luck
	}
	return m, nil
}

func (p ImpactPayload) impact() (*ledger.Impact, error) {
	var aspect ledger.Aspect
	if p.Aspect != "" {
		if err := aspect.UnmarshalText([]byte(p.Aspect)); err != nil {
			return nil, oops.Code(CodeMalformed).In("wire").Wrap(err)
		}
	}
	if p.DieSize < 0 {
		return nil, oops.Code(CodeMalformed).In("wire").With("die_size", p.DieSize).Errorf("negative die size")
	}
	return &ledger.Impact{Modifier: *p.Ledger.modifier(), DieSize: p.DieSize, Aspect: aspect}, nil
}

func (p SuccessPayload) test() (*resolve.SuccessTest, error) {
	m, err := decodeNested[*ledger.Mastery](p.Mastery, KindMastery)
	if err != nil {
		return nil, err
	}
	roll := p.Roll
	if !p.Evaluated {
		roll = 0
	} else if roll == 0 {
		return nil, oops.Code(CodeMalformed).In("wire").With("actor", p.Actor).Errorf("evaluated test without a roll")
	}
	t, err := resolve.RestoreSuccessTest(m, resolve.Actor(p.Actor), roll)
	if err != nil {
		return nil, err
	}
	if !p.Evaluated && p.Roll != 0 {
		if err := t.WithRoll(p.Roll); err != nil {
			return nil, err
		}
	}
	if p.Level != nil && t.Evaluated() && resolve.SuccessLevel(*p.Level) != t.Level() {
		return nil, oops.Code(CodeMalformed).
			In("wire").
			With("stored", *p.Level).
			With("computed", int(t.Level())).
			Errorf("stored level does not match roll")
	}
	return t, nil
}

func (p OpposedPayload) state() (resolve.OpposedState, error) {
	src, err := decodeNested[*resolve.SuccessTest](p.Source, KindSuccess)
	if err != nil {
		return resolve.OpposedState{}, err
	}
	st := resolve.OpposedState{
		ID:          p.ID,
		Source:      src,
		TargetActor: resolve.Actor(p.TargetActor),
		TieBreak:    resolve.TieBreakPolicy(p.TieBreak),
		BreakTies:   p.BreakTies,
	}
	if p.Target != nil {
		tgt, err := decodeNested[*resolve.SuccessTest](*p.Target, KindSuccess)
		if err != nil {
			return resolve.OpposedState{}, err
		}
		st.Target = tgt
	}
	switch p.CoinFlip {
	case "":
	case "heads":
		side := dice.Heads
		st.CoinFlip = &side
	case "tails":
		side := dice.Tails
		st.CoinFlip = &side
	default:
		return resolve.OpposedState{}, oops.Code(CodeMalformed).In("wire").With("coin_flip", p.CoinFlip).Errorf("unknown coin side")
	}
	return st, nil
}
