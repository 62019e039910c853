// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package resolve

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"

	"github.com/adjudicator/adjudicator/internal/dice"
	"github.com/adjudicator/adjudicator/internal/ledger"
	"github.com/adjudicator/adjudicator/pkg/errutil"
)

// DefenseType is the defender's reaction to an attack.
type DefenseType string

// Defense types.
const (
	DefenseBlock         DefenseType = "block"
	DefenseCounterstrike DefenseType = "counterstrike"
	DefenseDodge         DefenseType = "dodge"
	DefenseIgnore        DefenseType = "ignore-defense"
)

// DefenseTypes lists every defense type.
func DefenseTypes() []DefenseType {
	return []DefenseType{DefenseBlock, DefenseCounterstrike, DefenseDodge, DefenseIgnore}
}

// Valid reports whether d is a known defense type.
func (d DefenseType) Valid() bool {
	_, err := ruleFor(d)
	return err == nil
}

// Advantage is a tactical advantage category.
type Advantage string

// Advantage categories.
const (
	AdvantageImpact    Advantage = "impact"
	AdvantagePrecision Advantage = "precision"
	AdvantageAction    Advantage = "action"
	AdvantageSetup     Advantage = "setup"
)

// Mishap records a critical failure's side effects.
type Mishap struct {
	Fumble  bool `json:"fumble"`
	Stumble bool `json:"stumble"`
}

// defenseRule is one variant of the defense union.
type defenseRule struct {
	// rollsTarget is false when the defender never rolls.
	rollsTarget bool
	// resolve decides the winner and who delivers impact.
	resolve func(c *CombatTest, coin dice.Source) error
	// advantages are the categories open to each winning side.
	advantages map[Side][]Advantage
}

func ruleFor(d DefenseType) (defenseRule, error) {
	switch d {
	case DefenseBlock:
		return defenseRule{
			rollsTarget: true,
			resolve:     resolveBlock,
			advantages: map[Side][]Advantage{
				SideSource: {AdvantageImpact, AdvantagePrecision, AdvantageAction},
				SideTarget: {AdvantageAction, AdvantageSetup},
			},
		}, nil
	case DefenseCounterstrike:
		return defenseRule{
			rollsTarget: true,
			resolve:     resolveCounterstrike,
			advantages: map[Side][]Advantage{
				SideSource: {AdvantageImpact, AdvantagePrecision},
				SideTarget: {AdvantageImpact, AdvantagePrecision, AdvantageAction},
			},
		}, nil
	case DefenseDodge:
		return defenseRule{
			rollsTarget: true,
			resolve:     resolveDodge,
			advantages: map[Side][]Advantage{
				SideSource: {AdvantagePrecision, AdvantageAction},
				SideTarget: {AdvantageAction, AdvantageSetup},
			},
		}, nil
	case DefenseIgnore:
		return defenseRule{
			rollsTarget: false,
			resolve:     resolveIgnore,
			advantages: map[Side][]Advantage{
				SideSource: {AdvantageImpact, AdvantagePrecision},
			},
		}, nil
	default:
		return defenseRule{}, oops.Code(CodeUnknownDefense).In("resolve").With("defense", string(d)).Errorf("unknown defense type %q", d)
	}
}

// CombatTest is an opposed test between an attacker (source) and a defender
// (target) resolved under a defense type.
type CombatTest struct {
	OpposedTest

	defense           DefenseType
	rule              defenseRule
	impactDeliveredBy Side
	defaultedTie      bool
}

// NewCombatTest starts a combat test in its request phase.
func NewCombatTest(attack *SuccessTest, defender Actor, defense DefenseType, opts OpposedOptions) (*CombatTest, error) {
	rule, err := ruleFor(defense)
	if err != nil {
		return nil, err
	}
	o, err := NewOpposedTest(attack, defender, opts)
	if err != nil {
		return nil, err
	}
	return &CombatTest{OpposedTest: *o, defense: defense, rule: rule, impactDeliveredBy: SideNone}, nil
}

// Defense returns the defense type.
func (c *CombatTest) Defense() DefenseType { return c.defense }

// NeedsTarget reports whether the defender must roll before resolution.
func (c *CombatTest) NeedsTarget() bool { return c.rule.rollsTarget }

// Evaluate rolls the attacker, then the defender when the defense requires
// it, then applies the defense rule.
func (c *CombatTest) Evaluate(ctx context.Context, env *Env) bool {
	if c.Resolved() {
		return true
	}
	ctx, span := tracer.Start(ctx, "resolve.CombatTest.Evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("id", c.id), attribute.String("defense", string(c.defense)))

	start := time.Now()
	if c.rule.rollsTarget {
		if !c.evaluateChildren(ctx, env) {
			return false
		}
	} else if !c.source.Evaluate(ctx, env) {
		return false
	}

	if err := c.rule.resolve(c, env.coin()); err != nil {
		errutil.LogErrorContext(ctx, env.logger(), slog.LevelError, "combat test resolution failed", err)
		env.recorder().TestAborted(string(KindCombat), AbortDice)
		return false
	}
	env.logger().DebugContext(ctx, "combat test resolved",
		"id", c.id,
		"defense", string(c.defense),
		"outcome", string(c.outcome),
		"impact_by", string(c.impactDeliveredBy),
		"margin", c.margin,
	)
	env.recorder().TestResolved(string(KindCombat), string(c.outcome), time.Since(start))
	return true
}

// block and counterstrike: an unbroken tie goes to the defender.
func defenderTakesTie(c *CombatTest, coin dice.Source) error {
	if err := c.compare(coin); err != nil {
		return err
	}
	if c.outcome == OutcomeTied {
		c.outcome = OutcomeTargetWins
		c.defaultedTie = true
		c.margin = 0
	}
	return nil
}

func resolveBlock(c *CombatTest, coin dice.Source) error {
	if err := defenderTakesTie(c, coin); err != nil {
		return err
	}
	c.impactDeliveredBy = SideNone
	if c.outcome == OutcomeSourceWins {
		c.impactDeliveredBy = SideSource
	}
	return nil
}

func resolveCounterstrike(c *CombatTest, coin dice.Source) error {
	if err := defenderTakesTie(c, coin); err != nil {
		return err
	}
	switch {
	case c.outcome == OutcomeSourceWins:
		c.impactDeliveredBy = SideSource
	case c.outcome == OutcomeTargetWins && !c.defaultedTie:
		c.impactDeliveredBy = SideTarget
	default:
		c.impactDeliveredBy = SideNone
	}
	return nil
}

func resolveDodge(c *CombatTest, coin dice.Source) error {
	if err := c.compare(coin); err != nil {
		return err
	}
	c.impactDeliveredBy = SideNone
	if c.outcome == OutcomeSourceWins && !c.tieBroken {
		c.impactDeliveredBy = SideSource
	}
	return nil
}

// The defender never rolls. Any attack at marginal failure or better lands.
func resolveIgnore(c *CombatTest, _ dice.Source) error {
	if !c.source.evaluated {
		return oops.Code(CodeInvalidState).In("resolve").With("id", c.id).Errorf("attacker not evaluated")
	}
	if c.source.level >= MarginalFailure {
		c.outcome = OutcomeSourceWins
		c.margin = int(c.source.level - MarginalFailure)
		c.impactDeliveredBy = SideSource
		return nil
	}
	c.outcome = OutcomeTargetWins
	c.margin = 0
	c.impactDeliveredBy = SideNone
	return nil
}

// Replay rebuilds the combat test from stored snapshots and rolls and
// evaluates it again.
func (c *CombatTest) Replay(ctx context.Context, env *Env) (*CombatTest, bool, error) {
	o, err := c.fresh()
	if err != nil {
		return nil, false, err
	}
	out := &CombatTest{OpposedTest: *o, defense: c.defense, rule: c.rule, impactDeliveredBy: SideNone}
	return out, out.Evaluate(ctx, env), nil
}

// Kind implements Test.
func (*CombatTest) Kind() Kind { return KindCombat }

func (*CombatTest) isTest() {}

// ImpactDeliveredBy returns the side that lands impact, or SideNone.
func (c *CombatTest) ImpactDeliveredBy() Side { return c.impactDeliveredBy }

// TieDefaulted reports that the defender won an unbroken tie.
func (c *CombatTest) TieDefaulted() bool { return c.defaultedTie }

// AttackerMishap derives the attacker's fumble and stumble.
func (c *CombatTest) AttackerMishap() Mishap { return c.source.Mishap() }

// DefenderMishap derives the defender's fumble and stumble. A defender who
// never rolled cannot mishap.
func (c *CombatTest) DefenderMishap() Mishap {
	if !c.rule.rollsTarget || c.target == nil {
		return Mishap{}
	}
	return c.target.Mishap()
}

// Fumble reports a fumble by either side.
func (c *CombatTest) Fumble() bool {
	return c.AttackerMishap().Fumble || c.DefenderMishap().Fumble
}

// Stumble reports a stumble by either side.
func (c *CombatTest) Stumble() bool {
	return c.AttackerMishap().Stumble || c.DefenderMishap().Stumble
}

// TacticalAdvantages returns the categories open to the winner. It is empty
// when the winner earned no advantages.
func (c *CombatTest) TacticalAdvantages() []Advantage {
	if c.TacticalAdvantageCount() == 0 {
		return nil
	}
	return slices.Clone(c.rule.advantages[c.Winner()])
}

// ImpactResult is the impact rolled by the delivering side.
type ImpactResult struct {
	DeliveredBy Side              `json:"delivered_by"`
	Roll        ledger.ImpactRoll `json:"roll"`
}

// DeliverImpact rolls the impact ledger of the side that delivers impact.
// It returns a zero result when nobody does.
func (c *CombatTest) DeliverImpact(src dice.Source, attacker, defender *ledger.Impact) (ImpactResult, error) {
	res := ImpactResult{DeliveredBy: c.impactDeliveredBy}
	var imp *ledger.Impact
	switch c.impactDeliveredBy {
	case SideSource:
		imp = attacker
	case SideTarget:
		imp = defender
	default:
		res.DeliveredBy = SideNone
		return res, nil
	}
	if imp == nil {
		return ImpactResult{}, oops.Code(CodeMissingLedger).
			In("resolve").
			With("id", c.id).
			With("side", string(c.impactDeliveredBy)).
			Errorf("missing impact ledger for delivering side")
	}
	roll, err := imp.Roll(src)
	if err != nil {
		return ImpactResult{}, err
	}
	res.Roll = roll
	return res, nil
}
