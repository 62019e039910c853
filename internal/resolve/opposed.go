// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package resolve

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"

	"github.com/adjudicator/adjudicator/internal/dice"
	"github.com/adjudicator/adjudicator/pkg/errutil"
)

// TieBreakPolicy selects how a tied opposed test is broken.
type TieBreakPolicy string

// Tie-break policies.
const (
	// TieBreakNone keeps the tie.
	TieBreakNone TieBreakPolicy = "none"
	// TieBreakLowerRoll awards the lower roll; equal rolls flip a coin.
	TieBreakLowerRoll TieBreakPolicy = "lower-roll"
)

// Valid reports whether p is a known policy.
func (p TieBreakPolicy) Valid() bool {
	return p == TieBreakNone || p == TieBreakLowerRoll
}

// Outcome is the verdict of an opposed test.
type Outcome string

// Outcomes.
const (
	OutcomePending    Outcome = "pending"
	OutcomeSourceWins Outcome = "source-wins"
	OutcomeTargetWins Outcome = "target-wins"
	OutcomeTied       Outcome = "tied"
	OutcomeBothFail   Outcome = "both-fail"
)

// Side names a party to an opposed test.
type Side string

// Sides.
const (
	SideNone   Side = "none"
	SideSource Side = "source"
	SideTarget Side = "target"
)

// OpposedOptions configure a new opposed test.
type OpposedOptions struct {
	ID        string
	TieBreak  TieBreakPolicy
	BreakTies bool
}

// OpposedTest compares two independently evaluated success tests. The target
// test is attached in a later phase, possibly by another participant.
type OpposedTest struct {
	id          string
	source      *SuccessTest
	target      *SuccessTest
	targetActor Actor
	tieBreak    TieBreakPolicy
	breakTies   bool

	outcome   Outcome
	margin    int
	tieBroken bool
	coinFlip  *dice.Side
}

// NewOpposedTest starts an opposed test in its request phase.
func NewOpposedTest(source *SuccessTest, targetActor Actor, opts OpposedOptions) (*OpposedTest, error) {
	if source == nil {
		return nil, oops.Code(CodeMissingSource).In("resolve").Errorf("opposed test needs a source test")
	}
	if targetActor == "" {
		return nil, oops.Code(CodeMissingTarget).
			In("resolve").
			With("source_actor", string(source.actor)).
			Errorf("opposed test needs a target actor")
	}
	tb := opts.TieBreak
	if tb == "" {
		tb = TieBreakLowerRoll
	}
	if !tb.Valid() {
		return nil, oops.Code(CodeInvalidState).In("resolve").With("tie_break", string(tb)).Errorf("unknown tie-break policy")
	}
	return &OpposedTest{
		id:          opts.ID,
		source:      source,
		targetActor: targetActor,
		tieBreak:    tb,
		breakTies:   opts.BreakTies,
		outcome:     OutcomePending,
	}, nil
}

// AttachTarget supplies the defending test during the resume phase.
func (o *OpposedTest) AttachTarget(t *SuccessTest) error {
	if t == nil {
		return oops.Code(CodeMissingTarget).In("resolve").With("id", o.id).Errorf("nil target test")
	}
	if o.target != nil {
		return oops.Code(CodeTargetAttached).In("resolve").With("id", o.id).Errorf("target already attached")
	}
	if t.actor != o.targetActor {
		return oops.Code(CodeTargetMismatch).
			In("resolve").
			With("id", o.id).
			With("expected", string(o.targetActor)).
			With("actual", string(t.actor)).
			Errorf("target test is for a different actor")
	}
	o.target = t
	return nil
}

// EvaluateSource runs the request phase: only the source test is rolled.
func (o *OpposedTest) EvaluateSource(ctx context.Context, env *Env) bool {
	return o.source.Evaluate(ctx, env)
}

// Evaluate rolls the source, then the target, then compares them. It returns
// false if either child aborts or no target is attached yet.
func (o *OpposedTest) Evaluate(ctx context.Context, env *Env) bool {
	if o.Resolved() {
		return true
	}
	ctx, span := tracer.Start(ctx, "resolve.OpposedTest.Evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("id", o.id))

	start := time.Now()
	if !o.evaluateChildren(ctx, env) {
		return false
	}
	if err := o.compare(env.coin()); err != nil {
		errutil.LogErrorContext(ctx, env.logger(), slog.LevelError, "opposed test comparison failed", err)
		env.recorder().TestAborted(string(KindOpposed), AbortDice)
		return false
	}
	env.recorder().TestResolved(string(KindOpposed), string(o.outcome), time.Since(start))
	return true
}

func (o *OpposedTest) evaluateChildren(ctx context.Context, env *Env) bool {
	if !o.source.Evaluate(ctx, env) {
		return false
	}
	if o.target == nil {
		env.logger().DebugContext(ctx, "opposed test waiting for target", "id", o.id, "target_actor", string(o.targetActor))
		env.recorder().TestAborted(string(KindOpposed), AbortIncomplete)
		return false
	}
	return o.target.Evaluate(ctx, env)
}

// compare sets the outcome from two evaluated children. A coin is drawn only
// for a tie on equal rolls that must be broken and no stored flip exists.
func (o *OpposedTest) compare(coin dice.Source) error {
	src, tgt := o.source, o.target
	if !src.evaluated || tgt == nil || !tgt.evaluated {
		return oops.Code(CodeInvalidState).In("resolve").With("id", o.id).Errorf("children not evaluated")
	}

	switch {
	case !src.IsSuccess() && !tgt.IsSuccess():
		o.outcome = OutcomeBothFail
	case src.level > tgt.level:
		o.outcome = OutcomeSourceWins
	case src.level < tgt.level:
		o.outcome = OutcomeTargetWins
	default:
		o.outcome = OutcomeTied
	}

	if o.outcome != OutcomeTied || !o.breakTies || o.tieBreak != TieBreakLowerRoll {
		o.margin = o.levelMargin()
		return nil
	}

	switch {
	case src.roll < tgt.roll:
		o.outcome = OutcomeSourceWins
	case src.roll > tgt.roll:
		o.outcome = OutcomeTargetWins
	default:
		if o.coinFlip == nil {
			side, err := dice.Flip(coin)
			if err != nil {
				o.outcome = OutcomePending
				return oops.Code(dice.CodeDiceFailure).In("resolve").With("id", o.id).Wrap(err)
			}
			o.coinFlip = &side
		}
		if *o.coinFlip == dice.Heads {
			o.outcome = OutcomeSourceWins
		} else {
			o.outcome = OutcomeTargetWins
		}
	}
	o.tieBroken = true
	o.margin = o.levelMargin()
	return nil
}

func (o *OpposedTest) levelMargin() int {
	switch o.Winner() {
	case SideSource:
		return int(o.source.level - o.target.level)
	case SideTarget:
		return int(o.target.level - o.source.level)
	default:
		return 0
	}
}

// Replay rebuilds the test from its stored snapshots and rolls and evaluates
// it again. The original is left untouched.
func (o *OpposedTest) Replay(ctx context.Context, env *Env) (*OpposedTest, bool, error) {
	fresh, err := o.fresh()
	if err != nil {
		return nil, false, err
	}
	return fresh, fresh.Evaluate(ctx, env), nil
}

func (o *OpposedTest) fresh() (*OpposedTest, error) {
	src, err := o.source.replay()
	if err != nil {
		return nil, err
	}
	out := &OpposedTest{
		id:          o.id,
		source:      src,
		targetActor: o.targetActor,
		tieBreak:    o.tieBreak,
		breakTies:   o.breakTies,
		outcome:     OutcomePending,
	}
	if o.coinFlip != nil {
		flip := *o.coinFlip
		out.coinFlip = &flip
	}
	if o.target != nil {
		tgt, err := o.target.replay()
		if err != nil {
			return nil, err
		}
		out.target = tgt
	}
	return out, nil
}

// Kind implements Test.
func (*OpposedTest) Kind() Kind { return KindOpposed }

func (*OpposedTest) isTest() {}

// ID returns the test identifier, used as the hand-off request ID.
func (o *OpposedTest) ID() string { return o.id }

// Source returns the initiating test.
func (o *OpposedTest) Source() *SuccessTest { return o.source }

// Target returns the defending test, or nil during the request phase.
func (o *OpposedTest) Target() *SuccessTest { return o.target }

// TargetActor returns the actor expected to resume the test.
func (o *OpposedTest) TargetActor() Actor { return o.targetActor }

// TieBreak returns the tie-break policy.
func (o *OpposedTest) TieBreak() TieBreakPolicy { return o.tieBreak }

// BreakTies reports whether ties are broken.
func (o *OpposedTest) BreakTies() bool { return o.breakTies }

// Outcome returns the verdict.
func (o *OpposedTest) Outcome() Outcome { return o.outcome }

// Resolved reports whether a verdict exists.
func (o *OpposedTest) Resolved() bool { return o.outcome != OutcomePending && o.outcome != "" }

// SourceWins reports a source victory.
func (o *OpposedTest) SourceWins() bool { return o.outcome == OutcomeSourceWins }

// TargetWins reports a target victory.
func (o *OpposedTest) TargetWins() bool { return o.outcome == OutcomeTargetWins }

// IsTied reports an unbroken tie.
func (o *OpposedTest) IsTied() bool { return o.outcome == OutcomeTied }

// BothFail reports that neither side succeeded.
func (o *OpposedTest) BothFail() bool { return o.outcome == OutcomeBothFail }

// TieBroken reports that the winner was decided by tie-break.
func (o *OpposedTest) TieBroken() bool { return o.tieBroken }

// CoinFlip returns the stored tie-break flip, if one was drawn.
func (o *OpposedTest) CoinFlip() (dice.Side, bool) {
	if o.coinFlip == nil {
		return false, false
	}
	return *o.coinFlip, true
}

// Winner returns the winning side, or SideNone.
func (o *OpposedTest) Winner() Side {
	switch o.outcome {
	case OutcomeSourceWins:
		return SideSource
	case OutcomeTargetWins:
		return SideTarget
	default:
		return SideNone
	}
}

// VictoryMargin is the winner's level minus the loser's. It is zero without
// a winner.
func (o *OpposedTest) VictoryMargin() int { return o.margin }

// TacticalAdvantageCount is the winner's margin beyond a bare win.
func (o *OpposedTest) TacticalAdvantageCount() int {
	return advantageCount(o.VictoryMargin())
}

func advantageCount(margin int) int {
	if margin < 0 {
		margin = -margin
	}
	return max(margin-1, 0)
}
