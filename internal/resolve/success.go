// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

// Package resolve is the test resolution engine: d100 roll-under success
// tests, two-party opposed tests, and combat outcome resolution.
//
// Every test owns a deep copy of the ledgers it was built from. Evaluation is
// idempotent: once a roll exists it is never redrawn.
package resolve

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/adjudicator/adjudicator/internal/dice"
	"github.com/adjudicator/adjudicator/internal/ledger"
	"github.com/adjudicator/adjudicator/pkg/errutil"
)

var tracer = otel.Tracer("github.com/adjudicator/adjudicator/internal/resolve")

// DisabledRoll is the forced roll of a disabled ledger: the worst outcome.
const DisabledRoll = dice.PercentileSides

// SuccessTest rolls d100 under a mastery ledger.
type SuccessTest struct {
	actor   Actor
	mastery *ledger.Mastery

	roll            int
	level           SuccessLevel
	criticalAllowed bool
	evaluated       bool
}

// NewSuccessTest snapshots m for actor.
func NewSuccessTest(m *ledger.Mastery, actor Actor) (*SuccessTest, error) {
	if m == nil {
		return nil, oops.Code(CodeMissingLedger).
			In("resolve").
			With("actor", string(actor)).
			Hint("success tests need a mastery ledger").
			Errorf("missing mastery ledger")
	}
	return &SuccessTest{actor: actor, mastery: m.Clone()}, nil
}

// LuckTest builds a success test from the mastery's luck sub-ledger.
func LuckTest(m *ledger.Mastery, actor Actor) (*SuccessTest, error) {
	if m == nil {
		return NewSuccessTest(nil, actor)
	}
	luck, ok := m.LuckLedger()
	if !ok {
		return nil, oops.Code(CodeMissingLedger).
			In("resolve").
			With("actor", string(actor)).
			With("ledger", m.Name).
			Errorf("mastery has no luck ledger")
	}
	return NewSuccessTest(luck, actor)
}

// RestoreSuccessTest rebuilds a test from a stored snapshot. A zero roll
// yields an unevaluated test; any other roll is classified immediately. A
// disabled mastery only ever restores with DisabledRoll.
func RestoreSuccessTest(m *ledger.Mastery, actor Actor, roll int) (*SuccessTest, error) {
	t, err := NewSuccessTest(m, actor)
	if err != nil {
		return nil, err
	}
	if roll == 0 {
		return t, nil
	}
	if t.mastery.Disabled() && roll != DisabledRoll {
		return nil, oops.Code(CodeInvalidRoll).
			In("resolve").
			With("actor", string(actor)).
			With("ledger", t.mastery.Name).
			With("roll", roll).
			Errorf("disabled ledger must roll %d", DisabledRoll)
	}
	if err := t.WithRoll(roll); err != nil {
		return nil, err
	}
	t.settle()
	return t, nil
}

// WithRoll presets the roll so Evaluate classifies it instead of drawing.
// Permission and confirmation still apply.
func (t *SuccessTest) WithRoll(roll int) error {
	if roll < 1 || roll > dice.PercentileSides {
		return oops.Code(CodeInvalidRoll).
			In("resolve").
			With("roll", roll).
			Errorf("roll must be within 1..%d", dice.PercentileSides)
	}
	if t.evaluated && t.roll != roll {
		return oops.Code(CodeInvalidState).
			In("resolve").
			With("roll", t.roll).
			Errorf("test already rolled")
	}
	t.roll = roll
	return nil
}

// Evaluate rolls and classifies the test. It returns false when the test was
// aborted: permission denied, confirmation cancelled, or the dice failed. An
// aborted test keeps no roll.
func (t *SuccessTest) Evaluate(ctx context.Context, env *Env) bool {
	if t.evaluated {
		return true
	}

	ctx, span := tracer.Start(ctx, "resolve.SuccessTest.Evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.String("actor", string(t.actor)),
		attribute.String("ledger", t.mastery.Name),
	)

	start := time.Now()
	logger := env.logger()
	rec := env.recorder()

	if !env.authorizer().CanAct(ctx, env.participant(), t.actor) {
		err := oops.Code(CodePermissionDenied).
			In("resolve").
			With("participant", env.participant()).
			With("actor", string(t.actor)).
			Errorf("participant may not act for actor")
		errutil.LogErrorContext(ctx, logger, slog.LevelInfo, "success test aborted", err)
		rec.TestAborted(string(KindSuccess), AbortPermission)
		span.SetStatus(codes.Error, "permission denied")
		return false
	}

	// Situational entries land on a working copy so an aborted roll leaves
	// the snapshot untouched.
	working := t.mastery
	if p := env.prompter(); p != nil {
		extra, err := p.Confirm(ctx, t)
		if err != nil {
			if errors.Is(err, ErrCancelled) || ctx.Err() != nil {
				logger.DebugContext(ctx, "success test cancelled", "actor", string(t.actor))
			} else {
				errutil.LogErrorContext(ctx, logger, slog.LevelWarn, "success test confirmation failed", err)
			}
			rec.TestAborted(string(KindSuccess), AbortCancelled)
			span.SetStatus(codes.Error, "cancelled")
			return false
		}
		if len(extra) > 0 {
			working = t.mastery.Clone()
		}
		for _, e := range extra {
			var addErr error
			if e.Enabled {
				addErr = working.Add(e.Label, e.Abbrev, e.Amount)
			} else {
				addErr = working.AddDisabled(e.Label, e.Abbrev, e.Amount)
			}
			if addErr != nil {
				errutil.LogErrorContext(ctx, logger, slog.LevelWarn, "ignoring situational entry", addErr)
			}
		}
	}

	roll := t.roll
	switch {
	case working.Disabled():
		roll = DisabledRoll
	case roll == 0:
		drawn, err := dice.D100(env.dice())
		if err != nil {
			errutil.LogErrorContext(ctx, logger, slog.LevelError, "success test roll failed", err)
			rec.TestAborted(string(KindSuccess), AbortDice)
			span.RecordError(err)
			span.SetStatus(codes.Error, "dice failure")
			return false
		}
		roll = drawn
	}

	t.mastery = working
	t.roll = roll
	t.settle()

	span.SetAttributes(attribute.Int("roll", t.roll), attribute.String("level", t.level.Description()))
	logger.DebugContext(ctx, "success test evaluated",
		"actor", string(t.actor),
		"ledger", t.mastery.Name,
		"target", t.Target(),
		"roll", t.roll,
		"level", t.level.Description(),
	)
	rec.TestResolved(string(KindSuccess), t.level.Description(), time.Since(start))
	return true
}

func (t *SuccessTest) settle() {
	t.level, t.criticalAllowed = classify(t.roll, t.mastery)
	t.evaluated = true
}

// Kind implements Test.
func (*SuccessTest) Kind() Kind { return KindSuccess }

func (*SuccessTest) isTest() {}

// Actor returns the actor the test is rolled for.
func (t *SuccessTest) Actor() Actor { return t.actor }

// Mastery returns a copy of the ledger snapshot.
func (t *SuccessTest) Mastery() *ledger.Mastery { return t.mastery.Clone() }

// Roll returns the d100 roll, or zero before evaluation.
func (t *SuccessTest) Roll() int { return t.roll }

// Evaluated reports whether the test has been rolled and classified.
func (t *SuccessTest) Evaluated() bool { return t.evaluated }

// Level returns the success level. It is MarginalFailure before evaluation.
func (t *SuccessTest) Level() SuccessLevel { return t.level }

// Description returns the level's presentation name.
func (t *SuccessTest) Description() string { return t.level.Description() }

// IsSuccess reports a marginal or critical success.
func (t *SuccessTest) IsSuccess() bool {
	return t.evaluated && t.level >= MarginalSuccess
}

// IsCritical reports a critical outcome on a mastery that allows criticals.
func (t *SuccessTest) IsCritical() bool {
	return t.evaluated && t.criticalAllowed && (t.level <= CriticalFailure || t.level >= CriticalSuccess)
}

// Target is the constrained effective value the roll must not exceed.
func (t *SuccessTest) Target() int { return t.mastery.Constrained() }

// Margin is Target minus Roll, for presentation.
func (t *SuccessTest) Margin() int { return t.Target() - t.roll }

// Mishap derives fumble and stumble from a critical failure's last digit.
func (t *SuccessTest) Mishap() Mishap {
	if !t.IsCritical() || t.IsSuccess() {
		return Mishap{}
	}
	d := t.roll % 10
	return Mishap{Fumble: d == 0, Stumble: d == 5}
}

// replay rebuilds an unevaluated copy carrying the stored roll.
func (t *SuccessTest) replay() (*SuccessTest, error) {
	fresh, err := NewSuccessTest(t.mastery, t.actor)
	if err != nil {
		return nil, err
	}
	if t.roll != 0 {
		if err := fresh.WithRoll(t.roll); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}
