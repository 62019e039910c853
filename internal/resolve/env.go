// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package resolve

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/adjudicator/adjudicator/internal/dice"
	"github.com/adjudicator/adjudicator/internal/ledger"
)

// Actor identifies the character a test is rolled for.
type Actor string

// Error codes raised by the engine.
const (
	CodeMissingLedger    = "CONFIG_MISSING_LEDGER"
	CodeMissingSource    = "CONFIG_MISSING_SOURCE"
	CodeMissingTarget    = "CONFIG_MISSING_TARGET"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInvalidRoll      = "WIRE_INVALID_ROLL"
	CodeTargetMismatch   = "HANDOFF_TARGET_MISMATCH"
	CodeTargetAttached   = "HANDOFF_TARGET_ATTACHED"
	CodeInvalidState     = "RESOLVE_INVALID_STATE"
	CodeUnknownDefense   = "RESOLVE_UNKNOWN_DEFENSE"
)

// Abort reasons reported to the Recorder.
const (
	AbortPermission = "permission"
	AbortCancelled  = "cancelled"
	AbortDice       = "dice"
	AbortIncomplete = "incomplete"
)

// ErrCancelled is returned by a Prompter when the user dismisses the
// confirmation step.
var ErrCancelled = errors.New("test cancelled")

// Authorizer decides whether a participant may act for an actor.
type Authorizer interface {
	CanAct(ctx context.Context, participant string, actor Actor) bool
	IsGameMaster(ctx context.Context, participant string) bool
}

// Prompter is the suspension point before a roll is drawn. It may return
// situational entries to add to the test's ledger snapshot.
type Prompter interface {
	Confirm(ctx context.Context, test *SuccessTest) ([]ledger.Entry, error)
}

// Recorder receives engine outcomes. The metrics package implements it.
type Recorder interface {
	TestResolved(kind, outcome string, elapsed time.Duration)
	TestAborted(kind, reason string)
}

// Rules are the table settings that affect resolution.
type Rules struct {
	TieBreak  TieBreakPolicy
	BreakTies bool
}

// DefaultRules breaks ties on the lower roll.
func DefaultRules() Rules {
	return Rules{TieBreak: TieBreakLowerRoll, BreakTies: true}
}

// OpposedOptions projects the rules onto opposed-test options.
func (r Rules) OpposedOptions(id string) OpposedOptions {
	return OpposedOptions{ID: id, TieBreak: r.TieBreak, BreakTies: r.BreakTies}
}

// Env is the explicit context every evaluation runs in. A zero Env is usable
// for tests that preset their rolls: it allows every action and has no dice.
type Env struct {
	Dice        dice.Source
	Coin        dice.Source
	Authorizer  Authorizer
	Prompter    Prompter
	Participant string
	Rules       Rules
	Logger      *slog.Logger
	Recorder    Recorder
}

func (e *Env) logger() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Env) recorder() Recorder {
	if e == nil || e.Recorder == nil {
		return nopRecorder{}
	}
	return e.Recorder
}

func (e *Env) authorizer() Authorizer {
	if e == nil || e.Authorizer == nil {
		return AllowAll{}
	}
	return e.Authorizer
}

// IsGameMaster reports whether the acting participant is a game master.
func (e *Env) IsGameMaster(ctx context.Context) bool {
	return e.authorizer().IsGameMaster(ctx, e.participant())
}

func (e *Env) participant() string {
	if e == nil {
		return ""
	}
	return e.Participant
}

func (e *Env) dice() dice.Source {
	if e == nil {
		return nil
	}
	return e.Dice
}

// coin falls back to the dice source when no separate coin is configured.
func (e *Env) coin() dice.Source {
	if e == nil {
		return nil
	}
	if e.Coin != nil {
		return e.Coin
	}
	return e.Dice
}

func (e *Env) prompter() Prompter {
	if e == nil {
		return nil
	}
	return e.Prompter
}

type nopRecorder struct{}

func (nopRecorder) TestResolved(string, string, time.Duration) {}
func (nopRecorder) TestAborted(string, string)                 {}

// AllowAll authorizes every participant for every actor and treats everyone
// as game master. It suits single-user tools.
type AllowAll struct{}

// CanAct always returns true.
func (AllowAll) CanAct(context.Context, string, Actor) bool { return true }

// IsGameMaster always returns true.
func (AllowAll) IsGameMaster(context.Context, string) bool { return true }

// StaticAuthorizer is a fixed ownership table. Game masters may act for any actor.
type StaticAuthorizer struct {
	Owners      map[Actor][]string
	GameMasters []string
}

// CanAct reports whether participant owns actor or is a game master.
func (a StaticAuthorizer) CanAct(ctx context.Context, participant string, actor Actor) bool {
	if participant == "" {
		return false
	}
	if a.IsGameMaster(ctx, participant) {
		return true
	}
	return slices.Contains(a.Owners[actor], participant)
}

// IsGameMaster reports whether participant is listed as a game master.
func (a StaticAuthorizer) IsGameMaster(_ context.Context, participant string) bool {
	return participant != "" && slices.Contains(a.GameMasters, participant)
}
