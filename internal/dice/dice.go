// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

// Package dice provides the injectable randomness used by the resolution engine.
//
// Every draw goes through a Source so that live play, seeded replays, and tests
// can swap the generator without touching resolution logic.
package dice

import (
	"math/rand"
	"sync"

	"github.com/samber/oops"
)

// Error codes for dice failures.
const (
	CodeDiceFailure   = "DICE_FAILURE"
	CodeInvalidSides  = "DICE_INVALID_SIDES"
	CodeScriptExhaust = "DICE_SCRIPT_EXHAUSTED"
)

// PercentileSides is the size of the roll-under die used by success tests.
const PercentileSides = 100

// Source is the randomness provider for dice rolls.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Intn returns a random int in [0, n). n must be positive.
	Intn(n int) (int, error)
}

// Side is the outcome of a coin flip.
type Side bool

// Coin sides.
const (
	Heads Side = true
	Tails Side = false
)

// Die rolls a single die with the given number of sides, returning [1, sides].
func Die(src Source, sides int) (int, error) {
	if sides <= 0 {
		return 0, oops.Code(CodeInvalidSides).With("sides", sides).Errorf("die must have positive sides")
	}
	if src == nil {
		return 0, oops.Code(CodeDiceFailure).Errorf("no random source configured")
	}
	v, err := src.Intn(sides)
	if err != nil {
		return 0, oops.Code(CodeDiceFailure).With("sides", sides).Wrap(err)
	}
	return v + 1, nil
}

// D100 rolls the percentile die, returning [1, 100].
func D100(src Source) (int, error) {
	return Die(src, PercentileSides)
}

// Flip draws a fair coin.
func Flip(src Source) (Side, error) {
	v, err := Die(src, 2)
	if err != nil {
		return Tails, err
	}
	return v == 1, nil
}

// seeded wraps math/rand with a mutex so a single seeded stream can be shared.
type seeded struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeeded returns a deterministic source. The same seed always yields the
// same sequence of draws.
func NewSeeded(seed int64) Source {
	return &seeded{rng: rand.New(rand.NewSource(seed))} //nolint:gosec // deterministic replay is the point
}

func (s *seeded) Intn(n int) (int, error) {
	if n <= 0 {
		return 0, oops.Code(CodeInvalidSides).With("n", n).Errorf("n must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n), nil
}
