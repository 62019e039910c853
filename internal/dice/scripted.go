// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package dice

import (
	"sync"

	"github.com/samber/oops"
)

// Scripted replays a fixed list of die faces. Each value is the face that
// Die should report, so Scripted(40) makes the next D100 return 40.
// Draws past the end of the script fail with DICE_SCRIPT_EXHAUSTED.
type Scripted struct {
	mu     sync.Mutex
	faces  []int
	cursor int
}

// NewScripted returns a source that yields the given faces in order.
func NewScripted(faces ...int) *Scripted {
	return &Scripted{faces: append([]int(nil), faces...)}
}

// Intn returns face-1 for the next scripted face.
func (s *Scripted) Intn(n int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor >= len(s.faces) {
		return 0, oops.Code(CodeScriptExhaust).With("drawn", s.cursor).Errorf("scripted dice exhausted")
	}
	face := s.faces[s.cursor]
	s.cursor++
	if face < 1 || face > n {
		return 0, oops.Code(CodeDiceFailure).
			With("face", face).
			With("sides", n).
			Errorf("scripted face out of range")
	}
	return face - 1, nil
}

// Drawn reports how many faces have been consumed.
func (s *Scripted) Drawn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Failing is a source whose every draw returns err.
type Failing struct {
	Err error
}

// Intn always fails.
func (f Failing) Intn(int) (int, error) {
	return 0, f.Err
}
