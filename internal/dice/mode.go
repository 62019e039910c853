// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package dice

import "github.com/samber/oops"

// Mode selects how a Source is constructed from configuration.
type Mode string

// Supported modes.
const (
	// ModeCrypto draws from crypto/rand.
	ModeCrypto Mode = "crypto"
	// ModeSeeded uses a fixed, configured seed so sessions replay exactly.
	ModeSeeded Mode = "seeded"
	// ModeSeededRandom seeds a deterministic generator from crypto/rand once.
	ModeSeededRandom Mode = "seeded-random"
)

// FromMode builds a Source for the given mode. The returned seed is the one in
// use for seeded modes and zero for ModeCrypto.
func FromMode(mode Mode, seed int64) (Source, int64, error) {
	switch mode {
	case ModeCrypto, "":
		return NewCrypto(), 0, nil
	case ModeSeeded:
		return NewSeeded(seed), seed, nil
	case ModeSeededRandom:
		s, err := NewSeed()
		if err != nil {
			return nil, 0, err
		}
		return NewSeeded(s), s, nil
	default:
		return nil, 0, oops.Code("DICE_INVALID_MODE").With("mode", string(mode)).Errorf("unknown dice mode %q", mode)
	}
}
