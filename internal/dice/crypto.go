// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/big"

	"github.com/samber/oops"
)

type cryptoSource struct{}

// NewCrypto returns a source backed by crypto/rand. It is not replayable.
func NewCrypto() Source {
	return cryptoSource{}
}

func (cryptoSource) Intn(n int) (int, error) {
	if n <= 0 {
		return 0, oops.Code(CodeInvalidSides).With("n", n).Errorf("n must be positive")
	}
	v, err := crand.Int(crand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, oops.Code(CodeDiceFailure).Wrap(err)
	}
	return int(v.Int64()), nil
}

// NewSeed generates a high-entropy seed for a seeded source.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, oops.Code(CodeDiceFailure).With("operation", "read random seed").Wrap(err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
