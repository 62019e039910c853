// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

// Package wire is the versioned hand-off format for ledgers and tests.
//
// Every object travels as an Envelope tagged with a closed Kind. Decoding
// dispatches on the kind through a fixed factory; nothing executable is ever
// reconstructed from a payload.
package wire

import (
	"encoding/json"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
)

// Version is the format version written by this package.
const Version = "1.0.0"

// compatible accepts any 1.x payload.
var compatible = mustConstraint("^1")

func mustConstraint(c string) *semver.Constraints {
	out, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return out
}

// Error codes for wire failures.
const (
	CodeUnknownKind        = "WIRE_UNKNOWN_KIND"
	CodeMalformed          = "WIRE_MALFORMED"
	CodeUnsupportedVersion = "WIRE_UNSUPPORTED_VERSION"
	CodeTypeMismatch       = "WIRE_TYPE_MISMATCH"
)

// Kind discriminates envelope payloads.
type Kind string

// Envelope kinds.
const (
	KindModifier Kind = "ledger.modifier"
	KindMastery  Kind = "ledger.mastery"
	KindImpact   Kind = "ledger.impact"
	KindSuccess  Kind = "test.success"
	KindOpposed  Kind = "test.opposed"
	KindCombat   Kind = "test.combat"
)

// Kinds lists every envelope kind.
func Kinds() []Kind {
	return []Kind{KindModifier, KindMastery, KindImpact, KindSuccess, KindOpposed, KindCombat}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindModifier, KindMastery, KindImpact, KindSuccess, KindOpposed, KindCombat:
		return true
	}
	return false
}

// Envelope is the tagged container for one object.
type Envelope struct {
	Version string          `json:"version" jsonschema:"pattern=^[0-9]+\\.[0-9]+\\.[0-9]+$"`
	Kind    Kind            `json:"kind" jsonschema:"enum=ledger.modifier,enum=ledger.mastery,enum=ledger.impact,enum=test.success,enum=test.opposed,enum=test.combat"`
	Payload json.RawMessage `json:"payload" jsonschema:"type=object"`
}

func newEnvelope(kind Kind, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, oops.Code(CodeMalformed).In("wire").With("kind", string(kind)).Wrap(err)
	}
	return Envelope{Version: Version, Kind: kind, Payload: raw}, nil
}

func checkVersion(e Envelope) error {
	v, err := semver.NewVersion(e.Version)
	if err != nil {
		return oops.Code(CodeUnsupportedVersion).In("wire").With("version", e.Version).Wrap(err)
	}
	if !compatible.Check(v) {
		return oops.Code(CodeUnsupportedVersion).
			In("wire").
			With("version", e.Version).
			With("supported", compatible.String()).
			Errorf("unsupported envelope version %s", e.Version)
	}
	return nil
}
