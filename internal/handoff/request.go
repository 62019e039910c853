// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

// Package handoff runs opposed and combat tests across two participants.
//
// The request phase rolls the source test, serializes it and stores it as a
// pending Request. The resume phase, possibly in another session, decodes the
// request, rolls the target and stores the resolved result. Pending requests
// never expire.
package handoff

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/adjudicator/adjudicator/internal/resolve"
	"github.com/adjudicator/adjudicator/internal/wire"
)

// Error codes for hand-off failures.
const (
	CodeNotFound        = "HANDOFF_NOT_FOUND"
	CodeDuplicate       = "HANDOFF_DUPLICATE"
	CodeConflict        = "HANDOFF_CONFLICT"
	CodeAlreadyResolved = "HANDOFF_ALREADY_RESOLVED"
	CodeNotResolved     = "HANDOFF_NOT_RESOLVED"
	CodeAborted         = "HANDOFF_ABORTED"
	CodeInvalidKind     = "HANDOFF_INVALID_KIND"
	CodeStoreFailed     = "STORE_FAILED"
)

// State is the lifecycle phase of a request.
type State string

// Request states.
const (
	StatePending  State = "pending"
	StateResolved State = "resolved"
)

// Request is a persisted opposed or combat test awaiting or past resolution.
type Request struct {
	ID          ulid.ULID
	Kind        wire.Kind
	State       State
	SourceActor resolve.Actor
	TargetActor resolve.Actor
	// Payload is the wire envelope of the test.
	Payload    []byte
	Revision   int
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Clone returns a deep copy.
func (r *Request) Clone() *Request {
	out := *r
	out.Payload = append([]byte(nil), r.Payload...)
	if r.ResolvedAt != nil {
		at := *r.ResolvedAt
		out.ResolvedAt = &at
	}
	return &out
}

// Store persists requests.
type Store interface {
	// Create inserts a new request. An existing ID fails with HANDOFF_DUPLICATE.
	Create(ctx context.Context, req *Request) error
	// Get loads a request. A missing ID fails with HANDOFF_NOT_FOUND.
	Get(ctx context.Context, id ulid.ULID) (*Request, error)
	// Update replaces a request if its stored revision equals expectedRevision,
	// then sets req.Revision to expectedRevision+1. A stale revision fails with
	// HANDOFF_CONFLICT.
	Update(ctx context.Context, req *Request, expectedRevision int) error
	// ListPending returns pending requests addressed to target, oldest first.
	// An empty target lists every pending request.
	ListPending(ctx context.Context, target resolve.Actor) ([]*Request, error)
}
