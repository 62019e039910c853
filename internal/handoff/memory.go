// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package handoff

import (
	"context"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/adjudicator/adjudicator/internal/resolve"
)

// MemoryStore keeps requests in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	reqs map[ulid.ULID]*Request
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reqs: make(map[ulid.ULID]*Request)}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reqs[req.ID]; ok {
		return oops.Code(CodeDuplicate).In("handoff").With("id", req.ID.String()).Errorf("request already exists")
	}
	s.reqs[req.ID] = req.Clone()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id ulid.ULID) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.reqs[id]
	if !ok {
		return nil, oops.Code(CodeNotFound).In("handoff").With("id", id.String()).Errorf("request not found")
	}
	return req.Clone(), nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, req *Request, expectedRevision int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.reqs[req.ID]
	if !ok {
		return oops.Code(CodeNotFound).In("handoff").With("id", req.ID.String()).Errorf("request not found")
	}
	if cur.Revision != expectedRevision {
		return oops.Code(CodeConflict).
			In("handoff").
			With("id", req.ID.String()).
			With("expected", expectedRevision).
			With("actual", cur.Revision).
			Errorf("request was modified concurrently")
	}
	req.Revision = expectedRevision + 1
	s.reqs[req.ID] = req.Clone()
	return nil
}

// ListPending implements Store.
func (s *MemoryStore) ListPending(_ context.Context, target resolve.Actor) ([]*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Request
	for _, req := range s.reqs {
		if req.State != StatePending {
			continue
		}
		if target != "" && req.TargetActor != target {
			continue
		}
		out = append(out, req.Clone())
	}
	slices.SortFunc(out, func(a, b *Request) int { return a.ID.Compare(b.ID) })
	return out, nil
}
