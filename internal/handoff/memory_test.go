// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package handoff_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adjudicator/adjudicator/internal/handoff"
	"github.com/adjudicator/adjudicator/internal/resolve"
	"github.com/adjudicator/adjudicator/internal/wire"
	"github.com/adjudicator/adjudicator/pkg/errutil"
)

func newRequest(id ulid.ULID, target resolve.Actor) *handoff.Request {
	return &handoff.Request{
		ID:          id,
		Kind:        wire.KindOpposed,
		State:       handoff.StatePending,
		SourceActor: "alice",
		TargetActor: target,
		Payload:     []byte(`{"kind":"opposed_test"}`),
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := handoff.NewMemoryStore()
	req := newRequest(ulid.Make(), "bob")

	require.NoError(t, store.Create(ctx, req))

	got, err := store.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req, got)

	got.Payload[0] = 'X'
	again, err := store.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, byte('{'), again.Payload[0], "stored payload must not alias the returned copy")
}

func TestMemoryStore_Errors(t *testing.T) {
	ctx := context.Background()
	store := handoff.NewMemoryStore()
	req := newRequest(ulid.Make(), "bob")
	require.NoError(t, store.Create(ctx, req))

	t.Run("duplicate create", func(t *testing.T) {
		errutil.AssertErrorCode(t, store.Create(ctx, req), handoff.CodeDuplicate)
	})

	t.Run("missing get", func(t *testing.T) {
		_, err := store.Get(ctx, ulid.Make())
		errutil.AssertErrorCode(t, err, handoff.CodeNotFound)
	})

	t.Run("missing update", func(t *testing.T) {
		errutil.AssertErrorCode(t, store.Update(ctx, newRequest(ulid.Make(), "bob"), 0), handoff.CodeNotFound)
	})

	t.Run("stale revision", func(t *testing.T) {
		errutil.AssertErrorCode(t, store.Update(ctx, req.Clone(), 3), handoff.CodeConflict)
	})
}

func TestMemoryStore_UpdateBumpsRevision(t *testing.T) {
	ctx := context.Background()
	store := handoff.NewMemoryStore()
	req := newRequest(ulid.Make(), "bob")
	require.NoError(t, store.Create(ctx, req))

	upd := req.Clone()
	upd.State = handoff.StateResolved
	require.NoError(t, store.Update(ctx, upd, 0))
	assert.Equal(t, 1, upd.Revision)

	got, err := store.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, handoff.StateResolved, got.State)
	assert.Equal(t, 1, got.Revision)

	errutil.AssertErrorCode(t, store.Update(ctx, req.Clone(), 0), handoff.CodeConflict)
}

func TestMemoryStore_ListPending(t *testing.T) {
	ctx := context.Background()
	store := handoff.NewMemoryStore()

	first := newRequest(ulid.Make(), "bob")
	second := newRequest(ulid.Make(), "carol")
	third := newRequest(ulid.Make(), "bob")
	done := newRequest(ulid.Make(), "bob")
	done.State = handoff.StateResolved
	for _, r := range []*handoff.Request{third, done, second, first} {
		require.NoError(t, store.Create(ctx, r))
	}

	all, err := store.ListPending(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []ulid.ULID{first.ID, second.ID, third.ID}, []ulid.ULID{all[0].ID, all[1].ID, all[2].ID})

	bobs, err := store.ListPending(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobs, 2)
	assert.Equal(t, first.ID, bobs[0].ID)
	assert.Equal(t, third.ID, bobs[1].ID)

	none, err := store.ListPending(ctx, "dave")
	require.NoError(t, err)
	assert.Empty(t, none)
}
