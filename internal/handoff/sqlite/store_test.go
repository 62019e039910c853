// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adjudicator/adjudicator/internal/handoff"
	"github.com/adjudicator/adjudicator/internal/handoff/sqlite"
	"github.com/adjudicator/adjudicator/internal/ledger"
	"github.com/adjudicator/adjudicator/internal/resolve"
	"github.com/adjudicator/adjudicator/internal/wire"
	"github.com/adjudicator/adjudicator/pkg/errutil"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "handoff.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newRequest(target resolve.Actor) *handoff.Request {
	return &handoff.Request{
		ID:          ulid.Make(),
		Kind:        wire.KindOpposed,
		State:       handoff.StatePending,
		SourceActor: "alice",
		TargetActor: target,
		Payload:     []byte(`{"kind":"opposed_test"}`),
		CreatedAt:   time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC),
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := sqlite.Open(context.Background(), "  ")
	errutil.AssertErrorCode(t, err, handoff.CodeStoreFailed)
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "handoff.db")

	first, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	req := newRequest("bob")
	require.NoError(t, first.Create(ctx, req))
	require.NoError(t, first.Close())

	second, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer second.Close() //nolint:errcheck // test cleanup

	got, err := second.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.Payload, got.Payload)
}

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	req := newRequest("bob")

	require.NoError(t, store.Create(ctx, req))
	errutil.AssertErrorCode(t, store.Create(ctx, req), handoff.CodeDuplicate)

	got, err := store.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req, got)

	_, err = store.Get(ctx, ulid.Make())
	errutil.AssertErrorCode(t, err, handoff.CodeNotFound)

	upd := got.Clone()
	upd.State = handoff.StateResolved
	resolvedAt := req.CreatedAt.Add(time.Hour)
	upd.ResolvedAt = &resolvedAt
	require.NoError(t, store.Update(ctx, upd, 0))
	assert.Equal(t, 1, upd.Revision)

	got, err = store.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, handoff.StateResolved, got.State)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, resolvedAt.Equal(*got.ResolvedAt))

	err = store.Update(ctx, req.Clone(), 0)
	errutil.AssertErrorCode(t, err, handoff.CodeConflict)
	errutil.AssertErrorContext(t, err, "actual", 1)

	errutil.AssertErrorCode(t, store.Update(ctx, newRequest("bob"), 0), handoff.CodeNotFound)
}

func TestStore_ListPending(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	a, b, c := newRequest("bob"), newRequest("carol"), newRequest("bob")
	for _, r := range []*handoff.Request{c, b, a} {
		require.NoError(t, store.Create(ctx, r))
	}

	all, err := store.ListPending(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, c.ID, all[2].ID)

	bobs, err := store.ListPending(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobs, 2)
	assert.Equal(t, a.ID, bobs[0].ID)
}

func TestStore_WithCoordinator(t *testing.T) {
	ctx := context.Background()
	coord := handoff.NewCoordinator(openStore(t))

	req, _, err := coord.Request(ctx, &resolve.Env{}, handoff.RequestParams{
		SourceActor: "alice",
		TargetActor: "bob",
		Mastery:     ledger.NewMastery("skill.melee", 60),
		Defense:     resolve.DefenseDodge,
		Roll:        20,
	})
	require.NoError(t, err)

	_, summary, err := coord.Resume(ctx, &resolve.Env{}, req.ID, handoff.ResumeParams{
		Mastery: ledger.NewMastery("skill.dodge", 40),
		Roll:    90,
	})
	require.NoError(t, err)
	assert.Equal(t, resolve.OutcomeSourceWins, summary.Outcome)
	assert.Equal(t, resolve.SideSource, summary.ImpactDeliveredBy)

	pending, err := coord.Pending(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, pending)
}
