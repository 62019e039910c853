// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package handoff_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/adjudicator/adjudicator/internal/handoff"
	"github.com/adjudicator/adjudicator/internal/ledger"
	"github.com/adjudicator/adjudicator/internal/resolve"
	"github.com/adjudicator/adjudicator/internal/wire"
	"github.com/adjudicator/adjudicator/pkg/errutil"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, n handoff.Notice) {
	m.Called(ctx, n)
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeRecorder) HandoffRecorded(phase, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, phase+":"+status)
}

type countingPrompter struct {
	calls int
}

func (p *countingPrompter) Confirm(context.Context, *resolve.SuccessTest) ([]ledger.Entry, error) {
	p.calls++
	return []ledger.Entry{{Label: "Second wind", Abbrev: "wind", Amount: 40, Enabled: true}}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func gmEnv(participant string) *resolve.Env {
	return &resolve.Env{
		Participant: participant,
		Authorizer: resolve.StaticAuthorizer{
			Owners: map[resolve.Actor][]string{
				"alice": {"p1"},
				"bob":   {"p2"},
			},
			GameMasters: []string{"gm"},
		},
	}
}

func newCoordinator(t *testing.T, store handoff.Store, opts ...handoff.Option) (*handoff.Coordinator, *fakeRecorder) {
	t.Helper()
	rec := &fakeRecorder{}
	opts = append([]handoff.Option{handoff.WithRecorder(rec), handoff.WithLogger(quietLogger())}, opts...)
	return handoff.NewCoordinator(store, opts...), rec
}

func TestCoordinator_RequestThenResume(t *testing.T) {
	ctx := context.Background()
	store := handoff.NewMemoryStore()
	notifier := &mockNotifier{}
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n handoff.Notice) bool {
		return n.Phase == handoff.PhaseRequested && n.Recipient == "bob"
	})).Once()
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n handoff.Notice) bool {
		return n.Phase == handoff.PhaseResolved
	})).Twice()

	coord, rec := newCoordinator(t, store, handoff.WithNotifier(notifier))

	req, summary, err := coord.Request(ctx, &resolve.Env{}, handoff.RequestParams{
		SourceActor: "alice",
		TargetActor: "bob",
		Mastery:     ledger.NewMastery("skill.persuade", 60),
		Roll:        30,
	})
	require.NoError(t, err)
	assert.Equal(t, handoff.StatePending, req.State)
	assert.Equal(t, wire.KindOpposed, req.Kind)
	assert.Equal(t, resolve.OutcomePending, summary.Outcome)
	assert.Equal(t, req.ID.String(), summary.ID)

	pending, err := coord.Pending(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)

	resolved, summary, err := coord.Resume(ctx, &resolve.Env{}, req.ID, handoff.ResumeParams{
		Mastery: ledger.NewMastery("skill.insight", 50),
		Roll:    70,
	})
	require.NoError(t, err)
	assert.Equal(t, handoff.StateResolved, resolved.State)
	assert.Equal(t, 1, resolved.Revision)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, resolve.OutcomeSourceWins, summary.Outcome)
	assert.Equal(t, resolve.SideSource, summary.Winner)

	pending, err = coord.Pending(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, shown, err := coord.Show(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, summary, shown)

	notifier.AssertExpectations(t)
	assert.Equal(t, []string{"requested:ok", "resolved:ok"}, rec.events)
}

func TestCoordinator_RequestDeniedStoresNothing(t *testing.T) {
	ctx := context.Background()
	store := handoff.NewMemoryStore()
	coord, rec := newCoordinator(t, store)

	_, _, err := coord.Request(ctx, gmEnv("p2"), handoff.RequestParams{
		SourceActor: "alice",
		TargetActor: "bob",
		Mastery:     ledger.NewMastery("skill.persuade", 60),
	})
	errutil.AssertErrorCode(t, err, handoff.CodeAborted)

	pending, err := store.ListPending(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, []string{"requested:aborted"}, rec.events)
}

func TestCoordinator_IgnoreDefenseResolvesImmediately(t *testing.T) {
	ctx := context.Background()
	store := handoff.NewMemoryStore()
	coord, _ := newCoordinator(t, store)

	req, summary, err := coord.Request(ctx, &resolve.Env{}, handoff.RequestParams{
		SourceActor: "alice",
		TargetActor: "bob",
		Mastery:     ledger.NewMastery("skill.melee", 60),
		Defense:     resolve.DefenseIgnore,
		Roll:        30,
	})
	require.NoError(t, err)
	assert.Equal(t, handoff.StateResolved, req.State)
	assert.Equal(t, wire.KindCombat, req.Kind)
	assert.Equal(t, resolve.OutcomeSourceWins, summary.Outcome)
	assert.Equal(t, resolve.SideSource, summary.ImpactDeliveredBy)

	_, _, err = coord.Resume(ctx, &resolve.Env{}, req.ID, handoff.ResumeParams{
		Mastery: ledger.NewMastery("skill.dodge", 50),
		Roll:    10,
	})
	errutil.AssertErrorCode(t, err, handoff.CodeAlreadyResolved)
}

func TestCoordinator_ResumeFailuresLeaveRequestPending(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*handoff.Coordinator, *handoff.MemoryStore, *handoff.Request) {
		t.Helper()
		store := handoff.NewMemoryStore()
		coord, _ := newCoordinator(t, store)
		req, _, err := coord.Request(ctx, &resolve.Env{}, handoff.RequestParams{
			SourceActor: "alice",
			TargetActor: "bob",
			Mastery:     ledger.NewMastery("skill.melee", 60),
			Defense:     resolve.DefenseBlock,
			Roll:        30,
		})
		require.NoError(t, err)
		return coord, store, req
	}

	assertPending := func(t *testing.T, store *handoff.MemoryStore, id ulid.ULID) {
		t.Helper()
		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, handoff.StatePending, got.State)
		assert.Equal(t, 0, got.Revision)
	}

	t.Run("target not permitted", func(t *testing.T) {
		coord, store, req := setup(t)
		_, _, err := coord.Resume(ctx, gmEnv("p1"), req.ID, handoff.ResumeParams{
			Mastery: ledger.NewMastery("skill.block", 50),
			Roll:    40,
		})
		errutil.AssertErrorCode(t, err, handoff.CodeAborted)
		assertPending(t, store, req.ID)
	})

	t.Run("invalid roll", func(t *testing.T) {
		coord, store, req := setup(t)
		_, _, err := coord.Resume(ctx, &resolve.Env{}, req.ID, handoff.ResumeParams{
			Mastery: ledger.NewMastery("skill.block", 50),
			Roll:    101,
		})
		errutil.AssertErrorCode(t, err, resolve.CodeInvalidRoll)
		assertPending(t, store, req.ID)
	})

	t.Run("corrupt payload", func(t *testing.T) {
		coord, store, req := setup(t)
		bad := req.Clone()
		bad.Payload = []byte(`{"version":"1.0.0","kind":"combat_test","payload":{}}`)
		require.NoError(t, store.Update(ctx, bad, 0))

		_, _, err := coord.Resume(ctx, &resolve.Env{}, req.ID, handoff.ResumeParams{
			Mastery: ledger.NewMastery("skill.block", 50),
			Roll:    40,
		})
		require.Error(t, err)
		got, err := store.Get(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, handoff.StatePending, got.State)
	})

	t.Run("unknown request", func(t *testing.T) {
		coord, _, _ := setup(t)
		_, _, err := coord.Resume(ctx, &resolve.Env{}, ulid.Make(), handoff.ResumeParams{
			Mastery: ledger.NewMastery("skill.block", 50),
		})
		errutil.AssertErrorCode(t, err, handoff.CodeNotFound)
	})
}

// racingStore bumps the stored revision just before the first update lands.
type racingStore struct {
	*handoff.MemoryStore
	once sync.Once
}

func (s *racingStore) Update(ctx context.Context, req *handoff.Request, expected int) error {
	s.once.Do(func() {
		cur, err := s.MemoryStore.Get(ctx, req.ID)
		if err == nil {
			_ = s.MemoryStore.Update(ctx, cur, cur.Revision)
		}
	})
	return s.MemoryStore.Update(ctx, req, expected)
}

func TestCoordinator_ResumeConflict(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{MemoryStore: handoff.NewMemoryStore()}
	coord, rec := newCoordinator(t, store)

	req, _, err := coord.Request(ctx, &resolve.Env{}, handoff.RequestParams{
		SourceActor: "alice",
		TargetActor: "bob",
		Mastery:     ledger.NewMastery("skill.persuade", 60),
		Roll:        30,
	})
	require.NoError(t, err)

	_, _, err = coord.Resume(ctx, &resolve.Env{}, req.ID, handoff.ResumeParams{
		Mastery: ledger.NewMastery("skill.insight", 50),
		Roll:    70,
	})
	errutil.AssertErrorCode(t, err, handoff.CodeConflict)
	assert.Equal(t, []string{"requested:ok", "resolved:error"}, rec.events)
}

func TestCoordinator_Reopen(t *testing.T) {
	ctx := context.Background()
	store := handoff.NewMemoryStore()
	notifier := &mockNotifier{}
	notifier.On("Notify", mock.Anything, mock.Anything)
	coord, _ := newCoordinator(t, store, handoff.WithNotifier(notifier))

	req, _, err := coord.Request(ctx, gmEnv("p1"), handoff.RequestParams{
		SourceActor: "alice",
		TargetActor: "bob",
		Mastery:     ledger.NewMastery("skill.melee", 60),
		Defense:     resolve.DefenseBlock,
		Roll:        45,
	})
	require.NoError(t, err)

	t.Run("pending request cannot be reopened", func(t *testing.T) {
		_, _, err := coord.Reopen(ctx, gmEnv("gm"), req.ID)
		errutil.AssertErrorCode(t, err, handoff.CodeNotResolved)
	})

	_, first, err := coord.Resume(ctx, gmEnv("p2"), req.ID, handoff.ResumeParams{
		Mastery: ledger.NewMastery("skill.block", 50),
		Roll:    45,
	})
	require.NoError(t, err)

	t.Run("non game master is refused", func(t *testing.T) {
		_, _, err := coord.Reopen(ctx, gmEnv("p1"), req.ID)
		errutil.AssertErrorCode(t, err, resolve.CodePermissionDenied)
	})

	t.Run("game master replays the stored rolls", func(t *testing.T) {
		reopened, again, err := coord.Reopen(ctx, gmEnv("gm"), req.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, reopened.Revision)
		assert.Equal(t, handoff.StateResolved, reopened.State)
		assert.Equal(t, first.Outcome, again.Outcome)
		assert.Equal(t, first.Winner, again.Winner)
		assert.Equal(t, first.TieBroken, again.TieBroken)
	})

	t.Run("replay ignores the prompter", func(t *testing.T) {
		prompter := &countingPrompter{}
		env := gmEnv("gm")
		env.Prompter = prompter

		reopened, again, err := coord.Reopen(ctx, env, req.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, reopened.Revision)
		assert.Zero(t, prompter.calls)
		assert.Equal(t, first.Outcome, again.Outcome)
		assert.Equal(t, first.Winner, again.Winner)
	})

	notifier.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(n handoff.Notice) bool {
		return n.Phase == handoff.PhaseReopened && n.Recipient == "alice"
	}))
}
