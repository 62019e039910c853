// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package resolve_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/adjudicator/adjudicator/internal/ledger"
	"github.com/adjudicator/adjudicator/internal/resolve"
)

type masteryOpts struct {
	critSuccess []int
	critFailure []int
	offset      int
	disabled    bool
}

func newMastery(name string, base int, opts masteryOpts) *ledger.Mastery {
	m := ledger.NewMastery(name, base)
	m.CriticalSuccess = ledger.Digits(opts.critSuccess...)
	m.CriticalFailure = ledger.Digits(opts.critFailure...)
	m.SuccessLevelOffset = opts.offset
	if opts.disabled {
		m.Disable("Unconscious", "unc")
	}
	return m
}

func newTest(t *testing.T, actor string, base int, opts masteryOpts) *resolve.SuccessTest {
	t.Helper()
	st, err := resolve.NewSuccessTest(newMastery("skill.melee", base, opts), resolve.Actor(actor))
	require.NoError(t, err)
	return st
}

// rolledTest returns a test with a preset roll, evaluated in a permissive env.
func rolledTest(t *testing.T, actor string, base, roll int, opts masteryOpts) *resolve.SuccessTest {
	t.Helper()
	st := newTest(t, actor, base, opts)
	require.NoError(t, st.WithRoll(roll))
	require.True(t, st.Evaluate(context.Background(), &resolve.Env{}))
	return st
}

type mockAuthorizer struct {
	mock.Mock
}

func (m *mockAuthorizer) CanAct(ctx context.Context, participant string, actor resolve.Actor) bool {
	return m.Called(ctx, participant, actor).Bool(0)
}

func (m *mockAuthorizer) IsGameMaster(ctx context.Context, participant string) bool {
	return m.Called(ctx, participant).Bool(0)
}

type mockPrompter struct {
	mock.Mock
}

func (m *mockPrompter) Confirm(ctx context.Context, test *resolve.SuccessTest) ([]ledger.Entry, error) {
	args := m.Called(ctx, test)
	entries, _ := args.Get(0).([]ledger.Entry)
	return entries, args.Error(1)
}

type fakeRecorder struct {
	mu       sync.Mutex
	resolved []string
	aborted  []string
}

func (r *fakeRecorder) TestResolved(kind, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, kind+":"+outcome)
}

func (r *fakeRecorder) TestAborted(kind, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborted = append(r.aborted, kind+":"+reason)
}
