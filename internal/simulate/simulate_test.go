// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package simulate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adjudicator/adjudicator/internal/dice"
	"github.com/adjudicator/adjudicator/internal/ledger"
	"github.com/adjudicator/adjudicator/internal/resolve"
	"github.com/adjudicator/adjudicator/internal/simulate"
	"github.com/adjudicator/adjudicator/pkg/errutil"
)

func matchup(defense resolve.DefenseType) simulate.Config {
	return simulate.Config{
		Attacker: simulate.Combatant{
			Actor:   "alice",
			Mastery: ledger.NewMastery("melee", 55),
			Impact:  ledger.NewImpact("sword", 2, 8, ledger.AspectEdged),
		},
		Defender: simulate.Combatant{
			Actor:   "bob",
			Mastery: ledger.NewMastery("dodge", 45),
			Impact:  ledger.NewImpact("fist", 1, 4, ledger.AspectBlunt),
		},
		Defense: defense,
		Rules:   resolve.DefaultRules(),
		Runs:    500,
		Workers: 4,
		Seed:    7,
	}
}

func TestRun_Deterministic(t *testing.T) {
	for _, defense := range resolve.DefenseTypes() {
		t.Run(string(defense), func(t *testing.T) {
			cfg := matchup(defense)
			first, err := simulate.Run(context.Background(), cfg)
			require.NoError(t, err)
			second, err := simulate.Run(context.Background(), cfg)
			require.NoError(t, err)

			assert.Equal(t, first, second)
			assert.Equal(t, cfg.Runs, first.Runs)
			assert.Equal(t, cfg.Runs, first.AttackerWins+first.DefenderWins+first.Ties+first.BothFail)
			assert.LessOrEqual(t, first.Advantage95, first.Advantage68)
			assert.InDelta(t, 1.0, first.AttackerWinRate()+first.DefenderWinRate()+first.TieRate()+float64(first.BothFail)/float64(first.Runs), 1e-9)
		})
	}
}

func TestRun_CertainOutcome(t *testing.T) {
	cfg := matchup(resolve.DefenseBlock)
	cfg.Attacker.Mastery = ledger.NewMastery("melee", 200)
	cfg.Attacker.Impact = ledger.NewImpact("club", 3, 0, ledger.AspectBlunt)
	cfg.Defender.Mastery.Disable("Unconscious", "unc")
	cfg.Runs = 40

	rep, err := simulate.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 40, rep.AttackerWins)
	assert.Zero(t, rep.DefenderWins)
	assert.Equal(t, 40, rep.AttackerImpacts)
	assert.Equal(t, 120, rep.AttackerImpactTotal)
	assert.InDelta(t, 1.0, rep.ImpactRate(), 1e-9)
	assert.Equal(t, rep.Advantage68, rep.Advantage95)
	assert.InDelta(t, float64(rep.Advantage68), rep.MeanAdvantage, 1e-9)
}

func TestRun_MoreWorkersThanRuns(t *testing.T) {
	cfg := matchup(resolve.DefenseDodge)
	cfg.Runs = 3
	cfg.Workers = 16

	rep, err := simulate.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Runs)
}

func TestRun_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*simulate.Config)
	}{
		{"no runs", func(c *simulate.Config) { c.Runs = 0 }},
		{"unknown defense", func(c *simulate.Config) { c.Defense = "parry" }},
		{"missing mastery", func(c *simulate.Config) { c.Defender.Mastery = nil }},
		{"missing actor", func(c *simulate.Config) { c.Attacker.Actor = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := matchup(resolve.DefenseBlock)
			tt.mutate(&cfg)
			_, err := simulate.Run(context.Background(), cfg)
			errutil.AssertErrorCode(t, err, simulate.CodeInvalid)
		})
	}
}

func TestRun_DiceFailureAborts(t *testing.T) {
	failing := func(int64) dice.Source { return dice.Failing{Err: errors.New("entropy unavailable")} }

	_, err := simulate.Run(context.Background(), matchup(resolve.DefenseBlock), simulate.WithSourceFactory(failing))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, simulate.CodeAborted)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := simulate.Run(ctx, matchup(resolve.DefenseBlock))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, simulate.CodeAborted)
	assert.ErrorIs(t, err, context.Canceled)
}

type countingRecorder struct {
	mu       sync.Mutex
	resolved map[string]int
}

func (r *countingRecorder) TestResolved(kind, _ string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved == nil {
		r.resolved = make(map[string]int)
	}
	r.resolved[kind]++
}

func (*countingRecorder) TestAborted(string, string) {}

func TestRun_ReportsToRecorder(t *testing.T) {
	rec := &countingRecorder{}
	cfg := matchup(resolve.DefenseCounterstrike)
	cfg.Runs = 25

	_, err := simulate.Run(context.Background(), cfg, simulate.WithRecorder(rec))
	require.NoError(t, err)
	assert.Equal(t, 25, rec.resolved["combat"])
}
