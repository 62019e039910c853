// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adjudicator/adjudicator/internal/simulate"
	"github.com/adjudicator/adjudicator/pkg/errutil"
)

func TestSimulate_SeededReport(t *testing.T) {
	alice, bob := writeSheets(t)
	args := []string{
		"simulate",
		"--attacker", alice, "--attacker-ledger", "melee", "--attacker-impact", "sword",
		"--defender", bob, "--defender-ledger", "dodge", "--defender-impact", "fist",
		"--defense", "counterstrike", "--runs", "300", "--workers", "3", "--seed", "9",
		"--log.level", "error",
	}

	first, err := execute(t, args...)
	require.NoError(t, err)
	second, err := execute(t, args...)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	view := decodeJSON[simulationView](t, first)
	assert.Equal(t, 300, view.Runs)
	assert.Equal(t, int64(9), view.Seed)
	assert.Equal(t, 300, view.AttackerWins+view.DefenderWins+view.Ties+view.BothFail)
	assert.InDelta(t, view.Report.ImpactRate(), view.ImpactRate, 1e-9)
	assert.Equal(t, "1d6+2 edged", view.AttackerImpact)
	assert.Equal(t, "1 blunt", view.DefenderImpact)
}

func TestSimulate_SeedFromDiceConfig(t *testing.T) {
	alice, bob := writeSheets(t)

	out, err := execute(t, "simulate",
		"--attacker", alice, "--attacker-ledger", "melee",
		"--defender", bob, "--defender-ledger", "dodge",
		"--runs", "10", "--dice.mode", "seeded", "--dice.seed", "77", "--log.level", "error")
	require.NoError(t, err)
	view := decodeJSON[simulationView](t, out)
	assert.Equal(t, int64(77), view.Seed)
	assert.Empty(t, view.AttackerImpact, "no impact ledger given")
}

func TestSimulate_InvalidDefense(t *testing.T) {
	alice, bob := writeSheets(t)

	_, err := execute(t, "simulate",
		"--attacker", alice, "--attacker-ledger", "melee",
		"--defender", bob, "--defender-ledger", "dodge",
		"--defense", "parry", "--runs", "10", "--log.level", "error")
	errutil.AssertErrorCode(t, err, simulate.CodeInvalid)
}
