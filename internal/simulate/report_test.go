// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package simulate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adjudicator/adjudicator/internal/resolve"
)

func TestAggregate(t *testing.T) {
	var samples []sample
	for _, adv := range []int{3, -1, 0, 2, 1, -2, 1, 0, 3, 1} {
		s := sample{advantage: adv, outcome: resolve.OutcomeTied, impactBy: resolve.SideNone}
		switch {
		case adv > 0:
			s.outcome = resolve.OutcomeSourceWins
			s.impactBy = resolve.SideSource
			s.impact = 4
		case adv < 0:
			s.outcome = resolve.OutcomeTargetWins
		}
		samples = append(samples, s)
	}
	samples[5].impactBy = resolve.SideTarget
	samples[5].impact = 2
	samples[1].fumble = true

	rep := aggregate(samples)

	assert.Equal(t, 10, rep.Runs)
	assert.Equal(t, 6, rep.AttackerWins)
	assert.Equal(t, 2, rep.DefenderWins)
	assert.Equal(t, 2, rep.Ties)
	assert.Equal(t, 6, rep.AttackerImpacts)
	assert.Equal(t, 24, rep.AttackerImpactTotal)
	assert.Equal(t, 1, rep.DefenderImpacts)
	assert.Equal(t, 2, rep.DefenderImpactTotal)
	assert.Equal(t, 1, rep.Fumbles)
	assert.InDelta(t, 0.8, rep.MeanAdvantage, 1e-9)
	assert.Equal(t, 0, rep.Advantage68)
	assert.Equal(t, -2, rep.Advantage95)
	assert.InDelta(t, 0.7, rep.ImpactRate(), 1e-9)
}

func TestAggregate_Empty(t *testing.T) {
	rep := aggregate(nil)
	assert.Zero(t, rep.Runs)
	assert.Zero(t, rep.AttackerWinRate())
}
