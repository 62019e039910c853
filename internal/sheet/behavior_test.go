// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package sheet_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adjudicator/adjudicator/internal/ledger"
	"github.com/adjudicator/adjudicator/internal/rule"
	"github.com/adjudicator/adjudicator/internal/sheet"
	"github.com/adjudicator/adjudicator/pkg/errutil"
)

func TestCompileBehavior_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec sheet.BehaviorSpec
		code string
	}{
		{"bad glob", sheet.BehaviorSpec{Target: "[", Kind: sheet.KindAdd, Abbrev: "x"}, sheet.CodeInvalidBehavior},
		{"unknown kind", sheet.BehaviorSpec{Target: "melee", Kind: "explode"}, sheet.CodeInvalidBehavior},
		{"add without abbrev", sheet.BehaviorSpec{Target: "melee", Kind: sheet.KindAdd, Amount: 5}, sheet.CodeInvalidBehavior},
		{"disable without abbrev", sheet.BehaviorSpec{Target: "melee", Kind: sheet.KindDisable}, sheet.CodeInvalidBehavior},
		{"merge without from", sheet.BehaviorSpec{Target: "melee", Kind: sheet.KindMerge}, sheet.CodeInvalidBehavior},
		{"bad digits", sheet.BehaviorSpec{Target: "melee", Kind: sheet.KindCriticalSuccess, Digits: "5-2"}, ledger.CodeInvalidDigits},
		{"bad condition", sheet.BehaviorSpec{Target: "melee", Kind: sheet.KindAdd, Abbrev: "x", When: "(wounds > 1"}, rule.CodeParse},
		{"bad script", sheet.BehaviorSpec{Target: "melee", Kind: sheet.KindAdd, Abbrev: "x", AmountScript: "((("}, rule.CodeScriptCompile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sheet.CompileBehavior(tt.spec)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestBehavior_Matches(t *testing.T) {
	b, err := sheet.CompileBehavior(sheet.BehaviorSpec{Target: "melee*", Kind: sheet.KindDisable, Abbrev: "stun"})
	require.NoError(t, err)

	assert.True(t, b.Matches("melee"))
	assert.True(t, b.Matches("melee-offhand"))
	assert.False(t, b.Matches("melee.luck"))
	assert.False(t, b.Matches("dodge"))
	assert.Equal(t, "melee*", b.Spec().Target)
}

func newLedgers() *sheet.Ledgers {
	return &sheet.Ledgers{
		Masteries: map[string]*ledger.Mastery{
			"melee": ledger.NewMastery("melee", 50),
			"dodge": ledger.NewMastery("dodge", 40),
		},
		Impacts: map[string]*ledger.Impact{
			"fist": ledger.NewImpact("fist", 2, 4, ledger.AspectBlunt),
		},
	}
}

func TestPipeline_MasteryOnlyKindsSkipImpacts(t *testing.T) {
	p, err := sheet.NewPipeline([]sheet.BehaviorSpec{
		{Target: "*", Kind: sheet.KindOffset, Amount: 1},
		{Target: "*", Kind: sheet.KindCriticalFailure, Digits: "0"},
		{Target: "*", Kind: sheet.KindFloor, Label: "Grit", Abbrev: "grit", Amount: 3},
	})
	require.NoError(t, err)

	ls := newLedgers()
	require.NoError(t, p.Apply(context.Background(), ls, nil))

	assert.Equal(t, 1, ls.Masteries["melee"].SuccessLevelOffset)
	assert.Equal(t, []int{0}, ls.Masteries["dodge"].CriticalFailure.Slice())
	require.NotNil(t, ls.Impacts["fist"].Min)
	assert.Equal(t, 3, ls.Impacts["fist"].Constrained())
}

func TestPipeline_ConditionsGateBehaviors(t *testing.T) {
	p, err := sheet.NewPipeline([]sheet.BehaviorSpec{
		{Target: "melee", Kind: sheet.KindAdd, Label: "Mounted", Abbrev: "mnt", Amount: 20, When: "mounted"},
		{Target: "dodge", Kind: sheet.KindDisable, Label: "Prone", Abbrev: "prn", When: `stance == "prone"`},
		{Target: "dodge", Kind: sheet.KindAdd, Label: "Encumbrance", Abbrev: "enc", AmountScript: "-(facts.load or 0) * 2"},
	})
	require.NoError(t, err)

	ls := newLedgers()
	require.NoError(t, p.Apply(context.Background(), ls, rule.Facts{"mounted": true, "stance": "standing", "load": 3}))
	assert.Equal(t, 70, ls.Masteries["melee"].Effective())
	assert.False(t, ls.Masteries["dodge"].Disabled())
	assert.Equal(t, 34, ls.Masteries["dodge"].Effective())

	ls = newLedgers()
	require.NoError(t, p.Apply(context.Background(), ls, rule.Facts{"stance": "prone"}))
	assert.Equal(t, 50, ls.Masteries["melee"].Effective())
	assert.True(t, ls.Masteries["dodge"].Disabled())
	assert.Equal(t, "prn", ls.Masteries["dodge"].DisabledBy)
	assert.Equal(t, 40, ls.Masteries["dodge"].Effective())
}

func TestPipeline_MergeSeesCompletedSource(t *testing.T) {
	// The merge is declared before the source's own adjustments, but the
	// source is finished first so its entries are carried over.
	p, err := sheet.NewPipeline([]sheet.BehaviorSpec{
		{Target: "melee", Kind: sheet.KindMerge, From: "dodge", Criticals: true},
		{Target: "dodge", Kind: sheet.KindAdd, Label: "Quick", Abbrev: "qck", Amount: 5},
		{Target: "dodge", Kind: sheet.KindCriticalSuccess, Digits: "9"},
	})
	require.NoError(t, err)

	ls := newLedgers()
	require.NoError(t, p.Apply(context.Background(), ls, nil))

	melee := ls.Masteries["melee"]
	assert.Equal(t, 55, melee.Effective())
	assert.True(t, melee.Has("qck"))
	assert.False(t, melee.Has(ledger.BaseAbbrev("dodge")))
	assert.Equal(t, []int{9}, melee.CriticalSuccess.Slice())
}

func TestPipeline_MergeImpactIntoMastery(t *testing.T) {
	p, err := sheet.NewPipeline([]sheet.BehaviorSpec{
		{Target: "fist", Kind: sheet.KindAdd, Label: "Brass", Abbrev: "brs", Amount: 1},
		{Target: "melee", Kind: sheet.KindMerge, From: "fist", IncludeBase: true},
	})
	require.NoError(t, err)

	ls := newLedgers()
	require.NoError(t, p.Apply(context.Background(), ls, nil))
	assert.Equal(t, 53, ls.Masteries["melee"].Effective())
	assert.Equal(t, 3, ls.Impacts["fist"].Effective())
}

func TestPipeline_ScriptErrorStops(t *testing.T) {
	p, err := sheet.NewPipeline([]sheet.BehaviorSpec{
		{Target: "melee", Kind: sheet.KindAdd, Abbrev: "bad", AmountScript: `"not a number"`},
	})
	require.NoError(t, err)

	err = p.Apply(context.Background(), newLedgers(), nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, rule.CodeScriptResult)
	errutil.AssertErrorContext(t, err, "abbrev", "bad")
}

func TestNewPipeline_ReportsBehaviorIndex(t *testing.T) {
	_, err := sheet.NewPipeline([]sheet.BehaviorSpec{
		{Target: "melee", Kind: sheet.KindAdd, Abbrev: "ok", Amount: 1},
		{Target: "melee", Kind: sheet.KindMerge},
	})
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "behavior", 1)
}
