// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

// Package sheet loads character sheets: base ledgers, facts and the
// behaviors that adjust those ledgers before a test is rolled.
package sheet

import (
	"context"
	"maps"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/adjudicator/adjudicator/internal/ledger"
	"github.com/adjudicator/adjudicator/internal/resolve"
	"github.com/adjudicator/adjudicator/internal/rule"
)

// Error codes.
const (
	CodeInvalid            = "SHEET_INVALID"
	CodeUnsupportedVersion = "SHEET_UNSUPPORTED_VERSION"
	CodeUnknownLedger      = "SHEET_UNKNOWN_LEDGER"
	CodeInvalidBehavior    = "SHEET_INVALID_BEHAVIOR"
	CodeMergeCycle         = "SHEET_MERGE_CYCLE"
)

var supported = mustConstraint("^1")

func mustConstraint(c string) *semver.Constraints {
	v, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return v
}

// Sheet is the YAML document.
type Sheet struct {
	Version   string                 `yaml:"version" json:"version" jsonschema:"pattern=^\\d+\\.\\d+(\\.\\d+)?$"`
	Actor     string                 `yaml:"actor" json:"actor" jsonschema:"minLength=1"`
	Facts     map[string]any         `yaml:"facts,omitempty" json:"facts,omitempty"`
	Masteries map[string]MasterySpec `yaml:"masteries,omitempty" json:"masteries,omitempty"`
	Impacts   map[string]ImpactSpec  `yaml:"impacts,omitempty" json:"impacts,omitempty"`
	Behaviors []BehaviorSpec         `yaml:"behaviors,omitempty" json:"behaviors,omitempty"`
}

// MasterySpec declares a mastery ledger.
type MasterySpec struct {
	Base            int       `yaml:"base" json:"base"`
	CriticalSuccess string    `yaml:"critical_success,omitempty" json:"critical_success,omitempty"`
	CriticalFailure string    `yaml:"critical_failure,omitempty" json:"critical_failure,omitempty"`
	Offset          int       `yaml:"offset,omitempty" json:"offset,omitempty"`
	Luck            *LuckSpec `yaml:"luck,omitempty" json:"luck,omitempty"`
}

// LuckSpec declares a mastery's luck sub-ledger.
type LuckSpec struct {
	Base            int    `yaml:"base" json:"base"`
	CriticalSuccess string `yaml:"critical_success,omitempty" json:"critical_success,omitempty"`
	CriticalFailure string `yaml:"critical_failure,omitempty" json:"critical_failure,omitempty"`
}

// ImpactSpec declares an impact ledger.
type ImpactSpec struct {
	Base   int    `yaml:"base" json:"base"`
	Die    int    `yaml:"die,omitempty" json:"die,omitempty" jsonschema:"minimum=0"`
	Aspect string `yaml:"aspect,omitempty" json:"aspect,omitempty"`
}

// Parse validates data against the sheet schema and decodes it.
func Parse(data []byte) (*Sheet, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	var s Sheet
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, oops.Code(CodeInvalid).In("sheet").Wrap(err)
	}
	v, err := semver.NewVersion(s.Version)
	if err != nil || !supported.Check(v) {
		return nil, oops.Code(CodeUnsupportedVersion).
			In("sheet").
			With("version", s.Version).
			Hint("this build reads sheet version 1.x").
			Errorf("unsupported sheet version %q", s.Version)
	}
	return &s, nil
}

// Load reads and parses a sheet file.
func Load(path string) (*Sheet, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, oops.Code(CodeInvalid).In("sheet").With("path", path).Wrap(err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return s, nil
}

// Character is a sheet with every behavior applied.
type Character struct {
	Actor resolve.Actor
	Facts rule.Facts
	Ledgers
}

// Build creates the base ledgers and runs the behavior pipeline. extra facts
// override the sheet's own.
func (s *Sheet) Build(ctx context.Context, extra rule.Facts) (*Character, error) {
	ls := Ledgers{
		Masteries: make(map[string]*ledger.Mastery, len(s.Masteries)),
		Impacts:   make(map[string]*ledger.Impact, len(s.Impacts)),
	}
	for name, spec := range s.Masteries {
		m, err := spec.build(name)
		if err != nil {
			return nil, err
		}
		ls.Masteries[name] = m
	}
	for name, spec := range s.Impacts {
		aspect := ledger.Aspect(spec.Aspect)
		if !aspect.Valid() {
			return nil, oops.Code(CodeInvalid).In("sheet").With("ledger", name).With("aspect", spec.Aspect).Errorf("unknown aspect %q", spec.Aspect)
		}
		ls.Impacts[name] = ledger.NewImpact(name, spec.Base, spec.Die, aspect)
	}

	facts := make(rule.Facts, len(s.Facts)+len(extra))
	maps.Copy(facts, s.Facts)
	maps.Copy(facts, extra)

	pipeline, err := NewPipeline(s.Behaviors)
	if err != nil {
		return nil, err
	}
	if err := pipeline.Apply(ctx, &ls, facts); err != nil {
		return nil, oops.With("actor", s.Actor).Wrap(err)
	}
	return &Character{Actor: resolve.Actor(s.Actor), Facts: facts, Ledgers: ls}, nil
}

func (spec MasterySpec) build(name string) (*ledger.Mastery, error) {
	m := ledger.NewMastery(name, spec.Base)
	var err error
	if m.CriticalSuccess, err = ledger.ParseDigits(spec.CriticalSuccess); err != nil {
		return nil, oops.In("sheet").With("ledger", name).Wrap(err)
	}
	if m.CriticalFailure, err = ledger.ParseDigits(spec.CriticalFailure); err != nil {
		return nil, oops.In("sheet").With("ledger", name).Wrap(err)
	}
	m.SuccessLevelOffset = spec.Offset
	if spec.Luck != nil {
		luck := ledger.NewMastery(name+".luck", spec.Luck.Base)
		if luck.CriticalSuccess, err = ledger.ParseDigits(spec.Luck.CriticalSuccess); err != nil {
			return nil, oops.In("sheet").With("ledger", luck.Name).Wrap(err)
		}
		if luck.CriticalFailure, err = ledger.ParseDigits(spec.Luck.CriticalFailure); err != nil {
			return nil, oops.In("sheet").With("ledger", luck.Name).Wrap(err)
		}
		m.Luck = luck
	}
	return m, nil
}

// Mastery returns a mastery ledger by name.
func (c *Character) Mastery(name string) (*ledger.Mastery, error) {
	m, ok := c.Masteries[name]
	if !ok {
		return nil, oops.Code(CodeUnknownLedger).In("sheet").With("actor", string(c.Actor)).With("ledger", name).Errorf("no mastery named %q", name)
	}
	return m, nil
}

// Impact returns an impact ledger by name.
func (c *Character) Impact(name string) (*ledger.Impact, error) {
	i, ok := c.Impacts[name]
	if !ok {
		return nil, oops.Code(CodeUnknownLedger).In("sheet").With("actor", string(c.Actor)).With("ledger", name).Errorf("no impact named %q", name)
	}
	return i, nil
}
