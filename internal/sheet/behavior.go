// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package sheet

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/adjudicator/adjudicator/internal/ledger"
	"github.com/adjudicator/adjudicator/internal/rule"
)

// Kind is what a behavior does to each ledger it targets.
type Kind string

// Behavior kinds.
const (
	KindAdd             Kind = "add"
	KindFloor           Kind = "floor"
	KindCeiling         Kind = "ceiling"
	KindDisable         Kind = "disable"
	KindCriticalSuccess Kind = "critical-success"
	KindCriticalFailure Kind = "critical-failure"
	KindOffset          Kind = "offset"
	KindMerge           Kind = "merge"
)

// Kinds lists every behavior kind.
func Kinds() []Kind {
	return []Kind{KindAdd, KindFloor, KindCeiling, KindDisable, KindCriticalSuccess, KindCriticalFailure, KindOffset, KindMerge}
}

// masteryOnly kinds skip impact ledgers their target happens to match.
func (k Kind) masteryOnly() bool {
	return k == KindCriticalSuccess || k == KindCriticalFailure || k == KindOffset
}

// BehaviorSpec is the declarative form of a behavior as written in a sheet.
type BehaviorSpec struct {
	Target       string `yaml:"target" json:"target" jsonschema:"minLength=1"`
	Kind         Kind   `yaml:"kind" json:"kind" jsonschema:"enum=add,enum=floor,enum=ceiling,enum=disable,enum=critical-success,enum=critical-failure,enum=offset,enum=merge"`
	Label        string `yaml:"label,omitempty" json:"label,omitempty"`
	Abbrev       string `yaml:"abbrev,omitempty" json:"abbrev,omitempty"`
	Amount       int    `yaml:"amount,omitempty" json:"amount,omitempty"`
	AmountScript string `yaml:"amount_script,omitempty" json:"amount_script,omitempty"`
	When         string `yaml:"when,omitempty" json:"when,omitempty"`
	Digits       string `yaml:"digits,omitempty" json:"digits,omitempty"`
	From         string `yaml:"from,omitempty" json:"from,omitempty"`
	IncludeBase  bool   `yaml:"include_base,omitempty" json:"include_base,omitempty"`
	Criticals    bool   `yaml:"criticals,omitempty" json:"criticals,omitempty"`
}

// Behavior is a compiled BehaviorSpec.
type Behavior struct {
	spec   BehaviorSpec
	target glob.Glob
	when   *rule.Condition
	script *rule.Script
	digits ledger.DigitSet
}

// CompileBehavior validates a spec and compiles its pattern, condition and script.
func CompileBehavior(spec BehaviorSpec) (*Behavior, error) {
	g, err := glob.Compile(spec.Target, '.')
	if err != nil {
		return nil, oops.Code(CodeInvalidBehavior).In("sheet").With("target", spec.Target).Wrap(err)
	}
	if !slices.Contains(Kinds(), spec.Kind) {
		return nil, oops.Code(CodeInvalidBehavior).In("sheet").With("kind", string(spec.Kind)).Errorf("unknown behavior kind %q", spec.Kind)
	}
	b := &Behavior{spec: spec, target: g}

	if b.when, err = rule.Compile(spec.When); err != nil {
		return nil, oops.In("sheet").With("target", spec.Target).Wrap(err)
	}
	if spec.AmountScript != "" {
		if b.script, err = rule.CompileScript(spec.AmountScript); err != nil {
			return nil, oops.In("sheet").With("target", spec.Target).Wrap(err)
		}
	}

	switch spec.Kind {
	case KindAdd, KindFloor, KindCeiling, KindDisable:
		if spec.Abbrev == "" {
			return nil, oops.Code(CodeInvalidBehavior).In("sheet").With("target", spec.Target).With("kind", string(spec.Kind)).Errorf("%s behavior requires an abbrev", spec.Kind)
		}
	case KindCriticalSuccess, KindCriticalFailure:
		if b.digits, err = ledger.ParseDigits(spec.Digits); err != nil {
			return nil, oops.In("sheet").With("target", spec.Target).Wrap(err)
		}
	case KindMerge:
		if spec.From == "" {
			return nil, oops.Code(CodeInvalidBehavior).In("sheet").With("target", spec.Target).Errorf("merge behavior requires from")
		}
	}
	return b, nil
}

// Spec returns the source spec.
func (b *Behavior) Spec() BehaviorSpec { return b.spec }

// Matches reports whether the behavior targets the named ledger.
func (b *Behavior) Matches(name string) bool { return b.target.Match(name) }

func (b *Behavior) amount(ctx context.Context, facts rule.Facts) (int, error) {
	if b.script == nil {
		return b.spec.Amount, nil
	}
	v, err := b.script.Eval(ctx, facts)
	if err != nil {
		return 0, oops.In("sheet").With("target", b.spec.Target).With("abbrev", b.spec.Abbrev).Wrap(err)
	}
	return v, nil
}

// Ledgers are the named ledgers a pipeline works on.
type Ledgers struct {
	Masteries map[string]*ledger.Mastery
	Impacts   map[string]*ledger.Impact
}

func (l *Ledgers) modifier(name string) (*ledger.Modifier, bool) {
	if m, ok := l.Masteries[name]; ok {
		return &m.Modifier, true
	}
	if i, ok := l.Impacts[name]; ok {
		return &i.Modifier, true
	}
	return nil, false
}

func (l *Ledgers) names() []string {
	out := make([]string, 0, len(l.Masteries)+len(l.Impacts))
	for n := range l.Masteries {
		out = append(out, n)
	}
	for n := range l.Impacts {
		if _, dup := l.Masteries[n]; !dup {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Pipeline applies behaviors to ledgers.
type Pipeline struct {
	behaviors []*Behavior
}

// NewPipeline compiles specs in declaration order.
func NewPipeline(specs []BehaviorSpec) (*Pipeline, error) {
	p := &Pipeline{behaviors: make([]*Behavior, 0, len(specs))}
	for i, spec := range specs {
		b, err := CompileBehavior(spec)
		if err != nil {
			return nil, oops.With("behavior", i).Wrap(err)
		}
		p.behaviors = append(p.behaviors, b)
	}
	return p, nil
}

// Apply runs every behavior whose target matches and whose condition holds.
// Ledgers are processed so that a merge source is complete before anything
// merges it; within a ledger behaviors run in declaration order.
func (p *Pipeline) Apply(ctx context.Context, ls *Ledgers, facts rule.Facts) error {
	order, err := p.order(ls)
	if err != nil {
		return err
	}
	for _, name := range order {
		for _, b := range p.behaviors {
			if !b.Matches(name) || !b.when.Eval(facts) {
				continue
			}
			if err := p.applyOne(ctx, b, name, ls, facts); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pipeline) applyOne(ctx context.Context, b *Behavior, name string, ls *Ledgers, facts rule.Facts) error {
	mastery, isMastery := ls.Masteries[name]
	if b.spec.Kind.masteryOnly() && !isMastery {
		return nil
	}
	mod, _ := ls.modifier(name)
	spec := b.spec

	switch spec.Kind {
	case KindAdd, KindFloor, KindCeiling:
		amount, err := b.amount(ctx, facts)
		if err != nil {
			return err
		}
		switch spec.Kind {
		case KindAdd:
			return mod.Add(spec.Label, spec.Abbrev, amount)
		case KindFloor:
			mod.Floor(spec.Label, spec.Abbrev, amount)
		default:
			mod.Ceiling(spec.Label, spec.Abbrev, amount)
		}
	case KindDisable:
		mod.Disable(spec.Label, spec.Abbrev)
	case KindCriticalSuccess:
		mastery.CriticalSuccess = mastery.CriticalSuccess.Union(b.digits)
	case KindCriticalFailure:
		mastery.CriticalFailure = mastery.CriticalFailure.Union(b.digits)
	case KindOffset:
		amount, err := b.amount(ctx, facts)
		if err != nil {
			return err
		}
		mastery.AdjustOffset(amount)
	case KindMerge:
		opts := ledger.MergeOptions{IncludeBase: spec.IncludeBase, Criticals: spec.Criticals}
		if src, ok := ls.Masteries[spec.From]; ok && isMastery {
			return mastery.MergeMastery(src, opts)
		}
		src, _ := ls.modifier(spec.From)
		return mod.Merge(src, opts)
	}
	return nil
}

// order sorts ledger names so every merge source precedes its targets.
func (p *Pipeline) order(ls *Ledgers) ([]string, error) {
	names := ls.names()
	deps := make(map[string][]string, len(names))
	for _, b := range p.behaviors {
		if b.spec.Kind != KindMerge {
			continue
		}
		if _, ok := ls.modifier(b.spec.From); !ok {
			return nil, oops.Code(CodeUnknownLedger).In("sheet").With("ledger", b.spec.From).Errorf("merge source %q does not exist", b.spec.From)
		}
		for _, n := range names {
			if b.Matches(n) {
				deps[n] = append(deps[n], b.spec.From)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(names))
	order := make([]string, 0, len(names))
	var visit func(n string, path []string) error
	visit = func(n string, path []string) error {
		switch state[n] {
		case done:
			return nil
		case visiting:
			cycle := slices.Concat(path[slices.Index(path, n):], []string{n})
			return oops.Code(CodeMergeCycle).In("sheet").With("cycle", cycle).Errorf("merge cycle: %s", strings.Join(cycle, " -> "))
		}
		state[n] = visiting
		for _, d := range deps[n] {
			if err := visit(d, append(path, n)); err != nil {
				return err
			}
		}
		state[n] = done
		order = append(order, n)
		return nil
	}
	for _, n := range names {
		if err := visit(n, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}
