// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

// Package simulate estimates combat matchups by running many independent
// combat tests in parallel.
package simulate

import (
	"context"
	"log/slog"
	"slices"
	"strconv"

	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"

	"github.com/adjudicator/adjudicator/internal/dice"
	"github.com/adjudicator/adjudicator/internal/ledger"
	"github.com/adjudicator/adjudicator/internal/resolve"
)

// Error codes.
const (
	CodeInvalid = "SIMULATE_INVALID"
	CodeAborted = "SIMULATE_ABORTED"
)

// Combatant is one side of a simulated matchup. Impact may be nil, in which
// case impact delivered by that side is counted but not rolled.
type Combatant struct {
	Actor   resolve.Actor
	Mastery *ledger.Mastery
	Impact  *ledger.Impact
}

// Config describes a simulation.
type Config struct {
	Attacker Combatant
	Defender Combatant
	Defense  resolve.DefenseType
	Rules    resolve.Rules
	Runs     int
	Workers  int
	// Seed feeds worker i with Seed+i, so a given seed and worker count
	// always reproduce the same report.
	Seed int64
}

func (c Config) validate() error {
	switch {
	case c.Attacker.Mastery == nil || c.Defender.Mastery == nil:
		return oops.Code(CodeInvalid).In("simulate").Errorf("both sides need a mastery ledger")
	case c.Attacker.Actor == "" || c.Defender.Actor == "":
		return oops.Code(CodeInvalid).In("simulate").Errorf("both sides need an actor")
	case !c.Defense.Valid():
		return oops.Code(CodeInvalid).In("simulate").With("defense", string(c.Defense)).Errorf("unknown defense %q", c.Defense)
	case c.Runs <= 0:
		return oops.Code(CodeInvalid).In("simulate").With("runs", c.Runs).Errorf("runs must be positive")
	}
	return nil
}

// Report aggregates the outcomes of every run.
type Report struct {
	Runs         int `json:"runs"`
	AttackerWins int `json:"attacker_wins"`
	DefenderWins int `json:"defender_wins"`
	Ties         int `json:"ties"`
	BothFail     int `json:"both_fail"`

	// Impact counts runs where a side delivered impact; the totals sum
	// the rolled impact.
	AttackerImpacts     int `json:"attacker_impacts"`
	DefenderImpacts     int `json:"defender_impacts"`
	AttackerImpactTotal int `json:"attacker_impact_total"`
	DefenderImpactTotal int `json:"defender_impact_total"`

	// Advantage is signed from the attacker's side: positive counts are the
	// attacker's tactical advantages, negative ones the defender's.
	MeanAdvantage float64 `json:"mean_advantage"`
	Advantage68   int     `json:"advantage_68"`
	Advantage95   int     `json:"advantage_95"`

	Fumbles  int `json:"fumbles"`
	Stumbles int `json:"stumbles"`
}

func rate(n, runs int) float64 {
	if runs == 0 {
		return 0
	}
	return float64(n) / float64(runs)
}

// AttackerWinRate is the fraction of runs the attacker won.
func (r Report) AttackerWinRate() float64 { return rate(r.AttackerWins, r.Runs) }

// DefenderWinRate is the fraction of runs the defender won.
func (r Report) DefenderWinRate() float64 { return rate(r.DefenderWins, r.Runs) }

// TieRate is the fraction of runs left tied.
func (r Report) TieRate() float64 { return rate(r.Ties, r.Runs) }

// ImpactRate is the fraction of runs in which either side delivered impact.
func (r Report) ImpactRate() float64 { return rate(r.AttackerImpacts+r.DefenderImpacts, r.Runs) }

// Option configures Run.
type Option func(*runner)

// WithLogger sets the logger handed to every evaluation.
func WithLogger(l *slog.Logger) Option {
	return func(r *runner) { r.logger = l }
}

// WithRecorder reports every evaluation to rec.
func WithRecorder(rec resolve.Recorder) Option {
	return func(r *runner) { r.recorder = rec }
}

// WithSourceFactory replaces the per-worker dice source constructor.
func WithSourceFactory(f func(seed int64) dice.Source) Option {
	return func(r *runner) { r.newSource = f }
}

type runner struct {
	cfg       Config
	logger    *slog.Logger
	recorder  resolve.Recorder
	newSource func(seed int64) dice.Source
}

// sample is one run's contribution to the report.
type sample struct {
	outcome   resolve.Outcome
	impactBy  resolve.Side
	impact    int
	advantage int
	fumble    bool
	stumble   bool
}

// Run executes cfg.Runs combat tests across cfg.Workers goroutines.
func Run(ctx context.Context, cfg Config, opts ...Option) (Report, error) {
	if err := cfg.validate(); err != nil {
		return Report{}, err
	}
	r := &runner{
		cfg:       cfg,
		logger:    slog.New(slog.DiscardHandler),
		newSource: dice.NewSeeded,
	}
	for _, opt := range opts {
		opt(r)
	}

	workers := min(max(cfg.Workers, 1), cfg.Runs)
	results := make([][]sample, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := range workers {
		n := cfg.Runs / workers
		if w < cfg.Runs%workers {
			n++
		}
		g.Go(func() error {
			out, err := r.work(gctx, w, n)
			results[w] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	return aggregate(slices.Concat(results...)), nil
}

func (r *runner) work(ctx context.Context, worker, runs int) ([]sample, error) {
	src := r.newSource(r.cfg.Seed + int64(worker))
	env := &resolve.Env{
		Dice:     src,
		Rules:    r.cfg.Rules,
		Logger:   r.logger,
		Recorder: r.recorder,
	}
	out := make([]sample, 0, runs)
	for i := range runs {
		if err := ctx.Err(); err != nil {
			return out, oops.Code(CodeAborted).In("simulate").Wrap(err)
		}
		s, err := r.once(ctx, env, src, strconv.Itoa(worker)+"-"+strconv.Itoa(i))
		if err != nil {
			return out, oops.With("worker", worker).With("run", i).Wrap(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *runner) once(ctx context.Context, env *resolve.Env, src dice.Source, id string) (sample, error) {
	cfg := r.cfg
	attack, err := resolve.NewSuccessTest(cfg.Attacker.Mastery, cfg.Attacker.Actor)
	if err != nil {
		return sample{}, err
	}
	c, err := resolve.NewCombatTest(attack, cfg.Defender.Actor, cfg.Defense, cfg.Rules.OpposedOptions(id))
	if err != nil {
		return sample{}, err
	}
	if c.NeedsTarget() {
		defend, err := resolve.NewSuccessTest(cfg.Defender.Mastery, cfg.Defender.Actor)
		if err != nil {
			return sample{}, err
		}
		if err := c.AttachTarget(defend); err != nil {
			return sample{}, err
		}
	}
	if !c.Evaluate(ctx, env) {
		return sample{}, oops.Code(CodeAborted).In("simulate").With("id", id).Errorf("combat test did not resolve")
	}

	s := sample{
		outcome:  c.Outcome(),
		impactBy: c.ImpactDeliveredBy(),
		fumble:   c.Fumble(),
		stumble:  c.Stumble(),
	}
	switch c.Winner() {
	case resolve.SideSource:
		s.advantage = c.TacticalAdvantageCount()
	case resolve.SideTarget:
		s.advantage = -c.TacticalAdvantageCount()
	}

	var attackImpact, defendImpact *ledger.Impact
	switch s.impactBy {
	case resolve.SideSource:
		attackImpact = cfg.Attacker.Impact
	case resolve.SideTarget:
		defendImpact = cfg.Defender.Impact
	}
	if attackImpact != nil || defendImpact != nil {
		res, err := c.DeliverImpact(src, attackImpact, defendImpact)
		if err != nil {
			return sample{}, err
		}
		s.impact = res.Roll.Total
	}
	return s, nil
}

func aggregate(samples []sample) Report {
	rep := Report{Runs: len(samples)}
	advantages := make([]int, 0, len(samples))
	sum := 0
	for _, s := range samples {
		switch s.outcome {
		case resolve.OutcomeSourceWins:
			rep.AttackerWins++
		case resolve.OutcomeTargetWins:
			rep.DefenderWins++
		case resolve.OutcomeTied:
			rep.Ties++
		case resolve.OutcomeBothFail:
			rep.BothFail++
		}
		switch s.impactBy {
		case resolve.SideSource:
			rep.AttackerImpacts++
			rep.AttackerImpactTotal += s.impact
		case resolve.SideTarget:
			rep.DefenderImpacts++
			rep.DefenderImpactTotal += s.impact
		}
		if s.fumble {
			rep.Fumbles++
		}
		if s.stumble {
			rep.Stumbles++
		}
		advantages = append(advantages, s.advantage)
		sum += s.advantage
	}
	if len(samples) == 0 {
		return rep
	}
	rep.MeanAdvantage = float64(sum) / float64(len(samples))
	rep.Advantage68 = reached(advantages, 0.68)
	rep.Advantage95 = reached(advantages, 0.95)
	return rep
}

// reached returns the value met or exceeded by fraction p of the values.
func reached(values []int, p float64) int {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return sorted[int((1-p)*float64(len(sorted)))]
}
