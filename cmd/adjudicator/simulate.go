// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package main

import (
	"context"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/adjudicator/adjudicator/internal/dice"
	"github.com/adjudicator/adjudicator/internal/ledger"
	"github.com/adjudicator/adjudicator/internal/resolve"
	"github.com/adjudicator/adjudicator/internal/simulate"
)

// combatantFlags pick one side of a simulated matchup.
type combatantFlags struct {
	sheetFlags
	impact string
}

func (f *combatantFlags) bind(cmd *cobra.Command, side string) {
	cmd.Flags().StringVar(&f.path, side, "", side+" character sheet YAML file")
	cmd.Flags().StringVar(&f.ledger, side+"-ledger", "", side+" mastery ledger")
	cmd.Flags().StringVar(&f.impact, side+"-impact", "", side+" impact ledger (optional)")
	cmd.Flags().StringArrayVar(&f.facts, side+"-fact", nil, side+" extra fact as key=value (repeatable)")
	_ = cmd.MarkFlagRequired(side)            //nolint:errcheck // flag defined above
	_ = cmd.MarkFlagRequired(side + "-ledger") //nolint:errcheck // flag defined above
}

func (f *combatantFlags) combatant(ctx context.Context) (simulate.Combatant, error) {
	c, err := f.character(ctx)
	if err != nil {
		return simulate.Combatant{}, err
	}
	m, err := c.Mastery(f.ledger)
	if err != nil {
		return simulate.Combatant{}, err
	}
	var imp *ledger.Impact
	if f.impact != "" {
		if imp, err = c.Impact(f.impact); err != nil {
			return simulate.Combatant{}, err
		}
	}
	return simulate.Combatant{Actor: c.Actor, Mastery: m, Impact: imp}, nil
}

// simulationView adds the derived rates to a report.
type simulationView struct {
	simulate.Report
	Seed            int64   `json:"seed"`
	AttackerWinRate float64 `json:"attacker_win_rate"`
	DefenderWinRate float64 `json:"defender_win_rate"`
	TieRate         float64 `json:"tie_rate"`
	ImpactRate      float64 `json:"impact_rate"`
	AttackerImpact  string  `json:"attacker_impact,omitempty"`
	DefenderImpact  string  `json:"defender_impact,omitempty"`
}

// impactExpression renders a combatant's impact as dice notation.
func impactExpression(c simulate.Combatant) string {
	if c.Impact == nil {
		return ""
	}
	return c.Impact.Expression()
}

func newSimulateCmd(a *app) *cobra.Command {
	var (
		attacker combatantFlags
		defender combatantFlags
		defense  string
		runs     int
		workers  int
		seed     int64
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Estimate a combat matchup over many seeded runs",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			att, err := attacker.combatant(ctx)
			if err != nil {
				return err
			}
			def, err := defender.combatant(ctx)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("seed") {
				seed = a.seed
				if a.cfg.Dice.Mode == string(dice.ModeCrypto) {
					if seed, err = dice.NewSeed(); err != nil {
						return err
					}
				}
			}

			opts := []simulate.Option{simulate.WithLogger(a.logger)}
			if a.recorder != nil {
				opts = append(opts, simulate.WithRecorder(a.recorder))
			}
			rep, err := simulate.Run(ctx, simulate.Config{
				Attacker: att,
				Defender: def,
				Defense:  resolve.DefenseType(defense),
				Rules:    a.cfg.Rules(),
				Runs:     runs,
				Workers:  workers,
				Seed:     seed,
			}, opts...)
			if err != nil {
				return err
			}
			a.logger.Debug("simulation finished", "runs", rep.Runs, "seed", seed)
			return writeJSON(cmd.OutOrStdout(), simulationView{
				Report:          rep,
				Seed:            seed,
				AttackerWinRate: rep.AttackerWinRate(),
				DefenderWinRate: rep.DefenderWinRate(),
				TieRate:         rep.TieRate(),
				ImpactRate:      rep.ImpactRate(),
				AttackerImpact:  impactExpression(att),
				DefenderImpact:  impactExpression(def),
			})
		}),
	}

	attacker.bind(cmd, "attacker")
	defender.bind(cmd, "defender")
	cmd.Flags().StringVar(&defense, "defense", string(resolve.DefenseBlock), "defense type (block|counterstrike|dodge|ignore-defense)")
	cmd.Flags().IntVar(&runs, "runs", 10000, "number of combat tests")
	cmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "parallel workers")
	cmd.Flags().Int64Var(&seed, "seed", 0, "base seed (default: dice.seed when seeded, else random)")

	return cmd
}
