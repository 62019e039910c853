// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/adjudicator/adjudicator/internal/ledger"
	"github.com/adjudicator/adjudicator/internal/resolve"
	"github.com/adjudicator/adjudicator/internal/wire"
)

type rollResult struct {
	Summary   resolve.Summary `json:"summary"`
	Breakdown []ledger.Line   `json:"breakdown,omitempty"`
}

func newRollCmd(a *app) *cobra.Command {
	var (
		sf        sheetFlags
		roll      int
		luck      bool
		breakdown bool
		asWire    bool
	)

	cmd := &cobra.Command{
		Use:   "roll",
		Short: "Roll a success test against a mastery ledger",
		Long: `Roll a single percentile success test for the actor on a character
sheet. The sheet's behaviors are applied before the roll.`,
		Args: cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := sf.character(ctx)
			if err != nil {
				return err
			}
			m, err := c.Mastery(sf.ledger)
			if err != nil {
				return err
			}

			var t *resolve.SuccessTest
			if luck {
				t, err = resolve.LuckTest(m, c.Actor)
			} else {
				t, err = resolve.NewSuccessTest(m, c.Actor)
			}
			if err != nil {
				return err
			}
			if roll != 0 {
				if err := t.WithRoll(roll); err != nil {
					return err
				}
			}
			if !t.Evaluate(ctx, a.env("", nil)) {
				return oops.Code(CodeAborted).With("actor", string(c.Actor)).With("ledger", sf.ledger).Errorf("success test was aborted")
			}

			if asWire {
				data, err := wire.Marshal(t)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			res := rollResult{Summary: resolve.Describe(t)}
			if breakdown {
				res.Breakdown = t.Mastery().Breakdown()
			}
			return writeJSON(cmd.OutOrStdout(), res)
		}),
	}

	sf.bind(cmd, "mastery ledger to roll against")
	cmd.Flags().IntVar(&roll, "roll", 0, "preset roll (1-100) instead of drawing one")
	cmd.Flags().BoolVar(&luck, "luck", false, "roll the ledger's luck sub-ledger")
	cmd.Flags().BoolVar(&breakdown, "breakdown", false, "include the ledger breakdown")
	cmd.Flags().BoolVar(&asWire, "wire", false, "print the wire envelope instead of a summary")

	return cmd
}
