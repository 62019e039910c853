// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/adjudicator/adjudicator/internal/rule"
	"github.com/adjudicator/adjudicator/internal/sheet"
)

// sheetFlags selects a ledger on a character sheet.
type sheetFlags struct {
	path   string
	ledger string
	facts  []string
}

func (f *sheetFlags) bind(cmd *cobra.Command, ledgerUsage string) {
	cmd.Flags().StringVar(&f.path, "sheet", "", "character sheet YAML file")
	cmd.Flags().StringVar(&f.ledger, "ledger", "", ledgerUsage)
	cmd.Flags().StringArrayVar(&f.facts, "fact", nil, "extra fact as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("sheet")  //nolint:errcheck // flag defined above
	_ = cmd.MarkFlagRequired("ledger") //nolint:errcheck // flag defined above
}

func (f *sheetFlags) character(ctx context.Context) (*sheet.Character, error) {
	facts, err := parseFacts(f.facts)
	if err != nil {
		return nil, err
	}
	s, err := sheet.Load(f.path)
	if err != nil {
		return nil, err
	}
	return s.Build(ctx, facts)
}

// parseFacts reads key=value pairs. Values that parse as integers or
// booleans are stored as such.
func parseFacts(pairs []string) (rule.Facts, error) {
	facts := make(rule.Facts, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, oops.Code(CodeInvalidArgs).With("fact", pair).Errorf("fact must be key=value")
		}
		facts[key] = factValue(strings.TrimSpace(value))
	}
	return facts, nil
}

func factValue(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
