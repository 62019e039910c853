// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/adjudicator/adjudicator/internal/sheet"
	"github.com/adjudicator/adjudicator/internal/wire"
)

func newSchemaCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "schema [envelope|sheet|<payload kind>]",
		Short: "Print a JSON Schema",
		Long: `Print the JSON Schema for the hand-off envelope (default), character
sheets, or one payload kind such as "test.combat".`,
		Args: cobra.MaximumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			name := "envelope"
			if len(args) == 1 {
				name = args[0]
			}
			data, err := schemaFor(name)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
				return oops.Code(CodeInvalidArgs).With("path", out).Wrap(err)
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return oops.Code(CodeInvalidArgs).With("path", out).Wrap(err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Generated %s\n", out)
			return err
		}),
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write the schema to this file instead of stdout")

	return cmd
}

func schemaFor(name string) ([]byte, error) {
	switch name {
	case "envelope":
		return wire.GenerateSchema()
	case "sheet":
		return sheet.GenerateSchema()
	default:
		return wire.GeneratePayloadSchema(wire.Kind(name))
	}
}
