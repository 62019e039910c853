// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

// Package migrations holds the SQLite hand-off schema.
package migrations

import "embed"

// FS contains the embedded migrations.
//
//go:embed *.sql
var FS embed.FS
