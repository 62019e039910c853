// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adjudicator/adjudicator/internal/handoff/sqlite"
	"github.com/adjudicator/adjudicator/pkg/errutil"
)

func TestMigrator_Lifecycle(t *testing.T) {
	m, err := sqlite.NewMigrator(filepath.Join(t.TempDir(), "handoff.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	pending, err := m.Pending()
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, pending)

	require.NoError(t, m.Up())
	require.NoError(t, m.Up(), "no change is not an error")

	v, dirty, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)

	pending, err = m.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, m.Down())
	v, _, err = m.Version()
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, m.Force(1))
	v, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	errutil.AssertErrorCode(t, m.Force(-1), "INVALID_VERSION")
}

func TestMigrator_OpenSeesMigratedSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handoff.db")

	m, err := sqlite.NewMigrator(path)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	store, err := sqlite.Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pending, err := store.ListPending(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMigrationName(t *testing.T) {
	name, err := sqlite.MigrationName(1)
	require.NoError(t, err)
	assert.Equal(t, "000001_handoff_requests", name)

	name, err = sqlite.MigrationName(999)
	require.NoError(t, err)
	assert.Empty(t, name)
}
