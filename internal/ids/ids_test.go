// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package ids_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adjudicator/adjudicator/internal/ids"
	"github.com/adjudicator/adjudicator/pkg/errutil"
)

func TestNew_Monotonic(t *testing.T) {
	prev := ids.New()
	for i := 0; i < 100; i++ {
		next := ids.New()
		assert.Equal(t, 1, next.Compare(prev), "ids must increase")
		prev = next
	}
}

func TestParse(t *testing.T) {
	id := ids.New()

	got, err := ids.Parse(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ids.Parse("not-a-ulid")
	errutil.AssertErrorCode(t, err, "HANDOFF_INVALID_ID")
}
