// Package uuid provides unit tests for UUID generation and validation.
package uuid

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	id := New()

	require.NotEmpty(t, id)
	assert.NoError(t, Validate(id), "generated id is not v7: %s", id)
}

func TestNew_unique(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		require.False(t, ids[id], "duplicate id %s", id)
		ids[id] = true
	}
}

func TestNew_timeOrdered(t *testing.T) {
	ids := make([]string, 200)
	for i := range ids {
		ids[i] = New()
	}
	assert.True(t, sort.StringsAreSorted(ids), "v7 ids must sort in creation order")
}

func TestValidate_invalid(t *testing.T) {
	for _, s := range []string{"", "1700000000000-0.123", "550e8400-e29b-41d4-a716-446655440000"} {
		assert.Error(t, Validate(s), s)
	}
}
