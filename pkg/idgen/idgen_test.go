package idgen

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSonyflakeIdsAreUnique(t *testing.T) {
	gen, err := NewSonyflakeGenerator(7)
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		id, err := gen.NextID()
		require.NoError(t, err)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestUUIDGenerator(t *testing.T) {
	id, err := NewUUIDGenerator().NextID()
	require.NoError(t, err)

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
}

func TestNextIDs(t *testing.T) {
	ids, err := NextIDs(3)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.NotEqual(t, ids[0], ids[1])
}
