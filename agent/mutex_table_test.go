package agent

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexTable_AddExistsRemove(t *testing.T) {
	table := NewMutexTable()
	id := uuid.NewString()

	assert.False(t, table.Exists(id))
	m1 := table.Add(id)
	assert.True(t, table.Exists(id))

	m2 := table.Add(id)
	assert.Same(t, m1, m2, "adding an already-present id returns the existing handle")

	table.Remove(id)
	assert.False(t, table.Exists(id))
}

func TestMutexTable_GetMissing(t *testing.T) {
	table := NewMutexTable()
	_, err := table.Get("nope")
	require.Error(t, err)
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestMutexTable_Len(t *testing.T) {
	table := NewMutexTable()
	table.Add("a")
	table.Add("b")
	assert.Equal(t, 2, table.Len())
	table.Remove("a")
	assert.Equal(t, 1, table.Len())
}
