package orderedmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceKeepsPosition(t *testing.T) {
	m := New[string, int]()

	for i, k := range []string{"a", "b", "c"} {
		_, added := m.EnqueueIfNotExist(k, i)
		require.True(t, added)
	}

	_, added := m.EnqueueIfNotExist("b", 100)
	assert.False(t, added)

	old, replaced := m.Replace("b", 10)
	assert.True(t, replaced)
	assert.Equal(t, 1, old)
	assert.Equal(t, []int{0, 10, 2}, m.AsSlice())

	_, replaced = m.Replace("x", 1)
	assert.False(t, replaced)
}

func TestMoveToBack(t *testing.T) {
	m := New[string, int]()

	isFirst, _ := m.EnqueueIfNotExist("a", 1)
	assert.True(t, isFirst)
	isFirst, _ = m.EnqueueIfNotExist("b", 2)
	assert.False(t, isFirst)

	require.True(t, m.MoveToBack("a"))
	assert.Equal(t, 2, m.First())
	assert.Equal(t, []int{2, 1}, m.AsSlice())

	// the element must still be reachable via its key after moving
	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	removed, ok := m.Dequeue("a")
	assert.True(t, ok)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, m.Len())
	assert.False(t, m.MoveToBack("a"))
}

func TestEmptyMap(t *testing.T) {
	m := New[int, *int]()

	assert.Nil(t, m.First())
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.AsSlice())

	_, ok := m.Dequeue(1)
	assert.False(t, ok)
}
