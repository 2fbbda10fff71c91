package linkedlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func values[V any](l *List[V]) []V {
	var result []V
	for e := l.Front(); e != nil; e = e.Next() {
		result = append(result, e.Value)
	}

	return result
}

func TestPushRemoveMove(t *testing.T) {
	l := New[int]()
	assert.Nil(t, l.Front())

	e1 := l.PushBack(1)
	e2 := l.PushBack(2)
	l.PushBack(3)
	assert.Equal(t, []int{1, 2, 3}, values(l))

	l.MoveToBack(e1)
	assert.Equal(t, []int{2, 3, 1}, values(l))
	assert.Equal(t, 3, l.Len())

	l.MoveToBack(e1)
	assert.Equal(t, []int{2, 3, 1}, values(l))

	assert.Equal(t, 2, l.Remove(e2))
	assert.Equal(t, []int{3, 1}, values(l))
	assert.Equal(t, 2, l.Len())

	// removing twice is a noop
	l.Remove(e2)
	assert.Equal(t, 2, l.Len())
}
