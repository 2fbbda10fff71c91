// Package linkedlist implements a generic doubly linked list.
package linkedlist

type Element[V any] struct {
	Value V

	next, prev *Element[V]
	list       *List[V]
}

// Next returns the next element or nil.
func (e *Element[V]) Next() *Element[V] {
	if e.list == nil || e.next == &e.list.root {
		return nil
	}

	return e.next
}

// List is a doubly linked list, the zero value is not usable, use New().
type List[V any] struct {
	root Element[V]
	len  int
}

func New[V any]() *List[V] {
	l := List[V]{}
	l.root.next = &l.root
	l.root.prev = &l.root

	return &l
}

func (l *List[V]) Len() int {
	return l.len
}

// Front returns the first element or nil if the list is empty.
func (l *List[V]) Front() *Element[V] {
	if l.len == 0 {
		return nil
	}

	return l.root.next
}

func (l *List[V]) insertAfter(e, at *Element[V]) *Element[V] {
	e.prev = at
	e.next = at.next
	e.prev.next = e
	e.next.prev = e
	e.list = l
	l.len++

	return e
}

// PushBack appends val to the list.
func (l *List[V]) PushBack(val V) *Element[V] {
	return l.insertAfter(&Element[V]{Value: val}, l.root.prev)
}

// Remove removes e from the list and returns its value.
func (l *List[V]) Remove(e *Element[V]) V {
	if e.list != l {
		return e.Value
	}

	e.prev.next = e.next
	e.next.prev = e.prev
	e.next = nil
	e.prev = nil
	e.list = nil
	l.len--

	return e.Value
}

// MoveToBack moves e to the end of the list, e stays valid.
func (l *List[V]) MoveToBack(e *Element[V]) {
	if e.list != l || l.root.prev == e {
		return
	}

	e.prev.next = e.next
	e.next.prev = e.prev
	l.len--

	l.insertAfter(e, l.root.prev)
}
