// Package set provides a generic set type.
package set

import (
	"cmp"
	"slices"
)

type Set[T comparable] map[T]struct{}

func From[T comparable](vals []T) Set[T] {
	result := make(Set[T], len(vals))
	for _, v := range vals {
		result[v] = struct{}{}
	}

	return result
}

func (s Set[T]) Add(v T) {
	s[v] = struct{}{}
}

func (s Set[T]) Contains(v T) bool {
	_, exists := s[v]
	return exists
}

// Clone returns a copy of s, a nil set is returned as empty set.
func (s Set[T]) Clone() Set[T] {
	result := make(Set[T], len(s))
	for k := range s {
		result[k] = struct{}{}
	}

	return result
}

// Sorted returns the elements of s in ascending order.
func Sorted[T cmp.Ordered](s Set[T]) []T {
	result := make([]T, 0, len(s))
	for k := range s {
		result = append(result, k)
	}

	slices.Sort(result)

	return result
}
