// Package sets is a small generic set keyed by comparable values.
package sets

import (
	"cmp"
	"maps"
	"slices"
)

type Set[T comparable] map[T]struct{}

func New[T comparable](vals ...T) Set[T] {
	s := make(Set[T], len(vals))
	s.Add(vals...)
	return s
}

func (s Set[T]) Add(vals ...T) {
	for _, v := range vals {
		s[v] = struct{}{}
	}
}

func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

func (s Set[T]) Delete(v T) { delete(s, v) }

// Difference returns s minus other. Neither input is modified.
func (s Set[T]) Difference(other Set[T]) Set[T] {
	out := maps.Clone(s)
	maps.DeleteFunc(out, func(k T, _ struct{}) bool { return other.Has(k) })
	return out
}

// Sorted lists the members of s in ascending order.
func Sorted[T cmp.Ordered](s Set[T]) []T {
	return slices.Sorted(maps.Keys(s))
}
