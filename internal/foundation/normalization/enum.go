// Package normalization maps loosely written configuration strings onto
// closed sets of typed values.
package normalization

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Enum resolves spellings of a named enumeration. Keys are matched after
// trimming and case folding, so "JSON " and "json" resolve alike.
type Enum[T ~string] struct {
	name   string
	values map[string]T
	keys   []string
}

// NewEnum builds an Enum from spelling -> value pairs. Several spellings
// may map to the same value.
func NewEnum[T ~string](name string, values map[string]T) *Enum[T] {
	e := &Enum[T]{name: name, values: make(map[string]T, len(values))}
	for k, v := range values {
		e.values[fold(k)] = v
	}
	e.keys = slices.Sorted(maps.Keys(e.values))
	return e
}

// Parse returns the value spelled by raw or an error naming the accepted
// spellings.
func (e *Enum[T]) Parse(raw string) (T, error) {
	if v, ok := e.values[fold(raw)]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s: %q, valid options: %s", e.name, raw, strings.Join(e.keys, ", "))
}

// Canonical reports the value raw resolves to and whether resolving
// changed its spelling. Unknown input is returned unchanged.
func (e *Enum[T]) Canonical(raw string) (T, bool) {
	v, err := e.Parse(raw)
	if err != nil {
		return T(raw), false
	}
	return v, string(v) != raw
}

// Options lists the accepted spellings in sorted order.
func (e *Enum[T]) Options() []string {
	return slices.Clone(e.keys)
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
