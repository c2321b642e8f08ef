// Package normalization turns loosely-typed configuration strings into enum values.
package normalization

import (
	"fmt"
	"slices"
	"strings"
)

// Normalizer maps case-insensitive, whitespace-tolerant strings onto values of T.
type Normalizer[T comparable] struct {
	name         string
	values       map[string]T
	defaultValue T
	keys         []string
}

// New creates a normalizer for the named enum. Keys of values are normalized
// with Clean before lookup.
func New[T comparable](name string, values map[string]T, defaultValue T) *Normalizer[T] {
	n := &Normalizer[T]{
		name:         name,
		values:       make(map[string]T, len(values)),
		defaultValue: defaultValue,
		keys:         make([]string, 0, len(values)),
	}
	for k, v := range values {
		key := Clean(k)
		n.values[key] = v
		n.keys = append(n.keys, key)
	}
	slices.Sort(n.keys)
	return n
}

// Normalize returns the value for raw, or the default when raw is empty or unknown.
func (n *Normalizer[T]) Normalize(raw string) T {
	if v, ok := n.values[Clean(raw)]; ok {
		return v
	}
	return n.defaultValue
}

// Parse returns the value for raw. Empty input yields the default; unknown
// input is an error listing the accepted keys.
func (n *Normalizer[T]) Parse(raw string) (T, error) {
	cleaned := Clean(raw)
	if cleaned == "" {
		return n.defaultValue, nil
	}
	if v, ok := n.values[cleaned]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q, valid options: %s", n.name, raw, strings.Join(n.keys, ", "))
}

// Valid reports whether raw names a known value.
func (n *Normalizer[T]) Valid(raw string) bool {
	_, ok := n.values[Clean(raw)]
	return ok
}

// Keys returns the accepted keys in sorted order.
func (n *Normalizer[T]) Keys() []string {
	return slices.Clone(n.keys)
}

// Clean lowercases and trims s.
func Clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
