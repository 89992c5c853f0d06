// Package order computes grid positions. Both helpers are pure data
// transformations: no I/O, deterministic, inputs never mutated. Persisting
// the re-stamped indices is the caller's job.
package order

import (
	"fmt"

	"gridloop/core/apperr"
)

// Item exposes named fields to the ordering helpers. Entities participating
// in grid ordering implement it for their "index" and identifier keys.
type Item interface {
	Field(key string) (interface{}, bool)
}

// NextIndex returns one more than the greatest integer value of key across
// items, or 0 for an empty sequence. Every item whose key is missing or not
// an integer is reported in a single MalformedIndexError rather than
// aborting at the first.
func NextIndex[T Item](items []T, key string) (int, error) {
	var malformed []int
	max := -1
	for i, item := range items {
		value, ok := item.Field(key)
		if !ok {
			malformed = append(malformed, i)
			continue
		}
		n, ok := value.(int)
		if !ok {
			malformed = append(malformed, i)
			continue
		}
		if n > max {
			max = n
		}
	}
	if len(malformed) > 0 {
		return 0, &apperr.MalformedIndexError{Key: key, Positions: malformed}
	}
	return max + 1, nil
}

// ReorderByField moves the element whose key equals value to target in the
// returned sequence, preserving the relative order of the rest. A target
// past the end clamps to the end. Returns NotFound when no element matches.
func ReorderByField[T Item](items []T, key string, value interface{}, target int) ([]T, error) {
	if target < 0 {
		return nil, apperr.NewValidation("target index must not be negative")
	}

	matched := false
	var moving T
	leftovers := make([]T, 0, len(items))
	for _, item := range items {
		v, ok := item.Field(key)
		if !matched && ok && v == value {
			moving = item
			matched = true
			continue
		}
		leftovers = append(leftovers, item)
	}
	if !matched {
		return nil, fmt.Errorf("no element with %s = %v: %w", key, value, apperr.ErrNotFound)
	}

	if target > len(leftovers) {
		target = len(leftovers)
	}

	result := make([]T, 0, len(items))
	result = append(result, leftovers[:target]...)
	result = append(result, moving)
	result = append(result, leftovers[target:]...)
	return result, nil
}
