package builtin

import (
	"fmt"
	"strings"
)

// RejectedRow describes a row dropped by a filter.
type RejectedRow[T any] struct {
	Row    T
	Reason string
	Stage  string
}

// Range is an inclusive domain bound on one numeric attribute.
type Range[T any] struct {
	Field    string
	Min, Max float64
	Value    func(T) *float64
}

// Bounds keeps rows whose bounded attributes all fall inside their range.
// A missing value fails its bound.
type Bounds[T any] struct {
	Ranges []Range[T]
	Reject func(RejectedRow[T]) // optional sink
}

// Apply returns the surviving rows in a new slice, preserving order.
func (b Bounds[T]) Apply(in []T) []T {
	out := make([]T, 0, len(in))
	for _, row := range in {
		if reason, ok := b.check(row); !ok {
			if b.Reject != nil {
				b.Reject(RejectedRow[T]{Row: row, Reason: reason, Stage: "bounds"})
			}
			continue
		}
		out = append(out, row)
	}
	return out
}

func (b Bounds[T]) check(row T) (string, bool) {
	for _, r := range b.Ranges {
		v := r.Value(row)
		if v == nil {
			return fmt.Sprintf("%s is missing", r.Field), false
		}
		if *v < r.Min || *v > r.Max {
			return fmt.Sprintf("%s=%g outside [%g, %g]", r.Field, *v, r.Min, r.Max), false
		}
	}
	return "", true
}

// Require keeps rows whose text field is present and not blank.
type Require[T any] struct {
	Field  string
	Value  func(T) *string
	Reject func(RejectedRow[T])
}

// Apply returns the surviving rows in a new slice, preserving order.
func (r Require[T]) Apply(in []T) []T {
	out := make([]T, 0, len(in))
	for _, row := range in {
		v := r.Value(row)
		if v == nil || strings.TrimSpace(*v) == "" {
			if r.Reject != nil {
				r.Reject(RejectedRow[T]{Row: row, Reason: r.Field + " is required", Stage: "require"})
			}
			continue
		}
		out = append(out, row)
	}
	return out
}
