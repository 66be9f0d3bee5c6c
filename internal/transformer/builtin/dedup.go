package builtin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// DeDup collapses rows that share the same key, keeping the first occurrence
// in input order.
//
// Keys are built from the values returned by Key. Components are type-tagged
// and joined with \x1f so that a missing value (nil) never equals a present
// one and "1" never equals 1. Key strings are bucketed by their xxh3 hash and
// compared exactly inside a bucket.
type DeDup[T any] struct {
	Key func(T) []any
}

// Apply returns the retained rows in a new slice.
func (d DeDup[T]) Apply(in []T) []T {
	if len(in) == 0 || d.Key == nil {
		return in
	}
	buckets := make(map[uint64][]int, len(in)) // hash -> indexes into keys
	keys := make([]string, 0, len(in))
	out := make([]T, 0, len(in))

	for _, row := range in {
		k := EncodeKey(d.Key(row)...)
		h := xxh3.HashString(k)
		seen := false
		for _, ki := range buckets[h] {
			if keys[ki] == k {
				seen = true
				break
			}
		}
		if !seen {
			buckets[h] = append(buckets[h], len(keys))
			keys = append(keys, k)
			out = append(out, row)
		}
	}
	return out
}

// EncodeKey renders key components into a single comparable string.
func EncodeKey(parts ...any) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		switch v := p.(type) {
		case nil:
			b.WriteByte(0)
		case *float64:
			if v == nil {
				b.WriteByte(0)
				continue
			}
			writeFloat(&b, *v)
		case float64:
			writeFloat(&b, v)
		case *string:
			if v == nil {
				b.WriteByte(0)
				continue
			}
			b.WriteByte('s')
			b.WriteString(*v)
		case string:
			b.WriteByte('s')
			b.WriteString(v)
		case *int64:
			if v == nil {
				b.WriteByte(0)
				continue
			}
			b.WriteByte('i')
			b.WriteString(strconv.FormatInt(*v, 10))
		case int64:
			b.WriteByte('i')
			b.WriteString(strconv.FormatInt(v, 10))
		case int:
			b.WriteByte('i')
			b.WriteString(strconv.Itoa(v))
		default:
			b.WriteByte('v')
			fmt.Fprint(&b, v)
		}
	}
	return b.String()
}

func writeFloat(b *strings.Builder, f float64) {
	if f == 0 {
		f = 0 // fold -0
	}
	b.WriteByte('f')
	b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
}
