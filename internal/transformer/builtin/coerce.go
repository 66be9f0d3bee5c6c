package builtin

import (
	"math"
	"strconv"
	"strings"
)

// ParseNumber converts a raw cell to a float. Anything that does not parse,
// including NaN and infinities, is reported as missing (nil).
func ParseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Truncate converts p to an integer, discarding the fractional part.
func Truncate(p *float64) *int64 {
	if p == nil {
		return nil
	}
	v := int64(*p)
	return &v
}

// RoundHalfEven converts p to the nearest integer, rounding halves to even.
func RoundHalfEven(p *float64) *int64 {
	if p == nil {
		return nil
	}
	v := int64(math.RoundToEven(*p))
	return &v
}
