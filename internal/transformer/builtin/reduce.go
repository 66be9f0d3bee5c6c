package builtin

// Sum adds the present values. An all-missing input sums to 0.
func Sum(vals []*float64) *float64 {
	var s float64
	for _, v := range vals {
		if v != nil {
			s += *v
		}
	}
	return &s
}

// Mean averages the present values. It returns nil when every value is missing.
func Mean(vals []*float64) *float64 {
	var (
		s float64
		n int
	)
	for _, v := range vals {
		if v != nil {
			s += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	m := s / float64(n)
	return &m
}

// Max returns the largest present value, or nil.
func Max(vals []*float64) *float64 {
	var m *float64
	for _, v := range vals {
		if v != nil && (m == nil || *v > *m) {
			x := *v
			m = &x
		}
	}
	return m
}

// Mode returns the most frequent present value. Ties go to the value seen
// first.
func Mode[K comparable](vals []*K) *K {
	counts := make(map[K]int, len(vals))
	var order []K
	for _, v := range vals {
		if v == nil {
			continue
		}
		if _, seen := counts[*v]; !seen {
			order = append(order, *v)
		}
		counts[*v]++
	}
	if len(order) == 0 {
		return nil
	}
	best := order[0]
	for _, k := range order[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return &best
}
