package builtin

import (
	"strings"
	"testing"
)

type person struct {
	Age    *float64
	Height *float64
	Name   *string
}

var personBounds = Bounds[person]{
	Ranges: []Range[person]{
		{Field: "age", Min: 10, Max: 100, Value: func(p person) *float64 { return p.Age }},
		{Field: "height", Min: 1.0, Max: 2.5, Value: func(p person) *float64 { return p.Height }},
	},
}

func TestBoundsInclusiveAndMissingFails(t *testing.T) {
	in := []person{
		{Age: f64(10), Height: f64(1.0)},  // lower edges
		{Age: f64(100), Height: f64(2.5)}, // upper edges
		{Age: f64(9.99), Height: f64(1.8)},
		{Age: f64(30), Height: f64(2.51)},
		{Age: nil, Height: f64(1.8)},
		{Age: f64(30), Height: nil},
	}

	var reasons []string
	b := personBounds
	b.Reject = func(r RejectedRow[person]) { reasons = append(reasons, r.Reason) }

	out := b.Apply(in)
	if len(out) != 2 {
		t.Fatalf("survivors = %d, want 2", len(out))
	}
	if rejected := len(in) - len(out); rejected != len(reasons) {
		t.Fatalf("rejected %d rows but sink saw %d", rejected, len(reasons))
	}
	if !strings.Contains(reasons[2], "age is missing") {
		t.Fatalf("unexpected reason %q", reasons[2])
	}
}

func TestRejectedPlusSurvivingEqualsEntering(t *testing.T) {
	for n := 0; n < 50; n++ {
		var in []person
		for i := 0; i < n; i++ {
			age := float64(i * 3)
			in = append(in, person{Age: &age, Height: f64(1.5)})
		}
		var rejected int
		b := personBounds
		b.Reject = func(RejectedRow[person]) { rejected++ }
		out := b.Apply(in)
		if rejected+len(out) != len(in) {
			t.Fatalf("n=%d: rejected %d + surviving %d != entering %d", n, rejected, len(out), len(in))
		}
	}
}

func TestRequire(t *testing.T) {
	in := []person{{Name: str("Apple")}, {Name: nil}, {Name: str("  ")}, {Name: str("Rice")}}
	out := Require[person]{Field: "food_item", Value: func(p person) *string { return p.Name }}.Apply(in)
	if len(out) != 2 || *out[0].Name != "Apple" || *out[1].Name != "Rice" {
		t.Fatalf("unexpected survivors %#v", out)
	}
}
