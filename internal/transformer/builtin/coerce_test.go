package builtin

import "testing"

func f64(v float64) *float64 { return &v }

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"42", f64(42)},
		{" 1.75 ", f64(1.75)},
		{"-3e2", f64(-300)},
		{"", nil},
		{"abc", nil},
		{"NaN", nil},
		{"nan", nil},
		{"Inf", nil},
		{"None", nil},
	}
	for _, tt := range tests {
		got := ParseNumber(tt.in)
		switch {
		case tt.want == nil && got != nil:
			t.Errorf("ParseNumber(%q) = %v, want missing", tt.in, *got)
		case tt.want != nil && (got == nil || *got != *tt.want):
			t.Errorf("ParseNumber(%q) = %v, want %v", tt.in, got, *tt.want)
		}
	}
}

func TestTruncateAndRound(t *testing.T) {
	if got := Truncate(f64(150.9)); got == nil || *got != 150 {
		t.Fatalf("Truncate(150.9) = %v, want 150", got)
	}
	if got := Truncate(f64(-1.5)); got == nil || *got != -1 {
		t.Fatalf("Truncate(-1.5) = %v, want -1", got)
	}
	if Truncate(nil) != nil || RoundHalfEven(nil) != nil {
		t.Fatal("nil input must stay missing")
	}

	cases := map[float64]int64{2.5: 2, 3.5: 4, 3.4: 3, 4.6: 5}
	for in, want := range cases {
		if got := RoundHalfEven(f64(in)); got == nil || *got != want {
			t.Errorf("RoundHalfEven(%v) = %v, want %d", in, got, want)
		}
	}
}
