package transformer

import (
	"reflect"
	"testing"
)

func TestChainAppliesInOrder(t *testing.T) {
	double := Func[int](func(in []int) []int {
		out := make([]int, 0, len(in))
		for _, v := range in {
			out = append(out, v*2)
		}
		return out
	})
	dropOdd := Func[int](func(in []int) []int {
		out := in[:0]
		for _, v := range in {
			if v%4 == 0 {
				out = append(out, v)
			}
		}
		return out
	})

	got := Chain[int]{double, dropOdd}.Apply([]int{1, 2, 3, 4})
	want := []int{4, 8}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v want %#v", got, want)
	}
}

func TestCountedTracksRemovals(t *testing.T) {
	keepFirst := Func[string](func(in []string) []string { return in[:1] })
	c := &Counted[string]{T: keepFirst}

	c.Apply([]string{"a", "b", "c"})
	c.Apply([]string{"d", "e"})

	if c.Removed != 3 {
		t.Fatalf("Removed = %d, want 3", c.Removed)
	}
}

func TestEmptyChainIsIdentity(t *testing.T) {
	in := []int{3, 1, 2}
	if got := (Chain[int]{}).Apply(in); !reflect.DeepEqual(got, in) {
		t.Fatalf("got %#v want %#v", got, in)
	}
}
