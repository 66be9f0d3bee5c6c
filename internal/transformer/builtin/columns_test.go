package builtin

import (
	"reflect"
	"testing"
)

func TestColumns(t *testing.T) {
	tests := []struct {
		name     string
		actual   []string
		required []string
		want     ColumnCheck
	}{
		{
			name:     "superset",
			actual:   []string{"Age", "Gender", "BMI", "Extra"},
			required: []string{"Age", "BMI"},
			want:     ColumnCheck{OK: true},
		},
		{
			name:     "missing keeps required order",
			actual:   []string{"Gender"},
			required: []string{"BMI", "Age", "Gender"},
			want:     ColumnCheck{OK: false, Missing: []string{"BMI", "Age"}},
		},
		{
			name:     "no trimming or case folding",
			actual:   []string{" Age", "bmi"},
			required: []string{"Age", "BMI"},
			want:     ColumnCheck{OK: false, Missing: []string{"Age", "BMI"}},
		},
		{
			name:     "nothing required",
			actual:   nil,
			required: nil,
			want:     ColumnCheck{OK: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Columns(tt.actual, tt.required)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %#v want %#v", got, tt.want)
			}
		})
	}
}
