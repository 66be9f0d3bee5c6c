// Package builtin contains the reusable cleaning, filtering and reduction
// stages shared by the ingestion pipelines.
package builtin

// ColumnCheck is the result of comparing a dataset header against the columns
// a pipeline requires.
type ColumnCheck struct {
	OK      bool
	Missing []string // required columns absent from the header, in required order
}

// Columns reports which required columns are absent from actual. Names are
// compared exactly; no trimming or case folding is applied.
func Columns(actual, required []string) ColumnCheck {
	have := make(map[string]struct{}, len(actual))
	for _, c := range actual {
		have[c] = struct{}{}
	}
	var missing []string
	for _, c := range required {
		if _, ok := have[c]; !ok {
			missing = append(missing, c)
		}
	}
	return ColumnCheck{OK: len(missing) == 0, Missing: missing}
}
