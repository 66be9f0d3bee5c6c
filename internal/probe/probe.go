// Package probe inspects a dataset CSV before ingestion: it checks the header
// against the columns a pipeline requires and profiles each column from a
// sample of rows.
package probe

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"healthetl/internal/datasource"
	pcsv "healthetl/internal/parser/csv"
	"healthetl/internal/transformer/builtin"
)

// DefaultSampleRows bounds the rows used for type inference.
const DefaultSampleRows = 1000

// Inferred column types.
const (
	TypeEmpty   = "empty"
	TypeInteger = "integer"
	TypeReal    = "real"
	TypeText    = "text"
)

// Options control sampling.
type Options struct {
	// SampleRows caps the rows profiled; DefaultSampleRows when <= 0.
	SampleRows int
	Comma      rune
}

// Column profiles one header column over the sample.
type Column struct {
	Name     string
	Type     string
	Required bool
	// Placeholders counts empty cells and nan/none/null tokens.
	Placeholders int
	Sampled      int
}

// Report is the outcome of a probe.
type Report struct {
	Source  string
	Rows    int // data rows parsed
	Skipped int // malformed rows
	Columns []Column
	Missing []string // required columns absent from the header
}

// OK reports whether the header carries every required column.
func (r *Report) OK() bool { return len(r.Missing) == 0 }

// Probe reads src and profiles it against required.
func Probe(ctx context.Context, src datasource.Source, required []string, opt Options) (*Report, error) {
	if opt.SampleRows <= 0 {
		opt.SampleRows = DefaultSampleRows
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}
	defer rc.Close()

	t, err := pcsv.NewParser(pcsv.Options{Comma: opt.Comma, SkipMalformed: true}).Parse(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", src.Name(), err)
	}

	rep := &Report{
		Source:  src.Name(),
		Rows:    len(t.Rows),
		Skipped: t.Skipped,
		Missing: builtin.Columns(t.Header, required).Missing,
	}
	req := make(map[string]bool, len(required))
	for _, c := range required {
		req[c] = true
	}
	sample := t.Rows
	if len(sample) > opt.SampleRows {
		sample = sample[:opt.SampleRows]
	}
	for i, name := range t.Header {
		col := Column{Name: name, Required: req[name], Sampled: len(sample)}
		vals := make([]string, 0, len(sample))
		for _, row := range sample {
			if builtin.IsPlaceholder(row[i]) {
				col.Placeholders++
				continue
			}
			vals = append(vals, builtin.CleanText(row[i]))
		}
		col.Type = inferType(vals)
		rep.Columns = append(rep.Columns, col)
	}
	return rep, nil
}

// inferType picks the narrowest type every value satisfies.
func inferType(vals []string) string {
	if len(vals) == 0 {
		return TypeEmpty
	}
	if allMatch(vals, isInt) {
		return TypeInteger
	}
	if allMatch(vals, func(s string) bool { return builtin.ParseNumber(s) != nil }) {
		return TypeReal
	}
	return TypeText
}

func allMatch(vals []string, fn func(string) bool) bool {
	for _, v := range vals {
		if !fn(v) {
			return false
		}
	}
	return true
}

func isInt(s string) bool {
	_, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return err == nil
}
