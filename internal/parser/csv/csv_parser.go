// Package csv reads delimited files into an in-memory table. The header row
// names the columns; data rows are padded to the header width so every row can
// be addressed by column index.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// ErrEmpty is returned when the input has no header row.
var ErrEmpty = errors.New("csv: no header row")

// ErrTooManyFields marks a row wider than the header.
var ErrTooManyFields = errors.New("too many fields")

// Options configures the CSV parser. The zero value reads comma-separated input
// and aborts on the first malformed row.
type Options struct {
	// Comma specifies the field delimiter. When zero, ',' is used.
	Comma rune

	// SkipMalformed skips rows that cannot be parsed or that carry more fields
	// than the header and counts them in Table.Skipped. When false the first
	// such row aborts parsing with a *ParseError.
	SkipMalformed bool

	// LazyQuotes is passed to encoding/csv.
	LazyQuotes bool
}

// Table is a fully read CSV input.
type Table struct {
	Header  []string
	Rows    [][]string // len(row) == len(Header); short rows padded with ""
	Skipped int        // malformed rows dropped under SkipMalformed
}

// Records is the number of data records seen, including skipped ones.
func (t *Table) Records() int { return len(t.Rows) + t.Skipped }

// Index maps each header name to its column position. Duplicate names keep
// the first position.
func (t *Table) Index() map[string]int {
	idx := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		if _, ok := idx[h]; !ok {
			idx[h] = i
		}
	}
	return idx
}

// ParseError reports a malformed data row.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("csv: line %d: %v", e.Line, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// Parser parses CSV input according to Options. It is safe to reuse across
// inputs, but Parser itself is not concurrency-safe.
type Parser struct{ opt Options }

// NewParser constructs a Parser with the provided Options.
func NewParser(opt Options) *Parser { return &Parser{opt: opt} }

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// ctxCheckEvery bounds how many rows are read between context checks.
const ctxCheckEvery = 4096

// Parse reads r to the end.
func (p *Parser) Parse(ctx context.Context, r io.Reader) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cr := csv.NewReader(r)
	if p.opt.Comma != 0 {
		cr.Comma = p.opt.Comma
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = p.opt.LazyQuotes

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	t := &Table{Header: StripHeaderBOM(header)}
	width := len(t.Header)

	for n := 1; ; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, fmt.Errorf("csv: read: %w", err)
			}
			if !p.opt.SkipMalformed {
				return nil, &ParseError{Line: perr.StartLine, Err: perr.Err}
			}
			t.Skipped++
			continue
		}
		if len(row) > width {
			if !p.opt.SkipMalformed {
				line, _ := cr.FieldPos(0)
				return nil, &ParseError{Line: line, Err: ErrTooManyFields}
			}
			t.Skipped++
			continue
		}
		for len(row) < width {
			row = append(row, "")
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
