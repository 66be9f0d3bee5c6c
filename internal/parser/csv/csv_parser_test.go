package csv_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	pcsv "healthetl/internal/parser/csv"
)

func parse(t *testing.T, opt pcsv.Options, in string) (*pcsv.Table, error) {
	t.Helper()
	return pcsv.NewParser(opt).Parse(context.Background(), strings.NewReader(in))
}

func TestParseHeaderAndRows(t *testing.T) {
	in := "\uFEFFFood_Item,Category,Calories (kcal)\nApple,Fruits,52\nRice,Grains,130\n"
	tbl, err := parse(t, pcsv.Options{}, in)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if want := []string{"Food_Item", "Category", "Calories (kcal)"}; !reflect.DeepEqual(tbl.Header, want) {
		t.Fatalf("header=%#v want %#v", tbl.Header, want)
	}
	if got, want := len(tbl.Rows), 2; got != want {
		t.Fatalf("rows=%d want %d", got, want)
	}
	if idx := tbl.Index(); idx["Calories (kcal)"] != 2 {
		t.Fatalf("index=%v", idx)
	}
	if tbl.Records() != 2 || tbl.Skipped != 0 {
		t.Fatalf("records=%d skipped=%d", tbl.Records(), tbl.Skipped)
	}
}

func TestParsePadsShortRows(t *testing.T) {
	tbl, err := parse(t, pcsv.Options{}, "a,b,c\n1\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if want := []string{"1", "", ""}; !reflect.DeepEqual(tbl.Rows[0], want) {
		t.Fatalf("row=%#v want %#v", tbl.Rows[0], want)
	}
}

func TestParseSkipMalformed(t *testing.T) {
	tbl, err := parse(t, pcsv.Options{SkipMalformed: true}, "a,b\n1,2\n3,4,5\n8,9\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tbl.Rows) != 2 || tbl.Skipped != 1 || tbl.Records() != 3 {
		t.Fatalf("rows=%d skipped=%d", len(tbl.Rows), tbl.Skipped)
	}
}

func TestParseSkipBadQuote(t *testing.T) {
	tbl, err := parse(t, pcsv.Options{SkipMalformed: true}, "a,b\n1,2\n3,x\"y\n8,9\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tbl.Rows) != 2 || tbl.Skipped != 1 {
		t.Fatalf("rows=%d skipped=%d", len(tbl.Rows), tbl.Skipped)
	}
	if tbl.Rows[1][0] != "8" {
		t.Fatalf("unexpected rows %#v", tbl.Rows)
	}
}

func TestParseStrictAborts(t *testing.T) {
	_, err := parse(t, pcsv.Options{}, "a,b\n1,2\n3,4,5\n")
	var perr *pcsv.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("err=%v, want *ParseError", err)
	}
	if perr.Line != 3 || !errors.Is(err, pcsv.ErrTooManyFields) {
		t.Fatalf("perr=%+v", perr)
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := parse(t, pcsv.Options{}, ""); !errors.Is(err, pcsv.ErrEmpty) {
		t.Fatalf("err=%v want ErrEmpty", err)
	}
}

func TestParseCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pcsv.NewParser(pcsv.Options{}).Parse(ctx, strings.NewReader("a\n1\n"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}
