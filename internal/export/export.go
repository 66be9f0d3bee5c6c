// Package export writes the cleaned tables and KPI tables to timestamped CSV
// and JSON files, plus an optional XLSX workbook with one sheet per table.
package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"healthetl/internal/storage"
)

// StampLayout is the timestamp suffix of every exported file name.
const StampLayout = "20060102_150405"

// Exporter writes every Query result into Dir.
type Exporter struct {
	Store       storage.Querier
	Dir         string
	Queries     []Query // DefaultQueries when nil
	XLSX        bool
	Concurrency int // queries in flight; 1 when <= 0
	Now         func() time.Time
	Log         *zap.Logger
}

// File describes one exported table.
type File struct {
	Name string
	Rows int
	CSV  string
	JSON string
}

// Summary lists what Run wrote.
type Summary struct {
	Files    []File
	Workbook string // empty unless XLSX was requested
}

// Export implements pipeline.Exporter.
func (e *Exporter) Export(ctx context.Context) error {
	_, err := e.Run(ctx)
	return err
}

// Run executes every query and writes its files. Queries run concurrently;
// results are reported in query order.
func (e *Exporter) Run(ctx context.Context) (Summary, error) {
	log := e.Log
	if log == nil {
		log = zap.NewNop()
	}
	now := e.Now
	if now == nil {
		now = time.Now
	}
	queries := e.Queries
	if queries == nil {
		queries = DefaultQueries()
	}
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("export: %w", err)
	}
	stamp := now().Format(StampLayout)

	tables := make([]*storage.Table, len(queries))
	files := make([]File, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	limit := e.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, q := range queries {
		g.Go(func() error {
			sql, args := q.Build(e.Store.Flavor())
			t, err := e.Store.QueryTable(gctx, sql, args...)
			if err != nil {
				return fmt.Errorf("export %s: %w", q.Name, err)
			}
			f := File{
				Name: q.Name,
				Rows: len(t.Rows),
				CSV:  filepath.Join(e.Dir, fmt.Sprintf("%s_%s.csv", q.Name, stamp)),
				JSON: filepath.Join(e.Dir, fmt.Sprintf("%s_%s.json", q.Name, stamp)),
			}
			if err := writeFile(f.CSV, func(w *bufio.Writer) error { return writeCSV(w, t) }); err != nil {
				return fmt.Errorf("export %s: %w", q.Name, err)
			}
			if err := writeFile(f.JSON, func(w *bufio.Writer) error { return writeJSON(w, t) }); err != nil {
				return fmt.Errorf("export %s: %w", q.Name, err)
			}
			tables[i], files[i] = t, f
			log.Info("exported", zap.String("name", q.Name), zap.Int("rows", f.Rows), zap.String("csv", f.CSV))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	sum := Summary{Files: files}
	if e.XLSX {
		path := filepath.Join(e.Dir, fmt.Sprintf("healthetl_%s.xlsx", stamp))
		if err := writeWorkbook(path, files, tables); err != nil {
			return sum, fmt.Errorf("export workbook: %w", err)
		}
		sum.Workbook = path
		log.Info("exported workbook", zap.String("path", path), zap.Int("sheets", len(files)))
	}
	return sum, nil
}

func writeFile(path string, fn func(*bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeCSV(w *bufio.Writer, t *storage.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	rec := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, v := range row {
			rec[i] = formatCell(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeJSON writes rows as an array of objects with keys in column order.
func writeJSON(w *bufio.Writer, t *storage.Table) error {
	keys := make([][]byte, len(t.Columns))
	for i, c := range t.Columns {
		k, err := json.Marshal(c)
		if err != nil {
			return err
		}
		keys[i] = k
	}
	w.WriteByte('[')
	for r, row := range t.Rows {
		if r > 0 {
			w.WriteByte(',')
		}
		w.WriteByte('{')
		for i, v := range row {
			if i > 0 {
				w.WriteByte(',')
			}
			w.Write(keys[i])
			w.WriteByte(':')
			b, err := json.Marshal(jsonValue(v))
			if err != nil {
				return err
			}
			w.Write(b)
		}
		w.WriteByte('}')
	}
	w.WriteByte(']')
	return nil
}

func writeWorkbook(path string, files []File, tables []*storage.Table) error {
	wb := excelize.NewFile()
	defer wb.Close()

	for i, t := range tables {
		sheet := files[i].Name
		if _, err := wb.NewSheet(sheet); err != nil {
			return err
		}
		header := make([]any, len(t.Columns))
		for j, c := range t.Columns {
			header[j] = c
		}
		if err := wb.SetSheetRow(sheet, "A1", &header); err != nil {
			return err
		}
		for r, row := range t.Rows {
			cells := make([]any, len(row))
			for j, v := range row {
				cells[j] = sheetValue(v)
			}
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return err
			}
			if err := wb.SetSheetRow(sheet, cell, &cells); err != nil {
				return err
			}
		}
	}
	if len(tables) > 0 {
		if err := wb.DeleteSheet("Sheet1"); err != nil {
			return err
		}
		wb.SetActiveSheet(0)
	}
	return wb.SaveAs(path)
}

// formatCell renders a value for CSV. Dates at UTC midnight print as
// calendar dates.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return formatTime(x)
	default:
		return fmt.Sprint(x)
	}
}

func formatTime(t time.Time) string {
	u := t.UTC()
	if u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0 {
		return u.Format("2006-01-02")
	}
	return u.Format(time.RFC3339)
}

func jsonValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return formatTime(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	}
	return v
}

func sheetValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return formatTime(t)
	}
	return v
}
