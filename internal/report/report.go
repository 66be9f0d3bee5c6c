// Package report renders quality runs and pipeline results for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"healthetl/internal/ingest"
	"healthetl/internal/probe"
	"healthetl/internal/schema"
)

// Formats accepted by the render functions.
const (
	FormatTable    = "table"
	FormatMarkdown = "markdown"
	FormatCSV      = "csv"
	FormatJSON     = "json"
)

var runHeader = table.Row{"ID", "Pipeline", "Status", "Started", "Ended", "Read", "Inserted", "Rejected", "Missing", "Duplicates", "Error"}

// Runs writes runs in the given format. Runs are printed in the order given.
func Runs(w io.Writer, runs []schema.QualityRun, format string) error {
	if format == FormatJSON {
		return writeJSON(w, runs)
	}
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "(no runs)")
		return err
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(runHeader)
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.ID, r.PipelineName, r.Status,
			stamp(&r.StartedAt), stamp(r.EndedAt),
			r.RowsRead, r.RowsInserted, r.RowsRejected, r.MissingValuesCount, r.DuplicatesCount,
			deref(r.ErrorMessage),
		})
	}
	return render(t, format)
}

// Results summarises one invocation of the ingestion pipelines.
func Results(w io.Writer, results []ingest.Result, format string) error {
	if format == FormatJSON {
		return writeJSON(w, results)
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Pipeline", "Run", "Status", "Date", "Read", "Inserted", "Rejected", "Missing", "Duplicates"})
	for _, r := range results {
		t.AppendRow(table.Row{
			r.Pipeline, r.RunID, r.Status, r.RunDate.Format(schema.DateLayout),
			r.Counters.RowsRead, r.Counters.RowsInserted, r.Counters.RowsRejected,
			r.Counters.MissingValuesCount, r.Counters.DuplicatesCount,
		})
	}
	return render(t, format)
}

// Probe writes a column profile followed by the header verdict.
func Probe(w io.Writer, rep *probe.Report, format string) error {
	if format == FormatJSON {
		return writeJSON(w, rep)
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Column", "Type", "Required", "Placeholders", "Sampled"})
	for _, c := range rep.Columns {
		t.AppendRow(table.Row{c.Name, c.Type, c.Required, c.Placeholders, c.Sampled})
	}
	if err := render(t, format); err != nil {
		return err
	}
	if format == FormatCSV {
		return nil
	}
	if rep.OK() {
		_, err := fmt.Fprintf(w, "%s: %d rows, %d skipped, all required columns present\n", rep.Source, rep.Rows, rep.Skipped)
		return err
	}
	_, err := fmt.Fprintf(w, "%s: %d rows, %d skipped, missing columns: %s\n", rep.Source, rep.Rows, rep.Skipped, strings.Join(rep.Missing, ", "))
	return err
}

func render(t table.Writer, format string) error {
	switch format {
	case "", FormatTable:
		t.Render()
	case FormatMarkdown:
		t.RenderMarkdown()
	case FormatCSV:
		t.RenderCSV()
	default:
		return fmt.Errorf("report: unknown format %q", format)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
