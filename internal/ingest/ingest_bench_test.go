package ingest

import (
	"context"
	"strconv"
	"strings"
	"testing"

	pcsv "healthetl/internal/parser/csv"
	"healthetl/internal/transformer/builtin"
)

// syntheticFitness returns n fitness records spread over a few hundred
// profiles, with every 50th row duplicated.
func syntheticFitness(n int) string {
	var b strings.Builder
	b.WriteString(strings.Join(FitnessColumns, ","))
	b.WriteByte('\n')
	workouts := []string{"Cardio", "HIIT", "Strength", "Yoga"}
	for i := 0; i < n; i++ {
		age := 18 + i%60
		row := fitnessRow(map[string]string{
			colAge:      strconv.Itoa(age),
			colGender:   []string{"M", "F"}[i%2],
			colHeight:   strconv.FormatFloat(1.5+float64(i%40)/100, 'f', 2, 64),
			colCalories: strconv.Itoa(200 + i%700),
			colWorkout:  workouts[i%len(workouts)],
		})
		line := strings.Join(row, ",")
		b.WriteString(line)
		b.WriteByte('\n')
		if i%50 == 0 {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// BenchmarkFitnessClean exercises the in-memory hot path of a fitness run:
// parse, decode and repair, dedup, then aggregate. No store is involved.
//
//	go test -run=^$ -bench ^BenchmarkFitnessClean$ -benchmem ./internal/ingest
func BenchmarkFitnessClean(b *testing.B) {
	body := syntheticFitness(20000)
	ctx := context.Background()
	b.SetBytes(int64(len(body)))
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		tbl, err := pcsv.NewParser(pcsv.Options{}).Parse(ctx, strings.NewReader(body))
		if err != nil {
			b.Fatal(err)
		}
		idx := tbl.Index()
		rows := make([]FitnessRow, len(tbl.Rows))
		for j, raw := range tbl.Rows {
			rows[j] = decodeFitness(raw, idx)
			repairCalories(&rows[j])
		}
		rows = builtin.DeDup[FitnessRow]{Key: fitnessDedupKey}.Apply(rows)
		if groups := aggregateFitness(rows, runDay); len(groups) == 0 {
			b.Fatal("no groups")
		}
	}
}
