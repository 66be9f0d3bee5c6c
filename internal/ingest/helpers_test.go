package ingest

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"healthetl/internal/schema"
	"healthetl/internal/storage"
	_ "healthetl/internal/storage/sqlite"
)

// memSource serves a fixed CSV body.
type memSource struct{ name, body string }

func (m memSource) Name() string { return m.name }
func (m memSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(m.body)), nil
}

var runDay = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newStore(t *testing.T) storage.Store {
	t.Helper()
	ctx := context.Background()
	s, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, storage.EnsureSchema(ctx, s))
	return s
}

func deps(t *testing.T, s storage.Store) Deps {
	return Deps{Store: s, Log: zaptest.NewLogger(t), RunDate: runDay}
}

func csvOf(header []string, rows ...[]string) string {
	var b strings.Builder
	b.WriteString(strings.Join(header, ","))
	b.WriteByte('\n')
	for _, r := range rows {
		b.WriteString(strings.Join(r, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

// fitnessRow returns a full fitness record; overrides replace columns by name.
func fitnessRow(overrides map[string]string) []string {
	base := map[string]string{
		colAge: "30", colGender: "M", colWeight: "80", colHeight: "1.80",
		colMaxBPM: "180", colAvgBPM: "140", colRestingBPM: "60",
		colDuration: "1.0", colCalories: "300", colWorkout: "Cardio",
		colFat: "20", colWaterL: "2.0", colFrequency: "3",
		colExperience: "Beginner", colBMI: "24.7",
	}
	for k, v := range overrides {
		base[k] = v
	}
	out := make([]string, len(FitnessColumns))
	for i, c := range FitnessColumns {
		out[i] = base[c]
	}
	return out
}

func nutritionRow(food, category, meal, water string) []string {
	return []string{food, category, "52", "0.3", "14", "0.2", "2.4", "10", "1", "0", meal, water}
}

func scalar(t *testing.T, s storage.Store, q string) any {
	t.Helper()
	tbl, err := s.QueryTable(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	return tbl.Rows[0][0]
}

func count(t *testing.T, s storage.Store, table string) int64 {
	t.Helper()
	v := scalar(t, s, "SELECT COUNT(*) FROM "+table)
	n, ok := v.(int64)
	require.True(t, ok, "count is %T", v)
	return n
}

func asFloat(t *testing.T, v any) float64 {
	t.Helper()
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	}
	t.Fatalf("not numeric: %#v", v)
	return 0
}

func lastRun(t *testing.T, s storage.Store) schema.QualityRun {
	t.Helper()
	runs, err := s.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	return runs[0]
}
