package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"healthetl/internal/datasource"
	pcsv "healthetl/internal/parser/csv"
	"healthetl/internal/quality"
	"healthetl/internal/schema"
	"healthetl/internal/storage"
	"healthetl/internal/transformer"
	"healthetl/internal/transformer/builtin"
)

// Fitness ingests the gym members tracker dataset into profiles and daily
// sessions.
type Fitness struct {
	src  datasource.Source
	deps Deps
}

// NewFitness returns the fitness pipeline reading src.
func NewFitness(src datasource.Source, deps Deps) *Fitness {
	return &Fitness{src: src, deps: deps.withDefaults()}
}

// Name implements pipeline.Step.
func (f *Fitness) Name() string { return FitnessName }

// Run executes one tracked fitness run.
func (f *Fitness) Run(ctx context.Context) (Result, error) {
	res, err := execute(ctx, f.deps, FitnessName, f.run)
	if err != nil {
		return res, fmt.Errorf("%s: %w", FitnessName, err)
	}
	return res, nil
}

func (f *Fitness) run(ctx context.Context, tx storage.Tx, date time.Time, c *quality.Counters) (int64, error) {
	log := f.deps.Log.With(zap.String("pipeline", FitnessName))

	var tbl *pcsv.Table
	err := stage(FitnessName, "parse", func() (err error) {
		tbl, err = readTable(ctx, f.src, pcsv.Options{})
		return err
	})
	if err != nil {
		return 0, err
	}
	c.RowsRead = int64(len(tbl.Rows))

	if chk := builtin.Columns(tbl.Header, FitnessColumns); !chk.OK {
		return 0, &SchemaError{Dataset: "fitness", Missing: chk.Missing}
	}

	idx := tbl.Index()
	rows := make([]FitnessRow, len(tbl.Rows))
	repaired := 0
	var missing int
	for i, raw := range tbl.Rows {
		rows[i] = decodeFitness(raw, idx)
		if repairCalories(&rows[i]) {
			repaired++
		}
		missing += rows[i].missing()
	}
	missing += extraMissing(tbl.Header, tbl.Rows, FitnessColumns)
	c.MissingValuesCount = int64(missing)
	log.Debug("cleaned", zap.Int("rows", len(rows)), zap.Int("calories_repaired", repaired), zap.Int("missing", missing))

	dedup := &transformer.Counted[FitnessRow]{T: builtin.DeDup[FitnessRow]{Key: fitnessDedupKey}}
	bounds := &transformer.Counted[FitnessRow]{T: builtin.Bounds[FitnessRow]{
		Ranges: []builtin.Range[FitnessRow]{
			{Field: colAge, Min: 10, Max: 100, Value: func(r FitnessRow) *float64 { return r.Age }},
			{Field: colHeight, Min: 1.0, Max: 2.5, Value: func(r FitnessRow) *float64 { return r.HeightM }},
		},
		Reject: func(r builtin.RejectedRow[FitnessRow]) {
			log.Debug("row rejected", zap.String("stage", r.Stage), zap.String("reason", r.Reason))
		},
	}}
	valid := transformer.Chain[FitnessRow]{dedup, bounds}.Apply(rows)
	c.DuplicatesCount = int64(dedup.Removed)
	c.RowsRejected = int64(bounds.Removed)

	groups := aggregateFitness(valid, date)

	var written int64
	err = stage(FitnessName, "upsert", func() error {
		for _, g := range groups {
			if err := ctx.Err(); err != nil {
				return err
			}
			uid, found, err := tx.FindProfile(ctx, g.key)
			if err != nil {
				return err
			}
			if !found {
				p := &schema.Profile{Age: g.key.Age, Gender: g.key.Gender, HeightM: g.key.HeightM, ExperienceLevel: g.key.ExperienceLevel}
				if uid, err = tx.CreateProfile(ctx, p); err != nil {
					return err
				}
			}
			g.session.UserID = uid
			if _, err := tx.UpsertSession(ctx, &g.session); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Info("upserted sessions",
		zap.Int("groups", len(groups)),
		zap.Int64("duplicates", c.DuplicatesCount),
		zap.Int64("rejected", c.RowsRejected))
	return written, nil
}

func fitnessDedupKey(r FitnessRow) []any {
	return []any{r.Age, r.Gender, r.HeightM, r.ExperienceLevel, r.WorkoutType, r.DurationHours, r.CaloriesBurned}
}

// fitnessGroup is one profile's aggregated session for the run date.
type fitnessGroup struct {
	key     schema.ProfileKey
	session schema.Session
}

// aggregateFitness partitions rows by profile key, in first-seen order, and
// reduces each partition to one session stamped with date. Rows must have
// passed the bounds filter, so Age and HeightM are present.
func aggregateFitness(rows []FitnessRow, date time.Time) []fitnessGroup {
	type part struct {
		key  schema.ProfileKey
		rows []FitnessRow
	}
	var parts []*part
	byKey := map[string]*part{}
	for _, r := range rows {
		key := schema.ProfileKey{
			Age:             int(*r.Age),
			Gender:          r.Gender,
			HeightM:         *r.HeightM,
			ExperienceLevel: r.ExperienceLevel,
		}
		k := builtin.EncodeKey(key.Age, key.Gender, key.HeightM, key.ExperienceLevel)
		p, ok := byKey[k]
		if !ok {
			p = &part{key: key}
			byKey[k] = p
			parts = append(parts, p)
		}
		p.rows = append(p.rows, r)
	}

	out := make([]fitnessGroup, 0, len(parts))
	for _, p := range parts {
		out = append(out, fitnessGroup{key: p.key, session: reduceSession(p.rows, date)})
	}
	return out
}

func reduceSession(rows []FitnessRow, date time.Time) schema.Session {
	col := func(get func(FitnessRow) *float64) []*float64 {
		vs := make([]*float64, len(rows))
		for i, r := range rows {
			vs[i] = get(r)
		}
		return vs
	}
	workouts := make([]*string, len(rows))
	freqs := make([]*int64, len(rows))
	for i, r := range rows {
		workouts[i] = r.WorkoutType
		freqs[i] = builtin.RoundHalfEven(r.WorkoutFrequency)
	}

	return schema.Session{
		SessionDate:         date,
		WeightKg:            builtin.Mean(col(func(r FitnessRow) *float64 { return r.WeightKg })),
		MaxBPM:              builtin.Truncate(builtin.Max(col(func(r FitnessRow) *float64 { return r.MaxBPM }))),
		AvgBPM:              builtin.Truncate(builtin.Mean(col(func(r FitnessRow) *float64 { return r.AvgBPM }))),
		RestingBPM:          builtin.Truncate(builtin.Mean(col(func(r FitnessRow) *float64 { return r.RestingBPM }))),
		DurationHours:       builtin.Sum(col(func(r FitnessRow) *float64 { return r.DurationHours })),
		CaloriesBurned:      builtin.Sum(col(func(r FitnessRow) *float64 { return r.CaloriesBurned })),
		WorkoutType:         builtin.Mode(workouts),
		FatPercentage:       builtin.Mean(col(func(r FitnessRow) *float64 { return r.FatPercentage })),
		WaterIntakeLiters:   builtin.Sum(col(func(r FitnessRow) *float64 { return r.WaterIntakeLiters })),
		WorkoutFrequencyDPW: builtin.Mode(freqs),
		BMI:                 builtin.Mean(col(func(r FitnessRow) *float64 { return r.BMI })),
	}
}
