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

// FoodSource is recorded on every food created by the nutrition pipeline.
const FoodSource = "Daily Food & Nutrition Dataset"

// Nutrition ingests the daily food log dataset into foods and nutrition logs.
type Nutrition struct {
	src  datasource.Source
	deps Deps
}

// NewNutrition returns the nutrition pipeline reading src.
func NewNutrition(src datasource.Source, deps Deps) *Nutrition {
	return &Nutrition{src: src, deps: deps.withDefaults()}
}

// Name implements pipeline.Step.
func (n *Nutrition) Name() string { return NutritionName }

// Run executes one tracked nutrition run.
func (n *Nutrition) Run(ctx context.Context) (Result, error) {
	res, err := execute(ctx, n.deps, NutritionName, n.run)
	if err != nil {
		return res, fmt.Errorf("%s: %w", NutritionName, err)
	}
	return res, nil
}

func (n *Nutrition) run(ctx context.Context, tx storage.Tx, date time.Time, c *quality.Counters) (int64, error) {
	log := n.deps.Log.With(zap.String("pipeline", NutritionName))

	var tbl *pcsv.Table
	err := stage(NutritionName, "parse", func() (err error) {
		tbl, err = readTable(ctx, n.src, pcsv.Options{SkipMalformed: true})
		return err
	})
	if err != nil {
		return 0, err
	}
	c.RowsRead = int64(tbl.Records())
	if tbl.Skipped > 0 {
		log.Warn("skipped malformed rows", zap.Int("skipped", tbl.Skipped))
	}

	if chk := builtin.Columns(tbl.Header, NutritionColumns); !chk.OK {
		return 0, &SchemaError{Dataset: "nutrition", Missing: chk.Missing}
	}

	idx := tbl.Index()
	rows := make([]NutritionRow, len(tbl.Rows))
	var missing int
	for i, raw := range tbl.Rows {
		rows[i] = decodeNutrition(raw, idx)
		missing += rows[i].missing()
	}
	missing += extraMissing(tbl.Header, tbl.Rows, NutritionColumns)
	c.MissingValuesCount = int64(missing)

	dedup := &transformer.Counted[NutritionRow]{T: builtin.DeDup[NutritionRow]{Key: nutritionDedupKey}}
	require := &transformer.Counted[NutritionRow]{T: builtin.Require[NutritionRow]{
		Field: colFoodItem,
		Value: func(r NutritionRow) *string { return r.FoodItem },
		Reject: func(r builtin.RejectedRow[NutritionRow]) {
			log.Debug("row rejected", zap.String("stage", r.Stage), zap.String("reason", r.Reason))
		},
	}}
	valid := transformer.Chain[NutritionRow]{dedup, require}.Apply(rows)
	c.DuplicatesCount = int64(dedup.Removed)
	c.RowsRejected = int64(tbl.Skipped + require.Removed)

	var written, existing int64
	err = stage(NutritionName, "upsert", func() error {
		foods := map[string]int64{}
		for _, r := range valid {
			if err := ctx.Err(); err != nil {
				return err
			}
			foodID, err := resolveFood(ctx, tx, foods, r)
			if err != nil {
				return err
			}
			l := &schema.NutritionLog{
				FoodID:        foodID,
				LogDate:       date,
				MealType:      r.MealType,
				WaterIntakeMl: builtin.Truncate(r.WaterIntakeMl),
			}
			dup, err := tx.HasNutritionLog(ctx, l)
			if err != nil {
				return err
			}
			if dup {
				existing++
				continue
			}
			if _, err := tx.InsertNutritionLog(ctx, l); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Info("inserted nutrition logs",
		zap.Int64("inserted", written),
		zap.Int64("already_present", existing),
		zap.Int64("duplicates", c.DuplicatesCount),
		zap.Int64("rejected", c.RowsRejected))
	return written, nil
}

// resolveFood returns the id of the food named by r, creating it on first
// sight. Existing foods are never updated.
func resolveFood(ctx context.Context, tx storage.Tx, cache map[string]int64, r NutritionRow) (int64, error) {
	item := *r.FoodItem
	if id, ok := cache[item]; ok {
		return id, nil
	}
	id, found, err := tx.FindFood(ctx, item)
	if err != nil {
		return 0, err
	}
	if !found {
		src := FoodSource
		id, err = tx.CreateFood(ctx, &schema.Food{
			FoodItem:      item,
			Category:      r.Category,
			CaloriesKcal:  r.CaloriesKcal,
			ProteinG:      r.ProteinG,
			CarbsG:        r.CarbsG,
			FatG:          r.FatG,
			FiberG:        r.FiberG,
			SugarsG:       r.SugarsG,
			SodiumMg:      r.SodiumMg,
			CholesterolMg: r.CholesterolMg,
			Source:        &src,
		})
		if err != nil {
			return 0, err
		}
	}
	cache[item] = id
	return id, nil
}

func nutritionDedupKey(r NutritionRow) []any {
	return []any{r.FoodItem, r.Category, r.MealType, r.WaterIntakeMl}
}
