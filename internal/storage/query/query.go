// Package query builds the SQL statements shared by every storage backend.
// Statements are rendered for the backend's sqlbuilder flavor so placeholders
// ($1, ?, @p1) match the driver.
package query

import (
	"time"

	"github.com/huandu/go-sqlbuilder"

	"healthetl/internal/schema"
)

// ID columns returned by inserts.
const (
	ProfileID = "id_user"
	SessionID = "id_session"
	FoodID    = "id_food"
	LogID     = "id_nutrition_log"
	RunID     = "id_run"
)

// RunColumns are selected by ListRuns in schema.QualityRun field order.
var RunColumns = []string{
	"id_run", "pipeline_name", "started_at", "ended_at", "status",
	"rows_read", "rows_inserted", "rows_rejected",
	"missing_values_count", "duplicates_count", "error_message",
}

// Builder renders statements for one flavor.
type Builder struct {
	Flavor sqlbuilder.Flavor
}

// Value dereferences p, mapping nil to SQL NULL. Drivers differ in how they
// treat pointer arguments, so statements only carry plain values.
func Value[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// day renders a DATE column value. SQLite has no date type, so dates are
// stored as YYYY-MM-DD text that compares equal to date literals.
func (b Builder) day(t time.Time) any {
	if b.Flavor == sqlbuilder.SQLite {
		return t.Format(schema.DateLayout)
	}
	return t
}

// FindProfile selects the id of the profile matching every natural key
// attribute. A missing gender matches only a NULL gender.
func (b Builder) FindProfile(k schema.ProfileKey) (string, []any) {
	sb := b.Flavor.NewSelectBuilder()
	sb.Select(ProfileID).From(schema.TableProfiles)
	sb.Where(
		sb.Equal("age", k.Age),
		eqOrNull(&sb.Cond, "gender", k.Gender),
		sb.Equal("height_m", k.HeightM),
		sb.Equal("experience_level", k.ExperienceLevel),
	)
	sb.OrderBy(ProfileID)
	return sb.Build()
}

// InsertProfile inserts p without its id.
func (b Builder) InsertProfile(p *schema.Profile) (string, []any) {
	ib := b.Flavor.NewInsertBuilder()
	ib.InsertInto(schema.TableProfiles).
		Cols("age", "gender", "height_m", "experience_level").
		Values(p.Age, Value(p.Gender), p.HeightM, p.ExperienceLevel)
	return ib.Build()
}

// FindSession selects the session id for (userID, date).
func (b Builder) FindSession(userID int64, date time.Time) (string, []any) {
	sb := b.Flavor.NewSelectBuilder()
	sb.Select(SessionID).From(schema.TableSessions)
	sb.Where(sb.Equal("id_user", userID), sb.Equal("session_date", b.day(date)))
	sb.OrderBy(SessionID)
	return sb.Build()
}

// UpdateSession overwrites the mutable session fields of row id.
func (b Builder) UpdateSession(id int64, s *schema.Session) (string, []any) {
	ub := b.Flavor.NewUpdateBuilder()
	ub.Update(schema.TableSessions)
	vals := sessionValues(s)
	assigns := make([]string, len(schema.SessionMutableColumns))
	for i, col := range schema.SessionMutableColumns {
		assigns[i] = ub.Assign(col, vals[i])
	}
	ub.Set(assigns...)
	ub.Where(ub.Equal(SessionID, id))
	return ub.Build()
}

// InsertSession inserts s without its id.
func (b Builder) InsertSession(s *schema.Session) (string, []any) {
	cols := append([]string{"id_user", "session_date"}, schema.SessionMutableColumns...)
	vals := append([]any{s.UserID, b.day(s.SessionDate)}, sessionValues(s)...)
	ib := b.Flavor.NewInsertBuilder()
	ib.InsertInto(schema.TableSessions).Cols(cols...).Values(vals...)
	return ib.Build()
}

func sessionValues(s *schema.Session) []any {
	raw := s.MutableValues()
	out := make([]any, len(raw))
	for i, v := range raw {
		switch p := v.(type) {
		case *float64:
			out[i] = Value(p)
		case *int64:
			out[i] = Value(p)
		case *string:
			out[i] = Value(p)
		default:
			out[i] = v
		}
	}
	return out
}

// FindFood selects the id of the food named item.
func (b Builder) FindFood(item string) (string, []any) {
	sb := b.Flavor.NewSelectBuilder()
	sb.Select(FoodID).From(schema.TableFoods)
	sb.Where(sb.Equal("food_item", item))
	sb.OrderBy(FoodID)
	return sb.Build()
}

// InsertFood inserts f without its id.
func (b Builder) InsertFood(f *schema.Food) (string, []any) {
	ib := b.Flavor.NewInsertBuilder()
	ib.InsertInto(schema.TableFoods).
		Cols("food_item", "category", "calories_kcal", "protein_g", "carbohydrates_g", "fat_g",
			"fiber_g", "sugars_g", "sodium_mg", "cholesterol_mg", "source").
		Values(f.FoodItem, Value(f.Category), Value(f.CaloriesKcal), Value(f.ProteinG), Value(f.CarbsG),
			Value(f.FatG), Value(f.FiberG), Value(f.SugarsG), Value(f.SodiumMg), Value(f.CholesterolMg),
			Value(f.Source))
	return ib.Build()
}

// FindNutritionLog selects the id of a log identical to l.
func (b Builder) FindNutritionLog(l *schema.NutritionLog) (string, []any) {
	sb := b.Flavor.NewSelectBuilder()
	sb.Select(LogID).From(schema.TableNutrition)
	sb.Where(
		sb.Equal("id_food", l.FoodID),
		sb.Equal("log_date", b.day(l.LogDate)),
		eqOrNull(&sb.Cond, "id_user", l.UserID),
		eqOrNull(&sb.Cond, "meal_type", l.MealType),
		eqOrNull(&sb.Cond, "water_intake_ml", l.WaterIntakeMl),
	)
	sb.OrderBy(LogID)
	return sb.Build()
}

// InsertNutritionLog inserts l without its id.
func (b Builder) InsertNutritionLog(l *schema.NutritionLog) (string, []any) {
	ib := b.Flavor.NewInsertBuilder()
	ib.InsertInto(schema.TableNutrition).
		Cols("id_user", "id_food", "log_date", "meal_type", "water_intake_ml").
		Values(Value(l.UserID), l.FoodID, b.day(l.LogDate), Value(l.MealType), Value(l.WaterIntakeMl))
	return ib.Build()
}

// InsertRun inserts a new run without its id.
func (b Builder) InsertRun(r *schema.QualityRun) (string, []any) {
	ib := b.Flavor.NewInsertBuilder()
	ib.InsertInto(schema.TableQualityRuns).
		Cols("pipeline_name", "started_at", "status", "rows_read", "rows_inserted",
			"rows_rejected", "missing_values_count", "duplicates_count").
		Values(r.PipelineName, r.StartedAt, r.Status, r.RowsRead, r.RowsInserted,
			r.RowsRejected, r.MissingValuesCount, r.DuplicatesCount)
	return ib.Build()
}

// FinishRun records the terminal state of r, guarded on the row still being
// RUNNING.
func (b Builder) FinishRun(r *schema.QualityRun) (string, []any) {
	ub := b.Flavor.NewUpdateBuilder()
	ub.Update(schema.TableQualityRuns).Set(
		ub.Assign("ended_at", Value(r.EndedAt)),
		ub.Assign("status", r.Status),
		ub.Assign("rows_read", r.RowsRead),
		ub.Assign("rows_inserted", r.RowsInserted),
		ub.Assign("rows_rejected", r.RowsRejected),
		ub.Assign("missing_values_count", r.MissingValuesCount),
		ub.Assign("duplicates_count", r.DuplicatesCount),
		ub.Assign("error_message", Value(r.ErrorMessage)),
	)
	ub.Where(ub.Equal(RunID, r.ID), ub.Equal("status", schema.StatusRunning))
	return ub.Build()
}

// ListRuns selects the latest runs, most recent first.
func (b Builder) ListRuns(limit int) (string, []any) {
	sb := b.Flavor.NewSelectBuilder()
	sb.Select(RunColumns...).From(schema.TableQualityRuns)
	sb.OrderBy("started_at DESC", RunID+" DESC")
	if limit > 0 {
		sb.Limit(limit)
	}
	return sb.Build()
}

func eqOrNull[T any](c *sqlbuilder.Cond, col string, v *T) string {
	if v == nil {
		return c.IsNull(col)
	}
	return c.Equal(col, *v)
}
