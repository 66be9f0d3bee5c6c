package export

import (
	"github.com/huandu/go-sqlbuilder"

	"healthetl/internal/schema"
)

// Query is a named export. Build renders it for the store's SQL flavor.
type Query struct {
	Name  string
	Build func(f sqlbuilder.Flavor) (string, []any)
}

// TopN bounds the ranking KPI tables.
const TopN = 10

// DefaultQueries are the cleaned tables and KPI tables written by Export.
func DefaultQueries() []Query {
	return []Query{
		{Name: "foods", Build: foods},
		{Name: "nutrition_logs", Build: nutritionLogs},
		{Name: "fitness_sessions", Build: fitnessSessions},
		{Name: "kpi_quality_runs", Build: qualityRuns},
		{Name: "kpi_users_age_groups", Build: ageGroups},
		{Name: "kpi_fitness_top_workouts", Build: topWorkouts},
		{Name: "kpi_nutrition_top_foods", Build: topFoods},
	}
}

func foods(f sqlbuilder.Flavor) (string, []any) {
	sb := f.NewSelectBuilder()
	sb.Select("id_food", "food_item", "category",
		"calories_kcal", "protein_g", "carbohydrates_g", "fat_g",
		"fiber_g", "sugars_g", "sodium_mg", "cholesterol_mg", "source").
		From(schema.TableFoods).
		OrderBy("id_food")
	return sb.Build()
}

func nutritionLogs(f sqlbuilder.Flavor) (string, []any) {
	sb := f.NewSelectBuilder()
	sb.Select("nl.id_nutrition_log", "nl.log_date", "nl.meal_type", "nl.water_intake_ml",
		"nl.id_user", "nl.id_food", "a.food_item", "a.category",
		"a.calories_kcal", "a.protein_g", "a.carbohydrates_g", "a.fat_g").
		From(sb.As(schema.TableNutrition, "nl")).
		Join(sb.As(schema.TableFoods, "a"), "a.id_food = nl.id_food").
		OrderBy("nl.id_nutrition_log")
	return sb.Build()
}

func fitnessSessions(f sqlbuilder.Flavor) (string, []any) {
	sb := f.NewSelectBuilder()
	sb.Select("s.id_session", "s.session_date", "s.id_user",
		"u.age", "u.gender", "u.height_m", "u.experience_level",
		"s.weight_kg", "s.max_bpm", "s.avg_bpm", "s.resting_bpm",
		"s.session_duration_hours", "s.calories_burned",
		"s.workout_type", "s.fat_percentage", "s.water_intake_liters",
		"s.workout_frequency_days_per_week", "s.bmi").
		From(sb.As(schema.TableSessions, "s")).
		Join(sb.As(schema.TableProfiles, "u"), "u.id_user = s.id_user").
		OrderBy("s.id_session")
	return sb.Build()
}

func qualityRuns(f sqlbuilder.Flavor) (string, []any) {
	sb := f.NewSelectBuilder()
	sb.Select("id_run", "pipeline_name", "started_at", "ended_at", "status",
		"rows_read", "rows_inserted", "rows_rejected",
		"missing_values_count", "duplicates_count", "error_message").
		From(schema.TableQualityRuns).
		OrderBy("id_run").Desc()
	return sb.Build()
}

// ageBucket maps a profile age onto the reporting age groups.
const ageBucket = "CASE" +
	" WHEN age < 18 THEN '<18'" +
	" WHEN age < 25 THEN '18-24'" +
	" WHEN age < 35 THEN '25-34'" +
	" WHEN age < 45 THEN '35-44'" +
	" WHEN age < 55 THEN '45-54'" +
	" ELSE '55+' END"

func ageGroups(f sqlbuilder.Flavor) (string, []any) {
	sb := f.NewSelectBuilder()
	sb.Select(sb.As(ageBucket, "age_group"), sb.As("COUNT(*)", "users")).
		From(schema.TableProfiles).
		GroupBy(ageBucket).
		OrderBy("MIN(age)")
	return sb.Build()
}

func topWorkouts(f sqlbuilder.Flavor) (string, []any) {
	sb := f.NewSelectBuilder()
	sb.Select("workout_type", sb.As("COUNT(*)", "sessions"), sb.As("AVG(calories_burned)", "avg_calories")).
		From(schema.TableSessions).
		Where(sb.IsNotNull("workout_type")).
		GroupBy("workout_type").
		OrderBy("COUNT(*) DESC", "workout_type").
		Limit(TopN)
	return sb.Build()
}

func topFoods(f sqlbuilder.Flavor) (string, []any) {
	sb := f.NewSelectBuilder()
	sb.Select("a.food_item", sb.As("COUNT(*)", "logs")).
		From(sb.As(schema.TableNutrition, "nl")).
		Join(sb.As(schema.TableFoods, "a"), "a.id_food = nl.id_food").
		GroupBy("a.food_item").
		OrderBy("COUNT(*) DESC", "a.food_item").
		Limit(TopN)
	return sb.Build()
}
