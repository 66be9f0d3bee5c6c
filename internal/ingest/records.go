package ingest

import (
	"healthetl/internal/transformer/builtin"
)

// Fitness CSV columns.
const (
	colAge        = "Age"
	colGender     = "Gender"
	colWeight     = "Weight (kg)"
	colHeight     = "Height (m)"
	colMaxBPM     = "Max_BPM"
	colAvgBPM     = "Avg_BPM"
	colRestingBPM = "Resting_BPM"
	colDuration   = "Session_Duration (hours)"
	colCalories   = "Calories_Burned"
	colWorkout    = "Workout_Type"
	colFat        = "Fat_Percentage"
	colWaterL     = "Water_Intake (liters)"
	colFrequency  = "Workout_Frequency (days/week)"
	colExperience = "Experience_Level"
	colBMI        = "BMI"
)

// FitnessColumns are the columns the fitness pipeline requires, in the order
// missing ones are reported.
var FitnessColumns = []string{
	colAge, colGender, colWeight, colHeight, colMaxBPM, colAvgBPM, colRestingBPM,
	colDuration, colCalories, colWorkout, colFat, colWaterL, colFrequency,
	colExperience, colBMI,
}

// Nutrition CSV columns.
const (
	colFoodItem    = "Food_Item"
	colCategory    = "Category"
	colCalorieKcal = "Calories (kcal)"
	colProtein     = "Protein (g)"
	colCarbs       = "Carbohydrates (g)"
	colFatG        = "Fat (g)"
	colFiber       = "Fiber (g)"
	colSugars      = "Sugars (g)"
	colSodium      = "Sodium (mg)"
	colCholesterol = "Cholesterol (mg)"
	colMealType    = "Meal_Type"
	colWaterMl     = "Water_Intake (ml)"
)

// NutritionColumns are the columns the nutrition pipeline requires.
var NutritionColumns = []string{
	colFoodItem, colCategory, colCalorieKcal, colProtein, colCarbs, colFatG,
	colFiber, colSugars, colSodium, colCholesterol, colMealType, colWaterMl,
}

// FitnessRow is one cleaned fitness tracker record. Nil means missing.
type FitnessRow struct {
	Age               *float64
	Gender            *string
	WeightKg          *float64
	HeightM           *float64
	MaxBPM            *float64
	AvgBPM            *float64
	RestingBPM        *float64
	DurationHours     *float64
	CaloriesBurned    *float64
	WorkoutType       *string
	FatPercentage     *float64
	WaterIntakeLiters *float64
	WorkoutFrequency  *float64
	ExperienceLevel   string // never empty; builtin.Unknown when absent
	BMI               *float64
}

// decodeFitness builds a FitnessRow from a raw record. idx must contain every
// FitnessColumns entry.
func decodeFitness(raw []string, idx map[string]int) FitnessRow {
	num := func(col string) *float64 { return builtin.ParseNumber(raw[idx[col]]) }
	text := func(col string) *string { return builtin.NormalizeText(raw[idx[col]]) }
	return FitnessRow{
		Age:               num(colAge),
		Gender:            text(colGender),
		WeightKg:          num(colWeight),
		HeightM:           num(colHeight),
		MaxBPM:            num(colMaxBPM),
		AvgBPM:            num(colAvgBPM),
		RestingBPM:        num(colRestingBPM),
		DurationHours:     num(colDuration),
		CaloriesBurned:    num(colCalories),
		WorkoutType:       text(colWorkout),
		FatPercentage:     num(colFat),
		WaterIntakeLiters: num(colWaterL),
		WorkoutFrequency:  num(colFrequency),
		ExperienceLevel:   builtin.OrDefault(text(colExperience), builtin.Unknown),
		BMI:               num(colBMI),
	}
}

// repairCalories nulls a zero calorie reading on a session longer than a
// quarter hour.
func repairCalories(r *FitnessRow) bool {
	if r.DurationHours != nil && *r.DurationHours > 0.25 && r.CaloriesBurned != nil && *r.CaloriesBurned == 0 {
		r.CaloriesBurned = nil
		return true
	}
	return false
}

// missing counts the row's missing declared cells. ExperienceLevel carries a
// sentinel instead of nil and is never counted.
func (r FitnessRow) missing() int {
	return countNil(r.Age, r.WeightKg, r.HeightM, r.MaxBPM, r.AvgBPM, r.RestingBPM,
		r.DurationHours, r.CaloriesBurned, r.FatPercentage, r.WaterIntakeLiters,
		r.WorkoutFrequency, r.BMI) + countNil(r.Gender, r.WorkoutType)
}

// NutritionRow is one cleaned food log record. Nil means missing.
type NutritionRow struct {
	FoodItem      *string
	Category      *string
	CaloriesKcal  *float64
	ProteinG      *float64
	CarbsG        *float64
	FatG          *float64
	FiberG        *float64
	SugarsG       *float64
	SodiumMg      *float64
	CholesterolMg *float64
	MealType      *string
	WaterIntakeMl *float64
}

func decodeNutrition(raw []string, idx map[string]int) NutritionRow {
	num := func(col string) *float64 { return builtin.ParseNumber(raw[idx[col]]) }
	text := func(col string) *string { return builtin.NormalizeText(raw[idx[col]]) }
	return NutritionRow{
		FoodItem:      text(colFoodItem),
		Category:      text(colCategory),
		CaloriesKcal:  num(colCalorieKcal),
		ProteinG:      num(colProtein),
		CarbsG:        num(colCarbs),
		FatG:          num(colFatG),
		FiberG:        num(colFiber),
		SugarsG:       num(colSugars),
		SodiumMg:      num(colSodium),
		CholesterolMg: num(colCholesterol),
		MealType:      text(colMealType),
		WaterIntakeMl: num(colWaterMl),
	}
}

func (r NutritionRow) missing() int {
	return countNil(r.CaloriesKcal, r.ProteinG, r.CarbsG, r.FatG, r.FiberG, r.SugarsG,
		r.SodiumMg, r.CholesterolMg, r.WaterIntakeMl) + countNil(r.FoodItem, r.Category, r.MealType)
}

func countNil[T any](ps ...*T) int {
	n := 0
	for _, p := range ps {
		if p == nil {
			n++
		}
	}
	return n
}

// extraMissing counts placeholder cells in columns outside declared.
func extraMissing(header []string, rows [][]string, declared []string) int {
	skip := make(map[string]struct{}, len(declared))
	for _, c := range declared {
		skip[c] = struct{}{}
	}
	var cols []int
	for i, h := range header {
		if _, ok := skip[h]; !ok {
			cols = append(cols, i)
		}
	}
	n := 0
	for _, row := range rows {
		for _, i := range cols {
			if builtin.IsPlaceholder(row[i]) {
				n++
			}
		}
	}
	return n
}
