package schema

import "time"

// DateLayout is the calendar-date layout used for run dates and config overrides.
const DateLayout = "2006-01-02"

// Run statuses.
const (
	StatusRunning = "RUNNING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Table names.
const (
	TableProfiles    = "utilisateur"
	TableSessions    = "session_sport"
	TableFoods       = "aliment"
	TableNutrition   = "nutrition_log"
	TableQualityRuns = "qualite_donnees_run"
)

// Profile is a fitness subject identified by its natural key
// (age, gender, height, experience level).
type Profile struct {
	ID              int64   `db:"id_user"`
	Age             int     `db:"age"`
	Gender          *string `db:"gender"`
	HeightM         float64 `db:"height_m"`
	ExperienceLevel string  `db:"experience_level"`
}

// ProfileKey is the natural key of a Profile.
type ProfileKey struct {
	Age             int
	Gender          *string
	HeightM         float64
	ExperienceLevel string
}

// Session is the daily aggregated workout for one profile.
type Session struct {
	ID                  int64     `db:"id_session"`
	UserID              int64     `db:"id_user"`
	SessionDate         time.Time `db:"session_date"`
	WeightKg            *float64  `db:"weight_kg"`
	MaxBPM              *int64    `db:"max_bpm"`
	AvgBPM              *int64    `db:"avg_bpm"`
	RestingBPM          *int64    `db:"resting_bpm"`
	DurationHours       *float64  `db:"session_duration_hours"`
	CaloriesBurned      *float64  `db:"calories_burned"`
	WorkoutType         *string   `db:"workout_type"`
	FatPercentage       *float64  `db:"fat_percentage"`
	WaterIntakeLiters   *float64  `db:"water_intake_liters"`
	WorkoutFrequencyDPW *int64    `db:"workout_frequency_days_per_week"`
	BMI                 *float64  `db:"bmi"`
}

// SessionMutableColumns are overwritten in place when a session for the same
// (profile, date) already exists.
var SessionMutableColumns = []string{
	"weight_kg",
	"max_bpm",
	"avg_bpm",
	"resting_bpm",
	"session_duration_hours",
	"calories_burned",
	"workout_type",
	"fat_percentage",
	"water_intake_liters",
	"workout_frequency_days_per_week",
	"bmi",
}

// MutableValues returns the values for SessionMutableColumns, in order.
func (s *Session) MutableValues() []any {
	return []any{
		s.WeightKg,
		s.MaxBPM,
		s.AvgBPM,
		s.RestingBPM,
		s.DurationHours,
		s.CaloriesBurned,
		s.WorkoutType,
		s.FatPercentage,
		s.WaterIntakeLiters,
		s.WorkoutFrequencyDPW,
		s.BMI,
	}
}

// Food is a nutrition reference item, keyed by FoodItem.
type Food struct {
	ID            int64    `db:"id_food"`
	FoodItem      string   `db:"food_item"`
	Category      *string  `db:"category"`
	CaloriesKcal  *float64 `db:"calories_kcal"`
	ProteinG      *float64 `db:"protein_g"`
	CarbsG        *float64 `db:"carbohydrates_g"`
	FatG          *float64 `db:"fat_g"`
	FiberG        *float64 `db:"fiber_g"`
	SugarsG       *float64 `db:"sugars_g"`
	SodiumMg      *float64 `db:"sodium_mg"`
	CholesterolMg *float64 `db:"cholesterol_mg"`
	Source        *string  `db:"source"`
}

// NutritionLog is one consumption entry for a food on a date.
type NutritionLog struct {
	ID            int64     `db:"id_nutrition_log"`
	UserID        *int64    `db:"id_user"`
	FoodID        int64     `db:"id_food"`
	LogDate       time.Time `db:"log_date"`
	MealType      *string   `db:"meal_type"`
	WaterIntakeMl *int64    `db:"water_intake_ml"`
}

// QualityRun is the audit row for one pipeline invocation.
type QualityRun struct {
	ID                 int64      `db:"id_run"`
	PipelineName       string     `db:"pipeline_name"`
	StartedAt          time.Time  `db:"started_at"`
	EndedAt            *time.Time `db:"ended_at"`
	Status             string     `db:"status"`
	RowsRead           int64      `db:"rows_read"`
	RowsInserted       int64      `db:"rows_inserted"`
	RowsRejected       int64      `db:"rows_rejected"`
	MissingValuesCount int64      `db:"missing_values_count"`
	DuplicatesCount    int64      `db:"duplicates_count"`
	ErrorMessage       *string    `db:"error_message"`
}

// Date truncates t to a calendar date at UTC midnight. Stores compare dates
// by equality, so every run date passes through here.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
