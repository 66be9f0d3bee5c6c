// Package config defines the healthetl configuration model and its layered
// loader.
//
// Values are merged in increasing precedence: built-in defaults, an optional
// YAML file, a .env file, the process environment and finally CLI flags that
// were explicitly set. Environment keys use the HEALTHETL_ prefix with the
// section as the first segment (HEALTHETL_STORAGE_DSN -> storage.dsn). The
// unprefixed FITNESS_CSV, NUTRITION_CSV and EXPORT_DIR variables are honoured
// below their prefixed forms.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"healthetl/internal/schema"
)

// EnvPrefix prefixes every environment key read by Load.
const EnvPrefix = "HEALTHETL_"

// DefaultDotEnv is read when LoadOptions.DotEnv is empty.
const DefaultDotEnv = ".env"

// Config is the full application configuration.
type Config struct {
	Storage  Storage  `koanf:"storage"`
	Sources  Sources  `koanf:"sources"`
	Export   Export   `koanf:"export"`
	Run      Run      `koanf:"run"`
	Log      Log      `koanf:"log"`
	Metrics  Metrics  `koanf:"metrics"`
	Events   Events   `koanf:"events"`
	Lock     Lock     `koanf:"lock"`
	Schedule Schedule `koanf:"schedule"`
}

// Storage selects the relational backend.
type Storage struct {
	Kind string `koanf:"kind" validate:"required,oneof=sqlite postgres mssql mysql"`
	DSN  string `koanf:"dsn" validate:"required"`
	// Bootstrap applies the embedded schema before a run.
	Bootstrap   bool          `koanf:"bootstrap"`
	MaxConns    int           `koanf:"max_conns" validate:"gte=0"`
	LockTimeout time.Duration `koanf:"lock_timeout" validate:"gte=0"`
}

// Sources are the CSV inputs.
type Sources struct {
	FitnessCSV   string `koanf:"fitness_csv" validate:"required"`
	NutritionCSV string `koanf:"nutrition_csv" validate:"required"`
}

// Export controls the export stage.
type Export struct {
	Dir         string `koanf:"dir" validate:"required"`
	XLSX        bool   `koanf:"xlsx"`
	Concurrency int    `koanf:"concurrency" validate:"gte=0,lte=32"`
}

// Run fixes the run date. Date overrides the clock; Timezone decides the
// calendar day otherwise.
type Run struct {
	Date     string `koanf:"date" validate:"omitempty,datetime=2006-01-02"`
	Timezone string `koanf:"timezone"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	Backend        string `koanf:"backend" validate:"oneof=none pushgateway datadog"`
	PushgatewayURL string `koanf:"pushgateway_url" validate:"omitempty,url"`
	DatadogAddr    string `koanf:"datadog_addr" validate:"omitempty,hostname_port"`
	Job            string `koanf:"job" validate:"required"`
}

// Events configures run-finished publishing. Publishing is off while Brokers
// is empty.
type Events struct {
	KafkaBrokers []string `koanf:"kafka_brokers" validate:"dive,hostname_port"`
	KafkaTopic   string   `koanf:"kafka_topic"`
}

// Lock configures the cross-host lock around scheduled runs. It is off while
// RedisAddr is empty.
type Lock struct {
	RedisAddr string        `koanf:"redis_addr" validate:"omitempty,hostname_port"`
	TTL       time.Duration `koanf:"ttl" validate:"gte=0"`
}

// Schedule drives the schedule command.
type Schedule struct {
	Cron string `koanf:"cron"`
}

// Defaults returns the built-in configuration layer.
func Defaults() map[string]any {
	return map[string]any{
		"storage.kind":          "sqlite",
		"storage.dsn":           "healthetl.db",
		"storage.bootstrap":     true,
		"storage.max_conns":     0,
		"storage.lock_timeout":  "30s",
		"sources.fitness_csv":   "data/raw/fitness_tracker.csv",
		"sources.nutrition_csv": "data/raw/daily_food_nutrition.csv",
		"export.dir":            "data/cleaned",
		"export.xlsx":           false,
		"export.concurrency":    4,
		"run.date":              "",
		"run.timezone":          "Local",
		"log.level":             "info",
		"log.format":            "json",
		"metrics.backend":       "none",
		"metrics.job":           "healthetl",
		"events.kafka_topic":    "healthetl.quality-runs",
		"lock.ttl":              "2h",
		"schedule.cron":         "0 2 * * *",
	}
}

// legacyEnv maps unprefixed variables onto config keys.
var legacyEnv = map[string]string{
	"FITNESS_CSV":   "sources.fitness_csv",
	"NUTRITION_CSV": "sources.nutrition_csv",
	"EXPORT_DIR":    "export.dir",
}

// FlagKeys maps CLI flag names onto config keys. Flags not listed here are
// not configuration.
var FlagKeys = map[string]string{
	"storage-kind":  "storage.kind",
	"dsn":           "storage.dsn",
	"bootstrap":     "storage.bootstrap",
	"fitness-csv":   "sources.fitness_csv",
	"nutrition-csv": "sources.nutrition_csv",
	"export-dir":    "export.dir",
	"xlsx":          "export.xlsx",
	"run-date":      "run.date",
	"timezone":      "run.timezone",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"cron":          "schedule.cron",
}

// LoadOptions locate the optional layers.
type LoadOptions struct {
	// File is a YAML config file. Empty skips the layer.
	File string
	// DotEnv is the .env file; DefaultDotEnv when empty. A missing file is
	// not an error.
	DotEnv string
	// Flags contributes explicitly set flags named in FlagKeys.
	Flags *pflag.FlagSet
}

// Load merges every layer and decodes the result. It does not validate.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", opts.File, err)
		}
	}

	dotenv := opts.DotEnv
	if dotenv == "" {
		dotenv = DefaultDotEnv
	}
	// godotenv never overrides variables already set in the process.
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read %s: %w", dotenv, err)
	}

	legacy := map[string]any{}
	for name, key := range legacyEnv {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			legacy[key] = v
		}
	}
	if err := k.Load(confmap.Provider(legacy, "."), nil); err != nil {
		return nil, fmt.Errorf("config: legacy env: %w", err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}

	if opts.Flags != nil {
		err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		}), nil)
		if err != nil {
			return nil, fmt.Errorf("config: flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}

// listKeys are decoded from comma-separated environment values.
var listKeys = map[string]bool{
	"events.kafka_brokers": true,
}

// envValue maps an environment variable to its config key, splitting list
// values on commas.
func envValue(name, value string) (string, interface{}) {
	key := envKey(name)
	if !listKeys[key] {
		return key, value
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

// envKey turns HEALTHETL_SOURCES_FITNESS_CSV into sources.fitness_csv.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, rest, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + rest
}

// Location resolves Run.Timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Run.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Run.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: run.timezone: %w", err)
	}
	return loc, nil
}

// RunDate parses Run.Date. The zero time means "today".
func (c *Config) RunDate() (time.Time, error) {
	if c.Run.Date == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(schema.DateLayout, c.Run.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: run.date: %w", err)
	}
	return d, nil
}
