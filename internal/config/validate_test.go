package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

// validConfig is a configuration with no findings at all.
func validConfig(t *testing.T) *Config {
	dir := t.TempDir()
	fitness := write(t, dir, "fitness.csv", "Age\n")
	nutrition := write(t, dir, "nutrition.csv", "Food_Item\n")
	return &Config{
		Storage:  Storage{Kind: "postgres", DSN: "postgres://u@localhost/healthai"},
		Sources:  Sources{FitnessCSV: fitness, NutritionCSV: nutrition},
		Export:   Export{Dir: filepath.Join(dir, "out"), Concurrency: 4},
		Run:      Run{Timezone: "UTC"},
		Log:      Log{Level: "info", Format: "json"},
		Metrics:  Metrics{Backend: "none", Job: "healthetl"},
		Lock:     Lock{RedisAddr: "localhost:6379"},
		Schedule: Schedule{Cron: "0 2 * * *"},
	}
}

func TestValidate_Valid(t *testing.T) {
	issues := Validate(validConfig(t))
	assert.Empty(t, issues)
	assert.NoError(t, Err(issues))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		sev    IssueSeverity
		path   string
		msg    string
	}{
		{"unknown storage kind", func(c *Config) { c.Storage.Kind = "oracle" }, SeverityError, "storage.kind", "must be one of [sqlite postgres mssql mysql]"},
		{"empty dsn", func(c *Config) { c.Storage.DSN = "" }, SeverityError, "storage.dsn", "must not be empty"},
		{"empty export dir", func(c *Config) { c.Export.Dir = "" }, SeverityError, "export.dir", "must not be empty"},
		{"concurrency too high", func(c *Config) { c.Export.Concurrency = 64 }, SeverityError, "export.concurrency", "must be lte 32"},
		{"bad run date", func(c *Config) { c.Run.Date = "01/03/2026" }, SeverityError, "run.date", "layout 2006-01-02"},
		{"bad timezone", func(c *Config) { c.Run.Timezone = "Mars/Olympus" }, SeverityError, "run.timezone", "unknown time zone"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, SeverityError, "log.level", "must be one of"},
		{"pushgateway without url", func(c *Config) { c.Metrics.Backend = "pushgateway" }, SeverityError, "metrics.pushgateway_url", "required when"},
		{"datadog without addr", func(c *Config) { c.Metrics.Backend = "datadog" }, SeverityError, "metrics.datadog_addr", "required when"},
		{"bad broker", func(c *Config) { c.Events.KafkaBrokers = []string{"kafka"}; c.Events.KafkaTopic = "t" }, SeverityError, "events.kafka_brokers[0]", "host:port"},
		{"brokers without topic", func(c *Config) { c.Events.KafkaBrokers = []string{"kafka:9092"} }, SeverityError, "events.kafka_topic", "required when"},
		{"bad cron", func(c *Config) { c.Schedule.Cron = "every day" }, SeverityError, "schedule.cron", ""},
		{"schedule without redis", func(c *Config) { c.Lock.RedisAddr = "" }, SeverityWarning, "lock.redis_addr", "database lock only"},
		{"missing source", func(c *Config) { c.Sources.FitnessCSV = "/does/not/exist.csv" }, SeverityWarning, "sources.fitness_csv", "exist.csv"},
		{"in-memory sqlite", func(c *Config) { c.Storage.Kind = "sqlite"; c.Storage.DSN = ":memory:" }, SeverityWarning, "storage.dsn", "discarded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig(t)
			tt.mutate(c)
			issues := Validate(c)
			require.True(t, hasIssue(issues, tt.sev, tt.path, tt.msg), "issues: %+v", issues)
			if tt.sev == SeverityWarning {
				assert.NoError(t, Err(issues))
			} else {
				assert.Error(t, Err(issues))
			}
		})
	}
}

func TestIssue_Error(t *testing.T) {
	iss := Issue{Severity: SeverityError, Path: "storage.dsn", Message: "must not be empty"}
	assert.Equal(t, "error at storage.dsn: must not be empty", iss.Error())
}

func TestLoad_DefaultsValidate(t *testing.T) {
	isolate(t)
	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.NoError(t, Err(Validate(cfg)), "defaults carry no blocking issue")
}
