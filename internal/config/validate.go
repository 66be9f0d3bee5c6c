package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path is the dotted config key
// (e.g. "storage.dsn").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks c and returns every finding. It does not mutate c.
func Validate(c *Config) []Issue {
	var issues []Issue
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []Issue{{Severity: SeverityError, Path: "", Message: err.Error()}}
		}
		for _, fe := range verrs {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fieldPath(fe.Namespace()),
				Message:  ruleMessage(fe),
			})
		}
	}
	issues = append(issues, validateRun(c)...)
	issues = append(issues, validateMetrics(c.Metrics)...)
	issues = append(issues, validateEvents(c.Events)...)
	issues = append(issues, validateSchedule(c)...)
	issues = append(issues, validateSources(c.Sources)...)
	if c.Storage.Kind == "sqlite" && strings.Contains(c.Storage.DSN, ":memory:") {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.dsn",
			Message:  "in-memory database is discarded when the process exits",
		})
	}
	return issues
}

// Err joins the error-severity issues, or returns nil when there are none.
func Err(issues []Issue) error {
	var errs []error
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			errs = append(errs, iss)
		}
	}
	return errors.Join(errs...)
}

// fieldPath drops the root struct name: "Config.storage.dsn" -> "storage.dsn".
func fieldPath(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "datetime":
		return fmt.Sprintf("must be a date in layout %s, got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "hostname_port":
		return fmt.Sprintf("must be host:port, got %q", fmt.Sprint(fe.Value()))
	case "url":
		return fmt.Sprintf("must be a URL, got %q", fmt.Sprint(fe.Value()))
	case "gte", "lte":
		return fmt.Sprintf("must be %s %s, got %v", fe.Tag(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("failed rule %q", fe.Tag())
	}
}

func validateRun(c *Config) []Issue {
	if _, err := c.Location(); err != nil {
		return []Issue{{Severity: SeverityError, Path: "run.timezone", Message: fmt.Sprintf("unknown time zone %q", c.Run.Timezone)}}
	}
	return nil
}

func validateMetrics(m Metrics) []Issue {
	switch {
	case m.Backend == "pushgateway" && m.PushgatewayURL == "":
		return []Issue{{Severity: SeverityError, Path: "metrics.pushgateway_url", Message: "required when metrics.backend is pushgateway"}}
	case m.Backend == "datadog" && m.DatadogAddr == "":
		return []Issue{{Severity: SeverityError, Path: "metrics.datadog_addr", Message: "required when metrics.backend is datadog"}}
	}
	return nil
}

func validateEvents(e Events) []Issue {
	if len(e.KafkaBrokers) > 0 && strings.TrimSpace(e.KafkaTopic) == "" {
		return []Issue{{Severity: SeverityError, Path: "events.kafka_topic", Message: "required when events.kafka_brokers is set"}}
	}
	return nil
}

func validateSchedule(c *Config) []Issue {
	var issues []Issue
	if c.Schedule.Cron == "" {
		return nil
	}
	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		issues = append(issues, Issue{Severity: SeverityError, Path: "schedule.cron", Message: err.Error()})
	}
	if c.Lock.RedisAddr == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "lock.redis_addr",
			Message:  "scheduled runs on several hosts are serialised by the database lock only",
		})
	}
	return issues
}

// validateSources warns about inputs that do not exist yet; they may appear
// before the next run.
func validateSources(s Sources) []Issue {
	var issues []Issue
	for _, src := range []struct{ path, name string }{
		{"sources.fitness_csv", s.FitnessCSV},
		{"sources.nutrition_csv", s.NutritionCSV},
	} {
		if src.name == "" {
			continue
		}
		if _, err := os.Stat(src.name); err != nil {
			issues = append(issues, Issue{Severity: SeverityWarning, Path: src.path, Message: err.Error()})
		}
	}
	return issues
}
