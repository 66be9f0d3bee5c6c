package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"healthetl/internal/config"
	"healthetl/internal/datasource/file"
	"healthetl/internal/events"
	"healthetl/internal/export"
	"healthetl/internal/ingest"
	"healthetl/internal/metrics"
	"healthetl/internal/metrics/datadog"
	"healthetl/internal/metrics/prompush"
	"healthetl/internal/pipeline"
	"healthetl/internal/quality"
	"healthetl/internal/runlock"
	"healthetl/internal/storage"

	// register all backends with the storage factory.
	_ "healthetl/internal/storage/all"
)

// app holds the collaborators built from one loaded configuration. The CLI
// layer only talks to storage through the registry and never imports a
// driver directly.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	store   storage.Store
	pub     events.Publisher
	loc     *time.Location
	runDate time.Time
	closers []func() error
}

// newApp opens the store (bootstrapping the schema when configured), the
// metrics backend and the event publisher.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (a *app, err error) {
	a = &app{cfg: cfg, log: log, pub: events.Nop{}}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.loc, err = cfg.Location(); err != nil {
		return nil, err
	}
	if a.runDate, err = cfg.RunDate(); err != nil {
		return nil, err
	}
	if err = a.setupMetrics(); err != nil {
		return nil, err
	}

	a.store, err = storage.New(ctx, storage.Config{
		Kind:        cfg.Storage.Kind,
		DSN:         cfg.Storage.DSN,
		MaxConns:    cfg.Storage.MaxConns,
		LockTimeout: cfg.Storage.LockTimeout,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.store.Close(); return nil })
	if cfg.Storage.Bootstrap {
		if err = storage.EnsureSchema(ctx, a.store); err != nil {
			return nil, fmt.Errorf("bootstrap schema: %w", err)
		}
	}

	if len(cfg.Events.KafkaBrokers) > 0 {
		p, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.Events.KafkaBrokers,
			Topic:   cfg.Events.KafkaTopic,
		}, log)
		if err != nil {
			return nil, err
		}
		a.pub = p
		a.closers = append(a.closers, p.Close)
	}
	log.Debug("app ready",
		zap.String("storage", cfg.Storage.Kind),
		zap.String("metrics", cfg.Metrics.Backend),
		zap.Int("kafka_brokers", len(cfg.Events.KafkaBrokers)))
	return a, nil
}

func (a *app) setupMetrics() error {
	m := a.cfg.Metrics
	var (
		b   metrics.Backend
		err error
	)
	switch m.Backend {
	case "pushgateway":
		b, err = prompush.NewBackend(m.Job, m.PushgatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{Addr: m.DatadogAddr, GlobalTags: []string{"job:" + m.Job}})
	case "", "none":
		return nil
	default:
		return fmt.Errorf("unknown metrics.backend %q", m.Backend)
	}
	if err != nil {
		return err
	}
	metrics.SetBackend(b)
	a.closers = append(a.closers, func() error {
		defer metrics.SetBackend(nil)
		return metrics.Flush()
	})
	return nil
}

// Close releases everything newApp opened, in reverse order. Errors are
// logged; Close never fails the command.
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("shutdown", zap.Error(err))
	}
}

func (a *app) deps() ingest.Deps {
	return ingest.Deps{
		Store:    a.store,
		Tracker:  quality.NewTracker(a.store, quality.WithPublisher(a.pub), quality.WithLogger(a.log)),
		Log:      a.log,
		Location: a.loc,
		RunDate:  a.runDate,
	}
}

// steps returns the ingestion pipelines selected by which. "all" runs
// nutrition before fitness.
func (a *app) steps(which string) ([]pipeline.Step, error) {
	d := a.deps()
	fitness := ingest.NewFitness(file.NewLocal(a.cfg.Sources.FitnessCSV), d)
	nutrition := ingest.NewNutrition(file.NewLocal(a.cfg.Sources.NutritionCSV), d)
	switch which {
	case "", "all":
		return []pipeline.Step{nutrition, fitness}, nil
	case "fitness":
		return []pipeline.Step{fitness}, nil
	case "nutrition":
		return []pipeline.Step{nutrition}, nil
	}
	return nil, fmt.Errorf("unknown pipeline %q (want fitness, nutrition or all)", which)
}

func (a *app) exporter() *export.Exporter {
	return &export.Exporter{
		Store:       a.store,
		Dir:         a.cfg.Export.Dir,
		XLSX:        a.cfg.Export.XLSX,
		Concurrency: a.cfg.Export.Concurrency,
		Log:         a.log,
	}
}

// locker returns the cross-host lock for scheduled runs.
func (a *app) locker(ctx context.Context) (runlock.Locker, error) {
	if a.cfg.Lock.RedisAddr == "" {
		return runlock.Nop{}, nil
	}
	l, closeFn, err := runlock.NewRedis(ctx, a.cfg.Lock.RedisAddr, a.cfg.Lock.TTL, a.log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeFn)
	return l, nil
}
