// Package ingest implements the fitness and nutrition ingestion pipelines.
//
// A run parses its CSV source, checks the header against the pipeline's
// required columns, cleans and deduplicates rows, drops invalid ones and
// upserts the survivors inside a single store transaction. Every run is
// recorded by the quality tracker whether it commits or rolls back.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"healthetl/internal/datasource"
	"healthetl/internal/metrics"
	pcsv "healthetl/internal/parser/csv"
	"healthetl/internal/quality"
	"healthetl/internal/schema"
	"healthetl/internal/storage"
)

// Pipeline names recorded on quality runs.
const (
	FitnessName   = "fitness_ingest"
	NutritionName = "nutrition_ingest"
)

// Deps are the collaborators shared by both pipelines.
type Deps struct {
	Store   storage.Store
	Tracker *quality.Tracker
	Log     *zap.Logger

	// Now defaults to time.Now; Location to time.Local. Together they fix
	// the run date when RunDate is zero.
	Now      func() time.Time
	Location *time.Location
	RunDate  time.Time
}

// Result summarises a finished run.
type Result struct {
	Pipeline string
	RunID    int64
	Status   string
	RunDate  time.Time
	Counters quality.Counters
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Tracker == nil && d.Store != nil {
		d.Tracker = quality.NewTracker(d.Store, quality.WithLogger(d.Log))
	}
	return d
}

// Date is the single calendar date stamped on every record of a run and used
// in its lock key.
func (d Deps) Date() time.Time {
	if !d.RunDate.IsZero() {
		return schema.Date(d.RunDate)
	}
	now, loc := d.Now, d.Location
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return schema.Date(now().In(loc))
}

// LockKey is the per-run lock key for pipeline on date.
func LockKey(pipeline string, date time.Time) string {
	return fmt.Sprintf("healthetl:%s:%s", pipeline, date.Format(schema.DateLayout))
}

// work performs a run's reads and writes on tx. It fills c as stages complete
// and returns the number of rows written.
type work func(ctx context.Context, tx storage.Tx, date time.Time, c *quality.Counters) (int64, error)

// execute wraps fn in the run lifecycle: start the quality run, open and lock
// the data transaction, run fn, commit or roll back, then record the terminal
// state. rows_inserted is only reported once the transaction committed.
func execute(ctx context.Context, d Deps, name string, fn work) (res Result, err error) {
	if d.Store == nil {
		return Result{}, fmt.Errorf("ingest: %s: no store configured", name)
	}
	date := d.Date()
	log := d.Log.With(zap.String("pipeline", name), zap.String("run_date", date.Format(schema.DateLayout)))
	res = Result{Pipeline: name, RunDate: date}

	run, err := d.Tracker.Start(ctx, name)
	if err != nil {
		return res, err
	}
	res.RunID = run.ID()
	started := time.Now()

	var c quality.Counters
	inserted, err := transact(ctx, d.Store, LockKey(name, date), func(ctx context.Context, tx storage.Tx) (int64, error) {
		return fn(ctx, tx, date, &c)
	})
	metrics.RecordStep(name, "run", err, time.Since(started))

	// The terminal write must land even when ctx was canceled mid-run.
	finishCtx := context.WithoutCancel(ctx)
	if err != nil {
		c.RowsInserted = 0
		res.Status, res.Counters = schema.StatusFailed, c
		if ferr := run.Fail(finishCtx, c, err); ferr != nil {
			log.Error("could not record failed run", zap.Int64("run_id", run.ID()), zap.Error(ferr))
		}
		return res, err
	}

	c.RowsInserted = inserted
	res.Status, res.Counters = schema.StatusSuccess, c
	recordCounters(name, c)
	if err := run.Succeed(finishCtx, c); err != nil {
		// The data is committed but the run must not stay RUNNING.
		res.Status = schema.StatusFailed
		if ferr := run.Fail(finishCtx, c, err); ferr != nil {
			log.Error("could not record failed run", zap.Int64("run_id", run.ID()), zap.Error(ferr))
		}
		return res, err
	}
	return res, nil
}

// transact runs fn inside a locked transaction, committing on success and
// rolling back on every other exit path.
func transact(ctx context.Context, s storage.Store, lockKey string, fn func(context.Context, storage.Tx) (int64, error)) (n int64, err error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
		}
	}()
	if err = tx.LockRun(ctx, lockKey); err != nil {
		return 0, err
	}
	if n, err = fn(ctx, tx); err != nil {
		return 0, err
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

func recordCounters(job string, c quality.Counters) {
	metrics.RecordRow(job, "read", c.RowsRead)
	metrics.RecordRow(job, "inserted", c.RowsInserted)
	metrics.RecordRow(job, "rejected", c.RowsRejected)
	metrics.RecordRow(job, "missing", c.MissingValuesCount)
	metrics.RecordRow(job, "duplicates", c.DuplicatesCount)
}

// stage times fn and reports it as a pipeline step.
func stage(job, step string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordStep(job, step, err, time.Since(start))
	return err
}

// readTable opens src and parses it with opt.
func readTable(ctx context.Context, src datasource.Source, opt pcsv.Options) (*pcsv.Table, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	defer rc.Close()
	t, err := pcsv.NewParser(opt).Parse(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("ingest: parse %s: %w", src.Name(), err)
	}
	return t, nil
}
