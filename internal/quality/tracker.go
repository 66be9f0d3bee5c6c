// Package quality records the audit trail of pipeline runs: one row per run,
// created RUNNING and moved exactly once to SUCCESS or FAILED with the run's
// counters.
//
// Run rows are written outside the pipeline's data transaction so a failed
// run is still recorded after its writes are rolled back.
package quality

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"healthetl/internal/events"
	"healthetl/internal/metrics"
	"healthetl/internal/schema"
	"healthetl/internal/storage"
)

// ErrAlreadyFinished is returned by a second terminal transition on a Run.
var ErrAlreadyFinished = errors.New("quality: run already finished")

// Counters are the data-quality counters reported for a run. All values are
// non-negative and RowsInserted never exceeds RowsRead.
type Counters struct {
	RowsRead           int64
	RowsInserted       int64
	RowsRejected       int64
	MissingValuesCount int64
	DuplicatesCount    int64
}

// Validate rejects negative counters and more inserts than rows read.
func (c Counters) Validate() error {
	for name, v := range map[string]int64{
		"rows_read":            c.RowsRead,
		"rows_inserted":        c.RowsInserted,
		"rows_rejected":        c.RowsRejected,
		"missing_values_count": c.MissingValuesCount,
		"duplicates_count":     c.DuplicatesCount,
	} {
		if v < 0 {
			return fmt.Errorf("quality: %s is negative (%d)", name, v)
		}
	}
	if c.RowsInserted > c.RowsRead {
		return fmt.Errorf("quality: rows_inserted %d exceeds rows_read %d", c.RowsInserted, c.RowsRead)
	}
	return nil
}

// Tracker creates and finishes quality runs.
type Tracker struct {
	store storage.RunStore
	pub   events.Publisher
	log   *zap.Logger
	now   func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithPublisher sets the publisher notified of terminal transitions.
func WithPublisher(p events.Publisher) Option {
	return func(t *Tracker) {
		if p != nil {
			t.pub = p
		}
	}
}

// WithLogger sets the tracker's logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker returns a Tracker persisting runs to store.
func NewTracker(store storage.RunStore, opts ...Option) *Tracker {
	t := &Tracker{store: store, pub: events.Nop{}, log: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Start persists a RUNNING run with zero counters and returns its handle.
func (t *Tracker) Start(ctx context.Context, pipeline string) (*Run, error) {
	rec := schema.QualityRun{
		PipelineName: pipeline,
		StartedAt:    t.now().UTC(),
		Status:       schema.StatusRunning,
	}
	id, err := t.store.CreateRun(ctx, &rec)
	if err != nil {
		return nil, fmt.Errorf("quality: start %s: %w", pipeline, err)
	}
	rec.ID = id
	t.log.Info("run started", zap.String("pipeline", pipeline), zap.Int64("run_id", id))
	return &Run{t: t, rec: rec}, nil
}

// Run is a started quality run. Its terminal methods are safe to call from
// multiple goroutines; only the first succeeds.
type Run struct {
	t *Tracker

	mu       sync.Mutex
	rec      schema.QualityRun
	finished bool
}

// ID is the persisted run identifier.
func (r *Run) ID() int64 { return r.rec.ID }

// Pipeline is the pipeline name the run was started for.
func (r *Run) Pipeline() string { return r.rec.PipelineName }

// Record returns a copy of the run row as last written.
func (r *Run) Record() schema.QualityRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec
}

// Succeed moves the run to SUCCESS with c.
func (r *Run) Succeed(ctx context.Context, c Counters) error {
	return r.finish(ctx, schema.StatusSuccess, c, nil)
}

// Fail moves the run to FAILED with c and cause's message.
func (r *Run) Fail(ctx context.Context, c Counters, cause error) error {
	if cause == nil {
		cause = errors.New("unknown error")
	}
	return r.finish(ctx, schema.StatusFailed, c, cause)
}

func (r *Run) finish(ctx context.Context, status string, c Counters, cause error) error {
	if err := c.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return fmt.Errorf("run %d: %w", r.rec.ID, ErrAlreadyFinished)
	}
	rec := r.rec
	ended := r.t.now().UTC()
	rec.EndedAt = &ended
	rec.Status = status
	rec.RowsRead = c.RowsRead
	rec.RowsInserted = c.RowsInserted
	rec.RowsRejected = c.RowsRejected
	rec.MissingValuesCount = c.MissingValuesCount
	rec.DuplicatesCount = c.DuplicatesCount
	if cause != nil {
		msg := cause.Error()
		rec.ErrorMessage = &msg
	}

	err := r.t.store.FinishRun(ctx, &rec)
	if errors.Is(err, storage.ErrRunNotRunning) {
		r.finished = true
		r.mu.Unlock()
		return fmt.Errorf("run %d: %w", rec.ID, ErrAlreadyFinished)
	}
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("quality: finish run %d: %w", rec.ID, err)
	}
	r.finished = true
	r.rec = rec
	r.mu.Unlock()

	log := r.t.log.With(zap.String("pipeline", rec.PipelineName), zap.Int64("run_id", rec.ID))
	fields := []zap.Field{
		zap.String("status", status),
		zap.Int64("rows_read", rec.RowsRead),
		zap.Int64("rows_inserted", rec.RowsInserted),
		zap.Int64("rows_rejected", rec.RowsRejected),
		zap.Int64("missing_values", rec.MissingValuesCount),
		zap.Int64("duplicates", rec.DuplicatesCount),
	}
	if cause != nil {
		log.Warn("run failed", append(fields, zap.Error(cause))...)
	} else {
		log.Info("run finished", fields...)
	}
	metrics.RecordRun(rec.PipelineName, status)

	ev := &events.RunFinished{
		RunID:              rec.ID,
		Pipeline:           rec.PipelineName,
		Status:             status,
		StartedAt:          rec.StartedAt,
		EndedAt:            ended,
		RowsRead:           rec.RowsRead,
		RowsInserted:       rec.RowsInserted,
		RowsRejected:       rec.RowsRejected,
		MissingValuesCount: rec.MissingValuesCount,
		DuplicatesCount:    rec.DuplicatesCount,
	}
	if rec.ErrorMessage != nil {
		ev.Error = *rec.ErrorMessage
	}
	if err := r.t.pub.PublishRunFinished(ctx, ev); err != nil {
		log.Warn("run event not published", zap.Error(err))
	}
	return nil
}
