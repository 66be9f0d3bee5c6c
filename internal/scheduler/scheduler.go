// Package scheduler runs pipeline jobs on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled unit of work. Its context is canceled when the
// scheduler stops.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner whose jobs never overlap and never crash the
// process: a tick that fires while the previous run is active is skipped,
// and panics are logged.
type Scheduler struct {
	c   *cron.Cron
	log *zap.Logger
}

// New returns a stopped Scheduler evaluating expressions in loc (UTC when nil).
// Expressions use the standard five fields or descriptors such as "@daily".
func New(loc *time.Location, log *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		c: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(
				cron.Recover(cl),
				cron.SkipIfStillRunning(cl),
			),
		),
		log: log,
	}
}

// Add registers job under spec. The job receives ctx.
func (s *Scheduler) Add(ctx context.Context, spec, name string, job Job) (cron.EntryID, error) {
	id, err := s.c.AddFunc(spec, func() {
		start := time.Now()
		s.log.Info("scheduled job started", zap.String("job", name))
		if err := job(ctx); err != nil {
			s.log.Error("scheduled job failed", zap.String("job", name), zap.Duration("took", time.Since(start)), zap.Error(err))
			return
		}
		s.log.Info("scheduled job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return 0, fmt.Errorf("scheduler: %s: invalid cron %q: %w", name, spec, err)
	}
	return id, nil
}

// Next reports the next activation of every registered job.
func (s *Scheduler) Next() []time.Time {
	entries := s.c.Entries()
	out := make([]time.Time, len(entries))
	for i, e := range entries {
		out[i] = e.Next
	}
	return out
}

// Run starts the runner and blocks until ctx is done, then waits for running
// jobs to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.c.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.c.Entries())))
	<-ctx.Done()
	<-s.c.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, kv ...interface{}) { l.s.Debugw("cron: "+msg, kv...) }

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.s.Errorw("cron: "+msg, append(kv, "error", err)...)
}
