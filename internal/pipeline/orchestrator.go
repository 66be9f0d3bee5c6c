// Package pipeline sequences the ingestion pipelines and the optional export
// stage. The first failing step stops the sequence.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"healthetl/internal/ingest"
	"healthetl/internal/metrics"
)

// Step is one independently tracked ingestion pipeline.
type Step interface {
	Name() string
	Run(ctx context.Context) (ingest.Result, error)
}

// Exporter writes the post-ingest exports.
type Exporter interface {
	Export(ctx context.Context) error
}

// Orchestrator runs Steps in order, then Export when set.
type Orchestrator struct {
	Steps  []Step
	Export Exporter // optional
	Log    *zap.Logger
}

// Report lists the results of the steps that ran.
type Report struct {
	Results  []ingest.Result
	Exported bool
}

// Run executes every step in order. A failing step halts the sequence and its
// error is returned wrapped with the step name; earlier steps stay committed.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	log := o.Log
	if log == nil {
		log = zap.NewNop()
	}
	var rep Report
	for _, s := range o.Steps {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		log.Info("pipeline starting", zap.String("pipeline", s.Name()))
		res, err := s.Run(ctx)
		if err != nil {
			log.Error("pipeline failed", zap.String("pipeline", s.Name()), zap.Int64("run_id", res.RunID), zap.Error(err))
			return rep, fmt.Errorf("pipeline %s: %w", s.Name(), err)
		}
		rep.Results = append(rep.Results, res)
	}

	if o.Export == nil {
		return rep, nil
	}
	start := time.Now()
	err := o.Export.Export(ctx)
	metrics.RecordStep("export", "export", err, time.Since(start))
	if err != nil {
		return rep, fmt.Errorf("pipeline export: %w", err)
	}
	rep.Exported = true
	return rep, nil
}
