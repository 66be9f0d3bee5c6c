// Package events publishes pipeline lifecycle events to downstream consumers.
package events

import (
	"context"
	"time"
)

// RunFinishedType is the event_type header of RunFinished messages.
const RunFinishedType = "quality.run.finished"

// RunFinished is emitted once per quality run when it reaches a terminal
// status.
type RunFinished struct {
	EventID            string    `json:"event_id"`
	RunID              int64     `json:"run_id"`
	Pipeline           string    `json:"pipeline"`
	Status             string    `json:"status"`
	StartedAt          time.Time `json:"started_at"`
	EndedAt            time.Time `json:"ended_at"`
	RowsRead           int64     `json:"rows_read"`
	RowsInserted       int64     `json:"rows_inserted"`
	RowsRejected       int64     `json:"rows_rejected"`
	MissingValuesCount int64     `json:"missing_values_count"`
	DuplicatesCount    int64     `json:"duplicates_count"`
	Error              string    `json:"error,omitempty"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishRunFinished(ctx context.Context, ev *RunFinished) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishRunFinished(context.Context, *RunFinished) error { return nil }
func (Nop) Close() error                                           { return nil }
