package quality

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthetl/internal/events"
	"healthetl/internal/schema"
	"healthetl/internal/storage"
)

// memRuns is an in-memory storage.RunStore honouring the RUNNING guard.
type memRuns struct {
	mu        sync.Mutex
	runs      map[int64]schema.QualityRun
	next      int64
	createErr error
	finishErr error
}

func newMemRuns() *memRuns { return &memRuns{runs: map[int64]schema.QualityRun{}} }

func (m *memRuns) CreateRun(_ context.Context, r *schema.QualityRun) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.next++
	rec := *r
	rec.ID = m.next
	m.runs[rec.ID] = rec
	return rec.ID, nil
}

func (m *memRuns) FinishRun(_ context.Context, r *schema.QualityRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finishErr != nil {
		return m.finishErr
	}
	cur, ok := m.runs[r.ID]
	if !ok || cur.Status != schema.StatusRunning {
		return storage.ErrRunNotRunning
	}
	m.runs[r.ID] = *r
	return nil
}

func (m *memRuns) ListRuns(context.Context, int) ([]schema.QualityRun, error) { return nil, nil }

func (m *memRuns) get(id int64) schema.QualityRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

type recordingPublisher struct {
	mu  sync.Mutex
	evs []events.RunFinished
	err error
}

func (p *recordingPublisher) PublishRunFinished(_ context.Context, ev *events.RunFinished) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evs = append(p.evs, *ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

var clock = func() time.Time { return time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC) }

func TestStartPersistsRunning(t *testing.T) {
	store := newMemRuns()
	tr := NewTracker(store, WithClock(clock))

	run, err := tr.Start(context.Background(), "fitness_ingest")
	require.NoError(t, err)

	got := store.get(run.ID())
	assert.Equal(t, schema.StatusRunning, got.Status)
	assert.Equal(t, "fitness_ingest", got.PipelineName)
	assert.Equal(t, clock(), got.StartedAt)
	assert.Nil(t, got.EndedAt)
	assert.Zero(t, got.RowsRead+got.RowsInserted+got.RowsRejected+got.MissingValuesCount+got.DuplicatesCount)
}

func TestSucceedRecordsCountersAndPublishes(t *testing.T) {
	store := newMemRuns()
	pub := &recordingPublisher{}
	tr := NewTracker(store, WithClock(clock), WithPublisher(pub))
	ctx := context.Background()

	run, err := tr.Start(ctx, "nutrition_ingest")
	require.NoError(t, err)
	c := Counters{RowsRead: 10, RowsInserted: 7, RowsRejected: 2, MissingValuesCount: 4, DuplicatesCount: 1}
	require.NoError(t, run.Succeed(ctx, c))

	got := store.get(run.ID())
	assert.Equal(t, schema.StatusSuccess, got.Status)
	require.NotNil(t, got.EndedAt)
	assert.Nil(t, got.ErrorMessage)
	assert.Equal(t, int64(7), got.RowsInserted)
	assert.Equal(t, int64(4), got.MissingValuesCount)

	require.Len(t, pub.evs, 1)
	assert.Equal(t, run.ID(), pub.evs[0].RunID)
	assert.Equal(t, schema.StatusSuccess, pub.evs[0].Status)
	assert.Equal(t, int64(10), pub.evs[0].RowsRead)
}

func TestFailRecordsMessage(t *testing.T) {
	store := newMemRuns()
	pub := &recordingPublisher{}
	tr := NewTracker(store, WithPublisher(pub))
	ctx := context.Background()

	run, err := tr.Start(ctx, "fitness_ingest")
	require.NoError(t, err)
	require.NoError(t, run.Fail(ctx, Counters{RowsRead: 3}, errors.New("missing columns: [BMI]")))

	got := store.get(run.ID())
	assert.Equal(t, schema.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "missing columns: [BMI]", *got.ErrorMessage)
	assert.Equal(t, "missing columns: [BMI]", pub.evs[0].Error)
}

func TestTerminalTransitionHappensOnce(t *testing.T) {
	store := newMemRuns()
	pub := &recordingPublisher{}
	tr := NewTracker(store, WithPublisher(pub))
	ctx := context.Background()

	run, err := tr.Start(ctx, "fitness_ingest")
	require.NoError(t, err)
	require.NoError(t, run.Succeed(ctx, Counters{}))

	err = run.Fail(ctx, Counters{}, errors.New("late"))
	assert.ErrorIs(t, err, ErrAlreadyFinished)
	err = run.Succeed(ctx, Counters{})
	assert.ErrorIs(t, err, ErrAlreadyFinished)

	assert.Equal(t, schema.StatusSuccess, store.get(run.ID()).Status)
	assert.Len(t, pub.evs, 1)
}

func TestConcurrentTerminalCallsSingleWinner(t *testing.T) {
	store := newMemRuns()
	tr := NewTracker(store)
	ctx := context.Background()
	run, err := tr.Start(ctx, "fitness_ingest")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				errs[i] = run.Succeed(ctx, Counters{})
			} else {
				errs[i] = run.Fail(ctx, Counters{}, errors.New("x"))
			}
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyFinished)
	}
	assert.Equal(t, 1, ok)
}

func TestStoreGuardMapsToAlreadyFinished(t *testing.T) {
	store := newMemRuns()
	tr := NewTracker(store)
	ctx := context.Background()
	run, err := tr.Start(ctx, "fitness_ingest")
	require.NoError(t, err)

	// Another process finished the row first.
	rec := store.get(run.ID())
	rec.Status = schema.StatusFailed
	store.runs[run.ID()] = rec

	assert.ErrorIs(t, run.Succeed(ctx, Counters{}), ErrAlreadyFinished)
}

func TestFinishStoreErrorAllowsRetry(t *testing.T) {
	store := newMemRuns()
	tr := NewTracker(store)
	ctx := context.Background()
	run, err := tr.Start(ctx, "fitness_ingest")
	require.NoError(t, err)

	store.finishErr = errors.New("connection reset")
	assert.Error(t, run.Succeed(ctx, Counters{}))
	store.finishErr = nil
	assert.NoError(t, run.Succeed(ctx, Counters{}))
}

func TestPublishErrorDoesNotFailRun(t *testing.T) {
	store := newMemRuns()
	tr := NewTracker(store, WithPublisher(&recordingPublisher{err: errors.New("kafka down")}))
	ctx := context.Background()
	run, err := tr.Start(ctx, "fitness_ingest")
	require.NoError(t, err)
	assert.NoError(t, run.Succeed(ctx, Counters{}))
}

func TestStartError(t *testing.T) {
	store := newMemRuns()
	store.createErr = errors.New("db down")
	_, err := NewTracker(store).Start(context.Background(), "fitness_ingest")
	assert.ErrorIs(t, err, store.createErr)
}

func TestCountersValidate(t *testing.T) {
	tests := []struct {
		name string
		c    Counters
		ok   bool
	}{
		{"zero", Counters{}, true},
		{"inserted equals read", Counters{RowsRead: 2, RowsInserted: 2}, true},
		{"negative", Counters{RowsRejected: -1}, false},
		{"inserted exceeds read", Counters{RowsRead: 1, RowsInserted: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
