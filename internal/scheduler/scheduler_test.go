package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAdd_InvalidSpec(t *testing.T) {
	s := New(nil, zaptest.NewLogger(t))
	_, err := s.Add(context.Background(), "not a cron", "pipeline", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid cron "not a cron"`)
}

func TestNext_BeforeStart(t *testing.T) {
	s := New(time.UTC, nil)
	_, err := s.Add(context.Background(), "30 2 * * *", "pipeline", func(context.Context) error { return nil })
	require.NoError(t, err)
	_, err = s.Add(context.Background(), "@daily", "report", func(context.Context) error { return nil })
	require.NoError(t, err)

	// activations are computed when the runner starts
	next := s.Next()
	require.Len(t, next, 2)
	for _, n := range next {
		assert.True(t, n.IsZero())
	}
}

func TestRun_FiresAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(nil, zaptest.NewLogger(t))
	var calls atomic.Int32
	fired := make(chan struct{}, 4)
	_, err := s.Add(ctx, "@every 1s", "pipeline", func(context.Context) error {
		if calls.Add(1) == 1 {
			fired <- struct{}{}
			return errors.New("first run fails")
		}
		fired <- struct{}{}
		return nil
	})
	require.NoError(t, err)
	_, err = s.Add(ctx, "@every 1s", "panics", func(context.Context) error { panic("boom") })
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-fired:
		case <-time.After(5 * time.Second):
			t.Fatalf("job fired %d times before timeout", calls.Load())
		}
	}
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(2), "a failing or panicking job does not stop the schedule")
}
