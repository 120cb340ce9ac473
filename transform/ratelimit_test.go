package transform

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterInterval(t *testing.T) {
	l := NewLimiter(20)
	defer l.Stop()

	assert.Equal(t, 50*time.Millisecond, l.Interval())
}

func TestLimiterSerializesConcurrentCallers(t *testing.T) {
	const (
		rps   = 50.0
		calls = 6
	)
	l := NewLimiter(rps)
	defer l.Stop()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Wait(context.Background()))
		}()
	}
	wg.Wait()

	minimum := time.Duration(float64(calls-1) / rps * float64(time.Second))
	assert.GreaterOrEqual(t, time.Since(start), minimum-5*time.Millisecond,
		"N calls at R req/s must take at least (N-1)/R")
}

func TestLimiterStopReleasesWaiters(t *testing.T) {
	l := NewLimiter(0.1) // one call every 10s
	require.NoError(t, l.Wait(context.Background()))

	done := make(chan error, 1)
	go func() {
		done <- l.Wait(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	l.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrLimiterStopped)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by Stop")
	}

	assert.ErrorIs(t, l.Wait(context.Background()), ErrLimiterStopped)
}

func TestLimiterUnlimited(t *testing.T) {
	l := NewLimiter(0)
	defer l.Stop()

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSchedule(t *testing.T) {
	l := NewLimiter(100)
	defer l.Stop()

	v, err := Schedule(context.Background(), l, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
