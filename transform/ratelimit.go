// ABOUTME: Per-client fixed-interval rate limiter with an explicit stop lifecycle
// ABOUTME: Serializes calls at 1s/rps regardless of how many goroutines queue on it
package transform

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// ErrLimiterStopped is returned by Wait once Stop has been called.
var ErrLimiterStopped = errors.New("rate limiter stopped")

// Limiter releases at most one call per interval. Each client owns one, so
// separate organizations and providers run in independent lanes.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration
	life     context.Context
	stop     context.CancelFunc
}

// NewLimiter creates a limiter for requestsPerSecond. Non-positive values
// disable limiting.
func NewLimiter(requestsPerSecond float64) *Limiter {
	life, stop := context.WithCancel(context.Background())

	l := &Limiter{life: life, stop: stop}
	if requestsPerSecond <= 0 {
		l.limiter = rate.NewLimiter(rate.Inf, 1)
		return l
	}

	l.interval = time.Duration(float64(time.Second) / requestsPerSecond)
	l.limiter = rate.NewLimiter(rate.Every(l.interval), 1)
	return l
}

// Interval is the fixed spacing between released calls.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the caller may proceed, ctx is done, or the limiter stops.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.life.Err() != nil {
		return ErrLimiterStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	release := context.AfterFunc(l.life, cancel)
	defer release()

	if err := l.limiter.Wait(ctx); err != nil {
		if l.life.Err() != nil {
			return ErrLimiterStopped
		}
		return err
	}
	return nil
}

// Stop releases every waiter with ErrLimiterStopped. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stop()
}

// Schedule waits for a slot and then runs fn.
func Schedule[T any](ctx context.Context, l *Limiter, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := l.Wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	return fn(ctx)
}
