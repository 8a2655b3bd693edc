package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum spacing between calls and a ceiling on
// outstanding calls to one external dependency. Construct one per dependency
// and inject it; limiters are never shared through package state.
type Limiter struct {
	spacing *rate.Limiter
	slots   chan struct{}
}

// New returns a limiter with the given minimum inter-call interval and
// maximum number of concurrent outstanding calls.
func New(minInterval time.Duration, maxConcurrent int) *Limiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	var spacing *rate.Limiter
	if minInterval > 0 {
		spacing = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return &Limiter{
		spacing: spacing,
		slots:   make(chan struct{}, maxConcurrent),
	}
}

// Acquire blocks until a call may proceed. Every successful Acquire must be
// paired with a Release.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if l.spacing != nil {
		if err := l.spacing.Wait(ctx); err != nil {
			<-l.slots
			return err
		}
	}
	return nil
}

// Release frees the slot taken by Acquire.
func (l *Limiter) Release() {
	<-l.slots
}

// Do runs fn under the limiter.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
