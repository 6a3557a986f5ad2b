// Package clock abstracts the time source used by the shaping loop so that
// dwell periods can be driven deterministically in tests.
package clock

import (
	"context"
	"time"
)

// Clock is the subset of the time package the controller depends on.
type Clock interface {
	Now() time.Time
	// After delivers the current time once d has elapsed. If d <= 0 the
	// channel is ready immediately.
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Wait blocks for d or until ctx is done, whichever happens first. It returns
// ctx.Err() when interrupted.
func Wait(ctx context.Context, c Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.After(d):
		return nil
	}
}
