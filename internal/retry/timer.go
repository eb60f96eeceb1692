package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCancelled is returned when a wait is aborted by its context.
var ErrCancelled = errors.New("cancelled")

// Sleeper suspends the caller for d unless ctx is cancelled first.
type Sleeper interface {
	Wait(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Wait calls f(ctx, d).
func (f SleeperFunc) Wait(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// Timer is the wall-clock Sleeper. The zero value is ready to use.
type Timer struct{}

// Wait blocks for d. If ctx is done first the timer is stopped and the
// returned error wraps both ErrCancelled and ctx.Err().
func (Timer) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		t.Stop()
		return cancelled(ctx.Err())
	}
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// IsCancelled reports whether err came from an aborted wait or a done context.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
