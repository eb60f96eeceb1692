package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_WaitElapses(t *testing.T) {
	t.Parallel()

	start := time.Now()
	err := Timer{}.Wait(context.Background(), 20*time.Millisecond)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestTimer_ZeroDuration(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Timer{}.Wait(context.Background(), 0))
}

func TestTimer_CancelledBeforeWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Timer{}.Wait(ctx, time.Hour)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimer_CancelledDuringWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Timer{}.Wait(ctx, time.Hour)

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTimer_CancelIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cancel()

	assert.True(t, IsCancelled(Timer{}.Wait(ctx, time.Second)))
	cancel()
	assert.True(t, IsCancelled(Timer{}.Wait(ctx, time.Second)))
}

func TestTimer_DeadlineExceeded(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := Timer{}.Wait(ctx, time.Hour)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSleeperFunc(t *testing.T) {
	t.Parallel()

	var got time.Duration
	var s Sleeper = SleeperFunc(func(_ context.Context, d time.Duration) error {
		got = d
		return nil
	})

	require.NoError(t, s.Wait(context.Background(), 7*time.Second))
	assert.Equal(t, 7*time.Second, got)
}

func TestIsCancelled(t *testing.T) {
	t.Parallel()

	assert.True(t, IsCancelled(context.Canceled))
	assert.False(t, IsCancelled(errors.New("other")))
	assert.False(t, IsCancelled(nil))
}
