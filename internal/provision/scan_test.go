package provision

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/muurk/wifiprov/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanPoller_ReadyImmediately(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{scanScript: []scanReply{device.Ready([]device.NetworkRecord{home()})}}
	sleeper := &recordingSleeper{}

	networks, err := NewScanPoller(dev, testOptions(sleeper)).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []device.NetworkRecord{home()}, networks)
	assert.Equal(t, []string{"scan", "results"}, dev.callLog())
	assert.Empty(t, sleeper.recorded())
}

func TestScanPoller_PendingThenReady(t *testing.T) {
	t.Parallel()
	pending := device.Pending[[]device.NetworkRecord]()
	dev := &fakeDevice{scanScript: []scanReply{pending, pending, pending, device.Ready([]device.NetworkRecord{home()})}}
	sleeper := &recordingSleeper{}

	var attempts []int
	poller := NewScanPoller(dev, testOptions(sleeper))
	poller.OnAttempt(func(a PollAttempt, _ device.Outcome) { attempts = append(attempts, a.Count) })

	networks, err := poller.Run(context.Background())

	require.NoError(t, err)
	assert.Len(t, networks, 1)
	assert.Equal(t, 4, dev.count("results"))
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, sleeper.recorded())
	assert.Equal(t, []int{1, 2, 3, 4}, attempts)
}

func TestScanPoller_EmptyListIsSuccess(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{scanScript: []scanReply{device.Ready[[]device.NetworkRecord](nil)}}

	networks, err := NewScanPoller(dev, testOptions(&recordingSleeper{})).Run(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, networks)
	assert.Empty(t, networks)
}

func TestScanPoller_TimesOutAfterExactBound(t *testing.T) {
	t.Parallel()

	for _, bound := range []int{1, 3, DefaultScanMaxAttempts} {
		dev := &fakeDevice{}
		sleeper := &recordingSleeper{}
		opts := testOptions(sleeper)
		opts.ScanMaxAttempts = bound

		_, err := NewScanPoller(dev, opts).Run(context.Background())

		assert.ErrorIs(t, err, ErrScanTimedOut)
		assert.Equal(t, KindScanTimedOut, KindOf(err))
		assert.Equal(t, bound, dev.count("results"), "bound %d", bound)
		assert.Len(t, sleeper.recorded(), bound-1)
	}
}

func TestScanPoller_InitiationRejected(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{startErr: device.NewRejectedError(http.StatusServiceUnavailable, "", "busy")}

	_, err := NewScanPoller(dev, testOptions(&recordingSleeper{})).Run(context.Background())

	assert.ErrorIs(t, err, ErrScanInitiationFailed)
	assert.Equal(t, 0, dev.count("results"))
}

func TestScanPoller_InitiationTransportFailure(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{startErr: transportErr()}

	_, err := NewScanPoller(dev, testOptions(&recordingSleeper{})).Run(context.Background())

	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 0, dev.count("results"))
}

func TestScanPoller_FailureIsNotRetried(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantKind Kind
	}{
		{"malformed body", protocolErr(), KindProtocol},
		{"unexpected status", device.NewHTTPError(http.StatusNotFound, "missing"), KindProtocol},
		{"server error", device.NewHTTPError(http.StatusInternalServerError, "boom"), KindTransport},
		{"timeout", transportErr(), KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pending := device.Pending[[]device.NetworkRecord]()
			dev := &fakeDevice{scanScript: []scanReply{pending, device.Failed[[]device.NetworkRecord](tt.err), device.Ready([]device.NetworkRecord{home()})}}
			sleeper := &recordingSleeper{}

			_, err := NewScanPoller(dev, testOptions(sleeper)).Run(context.Background())

			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))
			assert.Equal(t, 2, dev.count("results"))
			assert.Len(t, sleeper.recorded(), 1)
		})
	}
}

func TestScanPoller_CancelDuringWait(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{}
	ctx, cancel := context.WithCancel(context.Background())
	sleeper := &recordingSleeper{block: func(ctx context.Context, n int) error {
		if n == 2 {
			cancel()
		}
		return nil
	}}

	_, err := NewScanPoller(dev, testOptions(sleeper)).Run(ctx)

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, KindCancelled, KindOf(err))
	assert.Equal(t, 2, dev.count("results"), "no request may follow the cancelled wait")
}

func TestScanPoller_DiscardsLateReply(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	dev := &fakeDevice{
		scanScript:        []scanReply{device.Ready([]device.NetworkRecord{home()})},
		beforeScanResults: func(int) { cancel() },
	}

	networks, err := NewScanPoller(dev, testOptions(&recordingSleeper{})).Run(ctx)

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, networks)
}

func TestScanPoller_AlreadyCancelled(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScanPoller(dev, testOptions(&recordingSleeper{})).Run(ctx)

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, dev.callLog())
}
