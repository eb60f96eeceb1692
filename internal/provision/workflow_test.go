package provision

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/muurk/wifiprov/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorkflow(dev Device, sleeper *recordingSleeper) (*Workflow, *recorder) {
	rec := &recorder{}
	return New(dev, testOptions(sleeper), rec), rec
}

func TestWorkflow_EndToEnd(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{
		scanScript: []scanReply{device.Ready([]device.NetworkRecord{home()})},
		statusScript: []statusReply{
			device.Ready(disconnected()),
			device.Ready(disconnected()),
			device.Ready(connected("192.168.4.20")),
		},
	}
	sleeper := &recordingSleeper{}
	wf, rec := newTestWorkflow(dev, sleeper)
	ctx := context.Background()

	networks, err := wf.StartScan(ctx)
	require.NoError(t, err)
	require.Len(t, networks, 1)
	assert.Equal(t, StateAwaitingSelection, wf.State())

	status, err := wf.SelectAndConnect(ctx, device.Credentials{SSID: networks[0].SSID, Password: "secret"})
	require.NoError(t, err)

	assert.Equal(t, StateConnected, wf.State())
	assert.Equal(t, "192.168.4.20", status.IP)
	assert.Equal(t, 3, dev.count("status"))
	assert.Equal(t, []time.Duration{2 * time.Second, 5 * time.Second}, sleeper.recorded())
	assert.Equal(t, []State{
		StateScanning, StateAwaitingSelection,
		StateConnecting, StateVerifying, StateConnected,
	}, rec.states())

	last := rec.last()
	assert.Equal(t, StateConnected, last.State)
	assert.Equal(t, StateVerifying, last.Previous)
	require.NotNil(t, last.Status)
	assert.Equal(t, "192.168.4.20", last.Status.IP)
	assert.Equal(t, "test", last.Session)
}

func TestWorkflow_ScanEventCarriesNetworks(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{scanScript: []scanReply{device.Ready([]device.NetworkRecord{home()})}}
	wf, rec := newTestWorkflow(dev, &recordingSleeper{})

	_, err := wf.StartScan(context.Background())
	require.NoError(t, err)

	ev := rec.last()
	assert.Equal(t, StateAwaitingSelection, ev.State)
	assert.Equal(t, []device.NetworkRecord{home()}, ev.Networks)
	assert.Equal(t, []device.NetworkRecord{home()}, wf.Networks())
}

func TestWorkflow_NoNetworks(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{scanScript: []scanReply{device.Ready([]device.NetworkRecord{})}}
	wf, rec := newTestWorkflow(dev, &recordingSleeper{})

	networks, err := wf.StartScan(context.Background())

	require.NoError(t, err)
	assert.Empty(t, networks)
	assert.Equal(t, StateNoNetworks, wf.State())
	assert.Equal(t, KindNone, rec.last().Kind)
}

func TestWorkflow_ScanFailedCarriesKind(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{}
	opts := testOptions(&recordingSleeper{})
	opts.ScanMaxAttempts = 2
	rec := &recorder{}
	wf := New(dev, opts, rec)

	_, err := wf.StartScan(context.Background())

	assert.ErrorIs(t, err, ErrScanTimedOut)
	assert.Equal(t, StateScanFailed, wf.State())
	assert.Equal(t, KindScanTimedOut, rec.last().Kind)
	assert.ErrorIs(t, rec.last().Err, ErrScanTimedOut)

	// Retry from the failed terminal
	dev.setScanScript(device.Ready([]device.NetworkRecord{home()}))
	_, err = wf.RetryScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingSelection, wf.State())
	assert.Equal(t, KindNone, wf.Snapshot().Kind)
}

func TestWorkflow_EmptySSIDMakesNoCalls(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{scanScript: []scanReply{device.Ready([]device.NetworkRecord{home()})}}
	wf, rec := newTestWorkflow(dev, &recordingSleeper{})

	_, err := wf.StartScan(context.Background())
	require.NoError(t, err)
	before := len(dev.callLog())
	transitions := len(rec.states())

	_, err = wf.SelectAndConnect(context.Background(), device.Credentials{SSID: "", Password: "x"})

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Len(t, dev.callLog(), before, "no network calls")
	assert.Len(t, rec.states(), transitions, "no transitions")
	assert.Equal(t, StateAwaitingSelection, wf.State())
}

func TestWorkflow_EmptySSIDFromIdle(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{}
	wf, _ := newTestWorkflow(dev, &recordingSleeper{})

	_, err := wf.SelectAndConnect(context.Background(), device.Credentials{Password: "x"})

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, dev.callLog())
}

func TestWorkflow_SelectRequiresAwaitingSelection(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{}
	wf, _ := newTestWorkflow(dev, &recordingSleeper{})

	_, err := wf.SelectAndConnect(context.Background(), homeCreds)

	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, dev.callLog())
}

func TestWorkflow_HiddenNetwork(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{
		scanScript:   []scanReply{device.Ready([]device.NetworkRecord{home()})},
		statusScript: []statusReply{device.Ready(connected("10.0.0.9"))},
	}
	wf, _ := newTestWorkflow(dev, &recordingSleeper{})

	_, err := wf.StartScan(context.Background())
	require.NoError(t, err)

	_, err = wf.SelectAndConnect(context.Background(), device.Credentials{SSID: "Lab", Password: "pw", Hidden: true})
	require.NoError(t, err)
	assert.Equal(t, "Lab", dev.submitted[0].SSID)
}

func TestWorkflow_HiddenNetworkAfterEmptyScan(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{
		scanScript:   []scanReply{device.Ready([]device.NetworkRecord{})},
		statusScript: []statusReply{device.Ready(connected("10.0.0.9"))},
	}
	wf, rec := newTestWorkflow(dev, &recordingSleeper{})

	networks, err := wf.StartScan(context.Background())
	require.NoError(t, err)
	require.Empty(t, networks)
	require.Equal(t, StateNoNetworks, wf.State())

	// A visible network cannot be chosen from an empty list
	_, err = wf.SelectAndConnect(context.Background(), device.Credentials{SSID: "Lab", Password: "pw"})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 0, dev.count("connect"))
	assert.Equal(t, StateNoNetworks, wf.State())

	status, err := wf.SelectAndConnect(context.Background(), device.Credentials{SSID: "Lab", Password: "pw", Hidden: true})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", status.IP)
	require.Len(t, dev.submitted, 1)
	assert.Equal(t, "Lab", dev.submitted[0].SSID)
	assert.True(t, dev.submitted[0].Hidden)
	assert.Equal(t, []State{
		StateScanning, StateNoNetworks,
		StateConnecting, StateVerifying, StateConnected,
	}, rec.states())
}

func TestWorkflow_NegativeOptionsFallBackToDefaults(t *testing.T) {
	t.Parallel()
	failed := device.Failed[device.ConnectionStatus](transportErr())
	dev := &fakeDevice{
		scanScript: []scanReply{
			device.Pending[[]device.NetworkRecord](),
			device.Ready([]device.NetworkRecord{home()}),
		},
		statusScript: []statusReply{failed, failed, device.Ready(connected("10.0.0.3"))},
	}
	sleeper := &recordingSleeper{}
	opts := testOptions(sleeper)
	opts.ScanInterval = -time.Second
	opts.ScanMaxAttempts = -1
	opts.FailureThreshold = -1
	opts.Backoff.Cap = -time.Second
	require.Error(t, opts.Validate())
	wf := New(dev, opts)

	// A negative attempt bound would time out after the first pending reply
	_, err := wf.StartScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dev.count("results"))

	// A negative threshold would give up on the first transport failure
	status, err := wf.SelectAndConnect(context.Background(), homeCreds)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.3", status.IP)
	assert.Equal(t, 3, dev.count("status"))

	assert.Equal(t, []time.Duration{
		DefaultScanInterval,
		2 * time.Second, 5 * time.Second,
	}, sleeper.recorded())
}

func TestWorkflow_SecondScanSupersedesFirst(t *testing.T) {
	t.Parallel()
	first := []device.NetworkRecord{{SSID: "Old", RSSI: -50}}
	second := []device.NetworkRecord{{SSID: "New", RSSI: -45, Secure: true}}

	dev := &fakeDevice{}
	waiting := make(chan struct{})
	var once sync.Once
	sleeper := &recordingSleeper{block: func(ctx context.Context, n int) error {
		if n == 1 {
			once.Do(func() { close(waiting) })
			<-ctx.Done()
		}
		return nil
	}}
	wf, rec := newTestWorkflow(dev, sleeper)

	type result struct {
		networks []device.NetworkRecord
		err      error
	}
	done := make(chan result, 1)
	go func() {
		n, err := wf.StartScan(context.Background())
		done <- result{n, err}
	}()

	<-waiting
	// The first scan is parked in its wait. A stale answer is queued for it
	// but it must never be applied.
	dev.setScanScript(device.Ready(second))

	networks, err := wf.StartScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second, networks)

	r := <-done
	assert.ErrorIs(t, r.err, ErrCancelled)
	assert.Nil(t, r.networks)

	assert.Equal(t, StateAwaitingSelection, wf.State())
	assert.Equal(t, second, wf.Networks())
	assert.Equal(t, 1, rec.count(StateAwaitingSelection))
	for _, ev := range rec.events {
		assert.NotEqual(t, first, ev.Networks)
	}
}

func TestWorkflow_CancelReturnsToIdle(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{}
	parked := make(chan struct{})
	var once sync.Once
	sleeper := &recordingSleeper{block: func(ctx context.Context, n int) error {
		once.Do(func() { close(parked) })
		<-ctx.Done()
		return nil
	}}
	wf, rec := newTestWorkflow(dev, sleeper)

	done := make(chan error, 1)
	go func() {
		_, err := wf.StartScan(context.Background())
		done <- err
	}()

	<-parked
	require.NoError(t, wf.Cancel())
	assert.Equal(t, StateIdle, wf.State())

	err := <-done
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 1, dev.count("results"), "no calls after cancel")
	assert.Equal(t, []State{StateScanning, StateIdle}, rec.states())
	assert.Equal(t, KindNone, rec.last().Kind, "cancellation is silent")
	assert.Nil(t, rec.last().Err)
}

func TestWorkflow_CancelIdleIsNoop(t *testing.T) {
	t.Parallel()
	wf, rec := newTestWorkflow(&fakeDevice{}, &recordingSleeper{})

	require.NoError(t, wf.Cancel())
	require.NoError(t, wf.Cancel())
	assert.Empty(t, rec.states())
}

func TestWorkflow_StaleConnectedIsDropped(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{})
	release := make(chan struct{})
	dev := &fakeDevice{
		scanScript:   []scanReply{device.Ready([]device.NetworkRecord{home()})},
		statusScript: []statusReply{device.Ready(connected("10.0.0.7"))},
		beforeStatus: func(int) {
			close(entered)
			<-release
		},
	}
	wf, rec := newTestWorkflow(dev, &recordingSleeper{})

	_, err := wf.StartScan(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := wf.SelectAndConnect(context.Background(), homeCreds)
		done <- err
	}()

	<-entered
	require.NoError(t, wf.Cancel())
	close(release)

	assert.ErrorIs(t, <-done, ErrCancelled)
	assert.Equal(t, StateIdle, wf.State())
	assert.Equal(t, 0, rec.count(StateConnected))
}

func TestWorkflow_CancelRefusedWhenConnected(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{
		scanScript:   []scanReply{device.Ready([]device.NetworkRecord{home()})},
		statusScript: []statusReply{device.Ready(connected("10.0.0.7"))},
	}
	wf, _ := newTestWorkflow(dev, &recordingSleeper{})

	_, err := wf.StartScan(context.Background())
	require.NoError(t, err)
	_, err = wf.SelectAndConnect(context.Background(), homeCreds)
	require.NoError(t, err)

	assert.ErrorIs(t, wf.Cancel(), ErrInvalidState)
	assert.Equal(t, StateConnected, wf.State())

	require.NoError(t, wf.Acknowledge())
	assert.Equal(t, StateIdle, wf.State())
	assert.ErrorIs(t, wf.Acknowledge(), ErrInvalidState)
}

func TestWorkflow_UnreachableThenResume(t *testing.T) {
	t.Parallel()
	failed := device.Failed[device.ConnectionStatus](transportErr())
	dev := &fakeDevice{
		scanScript:   []scanReply{device.Ready([]device.NetworkRecord{home()})},
		statusScript: []statusReply{failed, failed, failed, device.Ready(connected("10.0.0.7"))},
	}
	wf, rec := newTestWorkflow(dev, &recordingSleeper{})
	ctx := context.Background()

	_, err := wf.StartScan(ctx)
	require.NoError(t, err)

	_, err = wf.SelectAndConnect(ctx, homeCreds)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, StateUnreachable, wf.State())
	assert.Equal(t, KindUnreachable, rec.last().Kind)

	status, err := wf.ResumeVerification(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", status.IP)
	assert.Equal(t, StateConnected, wf.State())
	assert.Equal(t, 1, dev.count("connect"), "resume does not resubmit")
	assert.Equal(t, []State{
		StateScanning, StateAwaitingSelection, StateConnecting, StateVerifying,
		StateUnreachable, StateVerifying, StateConnected,
	}, rec.states())
}

func TestWorkflow_RejectedThenRetryConnect(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{
		scanScript:   []scanReply{device.Ready([]device.NetworkRecord{home()})},
		submitErr:    device.NewRejectedError(http.StatusBadRequest, "AUTH_FAILED", "wrong password"),
		statusScript: []statusReply{device.Ready(connected("10.0.0.7"))},
	}
	wf, rec := newTestWorkflow(dev, &recordingSleeper{})
	ctx := context.Background()

	_, err := wf.StartScan(ctx)
	require.NoError(t, err)

	_, err = wf.SelectAndConnect(ctx, device.Credentials{SSID: "Home", Password: "wrong"})
	assert.ErrorIs(t, err, ErrSubmissionRejected)
	assert.Equal(t, StateConnectFailed, wf.State())
	assert.Equal(t, KindSubmissionRejected, rec.last().Kind)
	assert.Equal(t, 0, dev.count("status"))

	// Retry is only valid from a failed terminal
	_, err = wf.RetryScan(ctx)
	require.NoError(t, err)
	_, err = wf.RetryConnect(ctx, homeCreds)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = wf.SelectAndConnect(ctx, device.Credentials{SSID: "Home", Password: "wrong"})
	assert.ErrorIs(t, err, ErrSubmissionRejected)

	dev.mu.Lock()
	dev.submitErr = nil
	dev.mu.Unlock()

	status, err := wf.RetryConnect(ctx, homeCreds)
	require.NoError(t, err)
	assert.True(t, status.Joined())
	assert.Equal(t, StateConnected, wf.State())
}

func TestWorkflow_VerifyingProgressEvents(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{
		scanScript: []scanReply{device.Ready([]device.NetworkRecord{home()})},
		statusScript: []statusReply{
			device.Ready(disconnected()),
			device.Failed[device.ConnectionStatus](transportErr()),
			device.Ready(connected("10.0.0.7")),
		},
	}
	wf, rec := newTestWorkflow(dev, &recordingSleeper{})

	_, err := wf.StartScan(context.Background())
	require.NoError(t, err)
	_, err = wf.SelectAndConnect(context.Background(), homeCreds)
	require.NoError(t, err)

	var progress []Event
	for _, ev := range rec.events {
		if !ev.Transition() {
			progress = append(progress, ev)
		}
	}
	require.Len(t, progress, 3)
	assert.Equal(t, 1, progress[0].Attempt)
	assert.Equal(t, 2*time.Second, progress[0].NextDelay)
	assert.Equal(t, 2, progress[1].Attempt)
	assert.Equal(t, KindTransport, progress[1].Kind)
	assert.Equal(t, 5*time.Second, progress[1].NextDelay)
	assert.Equal(t, 3, progress[2].Attempt)
	require.NotNil(t, progress[2].Status)
	assert.True(t, progress[2].Status.Joined())
	assert.Equal(t, StateConnected, rec.last().State)
}

func TestWorkflow_ParentContextCancelled(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{}
	ctx, cancel := context.WithCancel(context.Background())
	sleeper := &recordingSleeper{block: func(context.Context, int) error {
		cancel()
		return nil
	}}
	wf, rec := newTestWorkflow(dev, sleeper)

	_, err := wf.StartScan(ctx)

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StateIdle, wf.State())
	assert.Equal(t, []State{StateScanning, StateIdle}, rec.states())
}

func TestWorkflow_Close(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{}
	parked := make(chan struct{})
	var once sync.Once
	sleeper := &recordingSleeper{block: func(ctx context.Context, n int) error {
		once.Do(func() { close(parked) })
		<-ctx.Done()
		return nil
	}}
	wf, rec := newTestWorkflow(dev, sleeper)

	done := make(chan error, 1)
	go func() {
		_, err := wf.StartScan(context.Background())
		done <- err
	}()
	<-parked

	require.NoError(t, wf.Close())
	require.NoError(t, wf.Close())
	assert.ErrorIs(t, <-done, ErrCancelled)

	_, err := wf.StartScan(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, wf.Cancel(), ErrClosed)
	assert.Equal(t, []State{StateScanning}, rec.states(), "nothing is emitted after close")
}

func TestWorkflow_ChanListener(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{scanScript: []scanReply{device.Ready([]device.NetworkRecord{home()})}}
	events := NewChanListener(8)
	wf := New(dev, testOptions(&recordingSleeper{}), events)

	_, err := wf.StartScan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateScanning, (<-events.C).State)
	assert.Equal(t, StateAwaitingSelection, (<-events.C).State)
}

func TestWorkflow_GeneratedSessionID(t *testing.T) {
	t.Parallel()
	a := New(&fakeDevice{}, DefaultOptions())
	b := New(&fakeDevice{}, DefaultOptions())

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}
