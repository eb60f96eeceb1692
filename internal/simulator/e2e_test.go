package simulator

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/provision"
	"github.com/muurk/wifiprov/internal/retry"
)

// session runs a real workflow over HTTP against a simulated device. Waits
// advance the simulated clock instead of sleeping.
type session struct {
	sim    *Device
	clock  *manualClock
	wf     *provision.Workflow
	events *provision.ChanListener
	waits  []time.Duration
}

func newSession(t *testing.T, mutate func(*Config)) *session {
	t.Helper()
	s := &session{}
	s.sim, s.clock = newTestDevice(t, mutate)

	srv := httptest.NewServer(s.sim.Handler())
	t.Cleanup(srv.Close)

	client := device.NewClientWithURL(srv.URL)
	client.SetTimeouts(2*time.Second, 2*time.Second)

	opts := provision.DefaultOptions()
	opts.Clock = s.clock.Now
	opts.Sleeper = retry.SleeperFunc(func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.waits = append(s.waits, d)
		s.clock.Advance(d)
		return nil
	})

	s.events = provision.NewChanListener(64)
	s.wf = provision.New(client, opts, s.events)
	t.Cleanup(func() { _ = s.wf.Close() })
	return s
}

// states drains the transitions recorded so far.
func (s *session) states() []provision.State {
	var out []provision.State
	for {
		select {
		case ev := <-s.events.C:
			if ev.Transition() {
				out = append(out, ev.State)
			}
		default:
			return out
		}
	}
}

func TestEndToEnd_ProvisionHome(t *testing.T) {
	s := newSession(t, nil)
	ctx := context.Background()

	networks, err := s.wf.StartScan(ctx)
	require.NoError(t, err)
	require.Len(t, networks, 4)
	assert.Equal(t, provision.StateAwaitingSelection, s.wf.State())
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, s.waits, "two pending polls before the 3s scan completes")

	s.waits = nil
	status, err := s.wf.SelectAndConnect(ctx, device.Credentials{SSID: "Home", Password: "hunter22"})
	require.NoError(t, err)
	assert.True(t, status.Joined())
	assert.Equal(t, DefaultStationIP, status.IP)

	// Two polls land in the reboot window, the third sees the joined link
	assert.Equal(t, []time.Duration{2 * time.Second, 5 * time.Second}, s.waits)
	assert.Equal(t, []provision.State{
		provision.StateScanning,
		provision.StateAwaitingSelection,
		provision.StateConnecting,
		provision.StateVerifying,
		provision.StateConnected,
	}, s.states())

	assert.Equal(t, 1, s.sim.Requests(device.PathConnect), "credentials are submitted once")
}

func TestEndToEnd_TrailingGarbage(t *testing.T) {
	s := newSession(t, func(c *Config) { c.TrailingGarbage = true })

	networks, err := s.wf.StartScan(context.Background())
	require.NoError(t, err)
	assert.Len(t, networks, 4)
}

func TestEndToEnd_NoNetworks(t *testing.T) {
	s := newSession(t, func(c *Config) { c.Networks = []device.NetworkRecord{} })

	networks, err := s.wf.StartScan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, networks)
	assert.Equal(t, provision.StateNoNetworks, s.wf.State())

	s.sim.SetNetworks(DefaultNetworks())
	networks, err = s.wf.RetryScan(context.Background())
	require.NoError(t, err)
	assert.Len(t, networks, 4)
}

func TestEndToEnd_ScanFailsThenRetry(t *testing.T) {
	s := newSession(t, nil)
	s.sim.SetFailScan(true)

	_, err := s.wf.StartScan(context.Background())
	require.ErrorIs(t, err, provision.ErrScanInitiationFailed)
	assert.Equal(t, provision.StateScanFailed, s.wf.State())
	assert.Equal(t, 0, s.sim.Requests(device.PathScanResults), "no result polls after a failed start")

	s.sim.SetFailScan(false)
	_, err = s.wf.RetryScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, provision.StateAwaitingSelection, s.wf.State())
}

func TestEndToEnd_ScanTimesOut(t *testing.T) {
	s := newSession(t, func(c *Config) { c.ScanDuration = time.Hour })

	_, err := s.wf.StartScan(context.Background())
	require.ErrorIs(t, err, provision.ErrScanTimedOut)
	assert.Equal(t, provision.DefaultScanMaxAttempts, s.sim.Requests(device.PathScanResults))
	assert.Equal(t, provision.StateScanFailed, s.wf.State())
}

func TestEndToEnd_RejectedThenRetry(t *testing.T) {
	s := newSession(t, func(c *Config) { c.RejectWrongPassword = true })
	ctx := context.Background()

	_, err := s.wf.StartScan(ctx)
	require.NoError(t, err)

	_, err = s.wf.SelectAndConnect(ctx, device.Credentials{SSID: "Home", Password: "wrong"})
	require.ErrorIs(t, err, provision.ErrSubmissionRejected)
	assert.Equal(t, provision.KindSubmissionRejected, provision.KindOf(err))
	assert.Equal(t, provision.StateConnectFailed, s.wf.State())
	assert.Equal(t, 0, s.sim.Requests(device.PathStatus), "no status polls after a rejection")

	status, err := s.wf.RetryConnect(ctx, device.Credentials{SSID: "Home", Password: "hunter22"})
	require.NoError(t, err)
	assert.True(t, status.Joined())
}

func TestEndToEnd_UnreachableThenResume(t *testing.T) {
	s := newSession(t, func(c *Config) { c.RebootWindow = time.Minute })
	ctx := context.Background()

	_, err := s.wf.StartScan(ctx)
	require.NoError(t, err)

	_, err = s.wf.SelectAndConnect(ctx, device.Credentials{SSID: "Home", Password: "hunter22"})
	require.ErrorIs(t, err, provision.ErrUnreachable)
	assert.Equal(t, provision.StateUnreachable, s.wf.State())
	assert.Equal(t, 3, s.sim.Requests(device.PathStatus))

	s.clock.Advance(time.Minute)
	status, err := s.wf.ResumeVerification(ctx)
	require.NoError(t, err)
	assert.True(t, status.Joined())
	assert.Equal(t, 1, s.sim.Requests(device.PathConnect), "resume does not resubmit")
}

func TestEndToEnd_CancelWhileVerifying(t *testing.T) {
	s := newSession(t, func(c *Config) { c.JoinDelay = time.Hour })
	ctx := context.Background()

	_, err := s.wf.StartScan(ctx)
	require.NoError(t, err)

	// Cancel from the listener side once the third status poll is reported
	go func() {
		for ev := range s.events.C {
			if ev.State == provision.StateVerifying && ev.Attempt >= 3 {
				_ = s.wf.Cancel()
				return
			}
		}
	}()

	_, err = s.wf.SelectAndConnect(ctx, device.Credentials{SSID: "Home", Password: "hunter22"})
	require.ErrorIs(t, err, provision.ErrCancelled)
	assert.Equal(t, provision.StateIdle, s.wf.State())
}
