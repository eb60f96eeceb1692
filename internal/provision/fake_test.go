package provision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/retry"
)

type scanReply = device.Reply[[]device.NetworkRecord]
type statusReply = device.Reply[device.ConnectionStatus]

// fakeDevice replays scripted replies. The last reply of a script repeats.
type fakeDevice struct {
	mu sync.Mutex

	startErr     error
	scanScript   []scanReply
	submitErr    error
	submitResp   *device.ConnectResponse
	statusScript []statusReply

	// hooks run before a scripted reply is returned, with the 1-based call count
	beforeScanResults func(n int)
	beforeStatus      func(n int)

	calls       []string
	submitted   []device.Credentials
	scanCalls   int
	statusCalls int
}

func (f *fakeDevice) StartScan(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "scan")
	return f.startErr
}

func (f *fakeDevice) ScanResults(ctx context.Context) scanReply {
	f.mu.Lock()
	f.calls = append(f.calls, "results")
	f.scanCalls++
	n := f.scanCalls
	hook := f.beforeScanResults
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.scanScript) == 0 {
		return device.Pending[[]device.NetworkRecord]()
	}
	idx := n - 1
	if idx >= len(f.scanScript) {
		idx = len(f.scanScript) - 1
	}
	return f.scanScript[idx]
}

func (f *fakeDevice) SubmitCredentials(ctx context.Context, creds device.Credentials) (*device.ConnectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "connect")
	f.submitted = append(f.submitted, creds)
	return f.submitResp, f.submitErr
}

func (f *fakeDevice) Status(ctx context.Context) statusReply {
	f.mu.Lock()
	f.calls = append(f.calls, "status")
	f.statusCalls++
	n := f.statusCalls
	hook := f.beforeStatus
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statusScript) == 0 {
		return device.Ready(disconnected())
	}
	idx := n - 1
	if idx >= len(f.statusScript) {
		idx = len(f.statusScript) - 1
	}
	return f.statusScript[idx]
}

func (f *fakeDevice) setScanScript(replies ...scanReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanScript = replies
	f.scanCalls = 0
}

func (f *fakeDevice) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeDevice) count(call string) int {
	n := 0
	for _, c := range f.callLog() {
		if c == call {
			n++
		}
	}
	return n
}

// recordingSleeper records every requested delay and returns at once.
// block, when set, runs instead and may wait on ctx.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
	block  func(ctx context.Context, n int) error
}

func (s *recordingSleeper) Wait(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	n := len(s.delays)
	block := s.block
	s.mu.Unlock()

	if block != nil {
		if err := block(ctx, n); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", retry.ErrCancelled, err)
	}
	return nil
}

func (s *recordingSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// recorder collects events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnStateChange(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// states returns the target state of every transition event.
func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, ev := range r.events {
		if ev.Transition() {
			out = append(out, ev.State)
		}
	}
	return out
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}
	}
	return r.events[len(r.events)-1]
}

func (r *recorder) count(state State) int {
	n := 0
	for _, s := range r.states() {
		if s == state {
			n++
		}
	}
	return n
}

func testOptions(sleeper retry.Sleeper) Options {
	opts := DefaultOptions()
	opts.Sleeper = sleeper
	opts.SessionID = "test"
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	opts.Clock = func() time.Time { return clock }
	return opts
}

func home() device.NetworkRecord {
	return device.NetworkRecord{SSID: "Home", RSSI: -40, Secure: true}
}

func disconnected() device.ConnectionStatus {
	return device.ConnectionStatus{Mode: device.ModeAP, Status: device.LinkDisconnected}
}

func connected(ip string) device.ConnectionStatus {
	return device.ConnectionStatus{Mode: device.ModeSTA, Status: device.LinkConnected, IP: ip, SSID: "Home"}
}

func transportErr() error {
	return &device.DeviceError{Type: device.ErrTypeTimeout, Message: "Request timed out", Retryable: true}
}

func protocolErr() error {
	return device.NewParseError("bad body", fmt.Errorf("unexpected token"))
}
