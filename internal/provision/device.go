package provision

import (
	"context"
	"time"

	"github.com/muurk/wifiprov/internal/device"
)

// Device is the request/response boundary the pollers drive.
// *device.Client satisfies it.
type Device interface {
	StartScan(ctx context.Context) error
	ScanResults(ctx context.Context) device.Reply[[]device.NetworkRecord]
	SubmitCredentials(ctx context.Context, creds device.Credentials) (*device.ConnectResponse, error)
	Status(ctx context.Context) device.Reply[device.ConnectionStatus]
}

var _ Device = (*device.Client)(nil)

// PollAttempt is the bookkeeping of one poll loop.
type PollAttempt struct {
	Count     int
	StartedAt time.Time
}

// Elapsed returns the time since the loop started.
func (a PollAttempt) Elapsed(now time.Time) time.Duration {
	return now.Sub(a.StartedAt)
}

// Poller names a poll loop for observers and logs.
type Poller string

const (
	PollerScan   Poller = "scan"
	PollerStatus Poller = "status"
)

// Observer receives low level poll activity. Metrics implement it.
type Observer interface {
	ObservePoll(poller Poller, outcome device.Outcome, elapsed time.Duration)
	ObserveBackoff(poller Poller, delay time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObservePoll(Poller, device.Outcome, time.Duration) {}
func (nopObserver) ObserveBackoff(Poller, time.Duration)             {}
