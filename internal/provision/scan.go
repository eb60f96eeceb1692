package provision

import (
	"context"
	"fmt"

	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/logging"
)

// ScanPoller starts a scan on the device and polls until results are ready.
type ScanPoller struct {
	device  Device
	opts    Options
	attempt func(PollAttempt, device.Outcome)
}

// NewScanPoller creates a poller. Zero option fields take the defaults.
func NewScanPoller(dev Device, opts Options) *ScanPoller {
	return &ScanPoller{device: dev, opts: opts.withDefaults()}
}

// OnAttempt registers a callback invoked after every results request that was
// not abandoned by cancellation.
func (p *ScanPoller) OnAttempt(fn func(PollAttempt, device.Outcome)) {
	p.attempt = fn
}

// Run starts a scan and returns the discovered networks in scan order.
// An empty, non-nil slice means the scan finished and found nothing.
//
// Errors wrap ErrScanInitiationFailed, ErrScanTimedOut, ErrTransport,
// ErrProtocol or ErrCancelled. Cancellation is honoured at every request and
// wait; a reply that arrives after ctx is done is discarded.
func (p *ScanPoller) Run(ctx context.Context) ([]device.NetworkRecord, error) {
	if ctx.Err() != nil {
		return nil, cancelled(ctx)
	}

	if err := p.device.StartScan(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		if device.IsRejectedError(err) || !device.IsRetryable(err) {
			return nil, fmt.Errorf("%w: %w", ErrScanInitiationFailed, err)
		}
		return nil, classify(err)
	}

	attempt := PollAttempt{StartedAt: p.opts.Clock()}
	for {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}

		attempt.Count++
		started := p.opts.Clock()
		reply := p.device.ScanResults(ctx)
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}

		p.opts.Observer.ObservePoll(PollerScan, reply.Outcome, p.opts.Clock().Sub(started))
		if p.attempt != nil {
			p.attempt(attempt, reply.Outcome)
		}

		switch reply.Outcome {
		case device.OutcomeReady:
			networks := reply.Data
			if networks == nil {
				networks = []device.NetworkRecord{}
			}
			logging.LogPollAttempt(string(PollerScan), attempt.Count, reply.Outcome.String(), 0)
			return networks, nil
		case device.OutcomeFailed:
			logging.LogPollAttempt(string(PollerScan), attempt.Count, reply.Outcome.String(), 0)
			return nil, classify(reply.Err)
		}

		if attempt.Count >= p.opts.ScanMaxAttempts {
			logging.LogPollAttempt(string(PollerScan), attempt.Count, "exhausted", 0)
			return nil, fmt.Errorf("%w: no results after %d requests in %v",
				ErrScanTimedOut, attempt.Count, attempt.Elapsed(p.opts.Clock()))
		}

		logging.LogPollAttempt(string(PollerScan), attempt.Count, reply.Outcome.String(), p.opts.ScanInterval)
		p.opts.Observer.ObserveBackoff(PollerScan, p.opts.ScanInterval)
		if err := p.opts.Sleeper.Wait(ctx, p.opts.ScanInterval); err != nil {
			return nil, cancelled(ctx)
		}
	}
}
