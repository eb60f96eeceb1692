package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/logging"
	"go.uber.org/zap"
)

// Phase is the internal position of a ConnectionPoller.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhasePolling
	PhaseConnected
	PhaseRejected
	PhaseUnreachable
	PhaseCancelled
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSubmitting:
		return "submitting"
	case PhasePolling:
		return "polling"
	case PhaseConnected:
		return "connected"
	case PhaseRejected:
		return "rejected"
	case PhaseUnreachable:
		return "unreachable"
	case PhaseCancelled:
		return "cancelled"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// StatusAttempt describes one status poll.
type StatusAttempt struct {
	PollAttempt
	// Status is set when the device answered
	Status *device.ConnectionStatus
	// Err is set when the poll failed
	Err error
	// ConsecutiveFailures counts transport failures since the last answer
	ConsecutiveFailures int
	// NextDelay is the wait before the next poll, zero when polling stops
	NextDelay time.Duration
}

// ConnectionPoller submits credentials once and polls the device until it
// reports a station connection.
type ConnectionPoller struct {
	device  Device
	opts    Options
	phase   Phase
	attempt func(StatusAttempt)
}

// NewConnectionPoller creates a poller. Zero option fields take the defaults.
func NewConnectionPoller(dev Device, opts Options) *ConnectionPoller {
	return &ConnectionPoller{device: dev, opts: opts.withDefaults()}
}

// OnAttempt registers a callback invoked after every status poll that was not
// abandoned by cancellation.
func (p *ConnectionPoller) OnAttempt(fn func(StatusAttempt)) {
	p.attempt = fn
}

// Phase returns where the poller is. It is not synchronised; read it from the
// goroutine running the poller.
func (p *ConnectionPoller) Phase() Phase {
	return p.phase
}

// Run submits creds and verifies the connection.
//
// Errors wrap ErrInvalidInput, ErrSubmissionRejected, ErrTransport,
// ErrProtocol, ErrUnreachable or ErrCancelled. A rejected submission is never
// followed by polling.
func (p *ConnectionPoller) Run(ctx context.Context, creds device.Credentials) (device.ConnectionStatus, error) {
	if _, err := p.Submit(ctx, creds); err != nil {
		return device.ConnectionStatus{}, err
	}
	return p.Verify(ctx)
}

// Submit sends the credentials exactly once.
func (p *ConnectionPoller) Submit(ctx context.Context, creds device.Credentials) (*device.ConnectResponse, error) {
	if err := device.ValidateCredentials(creds); err != nil {
		p.phase = PhaseFailed
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if ctx.Err() != nil {
		p.phase = PhaseCancelled
		return nil, cancelled(ctx)
	}

	p.phase = PhaseSubmitting
	resp, err := p.device.SubmitCredentials(ctx, creds)
	if ctx.Err() != nil {
		p.phase = PhaseCancelled
		return nil, cancelled(ctx)
	}
	if err != nil {
		if device.IsRejectedError(err) {
			p.phase = PhaseRejected
			return resp, fmt.Errorf("%w: %w", ErrSubmissionRejected, err)
		}
		p.phase = PhaseFailed
		return resp, classify(err)
	}

	logging.Debug("Credentials accepted", zap.String("ssid", creds.SSID))
	p.phase = PhasePolling
	return resp, nil
}

// Verify polls connection status until the device joins as a station.
//
// The wait after attempt n is Backoff.Delay(n). Transport failures count
// toward FailureThreshold and any answered poll resets the count. There is no
// other attempt cap.
func (p *ConnectionPoller) Verify(ctx context.Context) (device.ConnectionStatus, error) {
	p.phase = PhasePolling

	attempt := PollAttempt{StartedAt: p.opts.Clock()}
	failures := 0

	for {
		if ctx.Err() != nil {
			p.phase = PhaseCancelled
			return device.ConnectionStatus{}, cancelled(ctx)
		}

		attempt.Count++
		started := p.opts.Clock()
		reply := p.device.Status(ctx)
		if ctx.Err() != nil {
			p.phase = PhaseCancelled
			return device.ConnectionStatus{}, cancelled(ctx)
		}
		p.opts.Observer.ObservePoll(PollerStatus, reply.Outcome, p.opts.Clock().Sub(started))

		report := StatusAttempt{PollAttempt: attempt}

		switch reply.Outcome {
		case device.OutcomeReady:
			failures = 0
			status := reply.Data
			report.Status = &status
			if status.Joined() {
				p.phase = PhaseConnected
				p.report(report)
				logging.LogPollAttempt(string(PollerStatus), attempt.Count, "connected", 0)
				return status, nil
			}
		case device.OutcomePending:
			failures = 0
		case device.OutcomeFailed:
			classified := classify(reply.Err)
			report.Err = classified
			if !errors.Is(classified, ErrTransport) {
				p.phase = PhaseFailed
				if errors.Is(classified, ErrCancelled) {
					p.phase = PhaseCancelled
				}
				p.report(report)
				return device.ConnectionStatus{}, classified
			}

			failures++
			report.ConsecutiveFailures = failures
			logging.Warn("Status poll failed",
				zap.Int("attempt", attempt.Count),
				zap.Int("consecutive_failures", failures),
				zap.Error(reply.Err),
			)
			if failures >= p.opts.FailureThreshold {
				p.phase = PhaseUnreachable
				p.report(report)
				return device.ConnectionStatus{}, fmt.Errorf("%w: %d consecutive transport failures over %v: %w",
					ErrUnreachable, failures, attempt.Elapsed(p.opts.Clock()), reply.Err)
			}
		}

		delay := p.opts.Backoff.Delay(attempt.Count)
		report.NextDelay = delay
		p.report(report)

		logging.LogPollAttempt(string(PollerStatus), attempt.Count, reply.Outcome.String(), delay)
		p.opts.Observer.ObserveBackoff(PollerStatus, delay)
		if err := p.opts.Sleeper.Wait(ctx, delay); err != nil {
			p.phase = PhaseCancelled
			return device.ConnectionStatus{}, cancelled(ctx)
		}
	}
}

func (p *ConnectionPoller) report(a StatusAttempt) {
	if p.attempt != nil {
		p.attempt(a)
	}
}
