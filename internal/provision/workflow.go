package provision

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/logging"
	"go.uber.org/zap"
)

var (
	errSuperseded   = fmt.Errorf("%w: superseded by a newer operation", ErrCancelled)
	errUserCancel   = fmt.Errorf("%w: cancelled by user", ErrCancelled)
	errSessionEnded = fmt.Errorf("%w: session closed", ErrCancelled)
)

// Workflow is one provisioning session. It drives ScanPoller and
// ConnectionPoller, owns the single live cancellation token and reports every
// transition to its listeners.
//
// Operations block until their phase ends and may be called from different
// goroutines. Starting a phase cancels the one in flight; results of the
// cancelled phase are dropped.
type Workflow struct {
	dev       Device
	opts      Options
	listeners []Listener

	mu       sync.Mutex
	state    State
	networks []device.NetworkRecord
	status   *device.ConnectionStatus
	lastErr  error
	gen      uint64
	cancel   context.CancelCauseFunc
	closed   bool
}

// New creates a session in StateIdle. Options that fail Validate are
// logged and the offending values fall back to their defaults.
func New(dev Device, opts Options, listeners ...Listener) *Workflow {
	if err := opts.Validate(); err != nil {
		logging.Warn("Invalid provisioning options, using defaults", zap.Error(err))
	}
	opts = opts.withDefaults()
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	return &Workflow{
		dev:       dev,
		opts:      opts,
		listeners: listeners,
		state:     StateIdle,
	}
}

// ID returns the session identifier.
func (w *Workflow) ID() string {
	return w.opts.SessionID
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Networks returns a copy of the last scan result.
func (w *Workflow) Networks() []device.NetworkRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]device.NetworkRecord(nil), w.networks...)
}

// Snapshot returns the current state as an event, for collaborators that
// attach to a session already in progress.
func (w *Workflow) Snapshot() Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	ev := Event{
		Session:  w.opts.SessionID,
		State:    w.state,
		Previous: w.state,
		Networks: append([]device.NetworkRecord(nil), w.networks...),
		Err:      w.lastErr,
		Kind:     KindOf(w.lastErr),
		At:       w.opts.Clock(),
	}
	if w.status != nil {
		s := *w.status
		ev.Status = &s
	}
	return ev
}

// StartScan cancels whatever is running and scans for networks.
// The session ends in AwaitingSelection, NoNetworks or ScanFailed.
func (w *Workflow) StartScan(ctx context.Context) ([]device.NetworkRecord, error) {
	return w.scan(ctx, "start scan", func(State) bool { return true })
}

// RetryScan scans again from a failed or empty result.
func (w *Workflow) RetryScan(ctx context.Context) ([]device.NetworkRecord, error) {
	return w.scan(ctx, "retry scan", func(s State) bool {
		return s == StateNoNetworks || s.Failed()
	})
}

// SelectAndConnect submits creds and verifies the connection. The SSID does
// not have to come from the scan list, which allows hidden networks. Hidden
// credentials are also accepted after a scan that found nothing.
//
// Invalid credentials fail with ErrInvalidInput before any state check or
// device call.
func (w *Workflow) SelectAndConnect(ctx context.Context, creds device.Credentials) (device.ConnectionStatus, error) {
	if err := device.ValidateCredentials(creds); err != nil {
		return device.ConnectionStatus{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	phaseCtx, gen, err := w.begin(ctx, "connect", StateConnecting, func(s State) bool {
		return s == StateAwaitingSelection || (creds.Hidden && s == StateNoNetworks)
	})
	if err != nil {
		return device.ConnectionStatus{}, err
	}
	return w.connect(phaseCtx, gen, &creds)
}

// RetryConnect submits creds again after ConnectFailed or Unreachable.
// Credentials are never cached, so the caller supplies them again.
func (w *Workflow) RetryConnect(ctx context.Context, creds device.Credentials) (device.ConnectionStatus, error) {
	if err := device.ValidateCredentials(creds); err != nil {
		return device.ConnectionStatus{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	phaseCtx, gen, err := w.begin(ctx, "retry connect", StateConnecting, func(s State) bool {
		return s == StateConnectFailed || s == StateUnreachable
	})
	if err != nil {
		return device.ConnectionStatus{}, err
	}
	return w.connect(phaseCtx, gen, &creds)
}

// ResumeVerification polls status again after Unreachable without
// resubmitting. A device that was rebooting usually answers now.
func (w *Workflow) ResumeVerification(ctx context.Context) (device.ConnectionStatus, error) {
	phaseCtx, gen, err := w.begin(ctx, "resume verification", StateVerifying, func(s State) bool {
		return s == StateUnreachable
	})
	if err != nil {
		return device.ConnectionStatus{}, err
	}
	return w.connect(phaseCtx, gen, nil)
}

// Cancel aborts the running phase and returns the session to Idle.
// It is a no-op in Idle and is refused once Connected.
func (w *Workflow) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.state == StateConnected {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidState, w.state)
	}
	w.cancelLocked(errUserCancel)
	w.gen++
	w.networks = nil
	w.status = nil
	w.lastErr = nil
	if w.state != StateIdle {
		w.transitionLocked(Event{State: StateIdle})
	}
	return nil
}

// Acknowledge returns a Connected session to Idle.
func (w *Workflow) Acknowledge() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.state != StateConnected {
		return fmt.Errorf("%w: acknowledge from %s", ErrInvalidState, w.state)
	}
	w.gen++
	w.networks = nil
	w.status = nil
	w.transitionLocked(Event{State: StateIdle})
	return nil
}

// Close cancels any running phase and ends the session. Later operations
// fail with ErrClosed. Close is idempotent.
func (w *Workflow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.cancelLocked(errSessionEnded)
	w.gen++
	w.closed = true
	w.networks = nil
	w.status = nil
	logging.Debug("Workflow closed", zap.String("session", w.opts.SessionID))
	return nil
}

func (w *Workflow) scan(ctx context.Context, op string, allowed func(State) bool) ([]device.NetworkRecord, error) {
	phaseCtx, gen, err := w.begin(ctx, op, StateScanning, allowed)
	if err != nil {
		return nil, err
	}

	poller := NewScanPoller(w.dev, w.opts)
	networks, err := poller.Run(phaseCtx)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.currentLocked(gen) {
		return nil, w.staleLocked(err)
	}
	w.releaseLocked()

	switch {
	case err == nil && len(networks) == 0:
		w.networks = networks
		w.transitionLocked(Event{State: StateNoNetworks, Networks: networks})
	case err == nil:
		w.networks = networks
		w.transitionLocked(Event{State: StateAwaitingSelection, Networks: append([]device.NetworkRecord(nil), networks...)})
	case KindOf(err) == KindCancelled:
		w.transitionLocked(Event{State: StateIdle})
	default:
		w.lastErr = err
		w.transitionLocked(Event{State: StateScanFailed, Kind: KindOf(err), Err: err})
	}

	return networks, err
}

// connect runs submission (when creds is non-nil) and verification.
func (w *Workflow) connect(ctx context.Context, gen uint64, creds *device.Credentials) (device.ConnectionStatus, error) {
	poller := NewConnectionPoller(w.dev, w.opts)
	poller.OnAttempt(func(a StatusAttempt) {
		w.progress(gen, a)
	})

	if creds != nil {
		_, err := poller.Submit(ctx, *creds)
		*creds = device.Credentials{}
		if err != nil {
			return device.ConnectionStatus{}, w.finishConnect(gen, device.ConnectionStatus{}, err)
		}
		if !w.advance(gen, StateVerifying) {
			return device.ConnectionStatus{}, w.stale(cancelled(ctx))
		}
	}

	status, err := poller.Verify(ctx)
	return status, w.finishConnect(gen, status, err)
}

func (w *Workflow) finishConnect(gen uint64, status device.ConnectionStatus, err error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.currentLocked(gen) {
		return w.staleLocked(err)
	}
	w.releaseLocked()

	switch kind := KindOf(err); {
	case err == nil:
		s := status
		w.status = &s
		w.transitionLocked(Event{State: StateConnected, Status: &s})
	case kind == KindCancelled:
		w.transitionLocked(Event{State: StateIdle})
	case kind == KindUnreachable:
		w.lastErr = err
		w.transitionLocked(Event{State: StateUnreachable, Kind: kind, Err: err})
	default:
		w.lastErr = err
		w.transitionLocked(Event{State: StateConnectFailed, Kind: kind, Err: err})
	}
	return err
}

// begin cancels the running phase, checks the precondition and enters next.
func (w *Workflow) begin(parent context.Context, op string, next State, allowed func(State) bool) (context.Context, uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, 0, ErrClosed
	}
	if !allowed(w.state) {
		return nil, 0, fmt.Errorf("%w: %s from %s", ErrInvalidState, op, w.state)
	}

	w.cancelLocked(errSuperseded)
	w.gen++

	ctx, cancel := context.WithCancelCause(parent)
	w.cancel = cancel
	w.lastErr = nil
	w.status = nil
	if next == StateScanning {
		w.networks = nil
	}
	w.transitionLocked(Event{State: next})

	return ctx, w.gen, nil
}

// advance moves a running phase to the next busy state.
func (w *Workflow) advance(gen uint64, next State) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.currentLocked(gen) {
		return false
	}
	w.transitionLocked(Event{State: next})
	return true
}

// progress publishes a status poll of the current phase.
func (w *Workflow) progress(gen uint64, a StatusAttempt) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.currentLocked(gen) || w.state != StateVerifying {
		return
	}
	if a.Status != nil {
		s := *a.Status
		w.status = &s
	}
	ev := Event{
		Session:   w.opts.SessionID,
		State:     w.state,
		Previous:  w.state,
		Status:    a.Status,
		Attempt:   a.Count,
		NextDelay: a.NextDelay,
		At:        w.opts.Clock(),
	}
	if a.Err != nil {
		ev.Kind = KindOf(a.Err)
		ev.Err = a.Err
	}
	w.emitLocked(ev)
}

func (w *Workflow) currentLocked(gen uint64) bool {
	return !w.closed && gen == w.gen
}

// stale returns the error given to the caller of a superseded phase.
func (w *Workflow) stale(err error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.staleLocked(err)
}

func (w *Workflow) staleLocked(err error) error {
	if err != nil && KindOf(err) == KindCancelled {
		return err
	}
	if w.closed {
		return errSessionEnded
	}
	return errSuperseded
}

func (w *Workflow) cancelLocked(cause error) {
	if w.cancel != nil {
		w.cancel(cause)
		w.cancel = nil
	}
}

// releaseLocked frees the token of a phase that finished on its own.
func (w *Workflow) releaseLocked() {
	if w.cancel != nil {
		w.cancel(nil)
		w.cancel = nil
	}
}

func (w *Workflow) transitionLocked(ev Event) {
	ev.Session = w.opts.SessionID
	ev.Previous = w.state
	ev.At = w.opts.Clock()
	w.state = ev.State

	fields := []zap.Field{}
	if ev.Kind != KindNone {
		fields = append(fields, zap.String("kind", ev.Kind.String()))
	}
	if ev.Err != nil && !errors.Is(ev.Err, ErrCancelled) {
		fields = append(fields, zap.Error(ev.Err))
	}
	if ev.Networks != nil {
		fields = append(fields, zap.Int("networks", len(ev.Networks)))
	}
	if ev.Status != nil && ev.Status.IP != "" {
		fields = append(fields, zap.String("ip", ev.Status.IP))
	}
	logging.LogTransition(ev.Session, ev.Previous.String(), ev.State.String(), fields...)

	w.emitLocked(ev)
}

func (w *Workflow) emitLocked(ev Event) {
	for _, l := range w.listeners {
		l.OnStateChange(ev)
	}
}
