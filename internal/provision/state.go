package provision

import (
	"fmt"
	"time"

	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/logging"
	"go.uber.org/zap"
)

// State is the position of a provisioning session.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateNoNetworks
	StateAwaitingSelection
	StateConnecting
	StateVerifying
	StateConnected
	StateUnreachable
	StateScanFailed
	StateConnectFailed
)

var stateNames = [...]string{
	StateIdle:              "idle",
	StateScanning:          "scanning",
	StateNoNetworks:        "no_networks",
	StateAwaitingSelection: "awaiting_selection",
	StateConnecting:        "connecting",
	StateVerifying:         "verifying",
	StateConnected:         "connected",
	StateUnreachable:       "unreachable",
	StateScanFailed:        "scan_failed",
	StateConnectFailed:     "connect_failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState is the inverse of String.
func ParseState(name string) (State, bool) {
	for i, n := range stateNames {
		if n == name {
			return State(i), true
		}
	}
	return StateIdle, false
}

// Busy reports whether a phase is running.
func (s State) Busy() bool {
	return s == StateScanning || s == StateConnecting || s == StateVerifying
}

// Failed reports whether s is a retryable failure terminal.
func (s State) Failed() bool {
	return s == StateUnreachable || s == StateScanFailed || s == StateConnectFailed
}

// Event is delivered to listeners on every transition and, while verifying,
// after every status poll (State == Previous).
type Event struct {
	Session  string
	State    State
	Previous State
	// Networks is set on AwaitingSelection and NoNetworks
	Networks []device.NetworkRecord
	// Status is the latest device status while verifying and on Connected
	Status *device.ConnectionStatus
	// Kind and Err describe failures; both are zero otherwise
	Kind Kind
	Err  error
	// Attempt is the poll count for progress events
	Attempt int
	// NextDelay is the wait before the next status poll
	NextDelay time.Duration
	At        time.Time
}

// Transition reports whether the event changes state.
func (e Event) Transition() bool {
	return e.State != e.Previous
}

// Listener is the UI collaborator. OnStateChange is called with the workflow
// lock held: it must return quickly and must not call back into the workflow.
type Listener interface {
	OnStateChange(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

// OnStateChange calls f(ev).
func (f ListenerFunc) OnStateChange(ev Event) {
	f(ev)
}

// ChanListener forwards events to a buffered channel without blocking.
// Progress events are dropped when the buffer is full; transitions are too,
// but are logged, so size the buffer for the consumer.
type ChanListener struct {
	C chan Event
}

// NewChanListener creates a listener with the given buffer size.
func NewChanListener(size int) *ChanListener {
	if size < 1 {
		size = 1
	}
	return &ChanListener{C: make(chan Event, size)}
}

// OnStateChange implements Listener.
func (l *ChanListener) OnStateChange(ev Event) {
	select {
	case l.C <- ev:
	default:
		if ev.Transition() {
			logging.Warn("Dropped workflow transition",
				zap.String("session", ev.Session),
				zap.String("state", ev.State.String()),
			)
		}
	}
}
