package protocol

import (
	"fmt"

	"github.com/muurk/wifiprov/internal/device"
)

// MaxMessageSize bounds an inbound command
const MaxMessageSize = 4 << 10

// CommandType names an operation requested by the browser
type CommandType string

// Commands map one-to-one onto workflow operations
const (
	CmdScan         CommandType = "scan"
	CmdRetryScan    CommandType = "retry_scan"
	CmdConnect      CommandType = "connect"
	CmdRetryConnect CommandType = "retry_connect"
	CmdResume       CommandType = "resume"
	CmdCancel       CommandType = "cancel"
	CmdAck          CommandType = "ack"
	CmdSnapshot     CommandType = "snapshot"
)

var knownCommands = map[CommandType]bool{
	CmdScan:         true,
	CmdRetryScan:    true,
	CmdConnect:      true,
	CmdRetryConnect: true,
	CmdResume:       true,
	CmdCancel:       true,
	CmdAck:          true,
	CmdSnapshot:     true,
}

// NeedsCredentials reports whether the command carries an SSID and password
func (t CommandType) NeedsCredentials() bool {
	return t == CmdConnect || t == CmdRetryConnect
}

// Blocking reports whether the command runs a workflow phase
func (t CommandType) Blocking() bool {
	switch t {
	case CmdScan, CmdRetryScan, CmdConnect, CmdRetryConnect, CmdResume:
		return true
	}
	return false
}

// Command is a request from the browser page
type Command struct {
	Type     CommandType `json:"type"`
	ID       string      `json:"id,omitempty"` // Echoed in replies
	SSID     string      `json:"ssid,omitempty"`
	Password string      `json:"password,omitempty"`
	Hidden   bool        `json:"hidden,omitempty"`
}

// Credentials extracts the credentials of a connect command
func (c *Command) Credentials() device.Credentials {
	return device.Credentials{SSID: c.SSID, Password: c.Password, Hidden: c.Hidden}
}

// String omits the password so commands can be logged
func (c *Command) String() string {
	if c.Type.NeedsCredentials() {
		return fmt.Sprintf("Command{type=%s, id=%s, creds=%s}", c.Type, c.ID, c.Credentials())
	}
	return fmt.Sprintf("Command{type=%s, id=%s}", c.Type, c.ID)
}

// EventType names a message pushed to the browser
type EventType string

const (
	// EvtHello is sent once when a session opens
	EvtHello EventType = "hello"
	// EvtState carries a workflow event
	EvtState EventType = "state"
	// EvtResult answers a command once it finished
	EvtResult EventType = "result"
	// EvtError reports a command that could not be parsed or was refused
	EvtError EventType = "error"
)

// Event is a message to the browser page. Fields are structured data only;
// the page owns the wording.
type Event struct {
	Type      EventType                `json:"type"`
	Session   string                   `json:"session,omitempty"`
	ID        string                   `json:"id,omitempty"` // Command ID for result and error events
	Command   CommandType              `json:"command,omitempty"`
	State     string                   `json:"state,omitempty"`
	Previous  string                   `json:"previous,omitempty"`
	Networks  []device.NetworkRecord   `json:"networks,omitempty"`
	Status    *device.ConnectionStatus `json:"status,omitempty"`
	Kind      string                   `json:"kind,omitempty"`
	ErrorCode string                   `json:"error_code,omitempty"` // Device supplied code on rejections
	Error     string                   `json:"error,omitempty"`
	Attempt   int                      `json:"attempt,omitempty"`
	NextDelay int64                    `json:"next_delay_ms,omitempty"`
	At        int64                    `json:"at,omitempty"` // Unix milliseconds
}

// String renders a short description for logs
func (e *Event) String() string {
	switch e.Type {
	case EvtState:
		if e.Kind != "" {
			return fmt.Sprintf("Event{state %s→%s, kind=%s}", e.Previous, e.State, e.Kind)
		}
		return fmt.Sprintf("Event{state %s→%s, attempt=%d}", e.Previous, e.State, e.Attempt)
	case EvtResult, EvtError:
		return fmt.Sprintf("Event{%s %s id=%s, kind=%s}", e.Type, e.Command, e.ID, e.Kind)
	default:
		return fmt.Sprintf("Event{%s session=%s state=%s}", e.Type, e.Session, e.State)
	}
}
