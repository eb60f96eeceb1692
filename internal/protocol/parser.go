package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Parse errors
var (
	ErrEmptyMessage    = errors.New("empty message")
	ErrMessageTooLarge = errors.New("message too large")
	ErrUnknownCommand  = errors.New("unknown command")
)

// ParseCommand decodes one text message from the browser.
// Unknown fields are ignored so newer pages keep working.
func ParseCommand(data []byte) (*Command, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyMessage
	}
	if len(data) > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(data), MaxMessageSize)
	}

	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("failed to decode command: %w", err)
	}
	if !knownCommands[cmd.Type] {
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, cmd.Type)
	}
	if !cmd.Type.NeedsCredentials() {
		cmd.SSID, cmd.Password, cmd.Hidden = "", "", false
	}
	return &cmd, nil
}

// ParseEvent decodes a server message. The bridge tests and Go clients use it.
func ParseEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	switch ev.Type {
	case EvtHello, EvtState, EvtResult, EvtError:
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
	return &ev, nil
}
