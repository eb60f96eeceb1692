package protocol

import (
	"encoding/json"
	"errors"

	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/provision"
)

// NewHello builds the greeting sent when a session opens. It carries the
// session's current snapshot so a reconnecting page can redraw.
func NewHello(snapshot provision.Event) *Event {
	ev := NewStateEvent(snapshot)
	ev.Type = EvtHello
	return ev
}

// NewStateEvent converts a workflow event.
func NewStateEvent(pe provision.Event) *Event {
	ev := &Event{
		Type:      EvtState,
		Session:   pe.Session,
		State:     pe.State.String(),
		Previous:  pe.Previous.String(),
		Networks:  pe.Networks,
		Attempt:   pe.Attempt,
		NextDelay: pe.NextDelay.Milliseconds(),
	}
	if pe.Status != nil {
		st := *pe.Status
		ev.Status = &st
	}
	if !pe.At.IsZero() {
		ev.At = pe.At.UnixMilli()
	}
	setError(ev, pe.Err)
	return ev
}

// NewResult answers cmd once its operation returned. A nil err is success.
func NewResult(session string, cmd *Command, err error) *Event {
	ev := &Event{
		Type:    EvtResult,
		Session: session,
		ID:      cmd.ID,
		Command: cmd.Type,
	}
	setError(ev, err)
	return ev
}

// KindBadRequest marks error events for messages that could not be decoded
const KindBadRequest = "bad_request"

// NewError reports a message that could not be handled. Errors that did not
// come from the workflow are reported as KindBadRequest.
func NewError(session, id string, err error) *Event {
	ev := &Event{
		Type:    EvtError,
		Session: session,
		ID:      id,
	}
	setError(ev, err)
	if provision.KindOf(err) == provision.KindProtocol && !errors.Is(err, provision.ErrProtocol) {
		ev.Kind = KindBadRequest
	}
	return ev
}

// Marshal encodes an event as a text message.
func Marshal(ev *Event) ([]byte, error) {
	return json.Marshal(ev)
}

func setError(ev *Event, err error) {
	if err == nil {
		return
	}
	ev.Kind = provision.KindOf(err).String()
	ev.Error = device.GetShortErrorMessage(err)

	var devErr *device.DeviceError
	if errors.As(err, &devErr) {
		ev.ErrorCode = devErr.Code
	}
}
