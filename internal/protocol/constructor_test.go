package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/provision"
)

func TestNewStateEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	status := &device.ConnectionStatus{Mode: device.ModeSTA, Status: device.LinkConnecting}

	ev := NewStateEvent(provision.Event{
		Session:   "abc",
		State:     provision.StateVerifying,
		Previous:  provision.StateVerifying,
		Status:    status,
		Attempt:   2,
		NextDelay: 5 * time.Second,
		At:        at,
	})

	if ev.Type != EvtState || ev.Session != "abc" {
		t.Errorf("header = %s/%s", ev.Type, ev.Session)
	}
	if ev.State != "verifying" || ev.Previous != "verifying" {
		t.Errorf("states = %s→%s", ev.Previous, ev.State)
	}
	if ev.Attempt != 2 || ev.NextDelay != 5000 {
		t.Errorf("attempt = %d, next = %d", ev.Attempt, ev.NextDelay)
	}
	if ev.At != at.UnixMilli() {
		t.Errorf("At = %d, want %d", ev.At, at.UnixMilli())
	}
	if ev.Kind != "" || ev.Error != "" {
		t.Errorf("successful event carries error %s/%s", ev.Kind, ev.Error)
	}

	// The event holds its own copy of the status
	status.Status = device.LinkConnected
	if ev.Status.Status != device.LinkConnecting {
		t.Error("NewStateEvent() should copy the status")
	}
}

func TestNewStateEventNetworks(t *testing.T) {
	ch := 6
	networks := []device.NetworkRecord{
		{SSID: "Home", RSSI: -40, Secure: true},
		{SSID: "Cafe", RSSI: -71, Channel: &ch},
	}
	ev := NewStateEvent(provision.Event{State: provision.StateAwaitingSelection, Previous: provision.StateScanning, Networks: networks})

	data, err := Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	list, ok := decoded["networks"].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("networks = %v", decoded["networks"])
	}
	first := list[0].(map[string]any)
	if first["ssid"] != "Home" || first["secure"] != true {
		t.Errorf("first network = %v", first)
	}
	if _, present := decoded["status"]; present {
		t.Error("status should be omitted when absent")
	}
}

func TestNewStateEventFailure(t *testing.T) {
	devErr := device.NewRejectedError(401, "AUTH_FAILED", "wrong password")
	err := fmt.Errorf("%w: %w", provision.ErrSubmissionRejected, devErr)

	ev := NewStateEvent(provision.Event{
		State:    provision.StateConnectFailed,
		Previous: provision.StateConnecting,
		Kind:     provision.KindSubmissionRejected,
		Err:      err,
	})

	if ev.Kind != "submission_rejected" {
		t.Errorf("Kind = %q", ev.Kind)
	}
	if ev.ErrorCode != "AUTH_FAILED" {
		t.Errorf("ErrorCode = %q", ev.ErrorCode)
	}
	if ev.Error != "Device rejected request (AUTH_FAILED)" {
		t.Errorf("Error = %q", ev.Error)
	}
}

func TestNewHello(t *testing.T) {
	ev := NewHello(provision.Event{Session: "s1", State: provision.StateIdle, Previous: provision.StateIdle})
	if ev.Type != EvtHello || ev.Session != "s1" || ev.State != "idle" {
		t.Errorf("NewHello() = %+v", ev)
	}
}

func TestNewResult(t *testing.T) {
	cmd := &Command{Type: CmdConnect, ID: "9", SSID: "Home", Password: "hunter22"}

	ok := NewResult("s1", cmd, nil)
	if ok.Type != EvtResult || ok.ID != "9" || ok.Command != CmdConnect || ok.Kind != "" {
		t.Errorf("NewResult(nil) = %+v", ok)
	}

	failed := NewResult("s1", cmd, fmt.Errorf("%w: after 3 polls", provision.ErrUnreachable))
	if failed.Kind != "unreachable" {
		t.Errorf("Kind = %q, want unreachable", failed.Kind)
	}

	data, err := Marshal(ok)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hunter22") {
		t.Errorf("result leaks the password: %s", data)
	}
}

func TestNewError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"decode failure", fmt.Errorf("%w %q", ErrUnknownCommand, "fly"), KindBadRequest},
		{"empty message", ErrEmptyMessage, KindBadRequest},
		{"refused by state", fmt.Errorf("%w: connect from idle", provision.ErrInvalidState), "invalid_state"},
		{"closed session", provision.ErrClosed, "closed"},
		{"workflow protocol failure", fmt.Errorf("%w: bad body", provision.ErrProtocol), "protocol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := NewError("s1", "4", tt.err)
			if ev.Type != EvtError || ev.ID != "4" {
				t.Errorf("header = %+v", ev)
			}
			if ev.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", ev.Kind, tt.want)
			}
			if ev.Error == "" {
				t.Error("Error should describe the failure")
			}
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	in := NewError("s1", "4", errors.New("boom"))
	data, err := Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := ParseEvent(data)
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	if out.Kind != in.Kind || out.Error != in.Error || out.ID != in.ID {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}
