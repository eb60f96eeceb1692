package device

import (
	"strings"
	"testing"
)

func TestSignalBars(t *testing.T) {
	tests := []struct {
		rssi int
		want int
	}{
		{-30, 4},
		{-55, 4},
		{-60, 3},
		{-75, 2},
		{-85, 1},
		{-95, 0},
	}

	for _, tt := range tests {
		if got := SignalBars(tt.rssi); got != tt.want {
			t.Errorf("SignalBars(%d) = %d, want %d", tt.rssi, got, tt.want)
		}
	}
}

func TestFormatNetworks(t *testing.T) {
	channel := 11
	networks := []NetworkRecord{
		{SSID: "Home", RSSI: -40, Secure: true},
		{SSID: "", RSSI: -80, Channel: &channel},
	}

	out := FormatNetworks(networks)

	expectedParts := []string{"SSID", "Home", "-40 dBm", "secured", "(hidden)", "open"}
	for _, part := range expectedParts {
		if !strings.Contains(out, part) {
			t.Errorf("FormatNetworks() missing expected part: %s", part)
		}
	}

	// Header plus one line per network, device order kept
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if !strings.Contains(lines[1], "Home") {
		t.Errorf("first row = %q, want Home", lines[1])
	}
}

func TestFormatNetworks_Empty(t *testing.T) {
	if out := FormatNetworks(nil); !strings.Contains(out, "No networks") {
		t.Errorf("FormatNetworks(nil) = %q", out)
	}
}

func TestNetworkRecord_Summary(t *testing.T) {
	channel := 6
	n := NetworkRecord{SSID: "Cafe", RSSI: -71, Channel: &channel}
	if got := n.Summary(); got != `Cafe (open, ch 6, -71 dBm)` {
		t.Errorf("Summary() = %q", got)
	}
}

func TestConnectionStatus_Summary(t *testing.T) {
	tests := []struct {
		name   string
		status ConnectionStatus
		want   string
	}{
		{"joined", ConnectionStatus{Mode: ModeSTA, Status: LinkConnected, IP: "192.168.4.20", SSID: "Home"}, `connected to "Home" as 192.168.4.20`},
		{"ap", ConnectionStatus{Mode: ModeAP, Status: LinkDisconnected}, "access point mode, station disconnected"},
		{"connecting", ConnectionStatus{Mode: ModeSTA, Status: LinkConnecting, SSID: "Home"}, `station connecting ("Home")`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Summary(); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatStatus(t *testing.T) {
	out := FormatStatus(ConnectionStatus{Mode: ModeSTA, Status: LinkConnected, IP: "192.168.4.20", SSID: "Home"})
	for _, part := range []string{"Connection Status", "STA", "connected", "192.168.4.20", "Home"} {
		if !strings.Contains(out, part) {
			t.Errorf("FormatStatus() missing expected part: %s", part)
		}
	}
}
