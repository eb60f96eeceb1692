package device

import (
	"fmt"
	"strings"
)

// SignalBars maps RSSI to a 0-4 bar count.
// Thresholds follow the usual phone status bar cut-offs.
func SignalBars(rssi int) int {
	switch {
	case rssi >= -55:
		return 4
	case rssi >= -67:
		return 3
	case rssi >= -78:
		return 2
	case rssi >= -89:
		return 1
	default:
		return 0
	}
}

// FormatSignal renders RSSI as a bar graph, e.g. "▂▄▆█ -40 dBm"
func FormatSignal(rssi int) string {
	glyphs := []string{"▂", "▄", "▆", "█"}
	bars := SignalBars(rssi)

	var b strings.Builder
	for i, g := range glyphs {
		if i < bars {
			b.WriteString(g)
		} else {
			b.WriteString(" ")
		}
	}
	b.WriteString(fmt.Sprintf(" %d dBm", rssi))
	return b.String()
}

// Summary returns a one-line description of the network
func (n NetworkRecord) Summary() string {
	lock := "open"
	if n.Secure {
		lock = "secured"
	}
	if n.Channel != nil {
		return fmt.Sprintf("%s (%s, ch %d, %d dBm)", n.DisplayName(), lock, *n.Channel, n.RSSI)
	}
	return fmt.Sprintf("%s (%s, %d dBm)", n.DisplayName(), lock, n.RSSI)
}

// DisplayName returns the SSID, or a placeholder for blank SSIDs
func (n NetworkRecord) DisplayName() string {
	if strings.TrimSpace(n.SSID) == "" {
		return "(hidden)"
	}
	return n.SSID
}

// FormatNetworks returns a table of scan results in device order
func FormatNetworks(networks []NetworkRecord) string {
	if len(networks) == 0 {
		return "No networks found.\n"
	}

	width := len("SSID")
	for _, n := range networks {
		if l := len(n.DisplayName()); l > width {
			width = l
		}
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("  #  %-*s  %-16s  %s\n", width, "SSID", "SIGNAL", "SECURITY"))
	for i, n := range networks {
		security := "open"
		if n.Secure {
			security = "secured"
		}
		b.WriteString(fmt.Sprintf("%3d  %-*s  %-16s  %s\n", i+1, width, n.DisplayName(), FormatSignal(n.RSSI), security))
	}
	return b.String()
}

// Summary returns a one-line description of the device status
func (s ConnectionStatus) Summary() string {
	if s.Joined() {
		return fmt.Sprintf("connected to %q as %s", s.SSID, s.IP)
	}
	if s.Mode == ModeAP {
		return fmt.Sprintf("access point mode, station %s", s.Status)
	}
	if s.SSID != "" {
		return fmt.Sprintf("station %s (%q)", s.Status, s.SSID)
	}
	return fmt.Sprintf("station %s", s.Status)
}

// FormatStatus returns a formatted block with the connection status
func FormatStatus(s ConnectionStatus) string {
	var b strings.Builder

	b.WriteString("=== Connection Status ===\n")
	b.WriteString(fmt.Sprintf("Mode:   %s\n", s.Mode))
	b.WriteString(fmt.Sprintf("Status: %s\n", s.Status))
	if s.SSID != "" {
		b.WriteString(fmt.Sprintf("SSID:   %s\n", s.SSID))
	}
	if s.IP != "" {
		b.WriteString(fmt.Sprintf("IP:     %s\n", s.IP))
	}

	return b.String()
}
