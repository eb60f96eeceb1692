package device

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NetworkRecord is one access point reported by a device scan.
// The device returns records in scan order; no sorting is applied.
type NetworkRecord struct {
	SSID    string `json:"ssid"`
	RSSI    int    `json:"rssi"`              // Signal strength in dBm
	Channel *int   `json:"channel,omitempty"` // Not reported by every firmware
	Secure  bool   `json:"secure"`
}

// Credentials are submitted once per connect attempt and never stored.
type Credentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"` // Empty for open networks

	// Hidden marks an SSID typed by the user rather than picked from a scan.
	// It is not sent to the device.
	Hidden bool `json:"-"`
}

// String omits the password so credentials can be safely formatted.
func (c Credentials) String() string {
	if c.Password == "" {
		return fmt.Sprintf("%q (open)", c.SSID)
	}
	return fmt.Sprintf("%q (password: %d chars)", c.SSID, len(c.Password))
}

// Mode is the radio mode the device reports.
type Mode string

const (
	ModeAP  Mode = "AP"
	ModeSTA Mode = "STA"
)

// LinkStatus is the station link state the device reports.
type LinkStatus string

const (
	LinkConnected    LinkStatus = "connected"
	LinkConnecting   LinkStatus = "connecting"
	LinkDisconnected LinkStatus = "disconnected"
)

// ConnectionStatus is a read-only snapshot returned by GET /api/wifi/status.
type ConnectionStatus struct {
	Mode   Mode       `json:"mode"`
	Status LinkStatus `json:"status"`
	IP     string     `json:"ip,omitempty"`
	SSID   string     `json:"ssid,omitempty"`
}

// Joined reports whether the device is a connected station.
func (s ConnectionStatus) Joined() bool {
	return s.Mode == ModeSTA && s.Status == LinkConnected
}

// ConnectResponse is the optional body of POST /api/wifi/connect.
// Older firmware answers with an empty 2xx body.
type ConnectResponse struct {
	Success   *bool  `json:"success,omitempty"`
	IP        string `json:"ip,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Accepted reports whether the body, if any, confirms the submission.
func (r *ConnectResponse) Accepted() bool {
	return r == nil || r.Success == nil || *r.Success
}

// scanEnvelope is the {"networks": [...]} shape used by the captive portal page.
type scanEnvelope struct {
	Networks []NetworkRecord `json:"networks"`
}

// CleanJSONResponse extracts the first complete JSON object or array from a
// device response.
//
// The firmware's async web server sometimes flushes stale buffer contents
// after the body, for example:
//
//	[{"ssid":"Home","rssi":-40,"secure":true}]\x00\x00<html>
//
// This function finds the end of the first JSON value and truncates the rest.
func CleanJSONResponse(data []byte) ([]byte, error) {
	start := -1
	var open, closing byte
	for i, b := range data {
		if b == '{' || b == '[' {
			start = i
			open = b
			break
		}
	}
	if start == -1 {
		return nil, fmt.Errorf("no JSON value found in response")
	}
	if open == '{' {
		closing = '}'
	} else {
		closing = ']'
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(data); i++ {
		b := data[i]

		if escaped {
			escaped = false
			continue
		}
		if b == '\\' {
			escaped = true
			continue
		}

		// Braces inside strings don't count
		if b == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}
		switch b {
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return data[start : i+1], nil
			}
		}
	}

	return nil, fmt.Errorf("unclosed JSON value in response")
}

// ParseNetworks decodes a scan result body. Both a bare array and the
// {"networks": [...]} envelope are accepted. A nil result is normalised to an
// empty slice so "ready with no networks" is distinguishable from an error.
func ParseNetworks(data []byte) ([]NetworkRecord, error) {
	clean, err := CleanJSONResponse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to clean JSON response: %w", err)
	}

	var networks []NetworkRecord
	if clean[0] == '[' {
		if err := json.Unmarshal(clean, &networks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal network list: %w", err)
		}
	} else {
		var env scanEnvelope
		if err := json.Unmarshal(clean, &env); err != nil {
			return nil, fmt.Errorf("failed to unmarshal network list: %w", err)
		}
		networks = env.Networks
	}

	if networks == nil {
		networks = []NetworkRecord{}
	}
	return networks, nil
}

// ParseConnectionStatus decodes a status body and checks the enumerations.
func ParseConnectionStatus(data []byte) (*ConnectionStatus, error) {
	clean, err := CleanJSONResponse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to clean JSON response: %w", err)
	}

	var status ConnectionStatus
	if err := json.Unmarshal(clean, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connection status: %w", err)
	}

	status.Mode = Mode(strings.ToUpper(string(status.Mode)))
	status.Status = LinkStatus(strings.ToLower(string(status.Status)))

	switch status.Mode {
	case ModeAP, ModeSTA:
	default:
		return nil, fmt.Errorf("unknown mode %q", status.Mode)
	}
	switch status.Status {
	case LinkConnected, LinkConnecting, LinkDisconnected:
	default:
		return nil, fmt.Errorf("unknown status %q", status.Status)
	}

	return &status, nil
}

// ParseConnectResponse decodes the optional connect body. Empty bodies yield nil.
func ParseConnectResponse(data []byte) (*ConnectResponse, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	clean, err := CleanJSONResponse(data)
	if err != nil {
		// Plain-text acknowledgements ("OK") carry no structured result
		return nil, nil
	}
	var resp ConnectResponse
	if err := json.Unmarshal(clean, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connect response: %w", err)
	}
	return &resp, nil
}
