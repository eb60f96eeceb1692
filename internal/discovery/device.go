package discovery

import (
	"fmt"
	"strings"
	"time"
)

// Device represents a device announcing itself on the station network
type Device struct {
	// Instance is the mDNS service instance name (e.g., "Porch Light")
	Instance string

	// Hostname is the mDNS hostname (e.g., "lamp-3a9f12.local.")
	Hostname string

	// IP is the preferred address, IPv4 when the device announces one
	IP string

	// Port is the HTTP port (typically 80)
	Port int

	// Metadata contains the mDNS TXT record data
	// Common fields: "path=/", "id=3a9f12", "fw=1.4.0"
	Metadata map[string]string

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("%s (%s) at %s", d.Name(), d.Hostname, d.Addr())
}

// Name returns the instance name, falling back to the short hostname
func (d *Device) Name() string {
	if d.Instance != "" {
		return d.Instance
	}
	return d.ShortHostname()
}

// ShortHostname strips the ".local." suffix from the hostname
func (d *Device) ShortHostname() string {
	h := strings.TrimSuffix(d.Hostname, ".")
	return strings.TrimSuffix(h, ".local")
}

// Addr returns host:port, bracketing IPv6 addresses
func (d *Device) Addr() string {
	if strings.Contains(d.IP, ":") {
		return fmt.Sprintf("[%s]:%d", d.IP, d.Port)
	}
	return fmt.Sprintf("%s:%d", d.IP, d.Port)
}

// BaseURL returns the HTTP base URL for the device
func (d *Device) BaseURL() string {
	return "http://" + d.Addr()
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
