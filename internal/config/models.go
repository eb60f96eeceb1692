package config

import (
	"sort"
	"time"
)

// Registry represents the entire user configuration file.
// It remembers provisioned devices and application preferences.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by device address (host or host:port)
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device records what is known about a device after provisioning.
// The Wi-Fi password is never part of this record.
type Device struct {
	Nickname    string    `yaml:"nickname,omitempty"`    // User-friendly name
	LastSSID    string    `yaml:"last_ssid,omitempty"`   // Network the device last joined
	LastIP      string    `yaml:"last_ip,omitempty"`     // Station address reported by the device
	LastSeen    time.Time `yaml:"last_seen,omitempty"`   // Last provisioning or discovery time
	Provisioned int       `yaml:"provisioned,omitempty"` // Successful provisioning runs
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	AutoDiscover    bool   `yaml:"auto_discover"`            // Browse mDNS after a successful provisioning
	DiscoverTimeout int    `yaml:"discover_timeout"`         // mDNS discovery timeout in seconds
	DefaultDevice   string `yaml:"default_device,omitempty"` // Device address used when none is given
}

func defaultPreferences() *Preferences {
	return &Preferences{
		AutoDiscover:    true,
		DiscoverTimeout: 10,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     1,
		Devices:     make(map[string]*Device),
		Preferences: defaultPreferences(),
	}
}

// GetDevice retrieves device metadata by address.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(addr string) *Device {
	return r.Devices[addr]
}

// EnsureDevice ensures a device entry exists in the registry.
// Returns the device entry (existing or newly created).
func (r *Registry) EnsureDevice(addr string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if device, exists := r.Devices[addr]; exists {
		return device
	}

	device := &Device{}
	r.Devices[addr] = device
	return device
}

// RecordProvisioned notes that the device at addr joined ssid and got ip.
func (r *Registry) RecordProvisioned(addr, ssid, ip string, at time.Time) *Device {
	device := r.EnsureDevice(addr)
	device.LastSSID = ssid
	if ip != "" {
		device.LastIP = ip
	}
	device.LastSeen = at
	device.Provisioned++
	return device
}

// UpdateDeviceLastSeen updates the last seen timestamp and IP for a device.
func (r *Registry) UpdateDeviceLastSeen(addr, ip string) {
	device := r.EnsureDevice(addr)
	device.LastSeen = time.Now()
	device.LastIP = ip
}

// SetDeviceNickname sets the nickname for a device.
func (r *Registry) SetDeviceNickname(addr, nickname string) {
	device := r.EnsureDevice(addr)
	device.Nickname = nickname
}

// Forget removes a device. Reports whether it was present.
func (r *Registry) Forget(addr string) bool {
	if _, ok := r.Devices[addr]; !ok {
		return false
	}
	delete(r.Devices, addr)
	return true
}

// Addresses returns the known device addresses, most recently seen first.
func (r *Registry) Addresses() []string {
	addrs := make([]string, 0, len(r.Devices))
	for addr := range r.Devices {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		a, b := r.Devices[addrs[i]], r.Devices[addrs[j]]
		if !a.LastSeen.Equal(b.LastSeen) {
			return a.LastSeen.After(b.LastSeen)
		}
		return addrs[i] < addrs[j]
	})
	return addrs
}
