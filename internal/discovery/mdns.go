package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/wifiprov/internal/logging"
)

const (
	// ServiceType is the mDNS service type devices announce once they have
	// joined a station network
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 10 * time.Second

	// DefaultPort is the default HTTP port
	DefaultPort = 80
)

// Browser is the part of zeroconf.Resolver the scanner uses
type Browser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// Scanner handles mDNS device discovery
type Scanner struct {
	// Timeout is the maximum time to wait for device discovery
	Timeout time.Duration

	// Service is the mDNS service type to browse
	Service string

	// HostPrefix keeps only hostnames starting with it (case-insensitive).
	// Empty keeps every host.
	HostPrefix string

	// NewBrowser creates the resolver. Defaults to zeroconf.NewResolver.
	NewBrowser func() (Browser, error)
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
		Service: ServiceType,
	}
}

// Scan discovers devices on the local network until the timeout elapses or
// ctx is cancelled. Devices announcing more than once are reported once.
func (s *Scanner) Scan(ctx context.Context) ([]*Device, error) {
	var (
		mu      sync.Mutex
		devices []*Device
	)
	err := s.browse(ctx, func(d *Device) bool {
		mu.Lock()
		defer mu.Unlock()
		for _, seen := range devices {
			if seen.Hostname == d.Hostname && seen.IP == d.IP {
				return false
			}
		}
		devices = append(devices, d)
		return false
	})
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	if devices == nil {
		devices = []*Device{}
	}
	return devices, nil
}

// WaitForAddress waits until a device announces ip. Provisioning uses it to
// confirm the device is reachable on the network it just joined.
func (s *Scanner) WaitForAddress(ctx context.Context, ip string) (*Device, error) {
	want := net.ParseIP(ip)
	if want == nil {
		return nil, fmt.Errorf("invalid IP address %q", ip)
	}

	var found *Device
	err := s.browse(ctx, func(d *Device) bool {
		if net.ParseIP(d.IP).Equal(want) {
			found = d
			return true
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("no device announced %s within %v", ip, s.Timeout)
	}
	return found, nil
}

// browse feeds matching entries to visit until it returns true, the timeout
// elapses or ctx ends. visit's result is final once browse returns.
func (s *Scanner) browse(ctx context.Context, visit func(*Device) bool) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	newBrowser := s.NewBrowser
	if newBrowser == nil {
		newBrowser = func() (Browser, error) { return zeroconf.NewResolver(nil) }
	}
	resolver, err := newBrowser()
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	service := s.Service
	if service == "" {
		service = ServiceType
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				device := s.parseServiceEntry(entry)
				if device == nil {
					continue
				}
				logging.Debug("mDNS device found",
					zap.String("hostname", device.Hostname),
					zap.String("ip", device.IP),
					zap.Int("port", device.Port),
				)
				if visit(device) {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, service, ServiceDomain, entries); err != nil {
		cancel()
		<-done
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	<-done
	return nil
}

// parseServiceEntry converts a zeroconf service entry to a Device
// Returns nil if the entry has no address or does not match HostPrefix
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	if entry == nil {
		return nil
	}
	hostname := entry.HostName
	if hostname == "" {
		return nil
	}
	if s.HostPrefix != "" && !strings.HasPrefix(strings.ToLower(hostname), strings.ToLower(s.HostPrefix)) {
		return nil
	}

	// Prefer IPv4
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	// TXT records are in "key=value" format
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	return &Device{
		Instance:     entry.Instance,
		Hostname:     hostname,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// ScanForDevices is a convenience function to scan with a custom timeout
func ScanForDevices(ctx context.Context, timeout time.Duration) ([]*Device, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.Scan(ctx)
}
