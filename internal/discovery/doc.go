// Package discovery finds provisioned devices on the station network over mDNS.
//
// Once a device has joined a Wi-Fi network it leaves access point mode and
// announces itself as an "_http._tcp" service. Browsing for that service
// confirms the device is reachable at the address it reported while being
// provisioned, and lets the CLI list devices on the network.
//
// # Usage Example
//
//	scanner := discovery.NewScanner()
//	scanner.HostPrefix = "lamp-"
//	devices, err := scanner.Scan(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, d := range devices {
//	    fmt.Printf("Found: %s at %s\n", d.Name(), d.BaseURL())
//	}
//
//	// After provisioning reported 192.168.1.42
//	device, err := scanner.WaitForAddress(ctx, "192.168.1.42")
//
// # Network Requirements
//
//   - Requires multicast support on the network interface
//   - Devices must be on the same local network segment
//   - Firewall must allow mDNS (UDP port 5353)
//
// The host running the scan must itself be back on the station network; while
// it is connected to the device's access point no announcements are visible.
package discovery
