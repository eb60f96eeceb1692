// Package device provides an HTTP client for a device's Wi-Fi provisioning API.
//
// While unprovisioned, the device runs its own access point (usually at
// 192.168.4.1) and exposes a small JSON API:
//
//	GET  /api/wifi/scan      start a scan, answers 202
//	GET  /api/wifi/results   202 while scanning, 200 with the network list
//	POST /api/wifi/connect   submit {"ssid": ..., "password": ...}
//	GET  /api/wifi/status    {"mode": "AP"|"STA", "status": ..., "ip": ..., "ssid": ...}
//	POST /api/wifi/reset     forget stored credentials
//
// # Usage Example
//
//	client := device.NewClient(device.DefaultHost, device.DefaultPort)
//
//	if err := client.StartScan(ctx); err != nil {
//	    return err
//	}
//
//	reply := client.ScanResults(ctx)
//	switch reply.Outcome {
//	case device.OutcomeReady:
//	    fmt.Print(device.FormatNetworks(reply.Data))
//	case device.OutcomePending:
//	    // poll again later
//	case device.OutcomeFailed:
//	    return reply.Err
//	}
//
// # Replies
//
// Polled endpoints return a Reply tagged Ready, Pending or Failed so callers
// never inspect HTTP status codes. Every method performs exactly one request;
// the client neither retries nor caches.
//
// # Error Handling
//
// Failures are *DeviceError values. IsRetryable separates transport problems
// (timeouts, refused connections, 5xx) from protocol problems (4xx, malformed
// bodies). GetTroubleshootingHint returns a user-facing suggestion.
//
// # Thread Safety
//
// Client instances are safe for concurrent use once configured.
package device
