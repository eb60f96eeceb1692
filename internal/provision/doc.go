// Package provision implements the Wi-Fi provisioning workflow: scan the
// device for access points, submit the chosen credentials and confirm the
// device joined the network.
//
// # Components
//
//   - ScanPoller starts a scan and polls results at a fixed interval, bounded
//     by a maximum number of requests.
//   - ConnectionPoller submits credentials once, then polls connection status
//     with a capped backoff. Consecutive transport failures (the device is
//     rebooting or switching radio modes) mark the device unreachable; plain
//     "not connected yet" answers never do.
//   - Workflow is the session object. It owns a single cancellation token,
//     starts and supersedes phases, and emits an Event to its listeners on
//     every transition.
//
// # States
//
//	Idle ─StartScan→ Scanning ─→ AwaitingSelection | NoNetworks | ScanFailed
//	AwaitingSelection ─SelectAndConnect→ Connecting → Verifying
//	    → Connected | Unreachable | ConnectFailed
//	Unreachable ─ResumeVerification→ Verifying
//	ConnectFailed, Unreachable ─RetryConnect→ Connecting
//	NoNetworks, *Failed, Unreachable ─RetryScan→ Scanning
//	any but Connected ─Cancel→ Idle;  Connected ─Acknowledge→ Idle
//
// # Usage
//
//	events := provision.NewChanListener(32)
//	wf := provision.New(device.NewClient(device.DefaultHost, device.DefaultPort),
//	    provision.DefaultOptions(), events)
//	defer wf.Close()
//
//	networks, err := wf.StartScan(ctx)
//	...
//	status, err := wf.SelectAndConnect(ctx, device.Credentials{SSID: "Home", Password: pw})
//	switch provision.KindOf(err) {
//	case provision.KindNone:
//	    fmt.Println("joined as", status.IP)
//	case provision.KindUnreachable:
//	    status, err = wf.ResumeVerification(ctx)
//	}
//
// Events carry structured state only. Turning a Kind into text is the
// listener's job.
package provision
