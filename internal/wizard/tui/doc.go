// Package tui implements the interactive setup wizard.
//
// The wizard is a full-screen Bubble Tea program that owns one
// provision.Workflow. It never decides what happens next on its own: key
// presses call workflow operations and every screen is a rendering of the
// last event the workflow reported.
//
// # Architecture
//
// Workflow events reach the program through a provision.ChanListener. A
// command waits on the channel and turns each event into a message, so all
// model updates stay on the Bubble Tea goroutine. Blocking operations
// (scan, connect, resume) run as commands; cancel runs inline because it
// never blocks.
//
// Screens follow the workflow state:
//   - Idle: instructions, s starts a scan
//   - Scanning: spinner and a progress bar bounded by the scan timeout
//   - Networks: scan results (bubbles/list) or the empty result
//   - Credentials: password entry, or SSID and password for a hidden network
//   - Verifying: poll count, latest device status and the next backoff delay
//   - Connected: joined network and address, optional mDNS lookup
//   - Failure: error, troubleshooting tips and the retries the state allows
//
// All screens use RenderApplicationContainer for the header, content and
// context-sensitive help footer.
//
// # Usage Example
//
//	model := tui.NewAppModel(tui.Config{
//	    Device:   device.NewClient("192.168.4.1", 80),
//	    Options:  provision.DefaultOptions(),
//	    AutoScan: true,
//	})
//	defer model.Close()
//
//	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Key Bindings
//
//   - Networks: ↑/↓ move, enter join, h hidden network, r rescan, / filter
//   - Credentials: tab switch field, enter connect, esc back
//   - Scanning and verifying: esc cancel
//   - Failure: r retry, w keep waiting (unreachable only), s rescan, esc start over
//   - Connected: enter done, d find the device on the network
//
// Passwords are cleared from the form as soon as they are submitted.
package tui
