// Package bridge lets a browser page drive a provisioning session.
//
// The bridge serves a small page at "/" and a WebSocket endpoint at "/ws".
// Every WebSocket connection owns one provision.Workflow. Commands arrive as
// JSON text messages (see package protocol) and every workflow event is pushed
// back as it happens, so the page only renders state.
//
// # Endpoints
//
//   - GET /         the provisioning page
//   - GET /ws       WebSocket session
//   - GET /healthz  liveness and open session count
//   - GET /metrics  Prometheus metrics (package metrics)
//
// # Usage Example
//
//	srv, err := bridge.New(&bridge.Config{
//	    Listen:  "127.0.0.1:8787",
//	    Device:  device.NewClient("192.168.4.1", 80),
//	    Options: provision.DefaultOptions(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Start blocks until shutdown signal or error
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Transcripts
//
// When Config.TranscriptDir is set each session appends its messages to a
// JSON Lines file in that directory. Passwords are replaced before writing and
// messages that fail to parse are recorded without their payload.
//
// # Graceful Shutdown
//
// Start handles SIGINT and SIGTERM. Shutdown stops accepting connections,
// closes every open session (which cancels its running phase) and waits for
// the session goroutines to finish.
package bridge
