// Package ui provides terminal output components for the wifiprov CLI.
//
// Unlike the interactive wizard, these components follow a "run once and
// exit" pattern. They render styled output with Lipgloss and the Bubbles
// progress bar but never wait for input, except for the explicit Confirm and
// ReadPassword prompts.
//
// # Architecture
//
//   - Header: command banner showing the operation and its parameters
//   - Progress: step list with a progress bar
//   - Result: success, failure and warning boxes
//   - Runner: a provision.Listener that drives Header, Progress and Result
//     from workflow events
//
// Example:
//
//	runner := ui.NewRunner(ui.RunnerConfig{
//	    Title:   "Provision Device",
//	    Command: "wifiprov connect",
//	    Params:  []ui.Param{{Key: "Device", Value: "192.168.4.1:80"}},
//	})
//	wf := provision.New(client, opts, runner)
//
//	err := runner.Run(ctx, func(ctx context.Context) ([]ui.Param, error) {
//	    if _, err := wf.StartScan(ctx); err != nil {
//	        return nil, err
//	    }
//	    status, err := wf.SelectAndConnect(ctx, creds)
//	    return []ui.Param{{Key: "IP", Value: status.IP}}, err
//	})
//
// # Logging Integration
//
// Logging is controlled by the WIFIPROV_LOG_LEVEL environment variable. When
// unset, zap is silent so the styled output stays clean.
package ui
