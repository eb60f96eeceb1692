package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/provision"
)

// Provisioning steps shown by Runner
const (
	StepScan   = 1
	StepSubmit = 2
	StepVerify = 3
)

// ProvisionSteps names the steps in order
var ProvisionSteps = []string{
	"Scan for networks",
	"Submit credentials",
	"Wait for device to join",
}

// RunnerConfig holds configuration for a provisioning command
type RunnerConfig struct {
	Title   string    // Command title (e.g., "Provision Device")
	Command string    // Full command (e.g., "wifiprov connect")
	Params  []Param   // Parameters to display in header
	Output  io.Writer // Output writer (default: os.Stdout)
	Width   int       // Rendering width (default: terminal width)
}

// runnerEventBuffer is how many workflow events may wait to be drawn
const runnerEventBuffer = 64

// Runner renders a provisioning workflow as header, step list and result.
// It implements provision.Listener, so it is passed to provision.New and
// draws each step as the workflow reports it.
//
// Events are queued and drawn by a separate goroutine, so a slow output
// never holds up the workflow. Flush waits for the queue to drain.
type Runner struct {
	config   RunnerConfig
	header   *Header
	progress *Progress
	output   io.Writer
	width    int

	mu sync.Mutex

	queueMu sync.Mutex
	queue   *provision.ChanListener
	stopped bool
	drained chan struct{}
}

var _ provision.Listener = (*Runner)(nil)

// NewRunner creates a new runner
func NewRunner(config RunnerConfig) *Runner {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	width := config.Width
	if width == 0 {
		width = GetTerminalWidth()
	}

	header := NewHeader(config.Title, config.Command, config.Params...)
	header.SetWidth(width)

	progress := NewProgress(ProvisionSteps...)
	progress.SetWidth(width)

	r := &Runner{
		config:   config,
		header:   header,
		progress: progress,
		output:   config.Output,
		width:    width,
		queue:    provision.NewChanListener(runnerEventBuffer),
		drained:  make(chan struct{}),
	}
	go r.drain()
	return r
}

func (r *Runner) drain() {
	defer close(r.drained)
	for ev := range r.queue.C {
		r.draw(ev)
	}
}

// Flush stops accepting events and returns once every queued event has
// been drawn. Later events are ignored.
func (r *Runner) Flush() {
	r.queueMu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.queue.C)
	}
	r.queueMu.Unlock()
	<-r.drained
}

// Operation is the work a Runner wraps. Details are shown on success.
type Operation func(ctx context.Context) ([]Param, error)

// Run prints the header, runs op and prints the result box.
func (r *Runner) Run(ctx context.Context, op Operation) error {
	start := time.Now()

	_, _ = fmt.Fprintln(r.output, r.header.Render())
	_, _ = fmt.Fprintln(r.output)

	details, err := op(ctx)
	r.PrintResult(details, err, time.Since(start))
	return err
}

// PrintResult flushes pending steps and prints the success or failure box
// for a finished operation.
func (r *Runner) PrintResult(details []Param, err error, duration time.Duration) {
	r.Flush()

	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintln(r.output)

	var result *Result
	if err != nil {
		result = NewFailureResult(r.config.Title+" failed", shortError(err), Troubleshooting(err))
	} else {
		result = NewSuccessResult(r.config.Title+" complete", details...)
		result.AddDetail("Duration", duration.Round(time.Millisecond).String())
	}
	result.SetWidth(r.width)
	_, _ = fmt.Fprintln(r.output, result.Render())
}

// OnStateChange implements provision.Listener. It only queues the event.
func (r *Runner) OnStateChange(ev provision.Event) {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	if r.stopped {
		return
	}
	r.queue.OnStateChange(ev)
}

func (r *Runner) draw(ev provision.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !ev.Transition() {
		if ev.State == provision.StateVerifying {
			r.update(StepVerify, StepRunning, pollNote(ev))
		}
		return
	}

	switch ev.State {
	case provision.StateScanning:
		r.progress.Reset()
		r.update(StepScan, StepRunning, "")
	case provision.StateAwaitingSelection:
		r.update(StepScan, StepComplete, fmt.Sprintf("%d networks", len(ev.Networks)))
	case provision.StateNoNetworks:
		r.update(StepScan, StepComplete, "no networks in range")
	case provision.StateScanFailed:
		r.update(StepScan, StepFailed, ev.Kind.String())
	case provision.StateConnecting:
		r.update(StepSubmit, StepRunning, "")
	case provision.StateVerifying:
		if ev.Previous == provision.StateConnecting {
			r.update(StepSubmit, StepComplete, "accepted")
		}
		r.update(StepVerify, StepRunning, "")
	case provision.StateConnected:
		note := ""
		if ev.Status != nil {
			note = ev.Status.IP
		}
		r.update(StepVerify, StepComplete, note)
	case provision.StateConnectFailed, provision.StateUnreachable:
		r.update(r.runningStep(StepSubmit), StepFailed, ev.Kind.String())
	case provision.StateIdle:
		if ev.Previous.Busy() {
			r.update(r.runningStep(StepScan), StepSkipped, "cancelled")
		}
	}
}

func (r *Runner) runningStep(fallback int) int {
	if r.progress.Current > 0 {
		return r.progress.Current
	}
	return fallback
}

// update changes a step and prints it. Running steps are redrawn in place.
func (r *Runner) update(step int, status StepStatus, message string) {
	r.progress.UpdateStep(step, status, message)
	line := r.progress.RenderStepLine(r.progress.Steps[step-1])
	if status == StepRunning {
		_, _ = fmt.Fprint(r.output, "\r"+line)
		return
	}
	_, _ = fmt.Fprintln(r.output, "\r"+line)
}

// pollNote describes a status poll, e.g. "poll 2, connecting, next in 5s"
func pollNote(ev provision.Event) string {
	parts := []string{fmt.Sprintf("poll %d", ev.Attempt)}
	switch {
	case ev.Err != nil:
		parts = append(parts, "no answer")
	case ev.Status != nil:
		parts = append(parts, string(ev.Status.Status))
	}
	if ev.NextDelay > 0 {
		parts = append(parts, "next in "+ev.NextDelay.String())
	}
	return strings.Join(parts, ", ")
}

func shortError(err error) error {
	return errors.New(device.GetShortErrorMessage(err))
}

// Troubleshooting returns tips for a failed workflow operation
func Troubleshooting(err error) []string {
	switch provision.KindOf(err) {
	case provision.KindScanTimedOut:
		return []string{
			"The device did not finish scanning in time",
			"Run the scan again; busy 2.4 GHz bands slow scans down",
		}
	case provision.KindUnreachable:
		return []string{
			"The device restarts its radio while it joins the network",
			"If it joined, find it on your network with: wifiprov discover",
			"Otherwise reconnect to the device access point and run: wifiprov status",
		}
	case provision.KindSubmissionRejected:
		return []string{
			"Check the network name and password",
			"Passwords are case sensitive",
		}
	case provision.KindCancelled:
		return nil
	}

	var tips []string
	switch {
	case device.IsNetworkError(err):
		tips = append(tips, "Stay joined to the device access point until provisioning finishes")
	case device.IsHTTPError(err):
		tips = append(tips, "The device answered with an error status; power cycle it if this repeats")
	case device.IsParseError(err):
		tips = append(tips, "The device sent a reply wifiprov could not read; check its firmware version")
	}
	for _, line := range strings.Split(device.GetTroubleshootingHint(err), "\n") {
		if tip, ok := strings.CutPrefix(line, "  • "); ok {
			tips = append(tips, tip)
		}
	}
	return tips
}
