package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/wifiprov/internal/device"
)

// Printer provides methods for printing UI components to a writer.
// Run-once commands use it for all styled output.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// SetWidth overrides the detected terminal width
func (p *Printer) SetWidth(width int) *Printer {
	p.width = width
	return p
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params ...Param) {
	p.Println(NewHeader(title, command, params...).SetWidth(p.width).Render())
	p.Newline()
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details ...Param) {
	p.Println(NewSuccessResult(title, details...).SetWidth(p.width).Render())
}

// PrintError prints an error result box with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting []string) {
	p.Println(NewFailureResult(title, err, troubleshooting).SetWidth(p.width).Render())
}

// PrintWarning prints a warning result box
func (p *Printer) PrintWarning(title string, details ...Param) {
	p.Println(NewWarningResult(title, details...).SetWidth(p.width).Render())
}

// PrintNetworks prints scan results as a table
func (p *Printer) PrintNetworks(networks []device.NetworkRecord) {
	p.Println(RenderNetworkTable(networks))
}

// RenderNetworkTable renders scan results in device order
func RenderNetworkTable(networks []device.NetworkRecord) string {
	if len(networks) == 0 {
		return StepPendingStyle.Render("  No networks found.")
	}

	nameWidth := len("SSID")
	for _, n := range networks {
		if w := lipgloss.Width(n.DisplayName()); w > nameWidth {
			nameWidth = w
		}
	}

	lines := []string{
		TableHeaderStyle.Render(fmt.Sprintf("  %3s  %-*s  %-16s  %-4s  %s", "#", nameWidth, "SSID", "SIGNAL", "CH", "SECURITY")),
	}
	for i, n := range networks {
		signal := device.FormatSignal(n.RSSI)
		signalStyle := SignalWeakStyle
		if device.SignalBars(n.RSSI) >= 3 {
			signalStyle = SignalStrongStyle
		}

		channel := "-"
		if n.Channel != nil {
			channel = fmt.Sprintf("%d", *n.Channel)
		}
		security := "open"
		if n.Secure {
			security = LockMarker + " secured"
		}

		name := n.DisplayName()
		name += strings.Repeat(" ", nameWidth-lipgloss.Width(name))
		lines = append(lines, fmt.Sprintf("  %3d  %s  %s  %-4s  %s",
			i+1, name, signalStyle.Render(fmt.Sprintf("%-16s", signal)), channel, security))
	}
	return strings.Join(lines, "\n")
}
