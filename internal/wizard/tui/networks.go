package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/provision"
)

// networkKeyMap defines key bindings for the network list
type networkKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Hidden key.Binding
	Rescan key.Binding
	Filter key.Binding
	Cancel key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k networkKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Hidden, k.Rescan, k.Filter, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k networkKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter, k.Filter},
		{k.Hidden, k.Rescan, k.Cancel, k.Quit},
	}
}

func newNetworkKeyMap() networkKeyMap {
	return networkKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "move down"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "join"),
		),
		Hidden: key.NewBinding(
			key.WithKeys("h"),
			key.WithHelp("h", "hidden network"),
		),
		Rescan: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rescan"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
	}
}

// networkItem wraps a NetworkRecord for use with bubbles/list
type networkItem struct {
	network device.NetworkRecord
}

// FilterValue implements list.Item
func (n networkItem) FilterValue() string {
	return n.network.SSID
}

// Title returns the network name for list display
func (n networkItem) Title() string {
	return n.network.DisplayName()
}

// Description returns signal and security details for list display
func (n networkItem) Description() string {
	return n.network.Summary()
}

// networkDelegate renders one network per line: name, signal bars, channel
// and a lock for secured networks
type networkDelegate struct{}

func (d networkDelegate) Height() int { return 1 }

func (d networkDelegate) Spacing() int { return 0 }

func (d networkDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d networkDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ni, ok := item.(networkItem)
	if !ok {
		return
	}
	fmt.Fprint(w, renderNetworkLine(ni.network, index == m.Index()))
}

func renderNetworkLine(n device.NetworkRecord, selected bool) string {
	name := n.DisplayName()
	if r := []rune(name); len(r) > 28 {
		name = string(r[:27]) + "…"
	}

	signal := device.FormatSignal(n.RSSI)
	if device.SignalBars(n.RSSI) >= 3 {
		signal = StrongSignalStyle.Render(signal)
	} else {
		signal = WeakSignalStyle.Render(signal)
	}

	channel := "  "
	if n.Channel != nil {
		channel = fmt.Sprintf("%2d", *n.Channel)
	}

	lock := "  "
	if n.Secure {
		lock = "🔒"
	}

	line := fmt.Sprintf("%-28s  %s  ch %s  %s", name, signal, channel, lock)
	return RenderMenuItem(line, selected)
}

func newNetworkList() list.Model {
	l := list.New([]list.Item{}, networkDelegate{}, MinTerminalWidth-4, 12)
	l.Title = "Networks seen by the device"
	l.Styles.Title = TitleStyle
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.DisableQuitKeybindings()
	return l
}

// networkItems converts scan results in device order
func networkItems(networks []device.NetworkRecord) []list.Item {
	items := make([]list.Item, len(networks))
	for i, n := range networks {
		items[i] = networkItem{network: n}
	}
	return items
}

// selectedNetwork returns the highlighted network, if any
func (m AppModel) selectedNetwork() (device.NetworkRecord, bool) {
	if item, ok := m.Networks.SelectedItem().(networkItem); ok {
		return item.network, true
	}
	return device.NetworkRecord{}, false
}

// renderScanning renders the centered scanning progress display
func (m AppModel) renderScanning(width int) string {
	elapsed := m.now().Sub(m.phaseStarted)
	if elapsed < 0 {
		elapsed = 0
	}

	budget := m.scanBudget()
	fraction := 0.0
	if budget > 0 {
		fraction = float64(elapsed) / float64(budget)
	}
	if fraction > 1 {
		fraction = 1
	}

	content := lipgloss.JoinVertical(lipgloss.Center,
		"",
		TitleStyle.Render(fmt.Sprintf("%s SCANNING FOR NETWORKS", m.Spinner.View())),
		SubtitleStyle.Render("The device is listening for nearby access points..."),
		"",
		m.ProgressBar.ViewAs(fraction),
		"",
		SubtitleStyle.Render(fmt.Sprintf("Elapsed: %ds of up to %ds", int(elapsed.Seconds()), int(budget.Seconds()))),
		"",
	)

	return lipgloss.Place(width, 0, lipgloss.Center, lipgloss.Top, content)
}

// renderNetworks renders the network list or the empty result
func (m AppModel) renderNetworks() string {
	var b strings.Builder
	b.WriteString("\n")

	if m.State == provision.StateNoNetworks {
		b.WriteString(RenderWarning("The device did not see any networks"))
		b.WriteString("\n\n")
		b.WriteString("  Troubleshooting:\n")
		b.WriteString("    • Move the device closer to your access point\n")
		b.WriteString("    • Check that the access point broadcasts on 2.4 GHz\n")
		b.WriteString("    • Press r to scan again\n")
		b.WriteString("    • Press h to enter the name of a hidden network\n")
		return b.String()
	}

	b.WriteString(m.Networks.View())
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(RenderError(m.notice))
		b.WriteString("\n")
	}
	return b.String()
}

// scanBudget is the longest a scan can take before it times out
func (m AppModel) scanBudget() time.Duration {
	interval := m.cfg.Options.ScanInterval
	if interval <= 0 {
		interval = provision.DefaultScanInterval
	}
	attempts := m.cfg.Options.ScanMaxAttempts
	if attempts <= 0 {
		attempts = provision.DefaultScanMaxAttempts
	}
	return interval * time.Duration(attempts)
}
