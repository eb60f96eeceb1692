package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/discovery"
	"github.com/muurk/wifiprov/internal/logging"
	"github.com/muurk/wifiprov/internal/provision"
	"github.com/muurk/wifiprov/internal/ui"
)

// Screen represents the current active screen in the application
type Screen string

const (
	ScreenIdle        Screen = "idle"
	ScreenScanning    Screen = "scanning"
	ScreenNetworks    Screen = "networks"
	ScreenCredentials Screen = "credentials"
	ScreenVerifying   Screen = "verifying"
	ScreenConnected   Screen = "connected"
	ScreenFailure     Screen = "failure"
)

// eventBuffer sizes the workflow event channel
const eventBuffer = 64

// Messages for async operations
type workflowEventMsg provision.Event

type operationDoneMsg struct {
	op  string
	err error
}

type deviceLookupMsg struct {
	device *discovery.Device
	err    error
}

// bindingList is the key map for screens with a flat list of actions
type bindingList []key.Binding

// ShortHelp returns keybindings to be shown in the mini help view
func (b bindingList) ShortHelp() []key.Binding {
	return b
}

// FullHelp returns keybindings for the expanded help view
func (b bindingList) FullHelp() [][]key.Binding {
	return [][]key.Binding{b}
}

func binding(keys, help string) key.Binding {
	return key.NewBinding(
		key.WithKeys(strings.Split(keys, "/")...),
		key.WithHelp(keys, help),
	)
}

// Config wires the wizard to a device.
type Config struct {
	Device  provision.Device
	Options provision.Options

	// DeviceAddr is shown in the header
	DeviceAddr string

	// Listeners also receive every workflow event
	Listeners []provision.Listener

	// Scanner looks the device up over mDNS once it has joined.
	// Nil hides the lookup action.
	Scanner *discovery.Scanner

	// OnConnected runs on the UI goroutine after a successful provisioning
	OnConnected func(ssid string, status device.ConnectionStatus)

	// AutoScan starts a scan as soon as the wizard opens
	AutoScan bool
}

// AppModel is the top-level model. It owns one provisioning workflow and
// renders whatever state the workflow last reported.
type AppModel struct {
	CurrentScreen Screen

	// Workflow state as last reported
	State    provision.State
	Last     provision.Event
	Status   *device.ConnectionStatus
	LastErr  error
	Networks list.Model
	Form     credentialsForm

	// Target is the SSID of the last submission
	Target string

	// mDNS lookup after provisioning
	LookingUp bool
	Found     *discovery.Device
	LookupErr error

	// UI state
	Width       int
	Height      int
	Spinner     spinner.Model
	ProgressBar progress.Model
	Help        help.Model

	cfg          Config
	wf           *provision.Workflow
	events       *provision.ChanListener
	ctx          context.Context
	stop         context.CancelFunc
	phaseStarted time.Time
	notice       string
	networkKeys  networkKeyMap
	formKeys     credentialsKeyMap
}

// NewAppModel creates the wizard and its workflow session
func NewAppModel(cfg Config) AppModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	progressBar := progress.New(progress.WithDefaultGradient())
	progressBar.Width = 40

	events := provision.NewChanListener(eventBuffer)
	listeners := append([]provision.Listener{events}, cfg.Listeners...)
	ctx, stop := context.WithCancel(context.Background())

	return AppModel{
		CurrentScreen: ScreenIdle,
		State:         provision.StateIdle,
		Networks:      newNetworkList(),
		Form:          newCredentialsForm(),
		Spinner:       s,
		ProgressBar:   progressBar,
		Help:          help.New(),
		cfg:           cfg,
		wf:            provision.New(cfg.Device, cfg.Options, listeners...),
		events:        events,
		ctx:           ctx,
		stop:          stop,
		networkKeys:   newNetworkKeyMap(),
		formKeys:      newCredentialsKeyMap(),
	}
}

// SessionID returns the workflow session identifier
func (m AppModel) SessionID() string {
	return m.wf.ID()
}

// Close cancels the running phase and ends the session. It is safe to call
// more than once.
func (m AppModel) Close() {
	m.stop()
	_ = m.wf.Close()
}

// Init starts listening for workflow events
func (m AppModel) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForEvent(m.ctx, m.events.C), m.Spinner.Tick}
	if m.cfg.AutoScan {
		cmds = append(cmds, m.startScan())
	}
	return tea.Batch(cmds...)
}

// Update handles all messages and routes them to the appropriate screen
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Networks.SetWidth(CalculateBoxWidth(msg.Width) - 6)
		m.Networks.SetHeight(max(5, msg.Height-12))
		m.ProgressBar.Width = min(60, max(20, msg.Width-20))
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.Close()
			return m, tea.Quit
		}
		return m.handleKey(msg)

	case workflowEventMsg:
		m, cmd = m.applyEvent(provision.Event(msg))
		return m, tea.Batch(cmd, waitForEvent(m.ctx, m.events.C))

	case operationDoneMsg:
		return m.handleDone(msg), nil

	case deviceLookupMsg:
		m.LookingUp = false
		m.Found = msg.device
		m.LookupErr = msg.err
		return m, nil

	case spinner.TickMsg:
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	// Cursor blinks and filter results
	switch {
	case m.Form.Active:
		m.Form, cmd, _ = m.Form.update(msg)
	case m.CurrentScreen == ScreenNetworks:
		m.Networks, cmd = m.Networks.Update(msg)
	}
	return m, cmd
}

// applyEvent mirrors a workflow event into the model
func (m AppModel) applyEvent(ev provision.Event) (AppModel, tea.Cmd) {
	previous := m.State
	m.State = ev.State
	m.Last = ev
	if ev.Status != nil {
		m.Status = ev.Status
	}
	if ev.Err != nil {
		m.LastErr = ev.Err
	}
	if !ev.Transition() {
		return m, nil
	}

	var cmd tea.Cmd
	m.notice = ""
	m.Form = m.Form.close()

	switch ev.State {
	case provision.StateScanning, provision.StateConnecting:
		m.phaseStarted = m.eventTime(ev)
		m.LastErr = nil
		m.Status = nil

	case provision.StateVerifying:
		if previous != provision.StateConnecting {
			m.phaseStarted = m.eventTime(ev)
		}
		m.LastErr = nil

	case provision.StateAwaitingSelection, provision.StateNoNetworks:
		m.Networks.ResetFilter()
		cmd = m.Networks.SetItems(networkItems(ev.Networks))
		m.Networks.Select(0)

	case provision.StateIdle:
		m.Status = nil
		m.LastErr = nil
		cmd = m.Networks.SetItems(nil)

	case provision.StateConnected:
		m.Found = nil
		m.LookupErr = nil
		if m.cfg.OnConnected != nil && m.Status != nil {
			m.cfg.OnConnected(m.Target, *m.Status)
		}
	}

	m.CurrentScreen = screenFor(ev.State)
	return m, cmd
}

func (m AppModel) eventTime(ev provision.Event) time.Time {
	if ev.At.IsZero() {
		return m.now()
	}
	return ev.At
}

func (m AppModel) now() time.Time {
	if m.cfg.Options.Clock != nil {
		return m.cfg.Options.Clock()
	}
	return time.Now()
}

// handleDone reports operation errors the workflow did not turn into a state
func (m AppModel) handleDone(msg operationDoneMsg) AppModel {
	if msg.err == nil {
		return m
	}

	logging.Debug("Wizard operation finished with error",
		zap.String("session", m.wf.ID()),
		zap.String("op", msg.op),
		zap.String("kind", provision.KindOf(msg.err).String()),
		zap.Error(msg.err),
	)

	switch provision.KindOf(msg.err) {
	case provision.KindValidation, provision.KindInvalidState, provision.KindClosed:
		text := device.GetShortErrorMessage(msg.err)
		if m.Form.Active {
			m.Form.Err = text
		} else {
			m.notice = text
		}
	}
	return m
}

func screenFor(s provision.State) Screen {
	switch s {
	case provision.StateScanning:
		return ScreenScanning
	case provision.StateAwaitingSelection, provision.StateNoNetworks:
		return ScreenNetworks
	case provision.StateConnecting, provision.StateVerifying:
		return ScreenVerifying
	case provision.StateConnected:
		return ScreenConnected
	case provision.StateScanFailed, provision.StateConnectFailed, provision.StateUnreachable:
		return ScreenFailure
	default:
		return ScreenIdle
	}
}

// handleKey routes a key press to the current screen
func (m AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.Form.Active {
		return m.updateForm(msg)
	}

	switch m.CurrentScreen {
	case ScreenIdle:
		switch msg.String() {
		case "s", "enter":
			m.notice = ""
			return m, m.startScan()
		case "q", "esc":
			m.Close()
			return m, tea.Quit
		}

	case ScreenScanning, ScreenVerifying:
		switch msg.String() {
		case "esc":
			return m.cancel()
		case "q":
			m.Close()
			return m, tea.Quit
		}

	case ScreenNetworks:
		return m.updateNetworks(msg)

	case ScreenFailure:
		return m.updateFailure(msg)

	case ScreenConnected:
		switch msg.String() {
		case "enter":
			if err := m.wf.Acknowledge(); err != nil {
				m.notice = err.Error()
				return m, nil
			}
			m.Close()
			return m, tea.Quit
		case "d":
			if m.cfg.Scanner != nil && m.Status != nil && m.Status.IP != "" && !m.LookingUp {
				m.LookingUp = true
				m.Found = nil
				m.LookupErr = nil
				return m, m.lookupDevice()
			}
		case "q":
			m.Close()
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m AppModel) updateNetworks(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	// Filter input owns the keyboard while it is open
	if m.Networks.FilterState() == list.Filtering {
		m.Networks, cmd = m.Networks.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "enter":
		if m.State != provision.StateAwaitingSelection {
			return m, nil
		}
		network, ok := m.selectedNetwork()
		if !ok {
			return m, nil
		}
		if strings.TrimSpace(network.SSID) == "" {
			return m.openForm("", nil, false)
		}
		if !network.Secure {
			cmd = m.submit(device.Credentials{SSID: network.SSID}, false)
			return m, cmd
		}
		return m.openForm(network.SSID, &network, false)

	case "h":
		// Also offered after an empty scan
		if m.State == provision.StateAwaitingSelection || m.State == provision.StateNoNetworks {
			return m.openForm("", nil, false)
		}
		return m, nil

	case "r":
		if m.State == provision.StateNoNetworks {
			return m, m.retryScan()
		}
		return m, m.startScan()

	case "esc":
		if m.Networks.FilterState() == list.FilterApplied {
			m.Networks.ResetFilter()
			return m, nil
		}
		return m.cancel()

	case "q":
		m.Close()
		return m, tea.Quit
	}

	m.Networks, cmd = m.Networks.Update(msg)
	return m, cmd
}

func (m AppModel) updateFailure(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "r":
		if m.State == provision.StateScanFailed {
			return m, m.retryScan()
		}
		return m.openForm(m.Target, nil, true)
	case "w":
		if m.State == provision.StateUnreachable {
			return m, m.resume()
		}
	case "s":
		return m, m.retryScan()
	case "esc":
		return m.cancel()
	case "q":
		m.Close()
		return m, tea.Quit
	}
	return m, nil
}

func (m AppModel) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		m.Form = m.Form.close()
		m.CurrentScreen = screenFor(m.State)
		return m, nil
	}

	var (
		cmd    tea.Cmd
		submit bool
	)
	m.Form, cmd, submit = m.Form.update(msg)
	if !submit {
		return m, cmd
	}

	var (
		creds device.Credentials
		err   error
	)
	m.Form, creds, err = m.Form.credentials()
	if err != nil {
		return m, nil
	}
	cmd = m.submit(creds, m.Form.Retry)
	return m, cmd
}

func (m AppModel) openForm(ssid string, network *device.NetworkRecord, retry bool) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.Form, cmd = m.Form.open(ssid, network, retry)
	m.CurrentScreen = ScreenCredentials
	return m, cmd
}

// cancel runs synchronously: Cancel never blocks and its Idle event arrives
// through the listener
func (m AppModel) cancel() (tea.Model, tea.Cmd) {
	if err := m.wf.Cancel(); err != nil {
		m.notice = device.GetShortErrorMessage(err)
	}
	return m, nil
}

// run executes a blocking workflow operation off the UI goroutine
func (m AppModel) run(op string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return operationDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m AppModel) startScan() tea.Cmd {
	wf := m.wf
	return m.run("start scan", func(ctx context.Context) error {
		_, err := wf.StartScan(ctx)
		return err
	})
}

func (m AppModel) retryScan() tea.Cmd {
	wf := m.wf
	return m.run("retry scan", func(ctx context.Context) error {
		_, err := wf.RetryScan(ctx)
		return err
	})
}

// submit records the target SSID, so it takes a pointer
func (m *AppModel) submit(creds device.Credentials, retry bool) tea.Cmd {
	m.Target = creds.SSID
	wf := m.wf
	if retry {
		return m.run("retry connect", func(ctx context.Context) error {
			_, err := wf.RetryConnect(ctx, creds)
			return err
		})
	}
	return m.run("connect", func(ctx context.Context) error {
		_, err := wf.SelectAndConnect(ctx, creds)
		return err
	})
}

func (m AppModel) resume() tea.Cmd {
	wf := m.wf
	return m.run("resume verification", func(ctx context.Context) error {
		_, err := wf.ResumeVerification(ctx)
		return err
	})
}

func (m AppModel) lookupDevice() tea.Cmd {
	scanner := m.cfg.Scanner
	ip := m.Status.IP
	ctx := m.ctx
	return func() tea.Msg {
		found, err := scanner.WaitForAddress(ctx, ip)
		return deviceLookupMsg{device: found, err: err}
	}
}

func waitForEvent(ctx context.Context, events <-chan provision.Event) tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-events:
			return workflowEventMsg(ev)
		case <-ctx.Done():
			return nil
		}
	}
}

// View renders the current screen inside the application container
func (m AppModel) View() string {
	width := m.Width
	if width == 0 {
		width = MinTerminalWidth
	}

	var content, helpText string
	switch m.CurrentScreen {
	case ScreenScanning:
		content = m.renderScanning(width - 4)
		helpText = m.Help.View(bindingList{binding("esc", "cancel"), binding("q", "quit")})
	case ScreenNetworks:
		content = m.renderNetworks()
		if m.State == provision.StateNoNetworks {
			helpText = m.Help.View(bindingList{binding("h", "hidden network"), binding("r", "rescan"), binding("esc", "cancel"), binding("q", "quit")})
		} else {
			helpText = m.Help.View(m.networkKeys)
		}
	case ScreenCredentials:
		content = m.Form.View()
		helpText = m.Help.View(m.formKeys)
	case ScreenVerifying:
		content = m.renderVerifying(width - 4)
		helpText = m.Help.View(bindingList{binding("esc", "cancel"), binding("q", "quit")})
	case ScreenConnected:
		content = m.renderConnected()
		helpText = m.Help.View(m.connectedKeys())
	case ScreenFailure:
		content = m.renderFailure()
		helpText = m.Help.View(m.failureKeys())
	default:
		content = m.renderIdle()
		helpText = m.Help.View(bindingList{binding("s", "scan"), binding("q", "quit")})
	}

	return RenderApplicationContainer(m.cfg.DeviceAddr, content, helpText, m.Width, m.Height)
}

func (m AppModel) connectedKeys() bindingList {
	keys := bindingList{binding("enter", "done")}
	if m.cfg.Scanner != nil {
		keys = append(keys, binding("d", "find on network"))
	}
	return append(keys, binding("q", "quit"))
}

func (m AppModel) failureKeys() bindingList {
	var keys bindingList
	switch m.State {
	case provision.StateScanFailed:
		keys = bindingList{binding("r", "retry scan")}
	case provision.StateUnreachable:
		keys = bindingList{binding("w", "keep waiting"), binding("r", "re-enter password"), binding("s", "rescan")}
	default:
		keys = bindingList{binding("r", "re-enter password"), binding("s", "rescan")}
	}
	return append(keys, binding("esc", "start over"), binding("q", "quit"))
}

func (m AppModel) renderIdle() string {
	var b strings.Builder

	b.WriteString(RenderTitle("Connect your device to Wi-Fi"))
	b.WriteString("\n")
	b.WriteString("  1. Join the device's setup access point from this computer\n")
	b.WriteString("  2. Press s to let the device scan for networks\n")
	b.WriteString("  3. Pick your network and enter its password\n\n")
	b.WriteString(RenderSubtitle("  The device reboots its radio while joining. This wizard keeps checking until it answers."))
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(RenderError(m.notice))
		b.WriteString("\n")
	}
	return b.String()
}

func (m AppModel) renderVerifying(width int) string {
	title := fmt.Sprintf("%s CONNECTING TO %s", m.Spinner.View(), strings.ToUpper(m.Target))
	subtitle := "Sending credentials to the device..."
	if m.State == provision.StateVerifying {
		subtitle = "Waiting for the device to join the network..."
	}

	lines := []string{"", TitleStyle.Render(title), SubtitleStyle.Render(subtitle), ""}

	if m.State == provision.StateVerifying && m.Last.Attempt > 0 {
		status := "no answer, the device may be rebooting"
		if m.Last.Status != nil {
			status = m.Last.Status.Summary()
		}
		lines = append(lines, fmt.Sprintf("Check %d: %s", m.Last.Attempt, status))
		if m.Last.NextDelay > 0 {
			lines = append(lines, SubtitleStyle.Render(fmt.Sprintf("Next check in %s", m.Last.NextDelay)))
		}
		lines = append(lines, "")
	}

	elapsed := m.now().Sub(m.phaseStarted).Round(time.Second)
	lines = append(lines, SubtitleStyle.Render(fmt.Sprintf("Elapsed: %s", elapsed)), "")

	content := lipgloss.JoinVertical(lipgloss.Center, lines...)
	return lipgloss.Place(width, 0, lipgloss.Center, lipgloss.Top, content)
}

func (m AppModel) renderConnected() string {
	var b strings.Builder

	ssid := m.Target
	if m.Status != nil && m.Status.SSID != "" {
		ssid = m.Status.SSID
	}

	b.WriteString(RenderTitle("✓ Device Connected"))
	b.WriteString("\n")
	b.WriteString(RenderSuccess(fmt.Sprintf("The device joined %q", ssid)))
	b.WriteString("\n\n")

	if m.Status != nil {
		b.WriteString(fmt.Sprintf("  Network:    %s\n", ssid))
		ip := m.Status.IP
		if ip == "" {
			ip = "(not reported)"
		}
		b.WriteString(fmt.Sprintf("  Address:    %s\n", ip))
	}
	b.WriteString(fmt.Sprintf("  Session:    %s\n", m.wf.ID()))

	switch {
	case m.LookingUp:
		b.WriteString(fmt.Sprintf("\n  %s Looking for the device on your network...\n", m.Spinner.View()))
	case m.Found != nil:
		b.WriteString(fmt.Sprintf("\n  Found on your network: %s\n", m.Found))
	case m.LookupErr != nil:
		b.WriteString(fmt.Sprintf("\n  Not seen on your network yet: %v\n", m.LookupErr))
	}

	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(RenderError(m.notice))
		b.WriteString("\n")
	}
	return b.String()
}

func (m AppModel) renderFailure() string {
	var b strings.Builder

	switch m.State {
	case provision.StateScanFailed:
		b.WriteString(RenderTitle("✗ Scan Failed"))
	case provision.StateUnreachable:
		b.WriteString(RenderTitle("✗ Device Unreachable"))
	default:
		b.WriteString(RenderTitle("✗ Connection Failed"))
	}
	b.WriteString("\n")

	if m.LastErr != nil {
		b.WriteString(ErrorStyle.Render("Error: " + device.GetShortErrorMessage(m.LastErr)))
		b.WriteString("\n\n")
	}

	if tips := ui.Troubleshooting(m.LastErr); len(tips) > 0 {
		b.WriteString("Troubleshooting:\n")
		for _, tip := range tips {
			b.WriteString("  • " + tip + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("What would you like to do?\n\n")
	for _, k := range m.failureKeys() {
		h := k.Help()
		b.WriteString(MenuItemStyle.Render(fmt.Sprintf("%-6s - %s", h.Key, h.Desc)))
		b.WriteString("\n")
	}

	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(RenderError(m.notice))
		b.WriteString("\n")
	}
	return b.String()
}
