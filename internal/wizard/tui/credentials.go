package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/wifiprov/internal/device"
)

// credentialsKeyMap defines key bindings for the credentials form
type credentialsKeyMap struct {
	Next   key.Binding
	Submit key.Binding
	Cancel key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k credentialsKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Submit, k.Cancel}
}

// FullHelp returns keybindings for the expanded help view
func (k credentialsKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Submit, k.Cancel},
	}
}

func newCredentialsKeyMap() credentialsKeyMap {
	return credentialsKeyMap{
		Next: key.NewBinding(
			key.WithKeys("tab", "shift+tab"),
			key.WithHelp("tab", "next field"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "connect"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
	}
}

// credentialsForm collects an SSID and password. For a scanned network the
// SSID is fixed; for a hidden network the user types it.
type credentialsForm struct {
	Active bool
	Hidden bool
	// Retry submits with RetryConnect instead of SelectAndConnect
	Retry bool
	// Network is the scan record the form was opened for, nil when hidden
	Network *device.NetworkRecord

	SSIDInput     textinput.Model
	PasswordInput textinput.Model
	Err           string
}

func newCredentialsForm() credentialsForm {
	ssid := textinput.New()
	ssid.Placeholder = "network name"
	ssid.CharLimit = device.MaxSSIDLength
	ssid.Width = 34

	password := textinput.New()
	password.Placeholder = "leave empty for open networks"
	password.CharLimit = device.MaxPasswordLength
	password.Width = 34
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	return credentialsForm{
		SSIDInput:     ssid,
		PasswordInput: password,
	}
}

// open shows the form. A nil network means hidden SSID entry.
func (f credentialsForm) open(ssid string, network *device.NetworkRecord, retry bool) (credentialsForm, tea.Cmd) {
	f.Active = true
	f.Retry = retry
	f.Network = network
	f.Hidden = network == nil && ssid == ""
	f.Err = ""
	f.SSIDInput.SetValue(ssid)
	f.PasswordInput.SetValue("")

	if f.Hidden {
		f.PasswordInput.Blur()
		cmd := f.SSIDInput.Focus()
		return f, cmd
	}
	f.SSIDInput.Blur()
	cmd := f.PasswordInput.Focus()
	return f, cmd
}

func (f credentialsForm) close() credentialsForm {
	f.Active = false
	f.Err = ""
	f.SSIDInput.Blur()
	f.PasswordInput.Blur()
	f.PasswordInput.SetValue("")
	return f
}

// credentials reads the form. The password is cleared from the input.
func (f credentialsForm) credentials() (credentialsForm, device.Credentials, error) {
	creds := device.Credentials{
		SSID:     strings.TrimSpace(f.SSIDInput.Value()),
		Password: f.PasswordInput.Value(),
		Hidden:   f.Hidden,
	}
	if err := device.ValidateCredentialsForNetwork(creds, f.Network); err != nil {
		f.Err = device.GetShortErrorMessage(err)
		return f, device.Credentials{}, err
	}
	f.PasswordInput.SetValue("")
	return f, creds, nil
}

// update handles typing and focus changes. submit is true when the user
// pressed enter on the last field.
func (f credentialsForm) update(msg tea.Msg) (credentialsForm, tea.Cmd, bool) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "tab", "shift+tab":
			if f.Hidden {
				return f.toggleFocus()
			}
		case "enter":
			if f.Hidden && f.SSIDInput.Focused() {
				return f.toggleFocus()
			}
			return f, nil, true
		}
	}

	var cmd tea.Cmd
	if f.SSIDInput.Focused() {
		f.SSIDInput, cmd = f.SSIDInput.Update(msg)
	} else {
		f.PasswordInput, cmd = f.PasswordInput.Update(msg)
	}
	return f, cmd, false
}

func (f credentialsForm) toggleFocus() (credentialsForm, tea.Cmd, bool) {
	var cmd tea.Cmd
	if f.SSIDInput.Focused() {
		f.SSIDInput.Blur()
		cmd = f.PasswordInput.Focus()
	} else {
		f.PasswordInput.Blur()
		cmd = f.SSIDInput.Focus()
	}
	return f, cmd, false
}

func (f credentialsForm) View() string {
	var b strings.Builder

	switch {
	case f.Hidden:
		b.WriteString(RenderSubtitle("Join a hidden network"))
	case f.Retry:
		b.WriteString(RenderSubtitle("Try the password again for " + f.SSIDInput.Value()))
	default:
		b.WriteString(RenderSubtitle("Join " + f.SSIDInput.Value()))
	}
	b.WriteString("\n\n")

	label := func(text string, focused bool) string {
		if focused {
			return FocusedInputStyle.Render(text)
		}
		return BlurredInputStyle.Render(text)
	}

	if f.Hidden {
		b.WriteString("  " + label("SSID:     ", f.SSIDInput.Focused()))
		b.WriteString(f.SSIDInput.View())
		b.WriteString("\n\n")
	}
	b.WriteString("  " + label("Password: ", f.PasswordInput.Focused()))
	b.WriteString(f.PasswordInput.View())
	b.WriteString("\n")

	if f.Err != "" {
		b.WriteString("\n")
		b.WriteString(RenderError(f.Err))
		b.WriteString("\n")
	}
	return b.String()
}
