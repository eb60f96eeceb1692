// Wifiprov provisions Wi-Fi credentials onto a headless device over its
// setup access point.
//
// Connect your computer to the device's access point, then run wifiprov
// without arguments to start the interactive wizard, or use the run-once
// commands for scripting:
//
//   - scan: list the networks the device can see
//   - connect: provision a network and wait for the device to join
//   - status: show the device's current link
//   - reset: make the device forget its station network
//   - discover: find provisioned devices over mDNS
//   - serve: run the browser-based provisioning bridge
//
// See 'wifiprov --help' for available commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/wifiprov/internal/config"
	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/discovery"
	"github.com/muurk/wifiprov/internal/logging"
	"github.com/muurk/wifiprov/internal/ui"
	"github.com/muurk/wifiprov/internal/version"
	"github.com/muurk/wifiprov/internal/wizard/tui"
)

// errReported is returned by commands that already printed a result box,
// so main exits non-zero without printing the error again.
var errReported = errors.New("already reported")

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err == nil {
		return
	}
	if !errors.Is(err, errReported) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

var (
	configFile string
	noAutoScan bool

	// settings is loaded before any command runs
	settings *config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "wifiprov",
	Short: "Wi-Fi Provisioning Utility",
	Long: `Provision Wi-Fi credentials onto a headless device.

Join the device's setup access point first. Running wifiprov without a
command launches the interactive wizard, which scans for networks, asks
for the password and waits for the device to join.

Settings come from flags, WIFIPROV_* environment variables and
~/.config/wifiprov/config.yaml, in that order of precedence.`,
	Version: version.Version,
	Example: `  # Launch the wizard (default)
  wifiprov

  # Device listening on a non-default address
  wifiprov --host 10.0.0.1 --port 8080

  # Provision without the wizard
  wifiprov connect --ssid Home

  # See the networks the device can reach
  wifiprov scan`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
	RunE:              runWizard,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	config.AddFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().String("log-format", "console", "Log encoding (console, json)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ~/.config/wifiprov/config.yaml)")

	rootCmd.Flags().BoolVar(&noAutoScan, "no-scan", false, "Open the wizard without starting a scan")
	wizardCmd.Flags().BoolVar(&noAutoScan, "no-scan", false, "Open the wizard without starting a scan")

	rootCmd.AddCommand(wizardCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadSettings merges defaults, config file, environment and the flags of
// the command being run, then sets up logging.
func loadSettings(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader()
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return err
	}

	s, err := loader.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	settings = s

	if err := logging.InitializeWithFormat(s.LogLevel, s.LogFormat); err != nil {
		return err
	}
	logging.Debug("Settings loaded",
		zap.String("config_file", s.File),
		zap.String("device", s.DeviceURL()),
		zap.Stringer("backoff", s.Backoff),
	)
	return nil
}

// wizardCmd launches the interactive TUI wizard
var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Launch interactive provisioning wizard",
	Long: `Launch an interactive TUI wizard for provisioning.

The wizard provides a user-friendly interface for:
- Scanning for networks the device can see
- Entering the password, or the name of a hidden network
- Following the device while it reboots and joins
- Finding the device on the new network

This is the recommended way to provision devices for most users.`,
	Example: `  # Launch wizard
  wifiprov wizard
  # Or simply (wizard is default):
  wifiprov

  # Open on the idle screen instead of scanning right away
  wifiprov wizard --no-scan`,
	RunE: runWizard,
}

func runWizard(cmd *cobra.Command, args []string) error {
	if !ui.IsInteractive() {
		return errors.New("the wizard needs a terminal; use 'wifiprov connect' from scripts")
	}

	client := settings.NewDeviceClient()

	// First verify we can reach the device
	ctx, cancel := context.WithTimeout(cmd.Context(), settings.RequestTimeout)
	err := client.Ping(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("cannot reach the device at %s (join its setup access point first): %w", client.Addr(), err)
	}

	scanner := discovery.NewScanner()
	scanner.Timeout = settings.DiscoverTimeout
	scanner.Service = settings.DiscoverService

	model := tui.NewAppModel(tui.Config{
		Device:     client,
		Options:    settings.ProvisionOptions(),
		DeviceAddr: client.Addr(),
		Scanner:    scanner,
		AutoScan:   !noAutoScan,
		OnConnected: func(ssid string, status device.ConnectionStatus) {
			recordProvisioned(client.Addr(), ssid, status.IP)
		},
	})
	defer model.Close()

	logging.Info("Starting wizard", zap.String("session", model.SessionID()), zap.String("device", client.Addr()))

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("wizard error: %w", err)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Printing the version must work even with a broken config file
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.Describe("wifiprov"))
	},
}
