package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/wifiprov/internal/bridge"
	"github.com/muurk/wifiprov/internal/config"
	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/discovery"
	"github.com/muurk/wifiprov/internal/logging"
	"github.com/muurk/wifiprov/internal/provision"
	"github.com/muurk/wifiprov/internal/ui"
)

// Command flags
var (
	outputFormat string

	connectSSID     string
	connectPassword string
	connectHidden   bool
	connectOpen     bool

	resetYes bool

	transcriptDir  string
	allowedOrigins []string
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(serveCmd)
}

// signalContext is cancelled on Ctrl+C so a running workflow stops cleanly
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// scanCmd lists the networks the device can see
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List the networks the device can see",
	Long: `Ask the device to scan for access points and print the results.

Networks are listed in the order the device reports them. The scan gives
up after --scan-attempts polls spaced --scan-interval apart.`,
	Example: `  # Scan with default settings
  wifiprov scan

  # Give slow devices more time
  wifiprov scan --scan-attempts 20

  # JSON output for scripting
  wifiprov scan --format json`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&outputFormat, "format", "table", "Output format (table, json)")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	client := settings.NewDeviceClient()
	wf := provision.New(client, settings.ProvisionOptions())
	defer func() { _ = wf.Close() }()

	printer := ui.NewPrinter(os.Stdout)
	if outputFormat != "json" {
		printer.PrintHeader("SCAN NETWORKS", "wifiprov scan", ui.Param{Key: "Device", Value: client.Addr()})
		printer.Newline()
	}

	networks, err := wf.StartScan(ctx)
	if err != nil {
		if outputFormat == "json" {
			return err
		}
		printer.PrintError("Scan failed", err, ui.Troubleshooting(err))
		return errReported
	}

	if outputFormat == "json" {
		return printJSON(networks)
	}
	if len(networks) == 0 {
		printer.PrintWarning("No networks found",
			ui.Param{Key: "Tip", Value: "Move the device closer to your access point and scan again"},
		)
		return nil
	}
	printer.PrintNetworks(networks)
	printer.Newline()
	printer.Println("Use 'wifiprov connect --ssid <name>' to provision one of them")
	return nil
}

// connectCmd provisions a network without the wizard
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Provision a network and wait for the device to join",
	Long: `Scan, submit credentials and wait until the device reports it joined.

The network must appear in the scan unless --hidden is given, which also
works when the scan found nothing. Without --password the password is
prompted for; pass --open for networks that have none.

After the device joins, wifiprov looks for it over mDNS on the new network
(disable with auto_discover: false in the registry preferences).`,
	Example: `  # Prompt for the password
  wifiprov connect --ssid Home

  # Hidden network
  wifiprov connect --ssid Attic --hidden

  # Open network, non-interactive
  wifiprov connect --ssid Cafe --open`,
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().StringVar(&connectSSID, "ssid", "", "Network name (required)")
	connectCmd.Flags().StringVar(&connectPassword, "password", "", "Network password (prompted when omitted)")
	connectCmd.Flags().BoolVar(&connectHidden, "hidden", false, "Network does not broadcast its name")
	connectCmd.Flags().BoolVar(&connectOpen, "open", false, "Network has no password")
	_ = connectCmd.MarkFlagRequired("ssid")
	connectCmd.MarkFlagsMutuallyExclusive("password", "open")
}

func runConnect(cmd *cobra.Command, args []string) error {
	if err := device.ValidateSSID(connectSSID); err != nil {
		return err
	}

	password := connectPassword
	if !connectOpen && !cmd.Flags().Changed("password") {
		p, err := ui.ReadPassword(os.Stdin, os.Stderr, fmt.Sprintf("Password for %s (empty for open networks): ", connectSSID))
		if err != nil {
			return err
		}
		password = p
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	client := settings.NewDeviceClient()
	runner := ui.NewRunner(ui.RunnerConfig{
		Title:   "Provision Device",
		Command: "wifiprov connect",
		Params: []ui.Param{
			{Key: "Device", Value: client.Addr()},
			{Key: "Network", Value: connectSSID},
			{Key: "Backoff", Value: settings.Backoff.String()},
		},
	})

	wf := provision.New(client, settings.ProvisionOptions(), runner)
	defer func() { _ = wf.Close() }()

	err := runner.Run(ctx, func(ctx context.Context) ([]ui.Param, error) {
		networks, err := wf.StartScan(ctx)
		if err != nil {
			return nil, err
		}

		var network *device.NetworkRecord
		if !connectHidden {
			network = findNetwork(networks, connectSSID)
			if network == nil {
				return nil, fmt.Errorf("network %q was not in the scan results (use --hidden for hidden networks)", connectSSID)
			}
		}

		creds := device.Credentials{SSID: connectSSID, Password: password, Hidden: connectHidden}
		if err := device.ValidateCredentialsForNetwork(creds, network); err != nil {
			return nil, err
		}

		status, err := wf.SelectAndConnect(ctx, creds)
		if err != nil {
			return nil, err
		}
		recordProvisioned(client.Addr(), connectSSID, status.IP)

		details := []ui.Param{
			{Key: "Network", Value: connectSSID},
			{Key: "Address", Value: status.IP},
		}
		if host := lookupProvisioned(ctx, status.IP); host != "" {
			details = append(details, ui.Param{Key: "mDNS", Value: host})
		}
		return details, nil
	})
	if err != nil {
		return errReported
	}
	return nil
}

func findNetwork(networks []device.NetworkRecord, ssid string) *device.NetworkRecord {
	for i := range networks {
		if networks[i].SSID == ssid {
			return &networks[i]
		}
	}
	return nil
}

// lookupProvisioned waits for the device to announce itself on the new
// network. Empty when auto discovery is off or nothing answered.
func lookupProvisioned(ctx context.Context, ip string) string {
	if ip == "" {
		return ""
	}
	reg, err := config.LoadRegistry()
	if err == nil && !reg.Preferences.AutoDiscover {
		return ""
	}

	scanner := discovery.NewScanner()
	scanner.Timeout = settings.DiscoverTimeout
	scanner.Service = settings.DiscoverService

	found, err := scanner.WaitForAddress(ctx, ip)
	if err != nil {
		logging.Debug("Device not found over mDNS", zap.String("ip", ip), zap.Error(err))
		return ""
	}
	return found.Hostname
}

// recordProvisioned remembers a successful provisioning run. Failures are
// logged; they never fail the command.
func recordProvisioned(addr, ssid, ip string) {
	reg, err := config.LoadRegistry()
	if err != nil {
		logging.Warn("Could not load device registry", zap.Error(err))
		return
	}
	reg.RecordProvisioned(addr, ssid, ip, time.Now())
	if err := reg.Save(); err != nil {
		logging.Warn("Could not save device registry", zap.Error(err))
	}
}

// statusCmd shows the device's current link
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the device's connection status",
	Long: `Ask the device whether it is in access point or station mode and
whether its station link is up.`,
	Example: `  # Show status
  wifiprov status

  # JSON output for scripting
  wifiprov status --format json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, compact, json)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	client := settings.NewDeviceClient()
	reply := client.Status(ctx)

	switch reply.Outcome {
	case device.OutcomeFailed:
		return fmt.Errorf("failed to get status from %s: %w", client.Addr(), reply.Err)
	case device.OutcomePending:
		return fmt.Errorf("device at %s is restarting, try again in a few seconds", client.Addr())
	}

	status := reply.Data
	if status.Joined() {
		if reg, err := config.LoadRegistry(); err == nil {
			reg.UpdateDeviceLastSeen(client.Addr(), status.IP)
			_ = reg.Save()
		}
	}

	switch outputFormat {
	case "json":
		return printJSON(status)
	case "compact":
		fmt.Println(status.Summary())
	default:
		fmt.Print(device.FormatStatus(status))
	}
	return nil
}

// resetCmd clears the device's station credentials
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Make the device forget its station network",
	Long: `Clear the Wi-Fi credentials stored on the device.

The device returns to access point mode and has to be provisioned again.
You are asked to confirm unless --yes is given.`,
	Example: `  # Reset with confirmation
  wifiprov reset

  # Reset from a script
  wifiprov reset --yes`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runReset(cmd *cobra.Command, args []string) error {
	client := settings.NewDeviceClient()

	if !resetYes && !ui.ResetConfirmation(os.Stdin, os.Stdout, client.Addr()) {
		return nil
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	printer := ui.NewPrinter(os.Stdout)
	if err := client.ResetWiFi(ctx); err != nil {
		printer.PrintError("Reset failed", err, ui.Troubleshooting(err))
		return errReported
	}

	if reg, err := config.LoadRegistry(); err == nil && reg.Forget(client.Addr()) {
		if err := reg.Save(); err != nil {
			logging.Warn("Could not save device registry", zap.Error(err))
		}
	}

	printer.PrintSuccess("Credentials cleared", ui.Param{Key: "Device", Value: client.Addr()})
	return nil
}

// discoverCmd finds provisioned devices over mDNS
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find provisioned devices on the local network",
	Long: `Browse mDNS/DNS-SD for devices that have joined your network.

Run this from a computer on the same network the device was provisioned
onto. Addresses that match a device in the registry are labelled with
the network it was provisioned to.`,
	Example: `  # Browse for 10 seconds (default)
  wifiprov discover

  # Quick 3-second browse
  wifiprov discover --discover-timeout 3s`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().Duration("discover-timeout", config.DefaultSettings().DiscoverTimeout, "How long to browse for devices")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	scanner := discovery.NewScanner()
	scanner.Timeout = settings.DiscoverTimeout
	scanner.Service = settings.DiscoverService

	fmt.Printf("Browsing for %s devices (timeout: %v)...\n\n", scanner.Service, scanner.Timeout)

	devices, err := scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Make sure this computer is on the network the device joined")
		fmt.Println("  - Some routers block multicast between wired and wireless clients")
		fmt.Println("  - Try increasing --discover-timeout")
		return nil
	}

	known := map[string]string{}
	if reg, err := config.LoadRegistry(); err == nil {
		for _, d := range reg.Devices {
			if d.LastIP != "" {
				known[d.LastIP] = d.LastSSID
			}
		}
	}

	fmt.Printf("Found %d device(s):\n\n", len(devices))
	for i, d := range devices {
		fmt.Printf("%d. %s\n", i+1, d.Name())
		fmt.Printf("   Host:    %s\n", d.ShortHostname())
		fmt.Printf("   Address: %s\n", d.Addr())
		if ssid, ok := known[d.IP]; ok {
			fmt.Printf("   Joined:  %s\n", ssid)
		}
		if len(d.Metadata) > 0 {
			fmt.Printf("   Metadata: %v\n", d.Metadata)
		}
		fmt.Println()
	}
	return nil
}

// devicesCmd lists the devices in the registry
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List previously provisioned devices",
	Long: `Show the devices recorded in the registry after successful provisioning.

The registry lives next to the config file and never contains passwords.`,
	Example: `  # List devices
  wifiprov devices

  # Forget one
  wifiprov devices --forget 192.168.4.1:80`,
	RunE: runDevices,
}

var forgetAddr string

func init() {
	devicesCmd.Flags().StringVar(&forgetAddr, "forget", "", "Remove the device with this address")
}

func runDevices(cmd *cobra.Command, args []string) error {
	reg, err := config.LoadRegistry()
	if err != nil {
		return err
	}

	if forgetAddr != "" {
		if !reg.Forget(forgetAddr) {
			return fmt.Errorf("no device %q in the registry", forgetAddr)
		}
		if err := reg.Save(); err != nil {
			return err
		}
		fmt.Printf("Forgot %s\n", forgetAddr)
		return nil
	}

	addrs := reg.Addresses()
	if len(addrs) == 0 {
		fmt.Println("No devices provisioned yet.")
		return nil
	}
	sort.Strings(addrs)

	for _, addr := range addrs {
		d := reg.GetDevice(addr)
		name := addr
		if d.Nickname != "" {
			name = fmt.Sprintf("%s (%s)", d.Nickname, addr)
		}
		fmt.Println(name)
		fmt.Printf("   Network:     %s\n", d.LastSSID)
		fmt.Printf("   Address:     %s\n", d.LastIP)
		fmt.Printf("   Last seen:   %s\n", d.LastSeen.Local().Format(time.DateTime))
		fmt.Printf("   Provisioned: %d time(s)\n", d.Provisioned)
		fmt.Println()
	}
	return nil
}

// serveCmd runs the browser bridge
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the browser provisioning page",
	Long: `Start an HTTP server with a provisioning page and a WebSocket API.

Each browser tab gets its own provisioning workflow against the configured
device. Prometheus metrics are served on /metrics and a health check on
/healthz.

To keep a record of each session, use --transcript-dir. Transcripts are
JSON lines and never contain passwords.`,
	Example: `  # Serve on the default address
  wifiprov serve

  # Listen on all interfaces with JSON logs
  wifiprov serve --listen 0.0.0.0:8787 --log-level info --log-format json

  # Keep session transcripts
  wifiprov serve --transcript-dir ./transcripts`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", config.DefaultListen, "Address to listen on")
	serveCmd.Flags().StringVar(&transcriptDir, "transcript-dir", "", "Directory for session transcripts (disabled if empty)")
	serveCmd.Flags().StringSliceVar(&allowedOrigins, "allowed-origin", nil, "Extra browser origin allowed to open the WebSocket")
}

func runServe(cmd *cobra.Command, args []string) error {
	if transcriptDir != "" {
		info, err := os.Stat(transcriptDir)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("transcript directory does not exist: %s", transcriptDir)
			}
			return fmt.Errorf("failed to access transcript directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("transcript path is not a directory: %s", transcriptDir)
		}
	}

	srv, err := bridge.New(&bridge.Config{
		Listen:         settings.Listen,
		Device:         settings.NewDeviceClient(),
		Options:        settings.ProvisionOptions(),
		TranscriptDir:  transcriptDir,
		AllowedOrigins: allowedOrigins,
	})
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}

	fmt.Printf("Provisioning page: http://%s/\n", settings.Listen)
	fmt.Printf("Device:            %s\n", settings.DeviceURL())
	fmt.Println("Press Ctrl+C to stop")

	return srv.Start()
}
