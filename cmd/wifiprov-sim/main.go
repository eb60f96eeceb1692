// Wifiprov-sim runs a simulated device speaking the provisioning HTTP API.
//
// It scans a fixed neighbourhood of networks, reboots after accepting
// credentials and joins after a delay, so the wizard, the run-once commands
// and the browser bridge can be exercised without hardware.
//
// Usage:
//
//	wifiprov-sim [flags]
//
// See 'wifiprov-sim --help' for available options.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/logging"
	"github.com/muurk/wifiprov/internal/simulator"
	"github.com/muurk/wifiprov/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Simulator flags
var (
	listen              string
	logLevel            string
	scanDuration        time.Duration
	rebootWindow        time.Duration
	joinDelay           time.Duration
	stationIP           string
	rejectWrongPassword bool
	trailingGarbage     bool
	failScan            bool
	emptyNeighbourhood  bool
)

var rootCmd = &cobra.Command{
	Use:   "wifiprov-sim",
	Short: "Simulated Wi-Fi provisioning device",
	Long: `Serve the device provisioning API from an in-memory device.

The simulated device reports four networks. "Home" expects the password
"hunter22"; the others accept any password. After credentials are accepted
the device answers 503 for --reboot-window while it restarts, then reports
it joined once --join-delay has passed.

Point wifiprov at it with --host and --port.`,
	Version: version.Version,
	Example: `  # Start on the default address
  wifiprov-sim

  # In another terminal
  wifiprov --host 127.0.0.1 --port 8080

  # Reject wrong passwords up front instead of failing to join
  wifiprov-sim --reject-wrong-password

  # Exercise the empty and failed scan screens
  wifiprov-sim --empty
  wifiprov-sim --fail-scan`,
	SilenceUsage: true,
	RunE:         runSimulator,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	d := simulator.DefaultConfig()
	rootCmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8080", "Address to listen on")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().DurationVar(&scanDuration, "scan-duration", d.ScanDuration, "How long scan results stay pending")
	rootCmd.Flags().DurationVar(&rebootWindow, "reboot-window", d.RebootWindow, "How long the device is unreachable after accepting credentials")
	rootCmd.Flags().DurationVar(&joinDelay, "join-delay", d.JoinDelay, "How long after submission the station link comes up")
	rootCmd.Flags().StringVar(&stationIP, "station-ip", d.StationIP, "Address reported once joined")
	rootCmd.Flags().BoolVar(&rejectWrongPassword, "reject-wrong-password", false, "Answer wrong passwords with 401 instead of failing to join")
	rootCmd.Flags().BoolVar(&trailingGarbage, "trailing-garbage", false, "Append stray bytes to scan results like some firmware does")
	rootCmd.Flags().BoolVar(&failScan, "fail-scan", false, "Fail every scan request")
	rootCmd.Flags().BoolVar(&emptyNeighbourhood, "empty", false, "Report no networks")

	rootCmd.AddCommand(versionCmd)
}

func runSimulator(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return err
	}
	defer logging.Sync()

	if logLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg := simulator.DefaultConfig()
	cfg.ScanDuration = scanDuration
	cfg.RebootWindow = rebootWindow
	cfg.JoinDelay = joinDelay
	cfg.StationIP = stationIP
	cfg.RejectWrongPassword = rejectWrongPassword
	cfg.TrailingGarbage = trailingGarbage
	if emptyNeighbourhood {
		cfg.Networks = []device.NetworkRecord{}
	}

	sim := simulator.New(cfg)
	sim.SetFailScan(failScan)

	listener, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listen, err)
	}
	srv := &http.Server{
		Handler:           sim.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	host, port, _ := net.SplitHostPort(listener.Addr().String())
	logging.Info("Simulated device listening",
		zap.String("addr", listener.Addr().String()),
		zap.Int("networks", len(cfg.Networks)),
		zap.Duration("join_delay", cfg.JoinDelay),
	)
	fmt.Printf("Simulated device on http://%s\n", listener.Addr())
	fmt.Printf("Provision it with: wifiprov --host %s --port %s\n", host, port)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(listener)
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping simulator...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.Describe("wifiprov-sim"))
	},
}
