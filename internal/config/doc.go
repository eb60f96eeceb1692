// Package config provides runtime settings and the device registry for wifiprov.
//
// # Settings
//
// Settings are merged by a viper-backed Loader in increasing precedence:
// built-in defaults, an optional YAML config file, WIFIPROV_* environment
// variables, then command-line flags bound with BindFlags.
//
//	device:
//	  host: 192.168.4.1
//	  port: 80
//	  request_timeout: 8s
//	  scan_request_timeout: 5s
//	scan:
//	  interval: 2s
//	  max_attempts: 15
//	verify:
//	  backoff: [2s, 5s, 10s]
//	  backoff_cap: 30s
//	  failure_threshold: 3
//	log:
//	  level: info
//	serve:
//	  listen: 127.0.0.1:8787
//
// Nested keys map to environment variables by upper-casing and replacing dots
// with underscores, for example WIFIPROV_VERIFY_FAILURE_THRESHOLD.
//
// # Device Registry
//
// The registry is a YAML file remembering each device provisioned from this
// machine: the network it joined, the station address it reported and when.
// It is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/wifiprov/devices.yaml or $HOME/.config/wifiprov/devices.yaml
//   - macOS: $HOME/.config/wifiprov/devices.yaml
//   - Windows: %LOCALAPPDATA%\wifiprov\devices.yaml
//
// # Security
//
// IMPORTANT: Wi-Fi passwords are never written to either file. They are
// prompted for every provisioning run and dropped after submission.
//
// # Usage Example
//
//	loader := config.NewLoader()
//	if err := loader.BindFlags(cmd.Flags()); err != nil {
//	    return err
//	}
//	settings, err := loader.Load(configFile)
//	if err != nil {
//	    return err
//	}
//	wf := provision.New(settings.NewDeviceClient(), settings.ProvisionOptions())
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    return err
//	}
//	registry.RecordProvisioned(addr, status.SSID, status.IP, time.Now())
//	if err := registry.Save(); err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File writes are protected by a mutex and performed atomically.
package config
