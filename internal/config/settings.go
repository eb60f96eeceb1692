package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/provision"
	"github.com/muurk/wifiprov/internal/retry"
)

// EnvPrefix prefixes every environment override (WIFIPROV_DEVICE_HOST, ...).
const EnvPrefix = "WIFIPROV"

// Setting keys. Nested keys map to YAML sections and to env vars with "." → "_".
const (
	KeyDeviceHost         = "device.host"
	KeyDevicePort         = "device.port"
	KeyRequestTimeout     = "device.request_timeout"
	KeyScanRequestTimeout = "device.scan_request_timeout"
	KeyScanInterval       = "scan.interval"
	KeyScanMaxAttempts    = "scan.max_attempts"
	KeyBackoff            = "verify.backoff"
	KeyBackoffCap         = "verify.backoff_cap"
	KeyFailureThreshold   = "verify.failure_threshold"
	KeyLogLevel           = "log.level"
	KeyLogFormat          = "log.format"
	KeyListen             = "serve.listen"
	KeyDiscoverTimeout    = "discover.timeout"
	KeyDiscoverService    = "discover.service"
)

// DefaultListen is the bridge server's listen address.
const DefaultListen = "127.0.0.1:8787"

// DefaultDiscoverService is the mDNS service devices announce once on the station network.
const DefaultDiscoverService = "_http._tcp"

// flagKeys maps command-line flag names to setting keys.
var flagKeys = map[string]string{
	"host":                 KeyDeviceHost,
	"port":                 KeyDevicePort,
	"request-timeout":      KeyRequestTimeout,
	"scan-request-timeout": KeyScanRequestTimeout,
	"scan-interval":        KeyScanInterval,
	"scan-attempts":        KeyScanMaxAttempts,
	"backoff":              KeyBackoff,
	"backoff-cap":          KeyBackoffCap,
	"failure-threshold":    KeyFailureThreshold,
	"log-level":            KeyLogLevel,
	"log-format":           KeyLogFormat,
	"listen":               KeyListen,
	"discover-timeout":     KeyDiscoverTimeout,
}

// Settings are the effective runtime settings after defaults, config file,
// environment and flags have been merged.
type Settings struct {
	DeviceHost         string
	DevicePort         int
	RequestTimeout     time.Duration
	ScanRequestTimeout time.Duration

	ScanInterval     time.Duration
	ScanMaxAttempts  int
	Backoff          retry.Schedule
	FailureThreshold int

	LogLevel  string
	LogFormat string

	Listen          string
	DiscoverTimeout time.Duration
	DiscoverService string

	// File is the config file that was read, empty when none was used.
	File string
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() *Settings {
	return &Settings{
		DeviceHost:         device.DefaultHost,
		DevicePort:         device.DefaultPort,
		RequestTimeout:     device.DefaultRequestTimeout,
		ScanRequestTimeout: device.DefaultScanRequestTimeout,
		ScanInterval:       provision.DefaultScanInterval,
		ScanMaxAttempts:    provision.DefaultScanMaxAttempts,
		Backoff:            retry.DefaultSchedule(),
		FailureThreshold:   provision.DefaultFailureThreshold,
		LogFormat:          "console",
		Listen:             DefaultListen,
		DiscoverTimeout:    10 * time.Second,
		DiscoverService:    DefaultDiscoverService,
	}
}

// AddFlags registers the setting flags on fs with their defaults.
func AddFlags(fs *pflag.FlagSet) {
	d := DefaultSettings()
	fs.String("host", d.DeviceHost, "Device address")
	fs.Int("port", d.DevicePort, "Device HTTP port")
	fs.Duration("request-timeout", d.RequestTimeout, "Timeout for each device request")
	fs.Duration("scan-request-timeout", d.ScanRequestTimeout, "Timeout for each scan results request")
	fs.Duration("scan-interval", d.ScanInterval, "Wait between scan result polls")
	fs.Int("scan-attempts", d.ScanMaxAttempts, "Scan result polls before giving up")
	fs.String("backoff", stepsString(d.Backoff.Steps), "Status poll delays, comma separated")
	fs.Duration("backoff-cap", d.Backoff.Cap, "Status poll delay after the listed steps")
	fs.Int("failure-threshold", d.FailureThreshold, "Consecutive unreachable polls before giving up")
	fs.String("log-level", "", "Log level (debug, info, warn, error); silent when empty")
}

// Loader merges settings from defaults, an optional YAML file, WIFIPROV_*
// environment variables and bound flags, in increasing precedence.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader with defaults and environment overrides applied.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := DefaultSettings()
	v.SetDefault(KeyDeviceHost, d.DeviceHost)
	v.SetDefault(KeyDevicePort, d.DevicePort)
	v.SetDefault(KeyRequestTimeout, d.RequestTimeout)
	v.SetDefault(KeyScanRequestTimeout, d.ScanRequestTimeout)
	v.SetDefault(KeyScanInterval, d.ScanInterval)
	v.SetDefault(KeyScanMaxAttempts, d.ScanMaxAttempts)
	v.SetDefault(KeyBackoff, stepsString(d.Backoff.Steps))
	v.SetDefault(KeyBackoffCap, d.Backoff.Cap)
	v.SetDefault(KeyFailureThreshold, d.FailureThreshold)
	v.SetDefault(KeyLogLevel, "")
	v.SetDefault(KeyLogFormat, d.LogFormat)
	v.SetDefault(KeyListen, d.Listen)
	v.SetDefault(KeyDiscoverTimeout, d.DiscoverTimeout)
	v.SetDefault(KeyDiscoverService, d.DiscoverService)

	return &Loader{v: v}
}

// BindFlags binds every known flag present in fs. Unknown flags are ignored.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag --%s: %w", name, err)
		}
	}
	return nil
}

// Set overrides a key, for callers that compute a value at runtime.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// Load reads the config file at path. An empty path tries the default location
// and silently skips it when missing.
func (l *Loader) Load(path string) (*Settings, error) {
	if path == "" {
		def, err := GetConfigPath()
		if err == nil {
			if _, statErr := os.Stat(def); statErr == nil {
				path = def
			}
		}
	}

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	s, err := l.parse()
	if err != nil {
		return nil, err
	}
	s.File = path
	return s, nil
}

// LoadReader loads settings from YAML content (useful for testing).
func (l *Loader) LoadReader(content string) (*Settings, error) {
	if err := l.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return l.parse()
}

func (l *Loader) parse() (*Settings, error) {
	s := &Settings{
		DeviceHost:         strings.TrimSpace(l.v.GetString(KeyDeviceHost)),
		DevicePort:         l.v.GetInt(KeyDevicePort),
		RequestTimeout:     l.v.GetDuration(KeyRequestTimeout),
		ScanRequestTimeout: l.v.GetDuration(KeyScanRequestTimeout),
		ScanInterval:       l.v.GetDuration(KeyScanInterval),
		ScanMaxAttempts:    l.v.GetInt(KeyScanMaxAttempts),
		FailureThreshold:   l.v.GetInt(KeyFailureThreshold),
		LogLevel:           l.v.GetString(KeyLogLevel),
		LogFormat:          l.v.GetString(KeyLogFormat),
		Listen:             l.v.GetString(KeyListen),
		DiscoverTimeout:    l.v.GetDuration(KeyDiscoverTimeout),
		DiscoverService:    l.v.GetString(KeyDiscoverService),
	}

	// Accept both "2s,5s,10s" and a YAML list
	steps, err := retry.ParseSteps(strings.Join(l.v.GetStringSlice(KeyBackoff), ","))
	if err != nil {
		return nil, err
	}
	s.Backoff, err = retry.NewSchedule(l.v.GetDuration(KeyBackoffCap), steps...)
	if err != nil {
		return nil, err
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the merged settings.
func (s *Settings) Validate() error {
	var errs []error
	if s.DeviceHost == "" {
		errs = append(errs, errors.New("device.host is required"))
	}
	if s.DevicePort <= 0 || s.DevicePort > 65535 {
		errs = append(errs, fmt.Errorf("device.port must be 1-65535, got %d", s.DevicePort))
	}
	if s.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("device.request_timeout must be positive, got %v", s.RequestTimeout))
	}
	if s.ScanRequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("device.scan_request_timeout must be positive, got %v", s.ScanRequestTimeout))
	}
	if s.ScanInterval <= 0 {
		errs = append(errs, fmt.Errorf("scan.interval must be positive, got %v", s.ScanInterval))
	}
	if s.ScanMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("scan.max_attempts must be at least 1, got %d", s.ScanMaxAttempts))
	}
	if s.FailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("verify.failure_threshold must be at least 1, got %d", s.FailureThreshold))
	}
	switch s.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", s.LogFormat))
	}
	return errors.Join(errs...)
}

// DeviceURL returns the device's base URL.
func (s *Settings) DeviceURL() string {
	return fmt.Sprintf("http://%s:%d", s.DeviceHost, s.DevicePort)
}

// NewDeviceClient builds a device client with the configured timeouts.
func (s *Settings) NewDeviceClient() *device.Client {
	c := device.NewClient(s.DeviceHost, s.DevicePort)
	c.SetTimeouts(s.RequestTimeout, s.ScanRequestTimeout)
	return c
}

// ProvisionOptions converts the polling settings into workflow options.
func (s *Settings) ProvisionOptions() provision.Options {
	opts := provision.DefaultOptions()
	opts.ScanInterval = s.ScanInterval
	opts.ScanMaxAttempts = s.ScanMaxAttempts
	opts.Backoff = s.Backoff
	opts.FailureThreshold = s.FailureThreshold
	return opts
}

func stepsString(steps []time.Duration) string {
	parts := make([]string, len(steps))
	for i, d := range steps {
		parts[i] = d.String()
	}
	return strings.Join(parts, ",")
}
