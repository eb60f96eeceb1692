package provision

import (
	"fmt"
	"time"

	"github.com/muurk/wifiprov/internal/retry"
)

const (
	// DefaultScanInterval is the fixed wait between scan result requests
	DefaultScanInterval = 2 * time.Second

	// DefaultScanMaxAttempts bounds scan result requests (about 30s)
	DefaultScanMaxAttempts = 15

	// DefaultFailureThreshold is the number of consecutive transport failures
	// while verifying that marks the device unreachable
	DefaultFailureThreshold = 3
)

// Options tunes the pollers. Zero fields take the defaults.
type Options struct {
	ScanInterval     time.Duration
	ScanMaxAttempts  int
	Backoff          retry.Schedule
	FailureThreshold int

	// Sleeper performs every wait. Defaults to retry.Timer.
	Sleeper retry.Sleeper
	// Clock stamps events and poll attempts. Defaults to time.Now.
	Clock func() time.Time
	// Observer receives poll activity. Defaults to a no-op.
	Observer Observer
	// SessionID labels events and logs. Generated when empty.
	SessionID string
}

// DefaultOptions returns the stock thresholds.
func DefaultOptions() Options {
	return Options{
		ScanInterval:     DefaultScanInterval,
		ScanMaxAttempts:  DefaultScanMaxAttempts,
		Backoff:          retry.DefaultSchedule(),
		FailureThreshold: DefaultFailureThreshold,
	}
}

// Validate rejects negative or inconsistent settings.
func (o Options) Validate() error {
	if o.ScanInterval < 0 {
		return fmt.Errorf("scan interval must not be negative, got %v", o.ScanInterval)
	}
	if o.ScanMaxAttempts < 0 {
		return fmt.Errorf("scan attempts must not be negative, got %d", o.ScanMaxAttempts)
	}
	if o.FailureThreshold < 0 {
		return fmt.Errorf("failure threshold must not be negative, got %d", o.FailureThreshold)
	}
	if len(o.Backoff.Steps) > 0 || o.Backoff.Cap > 0 {
		if _, err := retry.NewSchedule(o.Backoff.Cap, o.Backoff.Steps...); err != nil {
			return err
		}
	}
	return nil
}

// withDefaults fills unset values. Negative values and a malformed backoff
// schedule are replaced by the defaults as well.
func (o Options) withDefaults() Options {
	if o.ScanInterval <= 0 {
		o.ScanInterval = DefaultScanInterval
	}
	if o.ScanMaxAttempts <= 0 {
		o.ScanMaxAttempts = DefaultScanMaxAttempts
	}
	if _, err := retry.NewSchedule(o.Backoff.Cap, o.Backoff.Steps...); err != nil {
		o.Backoff = retry.DefaultSchedule()
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.Sleeper == nil {
		o.Sleeper = retry.Timer{}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}
