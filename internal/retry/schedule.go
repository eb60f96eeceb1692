package retry

import (
	"fmt"
	"strings"
	"time"
)

// Defaults used by the connection poller.
var (
	DefaultSteps = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}
	DefaultCap   = 30 * time.Second
)

// Schedule maps attempt counts to delays.
type Schedule struct {
	// Steps are returned for attempts 1..len(Steps)
	Steps []time.Duration
	// Cap is returned for every attempt past the last step
	Cap time.Duration
}

// DefaultSchedule returns 2s, 5s, 10s then 30s.
func DefaultSchedule() Schedule {
	steps := make([]time.Duration, len(DefaultSteps))
	copy(steps, DefaultSteps)
	return Schedule{Steps: steps, Cap: DefaultCap}
}

// NewSchedule validates and builds a schedule.
// Steps must be positive and non-decreasing, and none may exceed the cap.
func NewSchedule(ceiling time.Duration, steps ...time.Duration) (Schedule, error) {
	if ceiling <= 0 {
		return Schedule{}, fmt.Errorf("backoff cap must be positive, got %v", ceiling)
	}
	var prev time.Duration
	for i, s := range steps {
		if s <= 0 {
			return Schedule{}, fmt.Errorf("backoff step %d must be positive, got %v", i+1, s)
		}
		if s < prev {
			return Schedule{}, fmt.Errorf("backoff step %d (%v) is shorter than step %d (%v)", i+1, s, i, prev)
		}
		if s > ceiling {
			return Schedule{}, fmt.Errorf("backoff step %d (%v) exceeds cap %v", i+1, s, ceiling)
		}
		prev = s
	}
	out := make([]time.Duration, len(steps))
	copy(out, steps)
	return Schedule{Steps: out, Cap: ceiling}, nil
}

// Delay returns the wait before the next attempt.
// attempt is 1-based; values below 1 are treated as 1.
func (s Schedule) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt <= len(s.Steps) {
		return s.Steps[attempt-1]
	}
	return s.Cap
}

// String renders the schedule as "2s,5s,10s→30s".
func (s Schedule) String() string {
	parts := make([]string, len(s.Steps))
	for i, d := range s.Steps {
		parts[i] = d.String()
	}
	return strings.Join(parts, ",") + "→" + s.Cap.String()
}

// ParseSteps parses a comma separated list of durations ("2s,5s,10s").
// Empty fields are skipped.
func ParseSteps(value string) ([]time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	fields := strings.Split(value, ",")
	steps := make([]time.Duration, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		d, err := time.ParseDuration(f)
		if err != nil {
			return nil, fmt.Errorf("invalid backoff step %q: %w", f, err)
		}
		steps = append(steps, d)
	}
	return steps, nil
}
