// Package metrics exposes provisioning activity as Prometheus metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/provision"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wifiprov"

// Collector records poll activity and workflow transitions.
// It implements provision.Observer and provision.Listener, so one Collector
// can be shared by every session of a process.
type Collector struct {
	pollsTotal       *prometheus.CounterVec
	pollLatency      *prometheus.HistogramVec
	backoffSeconds   *prometheus.HistogramVec
	transitionsTotal *prometheus.CounterVec
	outcomesTotal    *prometheus.CounterVec
	connectDuration  prometheus.Histogram
	activeSessions   prometheus.Gauge

	mu         sync.Mutex
	connecting map[string]time.Time
}

// New creates a Collector and registers it with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "polls_total",
				Help:      "Total number of device polls by poller and outcome",
			},
			[]string{"poller", "outcome"},
		),
		pollLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "poll_latency_seconds",
				Help:      "Latency of device polls in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
			},
			[]string{"poller"},
		),
		backoffSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "backoff_seconds",
				Help:      "Waits scheduled between polls in seconds",
				Buckets:   []float64{1, 2, 5, 10, 30, 60},
			},
			[]string{"poller"},
		),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "transitions_total",
				Help:      "Total number of workflow transitions by target state",
			},
			[]string{"state"},
		),
		outcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "outcomes_total",
				Help:      "Terminal workflow outcomes by state and error kind",
			},
			[]string{"state", "kind"},
		),
		connectDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "connect_duration_seconds",
				Help:      "Time from credential submission to confirmed connection in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 8), // 1s to ~2min
			},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "active_sessions",
				Help:      "Number of open provisioning sessions",
			},
		),
		connecting: make(map[string]time.Time),
	}

	reg.MustRegister(
		c.pollsTotal,
		c.pollLatency,
		c.backoffSeconds,
		c.transitionsTotal,
		c.outcomesTotal,
		c.connectDuration,
		c.activeSessions,
	)
	return c
}

// ObservePoll implements provision.Observer.
func (c *Collector) ObservePoll(poller provision.Poller, outcome device.Outcome, elapsed time.Duration) {
	c.pollsTotal.WithLabelValues(string(poller), outcome.String()).Inc()
	c.pollLatency.WithLabelValues(string(poller)).Observe(elapsed.Seconds())
}

// ObserveBackoff implements provision.Observer.
func (c *Collector) ObserveBackoff(poller provision.Poller, delay time.Duration) {
	c.backoffSeconds.WithLabelValues(string(poller)).Observe(delay.Seconds())
}

// OnStateChange implements provision.Listener.
func (c *Collector) OnStateChange(ev provision.Event) {
	if !ev.Transition() {
		return
	}
	c.transitionsTotal.WithLabelValues(ev.State.String()).Inc()

	switch ev.State {
	case provision.StateConnected, provision.StateNoNetworks, provision.StateUnreachable,
		provision.StateScanFailed, provision.StateConnectFailed:
		c.outcomesTotal.WithLabelValues(ev.State.String(), ev.Kind.String()).Inc()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.State {
	case provision.StateConnecting:
		c.connecting[ev.Session] = ev.At
	case provision.StateConnected:
		if started, ok := c.connecting[ev.Session]; ok {
			c.connectDuration.Observe(ev.At.Sub(started).Seconds())
		}
		delete(c.connecting, ev.Session)
	case provision.StateIdle, provision.StateScanning, provision.StateConnectFailed:
		delete(c.connecting, ev.Session)
	}
}

// SessionOpened increments the open session gauge.
func (c *Collector) SessionOpened() {
	c.activeSessions.Inc()
}

// SessionClosed decrements the open session gauge and forgets the session.
func (c *Collector) SessionClosed(session string) {
	c.activeSessions.Dec()
	c.mu.Lock()
	delete(c.connecting, session)
	c.mu.Unlock()
}
