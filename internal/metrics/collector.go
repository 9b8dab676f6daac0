// Package metrics provides Prometheus metrics for the e2e harness.
//
// Every Collector owns its own metric vectors so that several harness
// sessions (one per test) can live in one test binary, each registered on
// its own prometheus.Registry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Wait kinds used as the "kind" label.
const (
	WaitKindCondition = "condition"
	WaitKindLog       = "log"
)

// Kill sources used as the "source" label.
const (
	KillSourceRegistry = "registry"
	KillSourceMatch    = "match"
	KillSourceTimeout  = "timeout"
)

// Kill results used as the "result" label.
const (
	KillResultKilled   = "killed"
	KillResultNotFound = "not_found"
	KillResultFailed   = "failed"
)

// Collector records process and wait activity for one harness session.
// All methods are safe on a nil *Collector, which records nothing.
type Collector struct {
	commandsStarted *prometheus.CounterVec
	commandExits    *prometheus.CounterVec
	commandTimeouts *prometheus.CounterVec
	commandDuration prometheus.Histogram
	registered      prometheus.Gauge
	kills           *prometheus.CounterVec
	waits           *prometheus.CounterVec
	waitDuration    *prometheus.HistogramVec

	mu        sync.Mutex
	exitCodes map[int]int64
	starts    map[string]int64
	timeouts  int64
	killed    int64
}

// NewCollector creates a collector registered on the default registerer.
func NewCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(registry prometheus.Registerer) *Collector {
	c := &Collector{
		commandsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_commands_started_total",
				Help: "Commands spawned, by execution mode (wait, detached)",
			},
			[]string{"mode"},
		),
		commandExits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_command_exits_total",
				Help: "Synchronous commands that ran to completion, by exit category",
			},
			[]string{"category"},
		),
		commandTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_command_timeouts_total",
				Help: "Synchronous commands killed on timeout",
			},
			[]string{"fail_safe"},
		),
		commandDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name: "harness_command_duration_seconds",
				Help: "Wall-clock duration of completed synchronous commands",
				Buckets: []float64{
					0.01, 0.05, 0.1, 0.25, 0.5,
					1, 2.5, 5, 10, 30,
					60, 120, 300, 600,
				},
			},
		),
		registered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "harness_registered_processes",
				Help: "Processes currently tracked for teardown cleanup",
			},
		),
		kills: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_kills_total",
				Help: "Process termination attempts, by source and result",
			},
			[]string{"source", "result"},
		),
		waits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_waits_total",
				Help: "Poll waits, by kind (condition, log) and result (met, timeout)",
			},
			[]string{"kind", "result"},
		),
		waitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harness_wait_duration_seconds",
				Help:    "Time spent in poll waits",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),
		exitCodes: make(map[int]int64),
		starts:    make(map[string]int64),
	}

	registry.MustRegister(
		c.commandsStarted,
		c.commandExits,
		c.commandTimeouts,
		c.commandDuration,
		c.registered,
		c.kills,
		c.waits,
		c.waitDuration,
	)

	return c
}

// CommandStarted records a spawned command. mode is "wait" or "detached".
func (c *Collector) CommandStarted(mode string) {
	if c == nil {
		return
	}
	c.commandsStarted.WithLabelValues(mode).Inc()

	c.mu.Lock()
	c.starts[mode]++
	c.mu.Unlock()
}

// RecordExit records a synchronous command that completed.
func (c *Collector) RecordExit(exitCode int, duration time.Duration) {
	if c == nil {
		return
	}
	c.commandExits.WithLabelValues(exitCategory(exitCode)).Inc()
	c.commandDuration.Observe(duration.Seconds())

	c.mu.Lock()
	c.exitCodes[exitCode]++
	c.mu.Unlock()
}

// RecordTimeout records a synchronous command killed on timeout.
func (c *Collector) RecordTimeout(failSafe bool) {
	if c == nil {
		return
	}
	label := "false"
	if failSafe {
		label = "true"
	}
	c.commandTimeouts.WithLabelValues(label).Inc()

	c.mu.Lock()
	c.timeouts++
	c.mu.Unlock()
}

// SetRegistered updates the number of processes tracked for cleanup.
func (c *Collector) SetRegistered(n int) {
	if c == nil {
		return
	}
	c.registered.Set(float64(n))
}

// RecordKill records one termination attempt.
func (c *Collector) RecordKill(source, result string) {
	if c == nil {
		return
	}
	c.kills.WithLabelValues(source, result).Inc()

	if result == KillResultKilled {
		c.mu.Lock()
		c.killed++
		c.mu.Unlock()
	}
}

// RecordWait records the outcome of a poll wait.
func (c *Collector) RecordWait(kind string, met bool, elapsed time.Duration) {
	if c == nil {
		return
	}
	result := "timeout"
	if met {
		result = "met"
	}
	c.waits.WithLabelValues(kind, result).Inc()
	c.waitDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ExitCodes returns a copy of the exit code counts.
func (c *Collector) ExitCodes() map[int]int {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[int]int, len(c.exitCodes))
	for code, n := range c.exitCodes {
		out[code] = int(n)
	}
	return out
}

// Starts returns how many commands were spawned in the given mode.
func (c *Collector) Starts(mode string) int64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts[mode]
}

// Timeouts returns how many synchronous commands timed out.
func (c *Collector) Timeouts() int64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeouts
}

// Killed returns how many processes were actually terminated.
func (c *Collector) Killed() int64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.killed
}

// exitCategory buckets exit codes the way shells report them.
func exitCategory(exitCode int) string {
	switch {
	case exitCode == 0:
		return "success"
	case exitCode > 128:
		return "signal"
	default:
		return "error"
	}
}
