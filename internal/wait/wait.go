// Package wait polls conditions until they hold or a deadline passes.
//
// The main use is waiting for a detached command to print known messages
// into its log file. Polling re-reads the whole file every period; a file
// that does not exist yet reads as empty.
package wait

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/randomizedcoder/go-cli-e2e-harness/internal/fsutil"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/logging"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/metrics"
)

// DefaultPeriod is the poll period used when none is given.
const DefaultPeriod = 500 * time.Millisecond

// Condition is a predicate polled by Until.
type Condition func() bool

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

// realClock uses time.Now() for production.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Waiter polls conditions. The zero value is not usable; use New.
type Waiter struct {
	// Clock measures elapsed time.
	Clock Clock
	// Sleep pauses between polls. nil sleeps on a timer that also
	// honours context cancellation.
	Sleep func(time.Duration)
	// Reader reads log files for ForLogMessages.
	Reader fsutil.Reader
	// LogPeriod is the poll period for ForLogMessages.
	LogPeriod time.Duration

	logger  *slog.Logger
	metrics *metrics.Collector
}

// New creates a waiter using the real clock and filesystem.
func New(logger *slog.Logger, collector *metrics.Collector) *Waiter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Waiter{
		Clock:     realClock{},
		Reader:    fsutil.OS{},
		LogPeriod: DefaultPeriod,
		logger:    logger,
		metrics:   collector,
	}
}

var defaultWaiter = New(nil, nil)

// Until polls cond with the default waiter.
func Until(cond Condition, timeout, period time.Duration) bool {
	return defaultWaiter.Until(cond, timeout, period)
}

// Until sleeps one period, then evaluates cond, until cond returns true
// or more than timeout has elapsed. cond is always evaluated at least once.
// Time spent inside cond counts against the timeout.
func (w *Waiter) Until(cond Condition, timeout, period time.Duration) bool {
	return w.UntilContext(context.Background(), cond, timeout, period)
}

// UntilContext is Until that also stops, returning false, when ctx is done.
func (w *Waiter) UntilContext(ctx context.Context, cond Condition, timeout, period time.Duration) bool {
	start := w.Clock.Now()
	met := w.poll(ctx, cond, start, timeout, period)
	elapsed := w.Clock.Now().Sub(start)

	w.metrics.RecordWait(metrics.WaitKindCondition, met, elapsed)
	w.logger.Debug("condition_wait_done", "met", met, "elapsed", elapsed, "timeout", timeout)
	return met
}

// ForLogMessages waits until every string in expected appears somewhere in
// the file at path. Order and repetition do not matter. An empty expected
// list is satisfied on the first poll.
func (w *Waiter) ForLogMessages(path string, expected []string, timeout time.Duration) bool {
	return w.ForLogMessagesContext(context.Background(), path, expected, timeout)
}

// ForLogMessagesContext is ForLogMessages that also stops when ctx is done.
func (w *Waiter) ForLogMessagesContext(ctx context.Context, path string, expected []string, timeout time.Duration) bool {
	w.logger.Info("log_wait_started", "log_file", path, "expected", expected, "timeout", timeout)

	start := w.Clock.Now()
	met := w.poll(ctx, func() bool {
		return containsAll(w.Reader.ReadAll(path), expected)
	}, start, timeout, w.LogPeriod)
	elapsed := w.Clock.Now().Sub(start)

	w.metrics.RecordWait(metrics.WaitKindLog, met, elapsed)
	if met {
		w.logger.Info("log_wait_met", "log_file", path, "elapsed", elapsed)
	} else {
		w.logger.Warn("log_wait_timeout",
			"log_file", path,
			"elapsed", elapsed,
			"missing", w.MissingLogMessages(path, expected),
		)
	}
	return met
}

// MissingLogMessages returns the strings in expected not present in the
// file at path right now, in the order given.
func (w *Waiter) MissingLogMessages(path string, expected []string) []string {
	content := w.Reader.ReadAll(path)

	var missing []string
	for _, s := range expected {
		if !strings.Contains(content, s) {
			missing = append(missing, s)
		}
	}
	return missing
}

func (w *Waiter) poll(ctx context.Context, cond Condition, start time.Time, timeout, period time.Duration) bool {
	if period <= 0 {
		period = DefaultPeriod
	}
	for {
		if !w.sleep(ctx, period) {
			return false
		}
		if cond() {
			return true
		}
		if w.Clock.Now().Sub(start) > timeout {
			return false
		}
	}
}

// sleep returns false if ctx ended the pause early.
func (w *Waiter) sleep(ctx context.Context, d time.Duration) bool {
	if w.Sleep != nil {
		w.Sleep(d)
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func containsAll(content string, expected []string) bool {
	for _, s := range expected {
		if !strings.Contains(content, s) {
			return false
		}
	}
	return true
}
