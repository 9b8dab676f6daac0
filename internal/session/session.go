// Package session wires the runner, registry and waiter for one test run.
//
// A Session owns its own Prometheus registry and process registry, so tests
// running in parallel never see each other's processes or counters.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-cli-e2e-harness/internal/config"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/logging"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/metrics"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/process"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/registry"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/stats"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/wait"
)

// DefaultTeardownTimeout bounds Teardown when called through Attach.
const DefaultTeardownTimeout = 30 * time.Second

// Session is one harness session.
type Session struct {
	ID       string
	Config   *config.Config
	Logger   *slog.Logger
	Registry *registry.Registry
	Runner   *process.Runner
	Waiter   *wait.Waiter
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer

	output  *logging.OutputHandler
	digest  *stats.DurationDigest
	started time.Time
}

// New validates cfg and builds a session. A nil logger discards output;
// a nil reg gets a fresh prometheus.Registry.
func New(cfg *config.Config, logger *slog.Logger, reg *prometheus.Registry) (*Session, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	id := uuid.NewString()
	logger = logger.With("session", id)
	collector := metrics.NewCollectorWithRegistry(reg)
	procs := registry.New(logger, collector)
	output := logging.NewOutputHandler(logger, logging.ParseLevel(cfg.CommandLogLevel))

	waiter := wait.New(logger, collector)
	waiter.LogPeriod = cfg.PollPeriod

	s := &Session{
		ID:       id,
		Config:   cfg,
		Logger:   logger,
		Registry: procs,
		Runner: process.NewRunner(process.Config{
			Settings:  cfg.ProcessSettings(),
			Registrar: procs,
			Logger:    logger,
			Metrics:   collector,
			Output:    output,
		}),
		Waiter:   waiter,
		Metrics:  collector,
		Gatherer: reg,
		output:   output,
		digest:   stats.NewDurationDigest(),
		started:  time.Now(),
	}

	logger.Info("session_started",
		"work_dir", cfg.WorkDir,
		"logs_dir", cfg.LogsDir,
		"host_os", cfg.HostOS,
		"timeout", cfg.Timeout,
	)
	return s, nil
}

// Run runs a command through the session's runner and records its duration.
func (s *Session) Run(ctx context.Context, opts process.Options) (*process.Result, error) {
	res, err := s.Runner.Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	if res.Complete {
		s.digest.Add(res.Duration)
	}
	return res, nil
}

// Teardown kills every registered process and every process matching a
// configured kill pattern, writes the metrics snapshot if enabled and
// returns the session summary. Kill failures are in the summary, not the
// error; the error is only for the snapshot. Calling it twice is harmless.
func (s *Session) Teardown(ctx context.Context) (stats.Summary, error) {
	registered := s.Registry.Len()
	report := s.Registry.DrainAndKill(ctx)

	matched := 0
	for _, pattern := range s.Config.KillPatterns {
		matched += len(s.Registry.KillByCommandSubstring(ctx, pattern))
	}

	summary := stats.Summary{
		SessionID:          s.ID,
		Elapsed:            time.Since(s.started),
		Runs:               s.Metrics.Starts(process.ModeWait.String()),
		Detached:           s.Metrics.Starts(process.ModeDetached.String()),
		Timeouts:           s.Metrics.Timeouts(),
		ExitCodes:          s.Metrics.ExitCodes(),
		Registered:         registered,
		DrainKilled:        len(report.Killed),
		DrainAlreadyExited: len(report.AlreadyExited),
		DrainFailed:        len(report.Failed),
		MatchKilled:        matched,
		OutputErrors:       s.output.CountErrors(),
		LogsDir:            s.Config.LogsDir,
		MetricsAddr:        s.Config.MetricsAddr,
	}
	summary.FillDurations(s.digest)

	var err error
	if s.Config.SnapshotMetrics {
		path := s.SnapshotPath()
		if err = metrics.WriteSnapshot(s.Gatherer, path); err != nil {
			s.Logger.Error("metrics_snapshot_failed", "path", path, "error", err)
		} else {
			summary.SnapshotPath = path
		}
	}

	s.Logger.Info("session_teardown",
		"registered", registered,
		"killed", summary.DrainKilled,
		"already_exited", summary.DrainAlreadyExited,
		"failed", summary.DrainFailed,
		"match_killed", matched,
	)
	return summary, err
}

// SnapshotPath is where Teardown writes the metrics snapshot.
func (s *Session) SnapshotPath() string {
	return filepath.Join(s.Config.LogsDir, "metrics_"+s.ID+".prom")
}

// TB is the part of testing.TB a session needs.
type TB interface {
	Helper()
	Cleanup(func())
	Logf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Attach tears the session down when t finishes and logs the summary.
// A failed snapshot write fails the test.
func (s *Session) Attach(t TB) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultTeardownTimeout)
		defer cancel()

		summary, err := s.Teardown(ctx)
		if err != nil {
			t.Errorf("session teardown: %v", err)
		}
		t.Logf("%s", stats.FormatSummary(summary, false))
	})
}
