// Package registry tracks processes started during a test run so they can
// be force-killed at teardown.
package registry

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	gprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/randomizedcoder/go-cli-e2e-harness/internal/logging"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/metrics"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/process"
)

// DrainReport summarizes one DrainAndKill pass.
type DrainReport struct {
	Killed        []int
	AlreadyExited []int
	Failed        []int
}

// Total returns the number of entries visited.
func (d DrainReport) Total() int {
	return len(d.Killed) + len(d.AlreadyExited) + len(d.Failed)
}

// Registry is an ordered list of started processes. Entries are only
// removed by Reset. It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries []process.Result

	logger  *slog.Logger
	metrics *metrics.Collector

	killEntry func(process.Result) (bool, error)
	kill      func(pid int) (bool, error)
	processes func(ctx context.Context) ([]*gprocess.Process, error)
	protected map[int32]bool
}

// New creates an empty registry.
func New(logger *slog.Logger, collector *metrics.Collector) *Registry {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry{
		logger:    logger,
		metrics:   collector,
		killEntry: process.Result.Kill,
		kill:      process.KillTree,
		processes: gprocess.ProcessesWithContext,
		protected: map[int32]bool{
			int32(os.Getpid()):  true,
			int32(os.Getppid()): true,
		},
	}
}

// Register appends r. Duplicates are kept.
//
// The runner registers a synchronous run before waiting on it, so that
// entry has no exit code and Complete false even after Run has returned
// the finished Result. Only PID and the process group are relied on here.
func (g *Registry) Register(r process.Result) {
	g.mu.Lock()
	g.entries = append(g.entries, r)
	n := len(g.entries)
	g.mu.Unlock()

	g.metrics.SetRegistered(n)
	g.logger.Debug("process_registered", append(r.LogAttrs(), "registered", n)...)
}

// Entries returns a copy of the registered results in registration order.
func (g *Registry) Entries() []process.Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]process.Result, len(g.entries))
	copy(out, g.entries)
	return out
}

// Len returns the number of registered results.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// Reset forgets every entry without killing anything.
func (g *Registry) Reset() {
	g.mu.Lock()
	g.entries = nil
	g.mu.Unlock()

	g.metrics.SetRegistered(0)
}

// DrainAndKill force-kills every registered process and everything it
// spawned, including children left behind by a shell that already exited.
// An entry with nothing left to kill counts as already exited. Failures
// are logged, never returned, and entries are kept, so calling it again
// is harmless.
func (g *Registry) DrainAndKill(ctx context.Context) DrainReport {
	var report DrainReport

	for _, entry := range g.Entries() {
		if ctx.Err() != nil {
			g.logger.Warn("drain_interrupted", "error", ctx.Err(), "remaining", g.Len()-report.Total())
			break
		}

		killed, err := g.killEntry(entry)
		switch {
		case err != nil:
			report.Failed = append(report.Failed, entry.PID)
			g.metrics.RecordKill(metrics.KillSourceRegistry, metrics.KillResultFailed)
			g.logger.Warn("process_kill_failed", append(entry.LogAttrs(), "error", err)...)
		case killed:
			report.Killed = append(report.Killed, entry.PID)
			g.metrics.RecordKill(metrics.KillSourceRegistry, metrics.KillResultKilled)
			g.logger.Info("process_killed", entry.LogAttrs()...)
		default:
			report.AlreadyExited = append(report.AlreadyExited, entry.PID)
			g.metrics.RecordKill(metrics.KillSourceRegistry, metrics.KillResultNotFound)
			g.logger.Debug("process_already_exited", entry.LogAttrs()...)
		}
	}

	g.logger.Info("registry_drained",
		"killed", len(report.Killed),
		"already_exited", len(report.AlreadyExited),
		"failed", len(report.Failed),
	)
	return report
}

// KillByCommandSubstring kills every OS process whose command line contains
// substr, except the harness and its parent. It returns the killed pids.
// An empty substr does nothing.
func (g *Registry) KillByCommandSubstring(ctx context.Context, substr string) []int32 {
	if substr == "" {
		return nil
	}

	procs, err := g.processes(ctx)
	if err != nil {
		g.logger.Warn("process_list_failed", "error", err)
		return nil
	}

	var killed []int32
	for _, p := range procs {
		if g.protected[p.Pid] {
			continue
		}
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil || !strings.Contains(cmdline, substr) {
			continue
		}

		ok, err := g.kill(int(p.Pid))
		switch {
		case err != nil:
			g.metrics.RecordKill(metrics.KillSourceMatch, metrics.KillResultFailed)
			g.logger.Warn("process_kill_failed", "pid", p.Pid, "match", substr, "error", err)
		case ok:
			killed = append(killed, p.Pid)
			g.metrics.RecordKill(metrics.KillSourceMatch, metrics.KillResultKilled)
			g.logger.Info("process_killed", "pid", p.Pid, "match", substr, "cmdline", cmdline)
		default:
			g.metrics.RecordKill(metrics.KillSourceMatch, metrics.KillResultNotFound)
		}
	}
	return killed
}
