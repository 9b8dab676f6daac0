// Package process runs shell commands for end-to-end tests, either to
// completion or detached with output appended to a log file.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	gprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/randomizedcoder/go-cli-e2e-harness/internal/fsutil"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/logging"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/metrics"
)

// DefaultTimeout applies when neither Options nor Settings carry a timeout.
const DefaultTimeout = 5 * time.Minute

// LogTimeFormat names detached log files: command_<LogTimeFormat>.txt.
const LogTimeFormat = "2006_01_02_15_04_05"

// LogHeaderDelimiter separates the command line from its output in a log file.
const LogHeaderDelimiter = "====="

// recentOutputLines is how much recent output is attached to timeout and
// failure logs.
const recentOutputLines = 20

// waitDelay bounds how long Wait blocks on output pipes held open by
// grandchildren after the shell itself has exited or been killed.
const waitDelay = 2 * time.Second

// Settings are the host-level defaults every run starts from.
type Settings struct {
	WorkDir string
	LogsDir string
	HostOS  string
	Timeout time.Duration
}

// IsWindows reports whether commands run under cmd.exe.
func (s Settings) IsWindows() bool {
	host := s.HostOS
	if host == "" {
		host = runtime.GOOS
	}
	return strings.EqualFold(host, "windows")
}

// Shell returns the interpreter and arguments that run command.
func (s Settings) Shell(command string) (string, []string) {
	if s.IsWindows() {
		return "cmd", []string{"/C", command}
	}
	return "/bin/sh", []string{"-c", command}
}

// Registrar records started processes for cleanup at teardown.
type Registrar interface {
	Register(Result)
}

// Options control a single Run.
type Options struct {
	Command string
	// Dir overrides Settings.WorkDir.
	Dir string
	// Detach returns as soon as the process has started.
	Detach bool
	// Timeout overrides Settings.Timeout for synchronous runs.
	Timeout time.Duration
	// FailSafe turns a timeout into an incomplete Result instead of an error.
	FailSafe bool
	// SkipRegister keeps the process out of the registry.
	SkipRegister bool
	// OutputLevel is the level captured output is logged at.
	// nil uses the runner's output handler level.
	OutputLevel slog.Leveler
}

// Config configures a Runner.
type Config struct {
	Settings  Settings
	Registrar Registrar
	Logger    *slog.Logger
	Metrics   *metrics.Collector
	// Output logs captured output; nil creates one at debug.
	Output *logging.OutputHandler
	// Writer creates detached log files; nil writes to the OS filesystem.
	Writer fsutil.Writer
}

// Runner starts shell commands. It is safe for concurrent use.
type Runner struct {
	settings  Settings
	registrar Registrar
	logger    *slog.Logger
	metrics   *metrics.Collector
	output    *logging.OutputHandler
	writer    fsutil.Writer

	now       func() time.Time
	pidExists func(ctx context.Context, pid int32) (bool, error)
}

// NewRunner creates a runner.
func NewRunner(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	output := cfg.Output
	if output == nil {
		output = logging.NewOutputHandler(logger, slog.LevelDebug)
	}
	writer := cfg.Writer
	if writer == nil {
		writer = fsutil.OS{}
	}

	return &Runner{
		settings:  cfg.Settings,
		registrar: cfg.Registrar,
		logger:    logger,
		metrics:   cfg.Metrics,
		output:    output,
		writer:    writer,
		now:       time.Now,
		pidExists: gprocess.PidExistsWithContext,
	}
}

// Settings returns the runner's defaults.
func (r *Runner) Settings() Settings {
	return r.settings
}

// Output returns the handler captured output is logged through.
func (r *Runner) Output() *logging.OutputHandler {
	return r.output
}

// Run executes opts.Command.
//
// A synchronous run waits for exit or opts.Timeout. On timeout the process
// group is killed; the call returns a *TimeoutError, or with FailSafe an
// incomplete Result and no error. Non-zero exit codes are not errors.
//
// A detached run writes a header to a new log file, starts the command with
// output appended to that file and returns immediately.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	if strings.TrimSpace(opts.Command) == "" {
		return nil, ErrEmptyCommand
	}

	dir := opts.Dir
	if dir == "" {
		dir = r.settings.WorkDir
	}
	if dir != "" {
		if err := fsutil.IsDir(dir); err != nil {
			return nil, &WorkDirError{Dir: dir, Err: err}
		}
	}

	if opts.Detach {
		return r.runDetached(ctx, opts, dir)
	}
	return r.runWait(ctx, opts, dir)
}

func (r *Runner) timeout(opts Options) time.Duration {
	if opts.Timeout > 0 {
		return opts.Timeout
	}
	if r.settings.Timeout > 0 {
		return r.settings.Timeout
	}
	return DefaultTimeout
}

func (r *Runner) runWait(ctx context.Context, opts Options, dir string) (*Result, error) {
	timeout := r.timeout(opts)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := r.shellCommand(runCtx, opts.Command)
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	cmd.Cancel = func() error {
		_, err := KillGroup(cmd.Process.Pid)
		return err
	}
	cmd.WaitDelay = waitDelay

	startedAt := r.now()
	if err := cmd.Start(); err != nil {
		r.logger.Error("command_start_failed", "command", opts.Command, "error", err)
		return nil, fmt.Errorf("start %q: %w", opts.Command, err)
	}
	pid := cmd.Process.Pid

	r.metrics.CommandStarted(ModeWait.String())
	r.logger.Info("command_started",
		"command", opts.Command,
		"pid", pid,
		"dir", dir,
		"timeout", timeout,
	)

	result := Result{
		Command:   opts.Command,
		PID:       pid,
		Mode:      ModeWait,
		StartedAt: startedAt,
		timeout:   timeout,
		ownGroup:  true,
	}
	// Registered before waiting so a hung process is still cleaned up.
	r.register(ctx, opts, result)

	waitErr := cmd.Wait()
	elapsed := r.now().Sub(startedAt)

	if waitErr != nil && runCtx.Err() != nil {
		if ctx.Err() != nil {
			r.logger.Warn("command_interrupted", "command", opts.Command, "pid", pid, "error", ctx.Err())
			return nil, fmt.Errorf("command %q interrupted: %w", opts.Command, ctx.Err())
		}

		r.metrics.RecordTimeout(opts.FailSafe)
		r.metrics.RecordKill(metrics.KillSourceTimeout, metrics.KillResultKilled)
		r.output.HandleOutputAt(r.outputLevel(opts), strings.ToValidUTF8(out.String(), "�"), "pid", pid)
		r.logger.Warn("command_timeout",
			"command", opts.Command,
			"pid", pid,
			"timeout", timeout,
			"fail_safe", opts.FailSafe,
			"recent_output", r.output.RecentLines(recentOutputLines),
		)
		if !opts.FailSafe {
			return nil, &TimeoutError{Command: opts.Command, PID: pid, Timeout: timeout}
		}
		return &result, nil
	}

	if waitErr != nil && cmd.ProcessState == nil {
		return nil, fmt.Errorf("wait %q: %w", opts.Command, waitErr)
	}
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		r.logger.Debug("command_output_pipe_held_open", "command", opts.Command, "pid", pid)
	}

	if elapsed <= 0 {
		elapsed = time.Nanosecond
	}
	code := extractExitCode(cmd.ProcessState, waitErr)
	result.ExitCode = &code
	result.Output = strings.ToValidUTF8(out.String(), "�")
	result.Complete = true
	result.Duration = elapsed

	r.output.HandleOutputAt(r.outputLevel(opts), result.Output, "pid", pid)

	r.metrics.RecordExit(code, elapsed)
	if code != 0 {
		r.logger.Warn("command_completed",
			append(result.LogAttrs(), "recent_output", r.output.RecentLines(recentOutputLines))...)
	} else {
		r.logger.Info("command_completed", result.LogAttrs()...)
	}
	return &result, nil
}

func (r *Runner) outputLevel(opts Options) slog.Level {
	if opts.OutputLevel != nil {
		return opts.OutputLevel.Level()
	}
	return r.output.Level()
}

// shellCommand builds the shell invocation for command in a new process
// group. cmd.exe parses its own command line, so on Windows the line is
// passed through verbatim instead of being re-quoted as one argument.
func (r *Runner) shellCommand(ctx context.Context, command string) *exec.Cmd {
	name, args := r.settings.Shell(command)
	cmd := exec.CommandContext(ctx, name, args...)
	setProcessGroup(cmd)
	if r.settings.IsWindows() {
		setRawCommandLine(cmd, name+" "+strings.Join(args, " "))
	}
	return cmd
}

func (r *Runner) runDetached(ctx context.Context, opts Options, dir string) (*Result, error) {
	logPath, err := r.logPath(dir)
	if err != nil {
		return nil, err
	}
	if err := r.writer.WriteText(logPath, opts.Command+"\n"+LogHeaderDelimiter+"\n"); err != nil {
		return nil, fmt.Errorf("write log header: %w", err)
	}

	// Not bound to ctx: a detached process outlives the call that started it.
	cmd := r.shellCommand(context.WithoutCancel(ctx), Redirect(opts.Command, logPath, r.settings.IsWindows()))
	cmd.Dir = dir

	startedAt := r.now()
	if err := cmd.Start(); err != nil {
		r.logger.Error("command_start_failed", "command", opts.Command, "error", err)
		return nil, fmt.Errorf("start %q: %w", opts.Command, err)
	}
	pid := cmd.Process.Pid

	result := Result{
		Command:   opts.Command,
		PID:       pid,
		LogFile:   logPath,
		Mode:      ModeDetached,
		StartedAt: startedAt,
		ownGroup:  true,
	}

	r.metrics.CommandStarted(ModeDetached.String())
	r.logger.Info("command_detached", append(result.LogAttrs(), "dir", dir)...)
	r.register(ctx, opts, result)

	// Reap the child so it never lingers as a zombie.
	go func() {
		err := cmd.Wait()
		r.logger.Debug("detached_command_exited",
			"pid", pid,
			"exit_code", extractExitCode(cmd.ProcessState, err),
		)
	}()

	return &result, nil
}

// logPath returns an absolute log file path; the command may run elsewhere.
func (r *Runner) logPath(dir string) (string, error) {
	logsDir := r.settings.LogsDir
	if logsDir == "" {
		logsDir = filepath.Join(dir, "logs")
	}
	abs, err := filepath.Abs(logsDir)
	if err != nil {
		return "", fmt.Errorf("resolve logs dir: %w", err)
	}
	return filepath.Join(abs, "command_"+r.now().Format(LogTimeFormat)+".txt"), nil
}

func (r *Runner) register(ctx context.Context, opts Options, result Result) {
	if opts.SkipRegister || r.registrar == nil {
		return
	}
	alive, err := r.pidExists(ctx, int32(result.PID))
	if err != nil || !alive {
		r.logger.Debug("register_skipped", "pid", result.PID, "alive", alive, "error", err)
		return
	}
	r.registrar.Register(result)
}

// Redirect rewrites command so its stdout and stderr are appended to logPath.
func Redirect(command, logPath string, windows bool) string {
	if windows {
		return fmt.Sprintf("( %s ) >> \"%s\" 2>&1", command, logPath)
	}
	quoted := "'" + strings.ReplaceAll(logPath, "'", `'\''`) + "'"
	return fmt.Sprintf("( %s ) >> %s 2>&1", command, quoted)
}
