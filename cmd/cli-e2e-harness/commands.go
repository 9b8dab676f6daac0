package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-cli-e2e-harness/internal/preflight"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/process"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/stats"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/tui"
)

// exitTimeout matches timeout(1).
const exitTimeout = 124

// =============================================================================
// run
// =============================================================================

type runFlags struct {
	detach     bool
	timeout    time.Duration
	failSafe   bool
	noRegister bool
	dir        string
	expect     []string
	keep       bool
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [flags] -- <command>",
		Short: "Run a shell command and print the result as JSON",
		Long: `Runs a command through the host shell and prints the result as JSON.

Without --detach the command runs to completion or --timeout, and the
harness exits with the command's exit code (124 on timeout).

With --detach the command's output goes to a new log file under the logs
dir. --expect waits for messages to appear there. Every started process is
killed before exit unless --keep is given.

Examples:
  cli-e2e-harness run -- make test
  cli-e2e-harness run --timeout 30s --fail-safe -- ./flaky.sh
  cli-e2e-harness run --detach --expect "Listening on" --keep -- ./server`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCommand(cmd, strings.Join(args, " "), f)
		},
	}

	cmd.Flags().BoolVarP(&f.detach, "detach", "d", false, "Return once started; output goes to a log file")
	cmd.Flags().DurationVarP(&f.timeout, "timeout", "t", 0, "Timeout (default --default-timeout)")
	cmd.Flags().BoolVar(&f.failSafe, "fail-safe", false, "Report a timeout in the result instead of failing")
	cmd.Flags().BoolVar(&f.noRegister, "no-register", false, "Do not track the process for cleanup")
	cmd.Flags().StringVar(&f.dir, "dir", "", "Working directory (default --work-dir)")
	cmd.Flags().StringArrayVarP(&f.expect, "expect", "e", nil, "Message to wait for in the log of a detached command (can repeat)")
	cmd.Flags().BoolVar(&f.keep, "keep", false, "Leave started processes running on exit")
	return cmd
}

func (a *app) runCommand(cmd *cobra.Command, command string, f runFlags) (err error) {
	if len(f.expect) > 0 && !f.detach {
		return errors.New("--expect needs --detach")
	}

	s, stop, err := a.startSession()
	if err != nil {
		return err
	}
	defer stop()
	if !f.keep {
		defer func() {
			if terr := a.teardown(s); terr != nil && err == nil {
				err = terr
			}
		}()
	}

	ctx := cmd.Context()
	res, err := s.Run(ctx, process.Options{
		Command:      command,
		Dir:          f.dir,
		Detach:       f.detach,
		Timeout:      f.timeout,
		FailSafe:     f.failSafe,
		SkipRegister: f.noRegister,
	})
	if errors.Is(err, process.ErrProcessTimeout) {
		return &exitError{code: exitTimeout, err: err}
	}
	if err != nil {
		return err
	}

	if err := printJSON(cmd, res); err != nil {
		return err
	}

	switch o := res.Outcome().(type) {
	case process.Completed:
		if o.ExitCode != 0 {
			return &exitError{code: o.ExitCode}
		}
	case process.TimedOut:
		// fail-safe: the result already says it did not complete
	case process.Detached:
		if len(f.expect) == 0 {
			return nil
		}
		timeout := f.timeout
		if timeout <= 0 {
			timeout = a.cfg.Timeout
		}
		if !s.Waiter.ForLogMessagesContext(ctx, o.LogFile, f.expect, timeout) {
			missing := s.Waiter.MissingLogMessages(o.LogFile, f.expect)
			return &exitError{code: 1, err: fmt.Errorf("messages not found in %s: %q", o.LogFile, missing)}
		}
	}
	return nil
}

// =============================================================================
// wait
// =============================================================================

func newWaitCmd(a *app) *cobra.Command {
	var (
		logFile string
		expect  []string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "wait --log PATH --expect MESSAGE...",
		Short: "Wait for messages to appear in a log file",
		Long: `Polls a log file until every --expect message appears in it, in any
order, or --timeout passes. A file that does not exist yet is polled until
it does. Exits 1 if any message is still missing.

Examples:
  cli-e2e-harness wait --log server.txt --expect "Listening on" --timeout 1m
  cli-e2e-harness wait --log server.txt --expect ready --expect "db ok" --tui`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if timeout <= 0 {
				timeout = a.cfg.Timeout
			}
			return a.waitCommand(cmd, logFile, expect, timeout)
		},
	}

	cmd.Flags().StringVarP(&logFile, "log", "l", "", "Log file to poll")
	cmd.Flags().StringArrayVarP(&expect, "expect", "e", nil, "Message to wait for (can repeat)")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Timeout (default --default-timeout)")
	cmd.Flags().BoolVar(&a.cfg.TUIEnabled, "tui", a.cfg.TUIEnabled, "Show a live view of the wait")
	_ = cmd.MarkFlagRequired("log")
	_ = cmd.MarkFlagRequired("expect")
	return cmd
}

func (a *app) waitCommand(cmd *cobra.Command, logFile string, expect []string, timeout time.Duration) error {
	s, stop, err := a.startSession()
	if err != nil {
		return err
	}
	defer stop()

	var met bool
	if a.cfg.TUIEnabled {
		model := tui.New(tui.Config{
			LogFile:  logFile,
			Expected: expect,
			Timeout:  timeout,
			Period:   a.cfg.PollPeriod,
			Source:   s.Waiter,
		})
		final, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
		if err != nil {
			return fmt.Errorf("tui: %w", err)
		}
		m := final.(tui.Model)
		if m.Aborted() {
			return &exitError{code: 130, err: errors.New("wait aborted")}
		}
		met = m.Met()
	} else {
		met = s.Waiter.ForLogMessagesContext(cmd.Context(), logFile, expect, timeout)
	}

	if !met {
		missing := s.Waiter.MissingLogMessages(logFile, expect)
		return &exitError{code: 1, err: fmt.Errorf("messages not found in %s: %q", logFile, missing)}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "all %d message(s) found in %s\n", len(expect), logFile)
	return nil
}

// =============================================================================
// kill
// =============================================================================

func newKillCmd(a *app) *cobra.Command {
	var match string

	cmd := &cobra.Command{
		Use:   "kill --match SUBSTRING",
		Short: "Kill every process whose command line contains a substring",
		Long: `Kills every process on the host whose command line contains --match,
together with its process group. The harness itself and its parent are
never killed. Prints the killed pids as a JSON array.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, stop, err := a.startSession()
			if err != nil {
				return err
			}
			defer stop()

			killed := s.Registry.KillByCommandSubstring(cmd.Context(), match)
			if killed == nil {
				killed = []int32{}
			}
			return printJSON(cmd, killed)
		},
	}

	cmd.Flags().StringVarP(&match, "match", "m", "", "Command line substring")
	_ = cmd.MarkFlagRequired("match")
	return cmd
}

// =============================================================================
// check
// =============================================================================

func newCheckCmd(a *app) *cobra.Command {
	var processes int

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the host can run the harness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result := preflight.RunAll(preflight.Options{
				Settings:  a.cfg.ProcessSettings(),
				Processes: processes,
			})
			preflight.PrintResults(cmd.OutOrStdout(), result)
			if !result.Passed {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&processes, "processes", 16, "Concurrent processes the suite expects to start")
	return cmd
}

// =============================================================================
// Output
// =============================================================================

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatSummary(s stats.Summary) string {
	return stats.FormatSummary(s, isatty.IsTerminal(os.Stderr.Fd()))
}
