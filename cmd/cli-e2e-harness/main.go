// Package main provides the cli-e2e-harness CLI entry point.
//
// cli-e2e-harness runs shell commands the way an end-to-end test does:
// synchronously with a timeout, or detached with output in a log file that
// can be waited on for known messages. Every started process is killed
// when the command finishes unless asked to keep it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-cli-e2e-harness/internal/config"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/logging"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/metrics"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/session"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/cli-e2e-harness
var version = "dev"

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(&app{cfg: config.DefaultConfig()})
	if err := root.ExecuteContext(ctx); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", ee.err)
			}
			return ee.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// app is the state shared by every subcommand.
type app struct {
	cfg        *config.Config
	configFile string
	logger     *slog.Logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "cli-e2e-harness",
		Short: "Run, wait on and clean up shell commands for end-to-end tests",
		Long: `cli-e2e-harness runs shell commands for end-to-end tests.

Examples:
  cli-e2e-harness run -- echo hello
  cli-e2e-harness run --detach --expect "Listening on" -- ./server
  cli-e2e-harness wait --log logs/command_2024_01_01_10_00_00.txt --expect ready
  cli-e2e-harness kill --match emulator
  cli-e2e-harness check`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "YAML config file (flags override it)")
	config.BindFlags(root.PersistentFlags(), a.cfg)

	root.AddCommand(
		newRunCmd(a),
		newWaitCmd(a),
		newKillCmd(a),
		newCheckCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup applies the config file, validates and builds the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.configFile != "" {
		if err := config.ApplyFile(a.cfg, a.configFile, cmd.Flags()); err != nil {
			return err
		}
	}
	if err := config.Validate(a.cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	if a.cfg.TUIEnabled {
		a.logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		a.logger = logging.NewLogger(a.cfg.LogFormat, a.cfg.LogLevel, a.cfg.Verbose)
	}
	logging.SetDefault(a.logger)
	return nil
}

// startSession creates a session and, if configured, its metrics server.
// The returned stop func shuts the server down; it does not tear down the
// session.
func (a *app) startSession() (*session.Session, func(), error) {
	reg := prometheus.NewRegistry()
	s, err := session.New(a.cfg, a.logger, reg)
	if err != nil {
		return nil, nil, err
	}

	if a.cfg.MetricsAddr == "" {
		return s, func() {}, nil
	}

	server := metrics.NewServer(a.cfg.MetricsAddr, reg, s.Logger)
	if err := server.Start(); err != nil {
		return nil, nil, err
	}
	return s, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			s.Logger.Warn("metrics_server_shutdown_failed", "error", err)
		}
	}, nil
}

// teardown drains the session and prints the summary to stderr.
func (a *app) teardown(s *session.Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), session.DefaultTeardownTimeout)
	defer cancel()

	summary, err := s.Teardown(ctx)
	if a.cfg.Verbose {
		fmt.Fprint(os.Stderr, formatSummary(summary))
	}
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// Skip config loading; version must work with a broken config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cli-e2e-harness %s\n", version)
		},
	}
}
