package config

import (
	"github.com/spf13/pflag"
)

// BindFlags registers the harness flags on fs, writing into cfg.
// Defaults are taken from cfg's current values.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	// Execution
	fs.StringVar(&cfg.WorkDir, "work-dir", cfg.WorkDir, "Default working directory for commands")
	fs.StringVar(&cfg.LogsDir, "logs-dir", cfg.LogsDir, "Directory for detached command logs")
	fs.StringVar(&cfg.HostOS, "host-os", cfg.HostOS, `Host OS: "linux", "darwin" or "windows" (selects the shell)`)
	fs.DurationVar(&cfg.Timeout, "default-timeout", cfg.Timeout, "Timeout for synchronous commands")
	fs.DurationVar(&cfg.PollPeriod, "poll-period", cfg.PollPeriod, "Poll period when waiting for log messages")

	// Teardown
	fs.StringArrayVar(&cfg.KillPatterns, "kill-pattern", cfg.KillPatterns,
		"Kill processes whose command line contains this at teardown (can repeat)")
	fs.BoolVar(&cfg.SnapshotMetrics, "snapshot-metrics", cfg.SnapshotMetrics,
		"Write a Prometheus text snapshot to the logs dir at teardown")

	// Observability
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn" or "error"`)
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.CommandLogLevel, "command-log-level", cfg.CommandLogLevel, "Level captured command output is logged at")
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, `Prometheus metrics address ("" = disabled)`)
}
