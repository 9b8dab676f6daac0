// Package config provides configuration management for the e2e harness.
package config

import (
	"runtime"
	"time"

	"github.com/randomizedcoder/go-cli-e2e-harness/internal/process"
)

// Config holds all configuration options for a harness session.
type Config struct {
	// Execution
	WorkDir    string        `json:"work_dir" yaml:"work_dir"`
	LogsDir    string        `json:"logs_dir" yaml:"logs_dir"`
	HostOS     string        `json:"host_os" yaml:"host_os"` // linux, darwin, windows
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	PollPeriod time.Duration `json:"poll_period" yaml:"poll_period"`

	// Teardown
	KillPatterns    []string `json:"kill_patterns" yaml:"kill_patterns"` // extra command substrings killed at teardown
	SnapshotMetrics bool     `json:"snapshot_metrics" yaml:"snapshot_metrics"`

	// Observability
	LogFormat       string `json:"log_format" yaml:"log_format"` // json, text
	LogLevel        string `json:"log_level" yaml:"log_level"`
	Verbose         bool   `json:"verbose" yaml:"verbose"`
	CommandLogLevel string `json:"command_log_level" yaml:"command_log_level"` // level for captured command output
	MetricsAddr     string `json:"metrics_addr" yaml:"metrics_addr"`           // "" = disabled
	TUIEnabled      bool   `json:"tui" yaml:"tui"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Execution
		WorkDir:    ".",
		LogsDir:    "logs",
		HostOS:     runtime.GOOS,
		Timeout:    process.DefaultTimeout,
		PollPeriod: time.Second,

		// Teardown
		SnapshotMetrics: false,

		// Observability
		LogFormat:       "json",
		LogLevel:        "info",
		Verbose:         false,
		CommandLogLevel: "debug",
		MetricsAddr:     "",
		TUIEnabled:      false,
	}
}

// ProcessSettings returns the settings a process.Runner starts from.
func (c *Config) ProcessSettings() process.Settings {
	return process.Settings{
		WorkDir: c.WorkDir,
		LogsDir: c.LogsDir,
		HostOS:  c.HostOS,
		Timeout: c.Timeout,
	}
}
