package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/randomizedcoder/go-cli-e2e-harness/internal/fsutil"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// knownHosts are the host operating systems the runner has a shell for.
var knownHosts = map[string]bool{
	"linux": true, "darwin": true, "windows": true,
	"freebsd": true, "openbsd": true, "netbsd": true,
}

var validLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or every problem found joined with errors.Join.
func Validate(cfg *Config) error {
	var errs []error

	// Work dir must exist; commands are refused otherwise
	if cfg.WorkDir != "" {
		if err := fsutil.IsDir(cfg.WorkDir); err != nil {
			errs = append(errs, ValidationError{
				Field:   "work_dir",
				Message: err.Error(),
			})
		}
	}

	if cfg.LogsDir == "" {
		errs = append(errs, ValidationError{
			Field:   "logs_dir",
			Message: "must not be empty",
		})
	}

	if !knownHosts[strings.ToLower(cfg.HostOS)] {
		errs = append(errs, ValidationError{
			Field:   "host_os",
			Message: fmt.Sprintf("unknown host OS %q", cfg.HostOS),
		})
	}

	// Timeout must be positive
	if cfg.Timeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "timeout",
			Message: "must be positive",
		})
	}

	if cfg.PollPeriod <= 0 {
		errs = append(errs, ValidationError{
			Field:   "poll_period",
			Message: "must be positive",
		})
	} else if cfg.Timeout > 0 && cfg.PollPeriod > cfg.Timeout {
		errs = append(errs, ValidationError{
			Field:   "poll_period",
			Message: fmt.Sprintf("must not exceed timeout (%v), got %v", cfg.Timeout, cfg.PollPeriod),
		})
	}

	// Log format must be valid
	if !logging.ValidFormat(cfg.LogFormat) {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if !validLevels[strings.ToLower(cfg.LogLevel)] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be debug, info, warn or error (got %q)", cfg.LogLevel),
		})
	}
	if !validLevels[strings.ToLower(cfg.CommandLogLevel)] {
		errs = append(errs, ValidationError{
			Field:   "command_log_level",
			Message: fmt.Sprintf("must be debug, info, warn or error (got %q)", cfg.CommandLogLevel),
		})
	}

	for i, p := range cfg.KillPatterns {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("kill_patterns[%d]", i),
				Message: "must not be empty",
			})
		}
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
