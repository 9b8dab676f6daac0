package process

import (
	"time"
)

// Mode is how a command was executed.
type Mode int

const (
	// ModeWait runs the command to completion and captures its output.
	ModeWait Mode = iota
	// ModeDetached starts the command in the background with output
	// appended to a log file.
	ModeDetached
)

// String returns the mode name used in logs and metric labels.
func (m Mode) String() string {
	switch m {
	case ModeWait:
		return "wait"
	case ModeDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// MarshalText lets Result encode the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Result is the uniform record of one command execution.
// A Result is never modified after Run returns it.
type Result struct {
	Command   string        `json:"command"`
	PID       int           `json:"pid"`
	ExitCode  *int          `json:"exit_code,omitempty"`
	Output    string        `json:"output,omitempty"`
	LogFile   string        `json:"log_file,omitempty"`
	Complete  bool          `json:"complete"`
	Duration  time.Duration `json:"duration_ns,omitempty"`
	Mode      Mode          `json:"mode"`
	StartedAt time.Time     `json:"started_at"`

	// timeout is kept so Outcome can report how long a killed run was given.
	timeout time.Duration
	// ownGroup is set when the runner started PID as the leader of a new
	// process group.
	ownGroup bool
}

// Outcome is the tagged view of a Result. The concrete type is one of
// Completed, Detached or TimedOut.
type Outcome interface {
	isOutcome()
}

// Completed is a synchronous run that exited on its own.
type Completed struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// Detached is a background run whose output goes to LogFile.
type Detached struct {
	PID     int
	LogFile string
}

// TimedOut is a synchronous run killed at its deadline in fail-safe mode.
type TimedOut struct {
	PID     int
	Timeout time.Duration
}

func (Completed) isOutcome() {}
func (Detached) isOutcome()  {}
func (TimedOut) isOutcome()  {}

// Outcome returns the tagged view of r.
func (r Result) Outcome() Outcome {
	switch {
	case r.Mode == ModeDetached:
		return Detached{PID: r.PID, LogFile: r.LogFile}
	case r.Complete && r.ExitCode != nil:
		return Completed{ExitCode: *r.ExitCode, Output: r.Output, Duration: r.Duration}
	default:
		return TimedOut{PID: r.PID, Timeout: r.timeout}
	}
}

// Kill force-kills the process and everything it spawned. For a process
// the runner started this is its whole group, even if the shell itself
// has already exited. killed is false when nothing was left to kill.
func (r Result) Kill() (killed bool, err error) {
	if r.ownGroup {
		return KillGroup(r.PID)
	}
	return KillTree(r.PID)
}

// LogAttrs returns the key/value pairs used when logging a result.
func (r Result) LogAttrs() []any {
	attrs := []any{
		"command", r.Command,
		"pid", r.PID,
		"mode", r.Mode.String(),
		"complete", r.Complete,
	}
	if r.ExitCode != nil {
		attrs = append(attrs, "exit_code", *r.ExitCode)
	}
	if r.Duration > 0 {
		attrs = append(attrs, "duration", r.Duration)
	}
	if r.LogFile != "" {
		attrs = append(attrs, "log_file", r.LogFile)
	}
	return attrs
}
