package process

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyCommand is returned when Options.Command is blank.
	ErrEmptyCommand = errors.New("empty command")

	// ErrInvalidWorkDir matches any *WorkDirError.
	ErrInvalidWorkDir = errors.New("invalid working directory")

	// ErrProcessTimeout matches any *TimeoutError.
	ErrProcessTimeout = errors.New("process timed out")
)

// WorkDirError reports a working directory that is missing or not a directory.
// No process is started when it is returned.
type WorkDirError struct {
	Dir string
	Err error
}

func (e *WorkDirError) Error() string {
	return fmt.Sprintf("working directory %q: %v", e.Dir, e.Err)
}

func (e *WorkDirError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrInvalidWorkDir) true.
func (e *WorkDirError) Is(target error) bool {
	return target == ErrInvalidWorkDir
}

// TimeoutError reports a synchronous command killed at its deadline.
// It matches both ErrProcessTimeout and context.DeadlineExceeded.
type TimeoutError struct {
	Command string
	PID     int
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %q (pid %d) did not finish within %s", e.Command, e.PID, e.Timeout)
}

// Is makes errors.Is work against both sentinels.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrProcessTimeout || target == context.DeadlineExceeded
}
