// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/randomizedcoder/go-cli-e2e-harness/internal/fsutil"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/process"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options describe the environment a session is about to use.
type Options struct {
	Settings process.Settings
	// Processes is how many concurrent processes the suite expects to run.
	Processes int
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	if opts.Processes < 1 {
		opts.Processes = 1
	}

	checks := []Check{
		checkShell(opts.Settings),
		checkWorkDir(opts.Settings.WorkDir),
		checkLogsDir(opts.Settings.LogsDir),
		checkFileDescriptors(opts.Processes),
		checkProcessLimit(opts.Processes),
	}

	result := &Result{
		Checks: checks,
		Passed: true,
	}
	for _, c := range checks {
		if !c.Passed {
			result.Passed = false
		}
	}
	return result
}

// checkShell verifies the interpreter commands are run with is present.
func checkShell(settings process.Settings) Check {
	shell, _ := settings.Shell("")
	path, err := exec.LookPath(shell)
	if err != nil {
		return Check{
			Name:    "shell",
			Passed:  false,
			Message: fmt.Sprintf("%s not found: %v", shell, err),
		}
	}
	return Check{
		Name:    "shell",
		Passed:  true,
		Message: fmt.Sprintf("found at %s", path),
	}
}

// checkWorkDir verifies the default working directory exists.
func checkWorkDir(dir string) Check {
	if dir == "" {
		return Check{
			Name:    "work_dir",
			Passed:  true,
			Warning: true,
			Message: "not set (commands run in the current directory)",
		}
	}
	if err := fsutil.IsDir(dir); err != nil {
		return Check{
			Name:    "work_dir",
			Passed:  false,
			Message: err.Error(),
		}
	}
	return Check{
		Name:    "work_dir",
		Passed:  true,
		Message: dir,
	}
}

// checkLogsDir verifies detached command logs can be written.
func checkLogsDir(dir string) Check {
	if dir == "" {
		return Check{
			Name:    "logs_dir",
			Passed:  true,
			Warning: true,
			Message: "not set (logs go under <work dir>/logs)",
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{
			Name:    "logs_dir",
			Passed:  false,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}
	marker := filepath.Join(dir, ".preflight")
	if err := fsutil.WriteText(marker, "ok\n"); err != nil {
		return Check{
			Name:    "logs_dir",
			Passed:  false,
			Message: fmt.Sprintf("not writable: %v", err),
		}
	}
	os.Remove(marker)

	return Check{
		Name:    "logs_dir",
		Passed:  true,
		Message: fmt.Sprintf("%s is writable", dir),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
func checkProcessLimit(processes int) Check {
	// Each command is a shell plus whatever it starts
	required := processes*4 + 50

	// Read soft limit from /proc/self/limits
	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		// Non-Linux or restricted access, assume OK
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	actual := parseMaxProcesses(string(data))
	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// parseMaxProcesses reads the soft "Max processes" value from
// /proc/self/limits content. Returns 0 if not found.
func parseMaxProcesses(limits string) int {
	actual := 0
	for _, line := range strings.Split(limits, "\n") {
		if strings.HasPrefix(line, "Max processes") {
			fields := strings.Fields(line)
			if len(fields) >= 4 {
				if fields[2] == "unlimited" {
					actual = 1000000
				} else {
					fmt.Sscanf(fields[2], "%d", &actual)
				}
			}
			break
		}
	}
	return actual
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case "shell":
		return "install a POSIX shell at /bin/sh, or set --host-os to match this machine"
	case "work_dir":
		return "create the directory or pass --work-dir"
	case "logs_dir":
		return "pass a writable --logs-dir"
	default:
		return "see documentation"
	}
}
