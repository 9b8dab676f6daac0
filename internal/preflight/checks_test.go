package preflight

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/randomizedcoder/go-cli-e2e-harness/internal/process"
)

func TestCheck_String(t *testing.T) {
	t.Run("passed_with_required", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   200,
			Passed:   true,
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "200") {
			t.Error("Should contain actual value")
		}
		if !strings.Contains(s, "100") {
			t.Error("Should contain required value")
		}
	})

	t.Run("failed_check", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   50,
			Passed:   false,
		}
		s := c.String()
		if !strings.Contains(s, "✗") {
			t.Error("Failed check should have ✗")
		}
	})

	t.Run("warning_check", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Warning: true,
			Message: "warning message",
		}
		s := c.String()
		if !strings.Contains(s, "⚠") {
			t.Error("Warning check should have ⚠")
		}
		if !strings.Contains(s, "warning message") {
			t.Error("Should contain message")
		}
	})

	t.Run("passed_with_message_only", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Message: "all good",
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "all good") {
			t.Error("Should contain message")
		}
	})
}

func TestResult_Passed(t *testing.T) {
	t.Run("all_pass", func(t *testing.T) {
		result := &Result{
			Checks: []Check{
				{Name: "a", Passed: true},
				{Name: "b", Passed: true},
			},
			Passed: true,
		}
		if !result.Passed {
			t.Error("Result with all passing checks should pass")
		}
	})

	t.Run("one_fail", func(t *testing.T) {
		result := &Result{
			Checks: []Check{
				{Name: "a", Passed: true},
				{Name: "b", Passed: false},
			},
			Passed: false,
		}
		if result.Passed {
			t.Error("Result with one failing check should fail")
		}
	})

	t.Run("warning_only", func(t *testing.T) {
		result := &Result{
			Checks: []Check{
				{Name: "a", Passed: true, Warning: true},
			},
			Passed: true,
		}
		// Warnings don't cause failure
		if !result.Passed {
			t.Error("Result with only warnings should pass")
		}
	})
}

func TestRunAll(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}

	settings := process.Settings{
		WorkDir: t.TempDir(),
		LogsDir: filepath.Join(t.TempDir(), "logs"),
		HostOS:  "linux",
	}
	result := RunAll(Options{Settings: settings, Processes: 2})

	names := make(map[string]Check)
	for _, c := range result.Checks {
		names[c.Name] = c
	}
	for _, want := range []string{"shell", "work_dir", "logs_dir", "file_descriptors", "process_limit"} {
		if _, ok := names[want]; !ok {
			t.Errorf("missing check %q", want)
		}
	}
	for _, name := range []string{"shell", "work_dir", "logs_dir"} {
		if !names[name].Passed {
			t.Errorf("%s should pass: %s", name, names[name].Message)
		}
	}
	if _, err := os.Stat(filepath.Join(settings.LogsDir, ".preflight")); !os.IsNotExist(err) {
		t.Error("marker file should be removed")
	}
}

func TestRunAll_Failures(t *testing.T) {
	t.Run("missing_work_dir", func(t *testing.T) {
		result := RunAll(Options{Settings: process.Settings{
			WorkDir: filepath.Join(t.TempDir(), "missing"),
			LogsDir: t.TempDir(),
		}})
		if result.Passed {
			t.Error("missing work dir should fail preflight")
		}
	})

	t.Run("logs_dir_is_file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(file, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		c := checkLogsDir(file)
		if c.Passed {
			t.Error("a regular file is not a usable logs dir")
		}
	})

	t.Run("shell_not_found", func(t *testing.T) {
		if _, err := exec.LookPath("cmd"); err == nil {
			t.Skip("cmd found on PATH")
		}
		c := checkShell(process.Settings{HostOS: "windows"})
		if c.Passed {
			t.Error("cmd should not be found on this host")
		}
	})
}

func TestRunAll_UnsetDirsWarn(t *testing.T) {
	for _, c := range []Check{checkWorkDir(""), checkLogsDir("")} {
		if !c.Passed || !c.Warning {
			t.Errorf("%s: unset dir should pass with a warning", c.Name)
		}
	}
}

func TestSuggestFix(t *testing.T) {
	for _, name := range []string{"file_descriptors", "process_limit", "shell", "work_dir", "logs_dir"} {
		if suggestFix(name) == "see documentation" {
			t.Errorf("suggestFix(%q) has no specific advice", name)
		}
	}
	if suggestFix("unknown") != "see documentation" {
		t.Error("unknown check should fall back to the generic hint")
	}
}

func TestParseMaxProcesses(t *testing.T) {
	tests := []struct {
		name   string
		limits string
		want   int
	}{
		{"numeric", "Max cpu time              unlimited            unlimited            seconds\nMax processes             63432                127000               processes\n", 63432},
		{"unlimited", "Max processes             unlimited            unlimited            processes\n", 1000000},
		{"absent", "Max open files            1024                 1048576              files\n", 0},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseMaxProcesses(tt.limits); got != tt.want {
				t.Errorf("parseMaxProcesses() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCheckFileDescriptors_Scaling(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no rlimits on windows")
	}

	// Verify required scales with processes
	check1 := checkFileDescriptors(1)
	check100 := checkFileDescriptors(100)

	if check1.Actual <= 0 && check1.Actual != -1 {
		t.Errorf("Actual should be positive: %d", check1.Actual)
	}
	if check100.Required <= check1.Required {
		t.Error("Required FDs should increase with more processes")
	}
}

func TestPrintResults(t *testing.T) {
	result := &Result{
		Checks: []Check{
			{Name: "shell", Passed: true, Message: "ok"},
			{Name: "file_descriptors", Passed: false, Required: 100, Actual: 50},
		},
		Passed: false,
	}

	var buf bytes.Buffer
	PrintResults(&buf, result)

	out := buf.String()
	if !strings.Contains(out, "Preflight checks:") {
		t.Error("missing heading")
	}
	if !strings.Contains(out, "Fix: ulimit -n") {
		t.Errorf("failed check should print a fix:\n%s", out)
	}
	if strings.Count(out, "Fix:") != 1 {
		t.Error("passing checks should not print a fix")
	}
}
