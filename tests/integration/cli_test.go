//go:build integration

// Package integration contains end-to-end tests that drive a built
// cli-e2e-harness binary. Run with:
//
//	go build -o /tmp/cli-e2e-harness ./cmd/cli-e2e-harness
//	HARNESS_BIN=/tmp/cli-e2e-harness go test -tags=integration ./tests/integration/...
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/randomizedcoder/go-cli-e2e-harness/internal/process"
	"github.com/randomizedcoder/go-cli-e2e-harness/internal/wait"
)

// harnessBin returns the binary under test.
// Set via HARNESS_BIN environment variable.
func harnessBin(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("integration tests use /bin/sh")
	}
	bin := os.Getenv("HARNESS_BIN")
	if bin == "" {
		t.Skip("HARNESS_BIN not set - skipping integration test")
	}
	return bin
}

// harness runs the binary and returns stdout and its exit code.
func harness(t *testing.T, args ...string) (string, int) {
	t.Helper()
	bin := harnessBin(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	base := []string{"--work-dir", t.TempDir(), "--logs-dir", filepath.Join(t.TempDir(), "logs"), "--log-level", "error"}
	cmd := exec.CommandContext(ctx, bin, append(args[:1:1], append(base, args[1:]...)...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return stdout.String(), 0
	case errors.As(err, &exitErr):
		t.Logf("stderr: %s", stderr.String())
		return stdout.String(), exitErr.ExitCode()
	default:
		t.Fatalf("run %s: %v", bin, err)
		return "", -1
	}
}

// runResult is the JSON a run prints. Mode is the name, as in logs.
type runResult struct {
	Command  string `json:"command"`
	PID      int    `json:"pid"`
	ExitCode *int   `json:"exit_code"`
	Output   string `json:"output"`
	LogFile  string `json:"log_file"`
	Complete bool   `json:"complete"`
	Mode     string `json:"mode"`
}

func TestIntegration_RunExitCode(t *testing.T) {
	out, code := harness(t, "run", "--", "echo hello; exit 7")
	if code != 7 {
		t.Errorf("exit code = %d, want 7", code)
	}

	var res runResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode result: %v\n%s", err, out)
	}
	if res.Mode != "wait" || res.ExitCode == nil || *res.ExitCode != 7 || !strings.Contains(res.Output, "hello") {
		t.Errorf("result = %+v", res)
	}
}

// TestIntegration_KeepThenKill starts a detached server that outlives the
// harness, waits for it from this test, then kills it by marker.
func TestIntegration_KeepThenKill(t *testing.T) {
	marker := "e2e-integration-" + uuid.NewString()

	out, code := harness(t, "run", "--detach", "--keep", "--timeout", "10s",
		"--expect", "ready",
		"--", "echo ready; sleep 60; echo "+marker)
	if code != 0 {
		t.Fatalf("run exit code = %d\n%s", code, out)
	}

	var res runResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode result: %v\n%s", err, out)
	}
	if res.Mode != "detached" || res.LogFile == "" {
		t.Errorf("result = %+v", res)
	}
	t.Cleanup(func() { _, _ = process.KillTree(res.PID) })

	if alive, _ := gprocess.PidExists(int32(res.PID)); !alive {
		t.Fatal("--keep should leave the detached process running")
	}

	out, code = harness(t, "kill", "--match", marker)
	if code != 0 {
		t.Fatalf("kill exit code = %d", code)
	}
	var killed []int32
	if err := json.Unmarshal([]byte(out), &killed); err != nil {
		t.Fatalf("decode pids: %v\n%s", err, out)
	}
	if len(killed) == 0 {
		t.Fatal("kill --match found nothing")
	}

	gone := wait.Until(func() bool {
		alive, _ := gprocess.PidExists(int32(res.PID))
		return !alive
	}, 5*time.Second, 100*time.Millisecond)
	if !gone {
		t.Error("detached process still running after kill --match")
	}
}

func TestIntegration_WaitMissingFile(t *testing.T) {
	log := filepath.Join(t.TempDir(), "late.txt")
	go func() {
		time.Sleep(300 * time.Millisecond)
		_ = os.WriteFile(log, []byte("started\n"), 0o644)
	}()

	_, code := harness(t, "wait", "--log", log, "--expect", "started",
		"--timeout", "5s", "--poll-period", "100ms")
	if code != 0 {
		t.Errorf("exit code = %d, want 0 once the file appears", code)
	}
}

func TestIntegration_Check(t *testing.T) {
	out, code := harness(t, "check")
	if code != 0 {
		t.Errorf("check failed:\n%s", out)
	}
}
