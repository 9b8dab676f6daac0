package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	// MaxLineLength is the maximum length of a single output line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent output lines kept per handler.
	MaxBufferedLines = 100
)

// OutputHandler logs captured command output line by line.
// It keeps the most recent lines for failure diagnostics and escalates
// lines containing one of ErrorPatterns to warn.
type OutputHandler struct {
	logger *slog.Logger
	level  slog.Level

	buffer []string
	bufIdx int
	counts map[string]int
	mu     sync.Mutex
}

// NewOutputHandler creates a handler that logs ordinary lines at level.
func NewOutputHandler(logger *slog.Logger, level slog.Level) *OutputHandler {
	return &OutputHandler{
		logger: logger,
		level:  level,
		buffer: make([]string, MaxBufferedLines),
		counts: make(map[string]int),
	}
}

// HandleOutput splits a captured output blob into lines and handles each.
// attrs are appended to every log record (usually command and pid).
func (h *OutputHandler) HandleOutput(output string, attrs ...any) {
	h.HandleOutputAt(h.level, output, attrs...)
}

// HandleOutputAt is HandleOutput with ordinary lines logged at level
// instead of the handler's default.
// Lines of any length are handled.
func (h *OutputHandler) HandleOutputAt(level slog.Level, output string, attrs ...any) {
	for line := range strings.Lines(output) {
		line = strings.TrimSuffix(line, "\n")
		h.handleLine(level, strings.TrimSuffix(line, "\r"), attrs...)
	}
}

// HandleLine processes a single line of command output.
func (h *OutputHandler) HandleLine(line string, attrs ...any) {
	h.handleLine(h.level, line, attrs...)
}

func (h *OutputHandler) handleLine(base slog.Level, line string, attrs ...any) {
	line = truncate(line)
	matched := matchPatterns(line)

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	for _, pattern := range matched {
		h.counts[pattern]++
	}
	h.mu.Unlock()

	level := escalate(base, len(matched) > 0)
	if !h.logger.Enabled(context.Background(), level) {
		return
	}
	args := append([]any{"line", line}, attrs...)
	h.logger.Log(context.Background(), level, "command_output", args...)
}

// classifyLine returns warn for failure-looking lines, the configured level otherwise.
func (h *OutputHandler) classifyLine(line string) slog.Level {
	return classify(h.level, line)
}

func classify(base slog.Level, line string) slog.Level {
	return escalate(base, len(matchPatterns(line)) > 0)
}

func escalate(base slog.Level, failure bool) slog.Level {
	if failure && base < slog.LevelWarn {
		return slog.LevelWarn
	}
	return base
}

// matchPatterns returns the ErrorPatterns contained in line. Matching is
// case-sensitive, so "0 errors" is not a failure.
func matchPatterns(line string) []string {
	var matched []string
	for _, p := range ErrorPatterns {
		if strings.Contains(line, p) {
			matched = append(matched, p)
		}
	}
	return matched
}

// truncate shortens line to at most MaxLineLength bytes without splitting
// a UTF-8 sequence.
func truncate(line string) string {
	if len(line) <= MaxLineLength {
		return line
	}
	cut := MaxLineLength
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	return line[:cut] + "...(truncated)"
}

// Level returns the level ordinary lines are logged at.
func (h *OutputHandler) Level() slog.Level {
	return h.level
}

// RecentLines returns up to n of the most recent lines, oldest first.
// The buffer is shared by every command logged through this handler.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}
	return lines
}

// ErrorPatterns are failure markers commonly printed by the CLI under test
// and by the Android/iOS toolchains it drives.
var ErrorPatterns = []string{
	"ERROR",
	"error:",
	"Error:",
	"Exception",
	"BUILD FAILED",
	"Unable to",
	"command not found",
	"Traceback",
	"FAILURE:",
	"npm ERR!",
}

// CountErrors returns how many handled lines contained each of ErrorPatterns
// since the handler was created. Patterns never seen are omitted.
func (h *OutputHandler) CountErrors() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int, len(h.counts))
	for k, v := range h.counts {
		counts[k] = v
	}
	return counts
}
