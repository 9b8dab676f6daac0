package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Summary is the end-of-session report.
type Summary struct {
	SessionID string
	Elapsed   time.Duration

	// Commands
	Runs      int64 // synchronous runs started
	Detached  int64 // detached runs started
	Timeouts  int64
	ExitCodes map[int]int

	// Durations of completed synchronous runs
	DurationCount int64
	DurationP50   time.Duration
	DurationP95   time.Duration
	DurationP99   time.Duration
	DurationMax   time.Duration

	// Teardown
	Registered         int
	DrainKilled        int
	DrainAlreadyExited int
	DrainFailed        int
	MatchKilled        int

	// OutputErrors counts failure patterns seen in captured output.
	OutputErrors map[string]int

	LogsDir      string
	MetricsAddr  string
	SnapshotPath string
}

// FillDurations copies percentiles from d into s.
func (s *Summary) FillDurations(d *DurationDigest) {
	if d == nil {
		return
	}
	s.DurationCount = d.Count()
	s.DurationP50 = d.Quantile(0.50)
	s.DurationP95 = d.Quantile(0.95)
	s.DurationP99 = d.Quantile(0.99)
	s.DurationMax = d.Max()
}

// Clean reports whether nothing went wrong: no timeouts, no failed kills
// and every completed run exited 0.
func (s Summary) Clean() bool {
	if s.Timeouts > 0 || s.DrainFailed > 0 {
		return false
	}
	for code, n := range s.ExitCodes {
		if code != 0 && n > 0 {
			return false
		}
	}
	return true
}

var (
	summaryTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#E5E7EB")).
				Background(lipgloss.Color("#7C3AED")).
				Bold(true).
				Padding(0, 1)

	summarySectionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#06B6D4")).
				Bold(true)

	summaryOKStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	summaryBadStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)
)

const (
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════"
	lightRule = "───────────────────────────────────────────────────────────────────────────────"
)

// FormatSummary renders s for the terminal. styled adds lipgloss colours;
// leave it off when writing to a file or a non-terminal.
func FormatSummary(s Summary, styled bool) string {
	title := plain
	section := plain
	verdict := plain
	if styled {
		title = summaryTitleStyle.Render
		section = summarySectionStyle.Render
		verdict = summaryOKStyle.Render
		if !s.Clean() {
			verdict = summaryBadStyle.Render
		}
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(heavyRule + "\n")
	b.WriteString(center(title("e2e harness session summary")) + "\n")
	b.WriteString(heavyRule + "\n\n")

	if s.SessionID != "" {
		fmt.Fprintf(&b, "Session:                %s\n", s.SessionID)
	}
	fmt.Fprintf(&b, "Elapsed:                %s\n", FormatDuration(s.Elapsed))
	status := "clean"
	if !s.Clean() {
		status = "problems detected"
	}
	fmt.Fprintf(&b, "Status:                 %s\n\n", verdict(status))

	// Commands
	writeSection(&b, section("Commands"))
	fmt.Fprintf(&b, "  Synchronous runs:     %s\n", FormatNumber(s.Runs))
	fmt.Fprintf(&b, "  Detached runs:        %s\n", FormatNumber(s.Detached))
	fmt.Fprintf(&b, "  Timeouts:             %s\n\n", FormatNumber(s.Timeouts))

	if s.DurationCount > 0 {
		writeSection(&b, section("Duration Distribution"))
		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatMs(s.DurationP50))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatMs(s.DurationP95))
		fmt.Fprintf(&b, "  P99:                  %s\n", FormatMs(s.DurationP99))
		fmt.Fprintf(&b, "  Max:                  %s\n\n", FormatMs(s.DurationMax))
	}

	if len(s.ExitCodes) > 0 {
		writeSection(&b, section("Exit Codes"))

		// Sort exit codes for consistent output
		codes := make([]int, 0, len(s.ExitCodes))
		for code := range s.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		for _, code := range codes {
			fmt.Fprintf(&b, "  %3d %-16s %d\n", code, exitCodeLabel(code), s.ExitCodes[code])
		}
		b.WriteString("\n")
	}

	// Teardown
	writeSection(&b, section("Teardown"))
	fmt.Fprintf(&b, "  Registered:           %d\n", s.Registered)
	fmt.Fprintf(&b, "  Killed:               %d\n", s.DrainKilled)
	fmt.Fprintf(&b, "  Already exited:       %d\n", s.DrainAlreadyExited)
	if s.DrainFailed > 0 {
		fmt.Fprintf(&b, "  Kill failures:        %d\n", s.DrainFailed)
	}
	if s.MatchKilled > 0 {
		fmt.Fprintf(&b, "  Killed by pattern:    %d\n", s.MatchKilled)
	}
	b.WriteString("\n")

	if len(s.OutputErrors) > 0 {
		writeSection(&b, section("Output Failure Patterns"))

		patterns := make([]string, 0, len(s.OutputErrors))
		for p := range s.OutputErrors {
			patterns = append(patterns, p)
		}
		sort.Strings(patterns)

		for _, p := range patterns {
			fmt.Fprintf(&b, "  %-22s%d\n", p+":", s.OutputErrors[p])
		}
		b.WriteString("\n")
	}

	if s.LogsDir != "" {
		fmt.Fprintf(&b, "Command logs:           %s\n", s.LogsDir)
	}
	if s.SnapshotPath != "" {
		fmt.Fprintf(&b, "Metrics snapshot:       %s\n", s.SnapshotPath)
	}
	if s.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", s.MetricsAddr)
	}

	b.WriteString(heavyRule + "\n")

	return b.String()
}

func writeSection(b *strings.Builder, name string) {
	b.WriteString(lightRule + "\n")
	b.WriteString(center(name) + "\n")
	b.WriteString(lightRule + "\n\n")
}

func center(s string) string {
	pad := (lipgloss.Width(heavyRule) - lipgloss.Width(s)) / 2
	if pad <= 0 {
		return s
	}
	return strings.Repeat(" ", pad) + s
}

func plain(strs ...string) string {
	return strings.Join(strs, " ")
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 127:
		return "(not found)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}
