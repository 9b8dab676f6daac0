package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-cli-e2e-harness/internal/wait"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent once per poll period.
type TickMsg time.Time

// =============================================================================
// Model
// =============================================================================

// MissingSource reports which expected messages are not yet in a log file.
// *wait.Waiter implements it.
type MissingSource interface {
	MissingLogMessages(path string, expected []string) []string
}

var _ MissingSource = (*wait.Waiter)(nil)

// Config holds TUI configuration.
type Config struct {
	LogFile  string
	Expected []string
	Timeout  time.Duration
	Period   time.Duration
	Source   MissingSource
}

// Model is the log-wait view. It polls Source every Period, like
// Waiter.ForLogMessages, and quits once every message is found or the
// timeout has passed.
type Model struct {
	// Configuration
	logFile  string
	expected []string
	timeout  time.Duration
	period   time.Duration
	source   MissingSource

	// Current state
	missing   map[string]bool
	startTime time.Time
	elapsed   time.Duration
	polls     int
	met       bool
	done      bool

	// Display options
	width  int
	height int

	// Quit flag
	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	period := cfg.Period
	if period <= 0 {
		period = wait.DefaultPeriod
	}

	missing := make(map[string]bool, len(cfg.Expected))
	for _, e := range cfg.Expected {
		missing[e] = true
	}

	return Model{
		logFile:   cfg.LogFile,
		expected:  cfg.Expected,
		timeout:   cfg.Timeout,
		period:    period,
		source:    cfg.Source,
		missing:   missing,
		startTime: time.Now(),
		width:     80,
		height:    24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd(m.period)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.done {
			return m, nil
		}
		m.polls++
		m.elapsed = time.Time(msg).Sub(m.startTime)
		m.refresh()

		if len(m.missing) == 0 {
			m.met = true
			m.done = true
			return m, tea.Quit
		}
		if m.elapsed > m.timeout {
			m.done = true
			return m, tea.Quit
		}
		return m, tickCmd(m.period)
	}

	return m, nil
}

// refresh re-reads which expected messages are still missing.
func (m *Model) refresh() {
	missing := m.expected
	if m.source != nil {
		missing = m.source.MissingLogMessages(m.logFile, m.expected)
	}
	m.missing = make(map[string]bool, len(missing))
	for _, s := range missing {
		m.missing[s] = true
	}
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.render()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after period.
func tickCmd(period time.Duration) tea.Cmd {
	return tea.Tick(period, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Met reports whether every expected message was found.
func (m Model) Met() bool {
	return m.met
}

// Aborted reports whether the user quit before the wait finished.
func (m Model) Aborted() bool {
	return m.quitting && !m.done
}

// Missing returns the expected messages not yet seen, in the order given.
func (m Model) Missing() []string {
	var out []string
	for _, e := range m.expected {
		if m.missing[e] {
			out = append(out, e)
		}
	}
	return out
}

// Elapsed returns the time waited as of the last poll.
func (m Model) Elapsed() time.Duration {
	return m.elapsed
}

// Progress returns elapsed time as a fraction of the timeout.
func (m Model) Progress() float64 {
	if m.timeout <= 0 {
		return 1
	}
	p := float64(m.elapsed) / float64(m.timeout)
	if p > 1 {
		return 1
	}
	return p
}
