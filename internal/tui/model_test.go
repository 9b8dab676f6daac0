package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// Fake MissingSource
// =============================================================================

// scriptedSource returns one missing list per call, repeating the last.
type scriptedSource struct {
	calls  int
	script [][]string
}

func (s *scriptedSource) MissingLogMessages(_ string, _ []string) []string {
	i := s.calls
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	s.calls++
	return s.script[i]
}

func newTestModel(src MissingSource, expected ...string) Model {
	return New(Config{
		LogFile:  "/tmp/command.txt",
		Expected: expected,
		Timeout:  10 * time.Second,
		Period:   time.Second,
		Source:   src,
	})
}

// tick feeds a TickMsg d after the model's start time.
func tick(t *testing.T, m Model, d time.Duration) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(TickMsg(m.startTime.Add(d)))
	return next.(Model), cmd
}

// =============================================================================
// Tests: New / Init
// =============================================================================

func TestNew(t *testing.T) {
	m := newTestModel(nil, "ready", "listening")

	if m.width != 80 || m.height != 24 {
		t.Errorf("size = %dx%d, want 80x24", m.width, m.height)
	}
	if got := m.Missing(); len(got) != 2 || got[0] != "ready" {
		t.Errorf("Missing() = %v, want every expected message", got)
	}
	if m.Met() || m.Aborted() {
		t.Error("fresh model should be neither met nor aborted")
	}
}

func TestNew_DefaultPeriod(t *testing.T) {
	m := New(Config{Timeout: time.Second})
	if m.period <= 0 {
		t.Errorf("period = %v, want positive default", m.period)
	}
}

func TestModel_Init(t *testing.T) {
	if newTestModel(nil, "x").Init() == nil {
		t.Error("Init() returned nil cmd")
	}
}

// =============================================================================
// Tests: Update - Key Messages
// =============================================================================

func TestModel_Update_QuitKeys(t *testing.T) {
	tests := []struct {
		key      string
		wantQuit bool
	}{
		{"q", true},
		{"ctrl+c", true},
		{"esc", true},
		{"a", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m := newTestModel(nil, "x")

			var msg tea.KeyMsg
			switch tt.key {
			case "ctrl+c":
				msg = tea.KeyMsg{Type: tea.KeyCtrlC}
			case "esc":
				msg = tea.KeyMsg{Type: tea.KeyEscape}
			default:
				msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(tt.key)}
			}

			next, cmd := m.Update(msg)
			got := next.(Model)
			if got.quitting != tt.wantQuit {
				t.Errorf("quitting = %v, want %v", got.quitting, tt.wantQuit)
			}
			if tt.wantQuit && cmd == nil {
				t.Error("expected quit cmd")
			}
			if tt.wantQuit && !got.Aborted() {
				t.Error("quitting before the wait finished should count as aborted")
			}
		})
	}
}

func TestModel_Update_WindowSize(t *testing.T) {
	m := newTestModel(nil)
	next, cmd := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	got := next.(Model)

	if got.width != 120 || got.height != 40 {
		t.Errorf("size = %dx%d, want 120x40", got.width, got.height)
	}
	if cmd != nil {
		t.Error("WindowSizeMsg should not return a cmd")
	}
}

// =============================================================================
// Tests: Update - Ticks
// =============================================================================

func TestModel_Update_TickUntilMet(t *testing.T) {
	src := &scriptedSource{script: [][]string{
		{"ready", "listening"},
		{"listening"},
		{},
	}}
	m := newTestModel(src, "ready", "listening")

	m, cmd := tick(t, m, time.Second)
	if m.Met() || cmd == nil {
		t.Fatal("first poll should keep waiting")
	}

	m, _ = tick(t, m, 2*time.Second)
	if got := m.Missing(); len(got) != 1 || got[0] != "listening" {
		t.Errorf("Missing() = %v, want [listening]", got)
	}

	m, cmd = tick(t, m, 3*time.Second)
	if !m.Met() {
		t.Fatal("all messages found, Met() should be true")
	}
	if cmd == nil {
		t.Error("expected quit cmd once met")
	}
	if m.polls != 3 || src.calls != 3 {
		t.Errorf("polls = %d, source calls = %d, want 3", m.polls, src.calls)
	}
	if m.Elapsed() != 3*time.Second {
		t.Errorf("Elapsed() = %v, want 3s", m.Elapsed())
	}
}

func TestModel_Update_TickTimeout(t *testing.T) {
	src := &scriptedSource{script: [][]string{{"ready"}}}
	m := newTestModel(src, "ready")

	// Exactly at the timeout another poll is still allowed.
	m, _ = tick(t, m, 10*time.Second)
	if m.done {
		t.Fatal("elapsed == timeout should not stop the wait")
	}

	m, cmd := tick(t, m, 11*time.Second)
	if !m.done || m.Met() {
		t.Errorf("done = %v, met = %v, want timed out", m.done, m.Met())
	}
	if cmd == nil {
		t.Error("expected quit cmd on timeout")
	}
	if m.Aborted() {
		t.Error("timeout is not an abort")
	}
}

func TestModel_Update_TickAfterDone(t *testing.T) {
	src := &scriptedSource{script: [][]string{{}}}
	m := newTestModel(src, "ready")

	m, _ = tick(t, m, time.Second)
	m, cmd := tick(t, m, 2*time.Second)
	if cmd != nil || src.calls != 1 {
		t.Errorf("ticks after done should be ignored, calls = %d", src.calls)
	}
}

func TestModel_Progress(t *testing.T) {
	src := &scriptedSource{script: [][]string{{"x"}}}
	m := newTestModel(src, "x")

	if m.Progress() != 0 {
		t.Errorf("Progress() = %v, want 0", m.Progress())
	}
	m, _ = tick(t, m, 5*time.Second)
	if m.Progress() != 0.5 {
		t.Errorf("Progress() = %v, want 0.5", m.Progress())
	}
	m, _ = tick(t, m, 20*time.Second)
	if m.Progress() != 1 {
		t.Errorf("Progress() = %v, want clamped to 1", m.Progress())
	}
}

// =============================================================================
// Tests: View
// =============================================================================

func TestModel_View(t *testing.T) {
	src := &scriptedSource{script: [][]string{{"listening"}}}
	m := newTestModel(src, "ready", "listening")
	m, _ = tick(t, m, time.Second)

	view := m.View()
	for _, want := range []string{"/tmp/command.txt", "ready", "listening", "1/2 found", "q: quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestModel_View_States(t *testing.T) {
	m := newTestModel(nil, "x")
	if !strings.Contains(m.View(), "first poll") {
		t.Error("initial view should say it is waiting for the first poll")
	}

	met := newTestModel(&scriptedSource{script: [][]string{{}}}, "x")
	met, _ = tick(t, met, time.Second)
	if !strings.Contains(met.View(), "All messages found") {
		t.Error("met view should report success")
	}

	late := newTestModel(&scriptedSource{script: [][]string{{"x"}}}, "x")
	late, _ = tick(t, late, time.Minute)
	if !strings.Contains(late.View(), "Timed out") {
		t.Error("timed out view should report the timeout")
	}
}

func TestModel_View_Quitting(t *testing.T) {
	m := newTestModel(nil, "x")
	m.quitting = true
	if m.View() != "" {
		t.Error("View() should be empty while quitting")
	}
}

func TestModel_View_NothingExpected(t *testing.T) {
	m := newTestModel(nil)
	if !strings.Contains(m.View(), "nothing expected") {
		t.Error("empty expected list should be called out")
	}
}
