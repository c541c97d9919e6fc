package state

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorWhite  = "\033[37m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// Box drawing characters (Unicode)
const (
	boxTopLeft     = "╔"
	boxTopRight    = "╗"
	boxBottomLeft  = "╚"
	boxBottomRight = "╝"
	boxHorizontal  = "═"
	boxVertical    = "║"
	boxTeeRight    = "╠"
	boxTeeLeft     = "╣"
)

const panelWidth = 60

// TerminalUI draws a live progress panel for a search run.
type TerminalUI struct {
	mu           sync.Mutex
	out          io.Writer
	state        *RunState
	lastRender   time.Time
	renderLines  int // lines drawn by the previous render
	enabled      bool
	minRenderGap time.Duration
}

// NewTerminalUI creates a UI writing to stderr.
func NewTerminalUI() *TerminalUI {
	return &TerminalUI{
		out:          os.Stderr,
		enabled:      true,
		minRenderGap: 100 * time.Millisecond,
	}
}

// SetState sets the state to display.
func (t *TerminalUI) SetState(s RunState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = &s
}

// SetEnabled enables or disables the UI.
func (t *TerminalUI) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// Render draws the current state, overwriting the previous panel.
func (t *TerminalUI) Render() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled || t.state == nil {
		return
	}

	if time.Since(t.lastRender) < t.minRenderGap {
		return
	}
	t.lastRender = time.Now()

	output := t.buildDisplay()
	for i := 0; i < t.renderLines; i++ {
		fmt.Fprint(t.out, "\033[A\033[2K") // up one line and clear it
	}
	fmt.Fprint(t.out, output)
	t.renderLines = strings.Count(output, "\n")
}

// Clear removes the panel from the terminal.
func (t *TerminalUI) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := 0; i < t.renderLines; i++ {
		fmt.Fprint(t.out, "\033[A\033[K")
	}
	t.renderLines = 0
}

func (t *TerminalUI) separator(left, right string) string {
	return t.colorize(left, colorCyan) +
		t.colorize(strings.Repeat(boxHorizontal, panelWidth-2), colorCyan) +
		t.colorize(right, colorCyan) + "\n"
}

// buildDisplay constructs the display string.
func (t *TerminalUI) buildDisplay() string {
	s := t.state
	var sb strings.Builder

	sb.WriteString(t.separator(boxTopLeft, boxTopRight))

	title := " TGEN - Test Generator "
	padding := (panelWidth - 2 - len(title)) / 2
	sb.WriteString(t.colorize(boxVertical, colorCyan))
	sb.WriteString(strings.Repeat(" ", padding))
	sb.WriteString(t.colorize(title, colorBold+colorYellow))
	sb.WriteString(strings.Repeat(" ", panelWidth-2-padding-len(title)))
	sb.WriteString(t.colorize(boxVertical, colorCyan))
	sb.WriteString("\n")

	sb.WriteString(t.separator(boxTeeRight, boxTeeLeft))

	sb.WriteString(t.formatRow("Runtime", formatDuration(s.Elapsed()), colorWhite))
	sb.WriteString(t.formatRow("Archive", s.ArchiveKind, colorWhite))
	sb.WriteString(t.formatRow("Generation", fmt.Sprintf("%d", s.Generation), colorWhite))
	sb.WriteString(t.formatRow("Evaluations", fmt.Sprintf("%d", s.Evaluations), colorWhite))
	sb.WriteString(t.formatRow("Archive Updates", fmt.Sprintf("%d", s.ArchiveUpdates), colorGreen))

	sb.WriteString(t.separator(boxTeeRight, boxTeeLeft))

	sb.WriteString(t.formatCoverageBar(s))

	sb.WriteString(t.separator(boxTeeRight, boxTeeLeft))

	sb.WriteString(t.formatRow("Speed", fmt.Sprintf("%.1f evals/sec", s.EvaluationsPerSecond()), colorWhite))

	sb.WriteString(t.separator(boxBottomLeft, boxBottomRight))

	return sb.String()
}

// formatRow formats a single row with label and value.
func (t *TerminalUI) formatRow(label, value string, valueColor string) string {
	var sb strings.Builder

	sb.WriteString(t.colorize(boxVertical, colorCyan))
	sb.WriteString(" ")

	labelWidth := 18
	sb.WriteString(t.colorize(label, colorDim))
	sb.WriteString(strings.Repeat(" ", labelWidth-len(label)))

	valueWidth := panelWidth - labelWidth - 4
	if padding := valueWidth - len(value); padding > 0 {
		sb.WriteString(strings.Repeat(" ", padding))
	}
	sb.WriteString(t.colorize(value, valueColor))

	sb.WriteString(" ")
	sb.WriteString(t.colorize(boxVertical, colorCyan))
	sb.WriteString("\n")

	return sb.String()
}

// formatCoverageBar formats the target coverage label and progress bar.
func (t *TerminalUI) formatCoverageBar(s *RunState) string {
	var sb strings.Builder

	sb.WriteString(t.colorize(boxVertical, colorCyan))
	sb.WriteString(" ")
	label := fmt.Sprintf("Coverage: %.2f%% (%d/%d targets)", s.Coverage(), s.CoveredTargets, s.TotalTargets)
	sb.WriteString(t.colorize(label, colorWhite))
	if pad := panelWidth - 3 - len(label); pad > 0 {
		sb.WriteString(strings.Repeat(" ", pad))
	}
	sb.WriteString(t.colorize(boxVertical, colorCyan))
	sb.WriteString("\n")

	sb.WriteString(t.colorize(boxVertical, colorCyan))
	sb.WriteString(" ")

	barWidth := panelWidth - 6
	filled := 0
	if s.TotalTargets > 0 {
		filled = barWidth * s.CoveredTargets / s.TotalTargets
	}
	if filled > barWidth {
		filled = barWidth
	}

	sb.WriteString("[")
	if filled > 0 {
		sb.WriteString(t.colorize(strings.Repeat("█", filled), colorGreen))
	}
	if empty := barWidth - filled; empty > 0 {
		sb.WriteString(t.colorize(strings.Repeat("░", empty), colorDim))
	}
	sb.WriteString("]")

	sb.WriteString(" ")
	sb.WriteString(t.colorize(boxVertical, colorCyan))
	sb.WriteString("\n")

	return sb.String()
}

// colorize wraps text with ANSI color codes.
func (t *TerminalUI) colorize(text, color string) string {
	return color + text + colorReset
}

// IsTerminal checks if stderr is a terminal.
func IsTerminal() bool {
	fileInfo, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
