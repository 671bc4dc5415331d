// Package ui provides console output for the genhat CLI
package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/genhat/genhat-core/pkg/launcher"
)

// Styles for consistent UI
var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// UI provides console output helpers
type UI struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer
}

// NewUI writes to stdout and stderr
func NewUI() *UI {
	return New(os.Stdout, os.Stderr)
}

// New writes to the given streams
func New(out, err io.Writer) *UI {
	return &UI{out: out, err: err}
}

// println serializes writes so concurrent events do not interleave
func (ui *UI) println(w io.Writer, s string) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	fmt.Fprintln(w, s)
}

// Success prints a success message
func (ui *UI) Success(msg string) {
	ui.println(ui.out, successStyle.Render("✓ "+msg))
}

// Error prints an error message
func (ui *UI) Error(msg string) {
	ui.println(ui.err, errorStyle.Render("✗ "+msg))
}

// Warning prints a warning message
func (ui *UI) Warning(msg string) {
	ui.println(ui.out, warningStyle.Render("⚠ "+msg))
}

// Info prints an info message
func (ui *UI) Info(msg string) {
	ui.println(ui.out, infoStyle.Render("ℹ "+msg))
}

// Subtle prints a muted message
func (ui *UI) Subtle(msg string) {
	ui.println(ui.out, subtleStyle.Render(msg))
}

// Println prints a regular message
func (ui *UI) Println(msg string) {
	ui.println(ui.out, msg)
}

// Header prints a section header
func (ui *UI) Header(title string) {
	ui.println(ui.out, headerStyle.Render(title))
}

// KeyValue prints a key-value pair
func (ui *UI) KeyValue(key, value string) {
	ui.println(ui.out, fmt.Sprintf("  %s: %s", subtleStyle.Render(key), value))
}

// ListItem prints a list item
func (ui *UI) ListItem(item string) {
	ui.println(ui.out, "  • "+item)
}

// LauncherError prints a coded error with its suggestion and, for
// resolution failures, every path that was checked.
func (ui *UI) LauncherError(err error) {
	ui.Error(err.Error())

	if checked := launcher.CheckedPaths(err); len(checked) > 0 {
		ui.Subtle("Checked:")
		for _, p := range checked {
			ui.Subtle("  " + p)
		}
	}

	if stdout, stderr := launcher.CapturedOutput(err); stdout != "" || stderr != "" {
		if stdout != "" {
			ui.Subtle("stdout:")
			ui.Println(strings.TrimRight(stdout, "\n"))
		}
		if stderr != "" {
			ui.Subtle("stderr:")
			ui.Println(strings.TrimRight(stderr, "\n"))
		}
	}

	if s := launcher.GetSuggestion(err); s != "" {
		ui.Info(s)
	}
}

// ReportLifecycleEvent prints backend lifecycle events, so a UI can be
// handed to the app as its event publisher.
func (ui *UI) ReportLifecycleEvent(ctx context.Context, eventType, message string, metadata map[string]string) error {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+metadata[k])
	}
	line := fmt.Sprintf("[%s] %s %s", eventType, message, subtleStyle.Render(strings.Join(parts, " ")))

	switch eventType {
	case launcher.EventRunning:
		ui.Success(line)
	case launcher.EventCrashed, launcher.EventFailed:
		ui.Warning(line)
	default:
		ui.Info(line)
	}
	return nil
}

var _ launcher.EventPublisher = (*UI)(nil)

// Table prints a simple table
type Table struct {
	ui      *UI
	headers []string
	rows    [][]string
}

// NewTable creates a new table
func (ui *UI) NewTable(headers ...string) *Table {
	return &Table{
		ui:      ui,
		headers: headers,
		rows:    make([][]string, 0),
	}
}

// AddRow adds a row to the table
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render renders the table
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	// Calculate column widths
	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = len(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	// Print header
	headerParts := make([]string, len(t.headers))
	for i, header := range t.headers {
		headerParts[i] = padRight(header, widths[i])
	}
	t.ui.Println(headerStyle.Render(strings.Join(headerParts, " │ ")))

	// Print separator
	separatorParts := make([]string, len(widths))
	for i, width := range widths {
		separatorParts[i] = strings.Repeat("─", width)
	}
	t.ui.Println(subtleStyle.Render(strings.Join(separatorParts, "─┼─")))

	// Print rows, padding short ones
	for _, row := range t.rows {
		rowParts := make([]string, len(t.headers))
		for i := range t.headers {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			rowParts[i] = padRight(cell, widths[i])
		}
		t.ui.Println(strings.Join(rowParts, " │ "))
	}
}

// padRight pads s with spaces to width
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
