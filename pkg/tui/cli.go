// Package tui renders reportflow command output.
// Simple, streaming, no complex TUI - just clean lines and a progress bar.
package tui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
)

const rule = "  ─────────────────────────────────────"

// Printer writes styled output to W.
type Printer struct {
	W io.Writer
}

// Stdout returns a printer on standard output.
func Stdout() *Printer {
	return &Printer{W: os.Stdout}
}

// Header prints a section title.
func (p *Printer) Header(title string) {
	fmt.Fprintln(p.W)
	fmt.Fprintln(p.W, accentStyle.Render("▸ "+title))
}

// Field prints one labelled value.
func (p *Printer) Field(label, value string) {
	fmt.Fprintf(p.W, "  %s %s\n", mutedStyle.Render(label+":"), titleStyle.Render(value))
}

// Code prints a value in code style.
func (p *Printer) Code(label, value string) {
	fmt.Fprintf(p.W, "  %s %s\n", mutedStyle.Render(label+":"), codeStyle.Render(value))
}

// Rule prints a separator.
func (p *Printer) Rule() {
	fmt.Fprintln(p.W, mutedStyle.Render(rule))
}

// OK prints a success line.
func (p *Printer) OK(msg string) {
	fmt.Fprintf(p.W, "  %s %s\n", successStyle.Render("✓"), msg)
}

// Fail prints a failure line.
func (p *Printer) Fail(msg string) {
	fmt.Fprintf(p.W, "  %s %s\n", accentStyle.Render("✗"), msg)
}

// Muted prints a dimmed line.
func (p *Printer) Muted(msg string) {
	fmt.Fprintln(p.W, mutedStyle.Render("  "+msg))
}

// ImportSummary for printing results.
type ImportSummary struct {
	RunID    string
	Files    int
	Skipped  int
	Tables   []string
	Rows     map[string]int
	Archived []string
	Duration time.Duration
}

// PrintImportSummary prints results after an import.
func (p *Printer) PrintImportSummary(s *ImportSummary) {
	fmt.Fprintln(p.W)
	fmt.Fprintln(p.W, successStyle.Render("  ✓ IMPORT COMPLETE"))
	fmt.Fprintln(p.W)
	p.Code("Run", s.RunID)
	p.Field("Files", fmt.Sprintf("%d (%d skipped)", s.Files, s.Skipped))

	total := 0
	for _, t := range s.Tables {
		total += s.Rows[t]
	}
	p.Field("Rows", FormatNumber(int64(total)))
	if s.Duration > 0 {
		p.Field("Time", FormatDuration(s.Duration))
	}

	if len(s.Tables) > 0 {
		p.Rule()
		for _, t := range s.Tables {
			fmt.Fprintf(p.W, "  %-30s %s\n", t, mutedStyle.Render(FormatNumber(int64(s.Rows[t]))+" rows"))
		}
	}
	for _, key := range s.Archived {
		p.Muted("archived " + key)
	}
	fmt.Fprintln(p.W)
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

// FormatNumber abbreviates large counts.
func FormatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// ShowProgress creates a progress bar counting files.
func ShowProgress(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
