// Package console renders operator-facing output: titles, key/value blocks,
// tables and progress bars. Logs go through zap; this is for humans.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorAccent  = lipgloss.Color("#2196F3")
	colorSuccess = lipgloss.Color("#8BC34A")
	colorWarning = lipgloss.Color("#FFC107")
	colorDanger  = lipgloss.Color("#e53935")
	colorMuted   = lipgloss.Color("#6b7280")
)

// Styles used by a Printer.
type Styles struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Danger  lipgloss.Style
	Box     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Title:   r.NewStyle().Bold(true).Foreground(colorAccent).MarginTop(1),
		Bold:    r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(colorMuted),
		Success: r.NewStyle().Foreground(colorSuccess),
		Warning: r.NewStyle().Foreground(colorWarning),
		Danger:  r.NewStyle().Foreground(colorDanger).Bold(true),
		Box:     r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorMuted).Padding(0, 1),
	}
}

// Printer writes styled output to w. Colours are dropped when w is not a
// terminal.
type Printer struct {
	w      io.Writer
	styles Styles
}

// New creates a Printer for w.
func New(w io.Writer) *Printer {
	return &Printer{w: w, styles: newStyles(lipgloss.NewRenderer(w))}
}

// Styles returns the printer's styles.
func (p *Printer) Styles() Styles { return p.styles }

func (p *Printer) println(s string) {
	_, _ = fmt.Fprintln(p.w, s)
}

// Title prints a section heading.
func (p *Printer) Title(s string) {
	p.println(p.styles.Title.Render(s))
}

// Line prints formatted text.
func (p *Printer) Line(format string, args ...any) {
	p.println(fmt.Sprintf(format, args...))
}

// Success prints a positive status line.
func (p *Printer) Success(format string, args ...any) {
	p.println(p.styles.Success.Render("✓ " + fmt.Sprintf(format, args...)))
}

// Warn prints a warning line.
func (p *Printer) Warn(format string, args ...any) {
	p.println(p.styles.Warning.Render("! " + fmt.Sprintf(format, args...)))
}

// Fail prints an error line.
func (p *Printer) Fail(format string, args ...any) {
	p.println(p.styles.Danger.Render("✗ " + fmt.Sprintf(format, args...)))
}

// KV is one row of a key/value block.
type KV struct {
	Key   string
	Value string
}

// Pairs prints aligned key/value rows.
func (p *Printer) Pairs(kvs ...KV) {
	width := 0
	for _, kv := range kvs {
		width = max(width, lipgloss.Width(kv.Key))
	}
	key := p.styles.Muted.Width(width + 2)
	for _, kv := range kvs {
		p.println(key.Render(kv.Key+":") + kv.Value)
	}
}

// Box prints s inside a rounded border.
func (p *Printer) Box(s string) {
	p.println(p.styles.Box.Render(s))
}

// Table prints rows under headers with columns padded to fit.
func (p *Printer) Table(headers []string, rows [][]string) {
	p.println(RenderTable(p.styles, headers, rows))
}

// RenderTable renders rows under headers. Rows shorter than headers are
// padded with empty cells.
func RenderTable(st Styles, headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	var sb strings.Builder
	sep := st.Muted.Render(" │ ")
	header := st.Bold
	for i, h := range headers {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(header.Width(widths[i]).Render(h))
	}
	sb.WriteByte('\n')

	for i, w := range widths {
		if i > 0 {
			sb.WriteString(st.Muted.Render("─┼─"))
		}
		sb.WriteString(st.Muted.Render(strings.Repeat("─", w)))
	}

	cell := lipgloss.NewStyle()
	for _, row := range rows {
		sb.WriteByte('\n')
		for i, w := range widths {
			if i > 0 {
				sb.WriteString(sep)
			}
			v := ""
			if i < len(row) {
				v = row[i]
			}
			sb.WriteString(cell.Width(w).Render(v))
		}
	}
	return sb.String()
}

// Bar renders a width-cell progress bar for percent in [0, 100].
func Bar(percent float64, width int) string {
	if width <= 0 {
		width = 20
	}
	percent = min(max(percent, 0), 100)
	filled := int(percent / 100 * float64(width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

// Percent formats a percentage with one decimal.
func Percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}
