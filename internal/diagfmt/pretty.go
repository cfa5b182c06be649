package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"proxygen/internal/diag"
)

// Pretty форматирует диагностики в человекочитаемый вид, в порядке записи.
// Для каждого diag печатает:
// <location>: <SEV> <CODE> <subject>: <Message>
// затем Notes с отступом.
// Цвет включается опцией.
func Pretty(w io.Writer, diags []diag.Diagnostic, opts PrettyOpts) {
	p := newPalette(opts.Color)
	for i := range diags {
		d := &diags[i]
		var sb strings.Builder
		if !d.Location.IsZero() {
			sb.WriteString(p.loc.Sprint(locationString(d.Location.Module, d.Location.Document, opts.PathMode, opts.BaseDir)))
			sb.WriteString(": ")
		}
		sb.WriteString(p.severity(d.Severity).Sprint(d.Severity.String()))
		sb.WriteString(" ")
		sb.WriteString(p.code.Sprint(d.Code.ID()))
		if d.Subject != "" {
			sb.WriteString(" ")
			sb.WriteString(p.subject.Sprint(d.Subject))
		}
		sb.WriteString(": ")
		sb.WriteString(d.Message)
		if opts.ShowTitle {
			sb.WriteString(" [")
			sb.WriteString(d.Code.Title())
			sb.WriteString("]")
		}
		writeLine(w, sb.String(), opts.Width)

		if !opts.ShowNotes {
			continue
		}
		for _, n := range d.Notes {
			line := "  " + p.note.Sprint("note") + ": "
			if n.Subject != "" {
				line += n.Subject + ": "
			}
			writeLine(w, line+n.Msg, opts.Width)
		}
	}
}

// Summary печатает итоговую строку: "2 errors, 1 warning".
func Summary(w io.Writer, diags []diag.Diagnostic, dropped int, useColor bool) {
	errs, warns, _ := diag.CountBySeverity(diags)
	p := newPalette(useColor)
	parts := []string{
		p.severity(diag.SevError).Sprint(plural(errs, "error")),
		p.severity(diag.SevWarning).Sprint(plural(warns, "warning")),
	}
	line := strings.Join(parts, ", ")
	if dropped > 0 {
		line += fmt.Sprintf(" (%d more not shown)", dropped)
	}
	fmt.Fprintln(w, line)
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func writeLine(w io.Writer, line string, width int) {
	if width > 0 && runewidth.StringWidth(line) > width {
		line = runewidth.Truncate(line, width, "…")
	}
	fmt.Fprintln(w, line)
}

type palette struct {
	loc, code, subject, note *color.Color
	err, warn, info          *color.Color
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return palette{
		loc:     mk(color.Bold),
		code:    mk(color.FgCyan),
		subject: mk(color.Bold),
		note:    mk(color.FgBlue, color.Bold),
		err:     mk(color.FgRed, color.Bold),
		warn:    mk(color.FgYellow, color.Bold),
		info:    mk(color.FgGreen),
	}
}

func (p palette) severity(s diag.Severity) *color.Color {
	switch s {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	default:
		return p.info
	}
}
