package diagfmt

import (
	"fmt"
	"io"

	"proxygen/internal/diag"
)

// Short печатает по строке на диагностику в формате, который понимают
// сборочные системы: "<location>: error SHR3001: Shop.Order: message".
func Short(w io.Writer, diags []diag.Diagnostic, mode PathMode, base string) {
	for i := range diags {
		d := &diags[i]
		loc := locationString(d.Location.Module, d.Location.Document, mode, base)
		if loc == "" {
			loc = "proxygen"
		}
		msg := d.Message
		if d.Subject != "" {
			msg = d.Subject + ": " + msg
		}
		fmt.Fprintf(w, "%s: %s %s: %s\n", loc, d.Severity.Label(), d.Code.ID(), msg)
	}
}
