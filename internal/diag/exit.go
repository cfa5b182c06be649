package diag

// Exit statuses consumed by the build integration.
const (
	ExitOK        = 0
	ExitErrors    = 1
	ExitFatal     = 2
	ExitCancelled = 3
)

// ExitOptions tune how diagnostics map to an exit status.
type ExitOptions struct {
	WarningsAsErrors bool
	Fatal            bool
	Cancelled        bool
}

// ExitStatus maps a finished run to a process exit code.
func ExitStatus(diags []Diagnostic, opts ExitOptions) int {
	if opts.Fatal {
		return ExitFatal
	}
	if opts.Cancelled {
		return ExitCancelled
	}
	for i := range diags {
		if diags[i].Severity.Fails(opts.WarningsAsErrors) {
			return ExitErrors
		}
	}
	return ExitOK
}

// CountBySeverity returns the number of errors, warnings and infos.
func CountBySeverity(diags []Diagnostic) (errs, warns, infos int) {
	for i := range diags {
		switch diags[i].Severity {
		case SevError:
			errs++
		case SevWarning:
			warns++
		default:
			infos++
		}
	}
	return errs, warns, infos
}
