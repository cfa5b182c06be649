package symbols

import "fmt"

// ModuleNotFoundError reports a module path that cannot be read.
type ModuleNotFoundError struct {
	Path string
	Err  error
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module %q not found: %v", e.Path, e.Err)
}

func (e *ModuleNotFoundError) Unwrap() error { return e.Err }

// FormatError reports data that is not a compatible symbol store.
type FormatError struct {
	Path    string
	Reason  string
	Timeout bool
	Err     error
}

func (e *FormatError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Path == "" {
		return "symbol format: " + msg
	}
	return fmt.Sprintf("%s: symbol format: %s", e.Path, msg)
}

func (e *FormatError) Unwrap() error { return e.Err }

func formatErr(format string, args ...any) *FormatError {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}
