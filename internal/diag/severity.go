package diag

import "strings"

// Severity orders diagnostics: a run fails on the first SevError, and on
// warnings too when warnings are treated as errors.
type Severity uint8

const (
	// SevInfo notes a decision (shared type, external reference, timings).
	SevInfo Severity = iota
	SevWarning
	SevError
)

var severityNames = [...]string{SevInfo: "INFO", SevWarning: "WARNING", SevError: "ERROR"}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "UNKNOWN"
}

// Label is the lower-case form used by the short output format.
func (s Severity) Label() string {
	return strings.ToLower(s.String())
}

// Fails reports whether s makes the run exit with ExitErrors.
func (s Severity) Fails(warningsAsErrors bool) bool {
	return s >= SevError || (warningsAsErrors && s == SevWarning)
}
