package diag

// Location points at the artifact a diagnostic is about: a client module,
// a source document recorded in its symbols, or a descriptor fragment.
type Location struct {
	Module   string
	Document string
}

func (l Location) IsZero() bool {
	return l.Module == "" && l.Document == ""
}

func (l Location) String() string {
	switch {
	case l.Module != "" && l.Document != "":
		return l.Module + "(" + l.Document + ")"
	case l.Module != "":
		return l.Module
	default:
		return l.Document
	}
}

type Note struct {
	Subject string
	Msg     string
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	// Subject is the qualified type identity ("Namespace.Name") or empty for run-level findings.
	Subject  string
	Message  string
	Location Location
	Notes    []Note
}

func New(sev Severity, code Code, subject, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Subject:  subject,
		Message:  msg,
	}
}

func NewError(code Code, subject, msg string) Diagnostic {
	return New(SevError, code, subject, msg)
}

func NewWarning(code Code, subject, msg string) Diagnostic {
	return New(SevWarning, code, subject, msg)
}

func (d Diagnostic) At(loc Location) Diagnostic {
	d.Location = loc
	return d
}

func (d Diagnostic) WithNote(subject, msg string) Diagnostic {
	notes := make([]Note, len(d.Notes), len(d.Notes)+1)
	copy(notes, d.Notes)
	d.Notes = append(notes, Note{Subject: subject, Msg: msg})
	return d
}
