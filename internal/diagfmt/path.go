package diagfmt

import (
	"path/filepath"
)

const autoPathLimit = 40

func formatPath(p string, mode PathMode, base string) string {
	if p == "" {
		return ""
	}
	switch mode {
	case PathModeAbsolute:
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	case PathModeRelative:
		if base == "" {
			return p
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return p
		}
		if rel, err := filepath.Rel(base, abs); err == nil {
			return rel
		}
		return p
	case PathModeBasename:
		return filepath.Base(p)
	default:
		if filepath.IsAbs(p) && len(p) > autoPathLimit {
			return filepath.Base(p)
		}
		return p
	}
}

// locationString печатает module(document) с учётом режима путей.
func locationString(module, document string, mode PathMode, base string) string {
	m := formatPath(module, mode, base)
	d := formatPath(document, mode, base)
	switch {
	case m != "" && d != "":
		return m + "(" + d + ")"
	case m != "":
		return m
	default:
		return d
	}
}
