package diagfmt

import (
	"bytes"
	"encoding/json"
	"testing"

	"proxygen/internal/diag"
)

func TestJSONBasic(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, sampleDiags(), JSONOpts{PathMode: PathModeBasename, IncludeNotes: true}); err != nil {
		t.Fatalf("JSON() error: %v", err)
	}
	var out DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, buf.String())
	}
	if out.Count != 2 || out.Errors != 1 || out.Warnings != 1 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	first := out.Diagnostics[0]
	if first.Code != "SHR3001" || first.Severity != "ERROR" || first.Subject != "Shop.Order" {
		t.Fatalf("unexpected diagnostic: %+v", first)
	}
	if first.Location == nil || first.Location.Module != "client.psym" || first.Location.Document != "Order.cs" {
		t.Fatalf("unexpected location: %+v", first.Location)
	}
	if len(first.Notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(first.Notes))
	}
	if out.Diagnostics[1].Location != nil {
		t.Fatalf("run-level diagnostic must have no location")
	}
}

func TestJSONMaxAndTimingNotes(t *testing.T) {
	diags := append(sampleDiags(), diag.New(diag.SevInfo, diag.ObsTimings, "", "timings").WithNote("index", "1.20 ms"))
	out := BuildDiagnosticsOutput(diags, JSONOpts{Max: 2})
	if out.Count != 2 || out.Truncated != 1 {
		t.Fatalf("unexpected truncation: count=%d truncated=%d", out.Count, out.Truncated)
	}
	if len(out.Diagnostics[0].Notes) != 0 {
		t.Fatalf("notes included without IncludeNotes")
	}

	out = BuildDiagnosticsOutput(diags[2:], JSONOpts{})
	if len(out.Diagnostics[0].Notes) != 1 {
		t.Fatalf("timings must always carry notes")
	}
}
