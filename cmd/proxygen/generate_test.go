package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"proxygen/internal/emit"
)

func TestWriteUnits(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gen")
	units := []emit.Unit{
		{Name: "Shop.Customer", FileName: "shop_customer.go", Text: []byte("package proxy\n")},
		{Name: "Shop.Orders", FileName: "../escape.go", Text: []byte("package proxy\n\n// orders\n")},
	}
	n, err := writeUnits(dir, units, false)
	if err != nil {
		t.Fatalf("writeUnits: %v", err)
	}
	if n != 2 {
		t.Fatalf("written = %d, want 2", n)
	}
	got, err := os.ReadFile(filepath.Join(dir, "shop_customer.go"))
	if err != nil {
		t.Fatalf("read unit: %v", err)
	}
	if string(got) != "package proxy\n" {
		t.Fatalf("unit text = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.go")); err != nil {
		t.Fatalf("unit with a relative name not written inside the output dir: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("output dir holds %d entries, want 2 (temp files left behind?)", len(entries))
	}
}

func TestWriteUnitsDryRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gen")
	n, err := writeUnits(dir, []emit.Unit{{FileName: "a.go", Text: []byte("x")}}, true)
	if err != nil || n != 1 {
		t.Fatalf("writeUnits dry run = %d, %v", n, err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("dry run created the output directory")
	}
}

func TestRenderVersionJSON(t *testing.T) {
	var buf bytes.Buffer
	info := versionInfo{Version: "1.2.3", Fingerprint: "1.2.3+abc", GitCommit: "abc"}
	if err := renderVersionJSON(&buf, info, versionOptions{showHash: true}); err != nil {
		t.Fatalf("renderVersionJSON: %v", err)
	}
	var payload versionPayload
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Tool != "proxygen" || payload.Version != "1.2.3" || payload.GitCommit != "abc" {
		t.Fatalf("payload = %+v", payload)
	}
	if payload.BuildDate != "" {
		t.Fatalf("build date included without --date: %q", payload.BuildDate)
	}
}
