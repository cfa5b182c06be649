package main

import (
	"bytes"
	"strings"
	"testing"

	"proxygen/internal/symbols"
)

func packedIndex(t *testing.T) *symbols.Index {
	t.Helper()
	priv := symbols.VisPrivate
	data, err := symbols.Marshal(&symbols.Module{
		Name: "Shop.Client",
		Types: []symbols.ModuleType{
			{
				Namespace: "Shop",
				Name:      "Customer",
				Document:  "Customer.cs",
				Members: []symbols.ModuleMember{
					{Name: "Id", Type: "guid", Key: true, Required: true},
					{Name: "Orders", Type: "Shop.Order", Collection: true, Association: "Shop.Order"},
				},
			},
			{Namespace: "Shop", Name: "Secret", Visibility: &priv},
		},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	idx, err := symbols.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return idx
}

func TestPrintIndexTableAligned(t *testing.T) {
	var buf bytes.Buffer
	printIndexTable(&buf, packedIndex(t), true)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header, 2 types and 2 member lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "TYPE") {
		t.Fatalf("header = %q", lines[0])
	}
	kindCol := strings.Index(lines[0], "KIND")
	if strings.Index(lines[1], "class") != kindCol {
		t.Fatalf("kind column misaligned:\n%s", buf.String())
	}
	if !strings.Contains(lines[2], "public Id guid [key, required]") {
		t.Fatalf("member line = %q", lines[2])
	}
	if !strings.Contains(lines[3], "[collection, -> Shop.Order]") {
		t.Fatalf("association member line = %q", lines[3])
	}
	if !strings.HasPrefix(lines[4], "Shop.Secret") || !strings.Contains(lines[4], "private") {
		t.Fatalf("private type line = %q", lines[4])
	}
}
