package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeManifest(t *testing.T, dir, data string) string {
	t.Helper()
	path := filepath.Join(dir, manifestName)
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write proxygen.toml: %v", err)
	}
	return path
}

func TestLoadProjectManifestWalksUp(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `# test manifest
[generate]
descriptors = "api/service.yaml"
modules = ["bin/Shop.Client.psym", "/abs/Shared.psym"]
out = "gen"
package = "shop"
jobs = 4
timeout = "5s"

[namespaces]
"Shop.Orders" = "orders"

[cache]
disk = false
memory = 16
`)
	nested := filepath.Join(root, "src", "deep")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	m, ok, err := loadProjectManifest("", nested)
	if err != nil {
		t.Fatalf("loadProjectManifest: %v", err)
	}
	if !ok {
		t.Fatalf("manifest not found from %s", nested)
	}
	absRoot, _ := filepath.Abs(root)
	if m.Root != absRoot {
		t.Fatalf("root = %q, want %q", m.Root, absRoot)
	}
	g := m.Config.Generate
	if want := filepath.Join(absRoot, "api", "service.yaml"); g.Descriptors != want {
		t.Fatalf("descriptors = %q, want %q", g.Descriptors, want)
	}
	if want := filepath.Join(absRoot, "bin", "Shop.Client.psym"); g.Modules[0] != want {
		t.Fatalf("modules[0] = %q, want %q", g.Modules[0], want)
	}
	if g.Modules[1] != "/abs/Shared.psym" {
		t.Fatalf("absolute module path rewritten: %q", g.Modules[1])
	}
	if g.timeout() != 5*time.Second {
		t.Fatalf("timeout = %v, want 5s", g.timeout())
	}
	if m.Config.Namespaces["Shop.Orders"] != "orders" {
		t.Fatalf("namespaces = %v", m.Config.Namespaces)
	}
	if m.Config.Cache.Disk == nil || *m.Config.Cache.Disk {
		t.Fatalf("cache.disk = %v, want false", m.Config.Cache.Disk)
	}

	var opts generateOptions
	opts.diskCache = true
	opts.applyManifest(m)
	if opts.diskCache || opts.memorySize != 16 || opts.jobs != 4 || opts.pkg != "shop" {
		t.Fatalf("applyManifest = %+v", opts)
	}
}

func TestLoadProjectManifestNotFound(t *testing.T) {
	_, ok, err := loadProjectManifest("", t.TempDir())
	if err != nil {
		t.Fatalf("loadProjectManifest: %v", err)
	}
	if ok {
		t.Fatalf("manifest found in an empty tree")
	}
}

func TestLoadManifestRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		data string
		want string
	}{
		{"missing generate", "[cache]\ndisk = true\n", "missing [generate]"},
		{"unknown key", "[generate]\ndescriptors = \"a.yaml\"\nflavour = \"x\"\n", "unknown keys"},
		{"bad timeout", "[generate]\ntimeout = \"soon\"\n", "invalid [generate].timeout"},
		{"negative jobs", "[generate]\njobs = -1\n", "must not be negative"},
		{"syntax", "[generate\n", "failed to parse TOML"},
	}
	for _, tc := range cases {
		path := writeManifest(t, t.TempDir(), tc.data)
		_, _, err := loadProjectManifest(path, "")
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}
