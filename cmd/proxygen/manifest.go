package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const manifestName = "proxygen.toml"

type projectManifest struct {
	Path   string
	Root   string
	Config manifestConfig
}

type manifestConfig struct {
	Generate   generateConfig    `toml:"generate"`
	Namespaces map[string]string `toml:"namespaces"`
	Cache      cacheConfig       `toml:"cache"`
}

type generateConfig struct {
	Descriptors string   `toml:"descriptors"`
	Modules     []string `toml:"modules"`
	Out         string   `toml:"out"`
	Package     string   `toml:"package"`
	Jobs        int      `toml:"jobs"`
	Timeout     string   `toml:"timeout"`
	Header      string   `toml:"header"`
}

type cacheConfig struct {
	Disk   *bool  `toml:"disk"`
	Dir    string `toml:"dir"`
	Memory int    `toml:"memory"`
}

func findManifest(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, manifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// loadProjectManifest reads an explicit manifest path, or walks up from
// startDir when path is empty. ok is false when nothing was found.
func loadProjectManifest(path, startDir string) (*projectManifest, bool, error) {
	if path == "" {
		found, ok, err := findManifest(startDir)
		if err != nil || !ok {
			return nil, ok, err
		}
		path = found
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve manifest path: %w", err)
	}
	cfg, err := loadManifestConfig(abs)
	if err != nil {
		return nil, true, err
	}
	m := &projectManifest{Path: abs, Root: filepath.Dir(abs), Config: cfg}
	m.resolvePaths()
	return m, true, nil
}

func loadManifestConfig(path string) (manifestConfig, error) {
	var cfg manifestConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return manifestConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return manifestConfig{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if !meta.IsDefined("generate") {
		return manifestConfig{}, fmt.Errorf("%s: missing [generate]", path)
	}
	if cfg.Generate.Timeout != "" {
		if _, err := time.ParseDuration(cfg.Generate.Timeout); err != nil {
			return manifestConfig{}, fmt.Errorf("%s: invalid [generate].timeout: %w", path, err)
		}
	}
	if cfg.Generate.Jobs < 0 {
		return manifestConfig{}, fmt.Errorf("%s: [generate].jobs must not be negative", path)
	}
	return cfg, nil
}

// resolvePaths makes manifest-relative paths absolute.
func (m *projectManifest) resolvePaths() {
	g := &m.Config.Generate
	g.Descriptors = m.abs(g.Descriptors)
	g.Out = m.abs(g.Out)
	for i, p := range g.Modules {
		g.Modules[i] = m.abs(p)
	}
	m.Config.Cache.Dir = m.abs(m.Config.Cache.Dir)
}

func (m *projectManifest) abs(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Root, filepath.FromSlash(p))
}

func (c generateConfig) timeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}
