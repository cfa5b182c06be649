package symbols

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadModule reads a module description from a .json, .yaml or .yml file.
func LoadModule(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read module description: %w", err)
	}
	var m Module
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&m)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&m)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse module description: %w", path, err)
	}
	return &m, nil
}

// Describe converts an index back into a module description, e.g. for dumps.
func Describe(idx *Index) *Module {
	m := &Module{Name: idx.Module, Age: idx.Age}
	for _, d := range idx.Documents {
		doc := ModuleDoc{Path: d.Path}
		if !d.Checksum.IsZero() {
			doc.Checksum = d.Checksum.String()
		}
		m.Documents = append(m.Documents, doc)
	}
	for _, key := range idx.Keys() {
		t, _ := idx.Lookup(key.Namespace, key.Name)
		vis := t.Visibility
		mt := ModuleType{
			Namespace:  key.Namespace,
			Name:       key.Name,
			Kind:       t.Kind,
			Visibility: &vis,
			Document:   t.Document,
		}
		if t.Base != nil {
			mt.Base = t.Base.String()
		}
		for _, mem := range t.Members {
			mv := mem.Visibility
			mt.Members = append(mt.Members, ModuleMember{
				Name:        mem.Name,
				Type:        mem.Type,
				Visibility:  &mv,
				Key:         mem.Key,
				Required:    mem.Required,
				Computed:    mem.Computed,
				Collection:  mem.Collection,
				Association: mem.Association,
			})
		}
		m.Types = append(m.Types, mt)
	}
	if idx.Partial {
		m.Omit.Members = true
	}
	return m
}
