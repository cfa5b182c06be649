// Package model turns server type descriptors into the intermediate model
// consumed by sharing resolution and emission: fragments merged, inheritance
// flattened, references resolved and every per-type problem reported.
package model

import (
	"slices"

	"proxygen/internal/descriptor"
)

// Type is one merged server type.
type Type struct {
	descriptor.Identity
	Kind descriptor.Kind
	// Base is the qualified base type name or "".
	Base string
	// Fragments lists the fragment labels merged into this type, in input order.
	Fragments []string
	// Own holds the members declared by the type itself, fragments unioned.
	Own []descriptor.Member
	// Members is the effective list: base chain root first, then Own.
	Members []descriptor.Member
	Keys    []string
	Values  []descriptor.EnumValue

	// Deps are the in-set types this type refers to (base, associations,
	// member types), sorted. Self references are not listed.
	Deps []string
	// External are referenced names found only on the client.
	External []string

	// Broken is set when the type itself failed; Err holds the first failure.
	Broken bool
	Err    error
	// Skipped is set when a direct dependency is broken.
	Skipped    bool
	SkippedFor string
}

// Qualified is shorthand for t.Identity.Qualified().
func (t *Type) Qualified() string { return t.Identity.Qualified() }

// Member looks an effective member up by name.
func (t *Type) Member(name string) (descriptor.Member, bool) {
	for _, m := range t.Members {
		if m.Name == name {
			return m, true
		}
	}
	return descriptor.Member{}, false
}

// Usable reports whether the type can produce output.
func (t *Type) Usable() bool { return !t.Broken && !t.Skipped }

// Service is a validated service contract.
type Service struct {
	descriptor.Identity
	Operations []descriptor.Operation
	Deps       []string
	External   []string
	Broken     bool
	Err        error
	Skipped    bool
	SkippedFor string
}

// Qualified is shorthand for s.Identity.Qualified().
func (s *Service) Qualified() string { return s.Identity.Qualified() }

// Usable reports whether the service can produce output.
func (s *Service) Usable() bool { return !s.Broken && !s.Skipped }

// Model is the intermediate model. Types and Services are sorted by qualified name.
type Model struct {
	Types    []*Type
	Services []*Service
	// External lists every client-resolved reference, sorted.
	External []string

	byName map[string]*Type
}

// Lookup finds a type by qualified name.
func (m *Model) Lookup(qualified string) (*Type, bool) {
	if m == nil {
		return nil, false
	}
	t, ok := m.byName[qualified]
	return t, ok
}

// Dependents returns the types listing qualified among their Deps, in model order.
func (m *Model) Dependents(qualified string) []*Type {
	var out []*Type
	for _, t := range m.Types {
		if _, found := slices.BinarySearch(t.Deps, qualified); found {
			out = append(out, t)
		}
	}
	return out
}

// ServiceDependents returns the services referring to qualified.
func (m *Model) ServiceDependents(qualified string) []*Service {
	var out []*Service
	for _, s := range m.Services {
		if _, found := slices.BinarySearch(s.Deps, qualified); found {
			out = append(out, s)
		}
	}
	return out
}
