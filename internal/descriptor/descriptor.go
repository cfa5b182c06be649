// Package descriptor holds the language-neutral description of server contract
// types. Descriptors are produced by an external reflection step and loaded once
// at the input boundary; nothing downstream mutates them.
package descriptor

import "strings"

// Identity names a server type.
type Identity struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Name      string `json:"name" yaml:"name"`
	Assembly  string `json:"assembly,omitempty" yaml:"assembly,omitempty"`
}

// Qualified returns "Namespace.Name" (or just Name for the global namespace).
func (id Identity) Qualified() string {
	if id.Namespace == "" {
		return id.Name
	}
	return id.Namespace + "." + id.Name
}

func (id Identity) String() string {
	if id.Assembly == "" {
		return id.Qualified()
	}
	return id.Qualified() + ", " + id.Assembly
}

// SplitQualified splits "A.B.Name" into ("A.B", "Name").
func SplitQualified(qualified string) (namespace, name string) {
	i := strings.LastIndexByte(qualified, '.')
	if i < 0 {
		return "", qualified
	}
	return qualified[:i], qualified[i+1:]
}

// Kind classifies a server type.
type Kind string

const (
	KindEntity  Kind = "entity"
	KindComplex Kind = "complex"
	KindEnum    Kind = "enum"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindEntity, KindComplex, KindEnum:
		return true
	}
	return false
}

// Association links a member to another entity.
type Association struct {
	Target     string   `json:"target" yaml:"target"` // qualified name
	Collection bool     `json:"collection,omitempty" yaml:"collection,omitempty"`
	ForeignKey []string `json:"foreignKey,omitempty" yaml:"foreignKey,omitempty"`
}

// ConstraintKind names a validation rule.
type ConstraintKind string

const (
	ConstraintRequired ConstraintKind = "required"
	ConstraintRange    ConstraintKind = "range"
	ConstraintLength   ConstraintKind = "length"
	ConstraintPattern  ConstraintKind = "pattern"
)

// Constraint is a validation rule attached to a member.
type Constraint struct {
	Kind    ConstraintKind `json:"kind" yaml:"kind"`
	Min     *float64       `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64       `json:"max,omitempty" yaml:"max,omitempty"`
	Pattern string         `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// Member is one data member of a server type.
type Member struct {
	Name             string       `json:"name" yaml:"name"`
	Type             string       `json:"type" yaml:"type"`
	Collection       bool         `json:"collection,omitempty" yaml:"collection,omitempty"`
	Key              bool         `json:"key,omitempty" yaml:"key,omitempty"`
	Required         bool         `json:"required,omitempty" yaml:"required,omitempty"`
	ComputedOnInsert bool         `json:"computedOnInsert,omitempty" yaml:"computedOnInsert,omitempty"`
	ComputedOnUpdate bool         `json:"computedOnUpdate,omitempty" yaml:"computedOnUpdate,omitempty"`
	Association      *Association `json:"association,omitempty" yaml:"association,omitempty"`
	Constraints      []Constraint `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// AssociationTarget returns the qualified association target or "".
func (m Member) AssociationTarget() string {
	if m.Association == nil {
		return ""
	}
	return m.Association.Target
}

// SameShape reports whether two members declare the same shape.
func (m Member) SameShape(other Member) bool {
	if Canonical(m.Type) != Canonical(other.Type) || m.Collection != other.Collection {
		return false
	}
	if m.Key != other.Key || m.Required != other.Required {
		return false
	}
	if m.ComputedOnInsert != other.ComputedOnInsert || m.ComputedOnUpdate != other.ComputedOnUpdate {
		return false
	}
	a, b := m.Association, other.Association
	if (a == nil) != (b == nil) {
		return false
	}
	if a != nil && (a.Target != b.Target || a.Collection != b.Collection) {
		return false
	}
	return true
}

// EnumValue is one named constant of an enum type.
type EnumValue struct {
	Name  string `json:"name" yaml:"name"`
	Value int64  `json:"value" yaml:"value"`
}

// Type is a ServerTypeDescriptor.
type Type struct {
	Identity `json:",inline" yaml:",inline"`
	Kind     Kind   `json:"kind" yaml:"kind"`
	Base     string `json:"base,omitempty" yaml:"base,omitempty"`
	// Fragment labels one part of a type split across several source files.
	Fragment string      `json:"fragment,omitempty" yaml:"fragment,omitempty"`
	Members  []Member    `json:"members,omitempty" yaml:"members,omitempty"`
	Values   []EnumValue `json:"values,omitempty" yaml:"values,omitempty"`
}

// OperationKind classifies a service operation.
type OperationKind string

const (
	OpQuery  OperationKind = "query"
	OpInvoke OperationKind = "invoke"
	OpInsert OperationKind = "insert"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

// Valid reports whether k is a known operation kind.
func (k OperationKind) Valid() bool {
	switch k {
	case OpQuery, OpInvoke, OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Parameter is one operation argument.
type Parameter struct {
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	Collection bool   `json:"collection,omitempty" yaml:"collection,omitempty"`
}

// Operation is a service method.
type Operation struct {
	Name              string        `json:"name" yaml:"name"`
	Kind              OperationKind `json:"kind" yaml:"kind"`
	Parameters        []Parameter   `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Returns           string        `json:"returns,omitempty" yaml:"returns,omitempty"`
	ReturnsCollection bool          `json:"returnsCollection,omitempty" yaml:"returnsCollection,omitempty"`
}

// Service is a server service contract exposing operations over the types.
type Service struct {
	Identity   `json:",inline" yaml:",inline"`
	Operations []Operation `json:"operations,omitempty" yaml:"operations,omitempty"`
}

// Set is the full generator input.
type Set struct {
	Types    []Type    `json:"types" yaml:"types"`
	Services []Service `json:"services,omitempty" yaml:"services,omitempty"`
}

// Empty reports whether there is nothing to generate.
func (s *Set) Empty() bool {
	return s == nil || len(s.Types) == 0
}
