package model

import (
	"errors"
	"fmt"
	"strings"

	"proxygen/internal/diag"
)

// ErrEmptyInput is returned by Build when there are no server types.
var ErrEmptyInput = errors.New("no server types to generate")

// KeyMissingError reports an entity without any key member.
type KeyMissingError struct {
	Type string
}

func (e *KeyMissingError) Error() string {
	return fmt.Sprintf("entity %s has no key member", e.Type)
}

// MemberShadowError reports a member name declared twice, either by a derived
// type over its base or by two fragments with different shapes.
type MemberShadowError struct {
	Type   string
	Member string
	// Owner is the base type (or fragment) holding the other declaration.
	Owner    string
	Fragment bool
}

func (e *MemberShadowError) Error() string {
	if e.Fragment {
		return fmt.Sprintf("member %s of %s is declared by fragment %q with a different shape", e.Member, e.Type, e.Owner)
	}
	return fmt.Sprintf("member %s of %s shadows the member inherited from %s", e.Member, e.Type, e.Owner)
}

// DanglingAssociationError reports an association whose target is neither in
// the input set nor visible to the client.
type DanglingAssociationError struct {
	Type   string
	Member string
	Target string
}

func (e *DanglingAssociationError) Error() string {
	return fmt.Sprintf("association %s.%s targets unknown type %s", e.Type, e.Member, e.Target)
}

// DanglingBaseError reports a base type missing from the input set.
type DanglingBaseError struct {
	Type string
	Base string
}

func (e *DanglingBaseError) Error() string {
	return fmt.Sprintf("base type %s of %s is not part of the input", e.Base, e.Type)
}

// InheritanceCycleError reports a base chain that loops.
type InheritanceCycleError struct {
	Cycle []string
}

func (e *InheritanceCycleError) Error() string {
	return "inheritance cycle: " + strings.Join(e.Cycle, " -> ")
}

// UnknownTypeError reports a member, parameter or return type that cannot be resolved.
type UnknownTypeError struct {
	Owner string
	Where string
	Ref   string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("%s of %s references unknown type %s", e.Where, e.Owner, e.Ref)
}

// ShapeError reports a malformed descriptor.
type ShapeError struct {
	Type   string
	Reason string
	code   diag.Code
}

func (e *ShapeError) Error() string {
	if e.Type == "" {
		return e.Reason
	}
	return e.Type + ": " + e.Reason
}

func codeOf(err error) diag.Code {
	var (
		km   *KeyMissingError
		ms   *MemberShadowError
		da   *DanglingAssociationError
		db   *DanglingBaseError
		ic   *InheritanceCycleError
		ut   *UnknownTypeError
		shap *ShapeError
	)
	switch {
	case errors.As(err, &km):
		return diag.ModKeyMissing
	case errors.As(err, &ms):
		return diag.ModMemberShadow
	case errors.As(err, &da):
		return diag.ModDanglingAssociation
	case errors.As(err, &db):
		return diag.ModDanglingBase
	case errors.As(err, &ic):
		return diag.ModInheritanceCycle
	case errors.As(err, &ut):
		return diag.ModUnknownType
	case errors.As(err, &shap):
		if shap.code != 0 {
			return shap.code
		}
		return diag.ModInvalidShape
	}
	return diag.ModInfo
}
