package symbols

import (
	"fmt"
	"sort"
	"strings"
)

// Visibility is the declared accessibility of a type or member.
type Visibility uint16

const (
	VisPrivate Visibility = iota
	VisInternal
	VisProtected
	VisPublic
)

var visibilityNames = [...]string{"private", "internal", "protected", "public"}

func (v Visibility) String() string {
	if int(v) < len(visibilityNames) {
		return visibilityNames[v]
	}
	return fmt.Sprintf("visibility(%d)", uint16(v))
}

// Visible reports whether a type with this visibility can be referenced by client code.
func (v Visibility) Visible() bool {
	return v == VisPublic || v == VisInternal
}

func (v Visibility) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Visibility) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	if s == "" {
		*v = VisPublic
		return nil
	}
	for i, name := range visibilityNames {
		if name == s {
			*v = Visibility(i)
			return nil
		}
	}
	return fmt.Errorf("unknown visibility %q", s)
}

// SymbolKind is the kind of a type record.
type SymbolKind uint16

const (
	KindUnknown SymbolKind = iota
	KindClass
	KindStruct
	KindEnum
	KindInterface
)

var kindNames = [...]string{"unknown", "class", "struct", "enum", "interface"}

func (k SymbolKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint16(k))
}

func (k SymbolKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *SymbolKind) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	if s == "" {
		*k = KindClass
		return nil
	}
	for i, name := range kindNames {
		if name == s {
			*k = SymbolKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown symbol kind %q", s)
}

// TypeKey is the (namespace, simple name) lookup key.
type TypeKey struct {
	Namespace string
	Name      string
}

func (k TypeKey) String() string {
	if k.Namespace == "" {
		return k.Name
	}
	return k.Namespace + "." + k.Name
}

func (k TypeKey) less(other TypeKey) bool {
	if k.Namespace != other.Namespace {
		return k.Namespace < other.Namespace
	}
	return k.Name < other.Name
}

// MemberSymbol is the signature of one member recorded in the symbols.
type MemberSymbol struct {
	Name        string
	Type        string
	Visibility  Visibility
	Key         bool
	Required    bool
	Computed    bool
	Collection  bool
	Association string
}

// TypeSymbol is one type record.
type TypeSymbol struct {
	Key        TypeKey
	Kind       SymbolKind
	Visibility Visibility
	Document   string
	Base       *TypeKey
	Members    []MemberSymbol
}

// Member looks a member up by name.
func (t *TypeSymbol) Member(name string) (MemberSymbol, bool) {
	for _, m := range t.Members {
		if m.Name == name {
			return m, true
		}
	}
	return MemberSymbol{}, false
}

// Document is a source file recorded in the symbols.
type Document struct {
	Path     string
	Checksum Digest
}

// Index is the read-only symbol view of one compiled module.
// Nothing mutates an Index once a reader has returned it.
type Index struct {
	Module  string // module name from the info stream
	Path    string // where the module was read from
	Digest  Digest // sha256 of the module bytes
	Age     uint32
	Partial bool
	// PartialReason explains why member detail is unavailable.
	PartialReason string
	Documents     []Document
	// Duplicates lists type keys that appeared more than once; the first record wins.
	Duplicates []TypeKey

	types map[TypeKey]*TypeSymbol
	keys  []TypeKey
}

func newIndex(capHint int) *Index {
	return &Index{types: make(map[TypeKey]*TypeSymbol, capHint)}
}

func (idx *Index) add(t *TypeSymbol) {
	if _, dup := idx.types[t.Key]; dup {
		idx.Duplicates = append(idx.Duplicates, t.Key)
		return
	}
	idx.types[t.Key] = t
	idx.keys = append(idx.keys, t.Key)
}

func (idx *Index) seal() {
	sort.Slice(idx.keys, func(i, j int) bool { return idx.keys[i].less(idx.keys[j]) })
}

// Lookup finds a type by namespace and simple name.
func (idx *Index) Lookup(namespace, name string) (*TypeSymbol, bool) {
	if idx == nil {
		return nil, false
	}
	t, ok := idx.types[TypeKey{Namespace: namespace, Name: name}]
	return t, ok
}

// LookupQualified finds a type by "Namespace.Name".
func (idx *Index) LookupQualified(qualified string) (*TypeSymbol, bool) {
	i := strings.LastIndexByte(qualified, '.')
	if i < 0 {
		return idx.Lookup("", qualified)
	}
	return idx.Lookup(qualified[:i], qualified[i+1:])
}

// Keys returns all type keys sorted by namespace and name.
func (idx *Index) Keys() []TypeKey {
	if idx == nil {
		return nil
	}
	out := make([]TypeKey, len(idx.keys))
	copy(out, idx.keys)
	return out
}

// Len returns the number of distinct types.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.keys)
}

// Name returns the module name, falling back to the path.
func (idx *Index) Name() string {
	if idx.Module != "" {
		return idx.Module
	}
	return idx.Path
}
