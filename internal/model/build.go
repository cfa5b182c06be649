package model

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	"proxygen/internal/descriptor"
	"proxygen/internal/diag"
)

// Options configure Build.
type Options struct {
	Reporter diag.Reporter
	// External reports whether a qualified name outside the input set is
	// visible on the client, so references to it need no generated type.
	External func(qualified string) bool
}

type builder struct {
	opts    Options
	m       *Model
	onCycle map[string]bool
	done    map[string]bool
}

// Build merges, flattens and validates set. Per-type problems are reported
// through opts.Reporter and mark the type Broken; the only error is
// ErrEmptyInput.
func Build(set *descriptor.Set, opts Options) (*Model, error) {
	if set.Empty() {
		return nil, ErrEmptyInput
	}
	if opts.Reporter == nil {
		opts.Reporter = diag.NopReporter{}
	}
	if opts.External == nil {
		opts.External = func(string) bool { return false }
	}
	b := &builder{
		opts:    opts,
		m:       &Model{byName: make(map[string]*Type, len(set.Types))},
		onCycle: make(map[string]bool),
		done:    make(map[string]bool),
	}

	b.merge(set.Types)
	b.checkBases()
	for _, t := range b.m.Types {
		b.flatten(t)
	}
	for _, t := range b.m.Types {
		b.resolveRefs(t)
	}
	b.checkKeys()
	b.services(set.Services)
	b.propagate()
	b.collectExternal()
	return b.m, nil
}

func (b *builder) fail(t *Type, err error) {
	if !t.Broken {
		t.Broken = true
		t.Err = err
	}
	b.opts.Reporter.Report(diag.NewError(codeOf(err), t.Qualified(), err.Error()))
}

func (b *builder) failService(s *Service, err error) {
	if !s.Broken {
		s.Broken = true
		s.Err = err
	}
	b.opts.Reporter.Report(diag.NewError(codeOf(err), s.Qualified(), err.Error()))
}

func fragmentLabel(d *descriptor.Type) string {
	if d.Fragment == "" {
		return "(unlabelled)"
	}
	return d.Fragment
}

func (b *builder) merge(types []descriptor.Type) {
	groups := make(map[string][]*descriptor.Type, len(types))
	for i := range types {
		d := &types[i]
		if strings.TrimSpace(d.Name) == "" {
			err := &ShapeError{Type: d.Namespace, Reason: "type without a name"}
			b.opts.Reporter.Report(diag.NewError(diag.ModInvalidShape, d.Namespace, err.Error()))
			continue
		}
		q := d.Qualified()
		groups[q] = append(groups[q], d)
	}
	names := make([]string, 0, len(groups))
	for q := range groups {
		names = append(names, q)
	}
	sort.Strings(names)

	for _, q := range names {
		t := b.mergeOne(q, groups[q])
		b.m.Types = append(b.m.Types, t)
		b.m.byName[q] = t
	}
}

func (b *builder) mergeOne(q string, ds []*descriptor.Type) *Type {
	first := ds[0]
	t := &Type{
		Identity: first.Identity,
		Kind:     first.Kind,
		Base:     strings.TrimSpace(first.Base),
	}
	members := make(map[string]int)
	values := make(map[string]int64)
	for _, d := range ds {
		if d.Fragment != "" {
			t.Fragments = append(t.Fragments, d.Fragment)
		}
		if t.Assembly == "" {
			t.Assembly = d.Assembly
		}
		if d.Kind != t.Kind {
			b.fail(t, &ShapeError{
				Type:   q,
				Reason: fmt.Sprintf("fragment %s declares kind %q, other fragments declare %q", fragmentLabel(d), d.Kind, t.Kind),
				code:   diag.ModFragmentKindMismatch,
			})
		}
		if base := strings.TrimSpace(d.Base); base != "" && base != t.Base {
			if t.Base == "" {
				t.Base = base
			} else {
				b.fail(t, &ShapeError{Type: q, Reason: fmt.Sprintf("fragments declare different base types %s and %s", t.Base, base)})
			}
		}
		for _, m := range d.Members {
			if m.Name == "" {
				b.fail(t, &ShapeError{Type: q, Reason: "member without a name"})
				continue
			}
			if strings.TrimSpace(m.Type) == "" {
				if m.Association == nil {
					b.fail(t, &ShapeError{Type: q, Reason: fmt.Sprintf("member %s has no type", m.Name)})
					continue
				}
				m.Type = m.Association.Target
			}
			if i, dup := members[m.Name]; dup {
				if !t.Own[i].SameShape(m) {
					b.fail(t, &MemberShadowError{Type: q, Member: m.Name, Owner: fragmentLabel(d), Fragment: true})
				}
				continue
			}
			members[m.Name] = len(t.Own)
			t.Own = append(t.Own, m)
		}
		for _, v := range d.Values {
			if prev, dup := values[v.Name]; dup {
				if prev != v.Value {
					b.fail(t, &ShapeError{Type: q, Reason: fmt.Sprintf("enum value %s declared as %d and %d", v.Name, prev, v.Value)})
				}
				continue
			}
			values[v.Name] = v.Value
			t.Values = append(t.Values, v)
		}
	}

	switch {
	case !t.Kind.Valid():
		b.fail(t, &ShapeError{Type: q, Reason: fmt.Sprintf("unknown kind %q", t.Kind)})
	case t.Kind == descriptor.KindEnum && len(t.Own) > 0:
		b.fail(t, &ShapeError{Type: q, Reason: "enum declares data members"})
	case t.Kind == descriptor.KindEnum && t.Base != "":
		b.fail(t, &ShapeError{Type: q, Reason: "enum declares a base type"})
	case t.Kind != descriptor.KindEnum && len(t.Values) > 0:
		b.fail(t, &ShapeError{Type: q, Reason: fmt.Sprintf("%s declares enum values", t.Kind)})
	}
	return t
}

func (b *builder) checkBases() {
	for _, t := range b.m.Types {
		if t.Base == "" {
			continue
		}
		if _, ok := b.m.byName[t.Base]; !ok {
			b.fail(t, &DanglingBaseError{Type: t.Qualified(), Base: t.Base})
		}
	}

	// цикл наследования: идём по цепочке баз не дольше числа типов
	for _, t := range b.m.Types {
		q := t.Qualified()
		chain := []string{q}
		cur := t
		for range len(b.m.Types) {
			next, ok := b.m.byName[cur.Base]
			if cur.Base == "" || !ok {
				break
			}
			if next == t {
				b.onCycle[q] = true
				b.fail(t, &InheritanceCycleError{Cycle: rotateCycle(chain)})
				break
			}
			chain = append(chain, next.Qualified())
			cur = next
		}
	}
}

// rotateCycle starts the cycle at its smallest name and closes it, so every
// member reports the same text.
func rotateCycle(chain []string) []string {
	start := 0
	for i, name := range chain {
		if name < chain[start] {
			start = i
		}
	}
	out := make([]string, 0, len(chain)+1)
	out = append(out, chain[start:]...)
	out = append(out, chain[:start]...)
	return append(out, out[0])
}

func (b *builder) flatten(t *Type) []descriptor.Member {
	q := t.Qualified()
	if b.done[q] {
		return t.Members
	}
	b.done[q] = true

	var inherited []descriptor.Member
	owners := make(map[string]string)
	if base, ok := b.m.byName[t.Base]; ok && !b.onCycle[q] {
		inherited = b.flatten(base)
		for _, m := range inherited {
			owners[m.Name] = ownerOf(b.m, base, m.Name)
		}
	}

	effective := make([]descriptor.Member, 0, len(inherited)+len(t.Own))
	effective = append(effective, inherited...)
	for _, m := range t.Own {
		if owner, shadow := owners[m.Name]; shadow {
			b.fail(t, &MemberShadowError{Type: q, Member: m.Name, Owner: owner})
			continue
		}
		effective = append(effective, m)
	}
	t.Members = effective
	for _, m := range effective {
		if m.Key {
			t.Keys = append(t.Keys, m.Name)
		}
	}
	return effective
}

// ownerOf finds the type in t's chain that declares member name.
func ownerOf(m *Model, t *Type, name string) string {
	for cur, steps := t, 0; cur != nil && steps <= len(m.Types); steps++ {
		for _, own := range cur.Own {
			if own.Name == name {
				return cur.Qualified()
			}
		}
		cur = m.byName[cur.Base]
	}
	return t.Qualified()
}

type refKind uint8

const (
	refPrimitive refKind = iota
	refSelf
	refInSet
	refExternal
	refUnknown
)

func (b *builder) classify(owner, name string) (refKind, *Type) {
	if descriptor.IsPrimitive(name) {
		return refPrimitive, nil
	}
	name = strings.TrimSpace(name)
	if name == owner {
		return refSelf, nil
	}
	if t, ok := b.m.byName[name]; ok {
		return refInSet, t
	}
	if b.opts.External(name) {
		return refExternal, nil
	}
	return refUnknown, nil
}

type refSet struct {
	deps     []string
	external []string
}

func (r *refSet) add(kind refKind, name string) {
	switch kind {
	case refInSet:
		r.deps = append(r.deps, strings.TrimSpace(name))
	case refExternal:
		r.external = append(r.external, strings.TrimSpace(name))
	}
}

func (r *refSet) sorted() (deps, external []string) {
	slices.Sort(r.deps)
	slices.Sort(r.external)
	return slices.Compact(r.deps), slices.Compact(r.external)
}

func (b *builder) resolveRefs(t *Type) {
	q := t.Qualified()
	var refs refSet
	if _, ok := b.m.byName[t.Base]; ok && t.Base != q {
		refs.add(refInSet, t.Base)
	}

	for _, m := range t.Own {
		if m.Association != nil {
			target := strings.TrimSpace(m.Association.Target)
			kind, tt := b.classify(q, target)
			switch kind {
			case refUnknown, refPrimitive:
				b.fail(t, &DanglingAssociationError{Type: q, Member: m.Name, Target: target})
			case refInSet:
				if tt.Kind == descriptor.KindEnum {
					b.fail(t, &ShapeError{Type: q, Reason: fmt.Sprintf("association %s targets enum %s", m.Name, target)})
				}
			case refExternal:
				b.opts.Reporter.Report(diag.New(diag.SevInfo, diag.ModExternalReference, q,
					fmt.Sprintf("association %s targets client type %s", m.Name, target)))
			}
			refs.add(kind, target)
			for _, fk := range m.Association.ForeignKey {
				if _, ok := t.Member(fk); !ok {
					b.fail(t, &ShapeError{Type: q, Reason: fmt.Sprintf("foreign key %s of association %s is not a member", fk, m.Name)})
				}
			}
		} else {
			kind, _ := b.classify(q, m.Type)
			switch kind {
			case refUnknown:
				b.fail(t, &UnknownTypeError{Owner: q, Where: "member " + m.Name, Ref: strings.TrimSpace(m.Type)})
			case refExternal:
				b.opts.Reporter.Report(diag.New(diag.SevInfo, diag.ModExternalReference, q,
					fmt.Sprintf("member %s uses client type %s", m.Name, strings.TrimSpace(m.Type))))
			}
			refs.add(kind, m.Type)
		}
		for _, c := range m.Constraints {
			if err := checkConstraint(c); err != "" {
				b.fail(t, &ShapeError{Type: q, Reason: fmt.Sprintf("member %s: %s", m.Name, err)})
			}
		}
	}
	t.Deps, t.External = refs.sorted()
}

func checkConstraint(c descriptor.Constraint) string {
	switch c.Kind {
	case descriptor.ConstraintRequired:
	case descriptor.ConstraintRange, descriptor.ConstraintLength:
		if c.Min == nil && c.Max == nil {
			return fmt.Sprintf("%s constraint without bounds", c.Kind)
		}
		if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
			return fmt.Sprintf("%s constraint min %g exceeds max %g", c.Kind, *c.Min, *c.Max)
		}
	case descriptor.ConstraintPattern:
		if _, err := regexp.Compile(c.Pattern); err != nil {
			return fmt.Sprintf("invalid pattern: %v", err)
		}
	default:
		return fmt.Sprintf("unknown constraint kind %q", c.Kind)
	}
	return ""
}

func (b *builder) checkKeys() {
	for _, t := range b.m.Types {
		if t.Kind != descriptor.KindEntity || len(t.Keys) > 0 || !b.chainHealthy(t) {
			continue
		}
		b.fail(t, &KeyMissingError{Type: t.Qualified()})
	}
}

// chainHealthy reports whether t and its bases are free of errors, so the
// effective member list is complete.
func (b *builder) chainHealthy(t *Type) bool {
	for cur, steps := t, 0; cur != nil; steps++ {
		if cur.Broken || steps > len(b.m.Types) {
			return false
		}
		if cur.Base == "" {
			return true
		}
		cur = b.m.byName[cur.Base]
	}
	return false
}

func (b *builder) services(svcs []descriptor.Service) {
	seen := make(map[string]bool, len(svcs))
	for i := range svcs {
		d := &svcs[i]
		q := d.Qualified()
		if strings.TrimSpace(d.Name) == "" {
			b.opts.Reporter.Report(diag.NewError(diag.ModInvalidShape, d.Namespace, "service without a name"))
			continue
		}
		if seen[q] {
			b.opts.Reporter.Report(diag.NewError(diag.ModDuplicateService, q, fmt.Sprintf("service %s is declared more than once; the first declaration is used", q)))
			continue
		}
		seen[q] = true
		b.m.Services = append(b.m.Services, b.service(d))
	}
	sort.Slice(b.m.Services, func(i, j int) bool {
		return b.m.Services[i].Qualified() < b.m.Services[j].Qualified()
	})
}

func (b *builder) service(d *descriptor.Service) *Service {
	q := d.Qualified()
	s := &Service{Identity: d.Identity, Operations: d.Operations}
	var refs refSet
	check := func(where, ref string) {
		kind, _ := b.classify("", ref)
		if kind == refUnknown {
			b.failService(s, &UnknownTypeError{Owner: q, Where: where, Ref: strings.TrimSpace(ref)})
			return
		}
		refs.add(kind, ref)
	}

	ops := make(map[string]bool, len(d.Operations))
	for _, op := range d.Operations {
		if op.Name == "" {
			b.failService(s, &ShapeError{Type: q, Reason: "operation without a name"})
			continue
		}
		if ops[op.Name] {
			b.failService(s, &ShapeError{Type: q, Reason: fmt.Sprintf("operation %s is declared more than once", op.Name)})
			continue
		}
		ops[op.Name] = true
		if !op.Kind.Valid() {
			b.failService(s, &ShapeError{Type: q, Reason: fmt.Sprintf("operation %s has unknown kind %q", op.Name, op.Kind)})
		}
		for _, p := range op.Parameters {
			if p.Name == "" || strings.TrimSpace(p.Type) == "" {
				b.failService(s, &ShapeError{Type: q, Reason: fmt.Sprintf("operation %s has a parameter without name or type", op.Name)})
				continue
			}
			check(fmt.Sprintf("parameter %s of operation %s", p.Name, op.Name), p.Type)
		}
		if strings.TrimSpace(op.Returns) != "" {
			check(fmt.Sprintf("result of operation %s", op.Name), op.Returns)
		}
	}
	s.Deps, s.External = refs.sorted()
	return s
}

// propagate marks direct dependents of broken types as skipped.
func (b *builder) propagate() {
	for _, t := range b.m.Types {
		if !t.Broken {
			continue
		}
		q := t.Qualified()
		for _, d := range b.m.Dependents(q) {
			if d.Broken || d.Skipped {
				continue
			}
			d.Skipped = true
			d.SkippedFor = q
			b.opts.Reporter.Report(diag.NewWarning(diag.ModDependencySkipped, d.Qualified(),
				fmt.Sprintf("generation skipped, see diagnostic for %s", q)))
		}
		for _, s := range b.m.ServiceDependents(q) {
			if s.Broken || s.Skipped {
				continue
			}
			s.Skipped = true
			s.SkippedFor = q
			b.opts.Reporter.Report(diag.NewWarning(diag.ModDependencySkipped, s.Qualified(),
				fmt.Sprintf("generation skipped, see diagnostic for %s", q)))
		}
	}
}

func (b *builder) collectExternal() {
	var all []string
	for _, t := range b.m.Types {
		all = append(all, t.External...)
	}
	for _, s := range b.m.Services {
		all = append(all, s.External...)
	}
	slices.Sort(all)
	b.m.External = slices.Compact(all)
}
