// Package resolve decides, per server type, whether the client already has an
// equivalent type visible in its compiled modules.
package resolve

import (
	"context"
	"fmt"
	"strings"

	"proxygen/internal/descriptor"
	"proxygen/internal/diag"
	"proxygen/internal/model"
	"proxygen/internal/symbols"
)

// Kind classifies a sharing decision.
type Kind uint8

const (
	NotShared Kind = iota
	SharedExact
	SharedCompatible
	Conflict
)

var kindNames = [...]string{"not-shared", "shared-exact", "shared-compatible", "conflict"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

const (
	ReasonIncompatible = "incompatible redefinition"
	ReasonPartial      = "partially shared"
)

// Decision is the sharing outcome for one server type.
type Decision struct {
	Kind   Kind
	Reason string
	// Detail names the members behind a Conflict.
	Detail string
	// Caveat is set when the match could not be verified member by member.
	Caveat bool
	// Module and Path identify the candidate that decided; Candidate is its
	// position in the candidate list, -1 when no candidate matched.
	Module    string
	Path      string
	Candidate int
}

// Shared reports whether the client already provides the type.
func (d Decision) Shared() bool {
	return d.Kind == SharedExact || d.Kind == SharedCompatible
}

func (d Decision) String() string {
	switch d.Kind {
	case NotShared:
		return d.Kind.String()
	case Conflict:
		return fmt.Sprintf("conflict(%s)", d.Reason)
	}
	s := fmt.Sprintf("%s in %s", d.Kind, d.Module)
	if d.Caveat {
		s += " (unverified)"
	}
	return s
}

// Resolve walks candidates in order and returns the decision of the first one
// that holds a visible type with t's namespace and name.
func Resolve(t *model.Type, candidates []*symbols.Index) Decision {
	for i, idx := range candidates {
		sym, ok := idx.Lookup(t.Namespace, t.Name)
		if !ok || !sym.Visibility.Visible() {
			continue
		}
		d := compare(t, idx, sym)
		d.Module = idx.Name()
		d.Path = idx.Path
		d.Candidate = i
		return d
	}
	return Decision{Kind: NotShared, Candidate: -1}
}

func compare(t *model.Type, idx *symbols.Index, sym *symbols.TypeSymbol) Decision {
	if idx.Partial {
		return Decision{Kind: SharedCompatible, Caveat: true, Reason: idx.PartialReason}
	}
	if (t.Kind == descriptor.KindEnum) != (sym.Kind == symbols.KindEnum) {
		return Decision{Kind: Conflict, Reason: ReasonIncompatible, Detail: fmt.Sprintf("client declares %s as %s", t.Qualified(), sym.Kind)}
	}
	if t.Kind == descriptor.KindEnum {
		return compareEnum(t, sym)
	}

	client := effectiveMembers(idx, sym)
	byName := make(map[string]symbols.MemberSymbol, len(client))
	for _, m := range client {
		byName[m.Name] = m
	}

	exact := len(client) == len(t.Members)
	var missing []string
	for _, m := range t.Members {
		c, ok := byName[m.Name]
		if !ok {
			exact = false
			if m.Key || m.Required || m.Association != nil {
				missing = append(missing, m.Name)
			}
			continue
		}
		if why := incompatible(m, c); why != "" {
			return Decision{Kind: Conflict, Reason: ReasonIncompatible, Detail: fmt.Sprintf("member %s: %s", m.Name, why)}
		}
		if !sameShape(m, c) {
			exact = false
		}
	}
	switch {
	case exact:
		return Decision{Kind: SharedExact}
	case len(missing) == 0:
		return Decision{Kind: SharedCompatible}
	default:
		return Decision{Kind: Conflict, Reason: ReasonPartial + ": missing members " + strings.Join(missing, ", ")}
	}
}

func compareEnum(t *model.Type, sym *symbols.TypeSymbol) Decision {
	client := make(map[string]bool, len(sym.Members))
	for _, m := range sym.Members {
		client[m.Name] = true
	}
	var missing []string
	for _, v := range t.Values {
		if !client[v.Name] {
			missing = append(missing, v.Name)
		}
	}
	switch {
	case len(missing) > 0:
		return Decision{Kind: Conflict, Reason: ReasonPartial + ": missing members " + strings.Join(missing, ", ")}
	case len(client) == len(t.Values):
		return Decision{Kind: SharedExact}
	default:
		return Decision{Kind: SharedCompatible}
	}
}

// effectiveMembers prepends the members of base types recorded in the same index.
func effectiveMembers(idx *symbols.Index, sym *symbols.TypeSymbol) []symbols.MemberSymbol {
	chain := []*symbols.TypeSymbol{sym}
	seen := map[symbols.TypeKey]bool{sym.Key: true}
	for cur := sym; cur.Base != nil; {
		base, ok := idx.Lookup(cur.Base.Namespace, cur.Base.Name)
		if !ok || seen[base.Key] {
			break
		}
		seen[base.Key] = true
		chain = append(chain, base)
		cur = base
	}
	var out []symbols.MemberSymbol
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].Members...)
	}
	return out
}

// incompatible reports how a client member contradicts the server member, or "".
func incompatible(m descriptor.Member, c symbols.MemberSymbol) string {
	if st, ct := descriptor.Canonical(m.Type), descriptor.Canonical(c.Type); st != ct || m.Collection != c.Collection {
		return fmt.Sprintf("declared as %s, client has %s", typeText(st, m.Collection), typeText(ct, c.Collection))
	}
	if m.Key != c.Key {
		return fmt.Sprintf("key flag differs (server %t, client %t)", m.Key, c.Key)
	}
	if st, ct := strings.TrimSpace(m.AssociationTarget()), strings.TrimSpace(c.Association); st != ct {
		return fmt.Sprintf("association target differs (server %q, client %q)", st, ct)
	}
	return ""
}

func sameShape(m descriptor.Member, c symbols.MemberSymbol) bool {
	return m.Required == c.Required && (m.ComputedOnInsert || m.ComputedOnUpdate) == c.Computed
}

func typeText(t string, collection bool) string {
	if collection {
		return "[]" + t
	}
	return t
}

// Decisions maps qualified type names to their decision.
type Decisions map[string]Decision

// ResolveAll decides every model type in model order. Conflicts are reported
// as errors, unverified matches as warnings. On cancellation the decisions
// made so far are returned with the context error.
func ResolveAll(ctx context.Context, m *model.Model, candidates []*symbols.Index, r diag.Reporter) (Decisions, error) {
	if r == nil {
		r = diag.NopReporter{}
	}
	out := make(Decisions, len(m.Types))
	for _, t := range m.Types {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		d := Resolve(t, candidates)
		out[t.Qualified()] = d
		report(r, t, d)
	}
	return out, nil
}

func report(r diag.Reporter, t *model.Type, d Decision) {
	loc := diag.Location{Module: d.Path}
	switch {
	case d.Kind == Conflict:
		msg := fmt.Sprintf("%s conflicts with the client type in %s: %s", t.Qualified(), d.Module, d.Reason)
		dg := diag.NewError(diag.ShrConflict, t.Qualified(), msg).At(loc)
		if d.Detail != "" {
			dg = dg.WithNote(t.Qualified(), d.Detail)
		}
		r.Report(dg)
	case d.Caveat:
		msg := fmt.Sprintf("%s is assumed shared with %s without member verification", t.Qualified(), d.Module)
		dg := diag.NewWarning(diag.ShrUnverified, t.Qualified(), msg).At(loc)
		if d.Reason != "" {
			dg = dg.WithNote(d.Module, d.Reason)
		}
		r.Report(dg)
	case d.Shared():
		r.Report(diag.New(diag.SevInfo, diag.ShrSharedType, t.Qualified(),
			fmt.Sprintf("%s is provided by %s (%s)", t.Qualified(), d.Module, d.Kind)).At(loc))
	}
}
