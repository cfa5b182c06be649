package driver

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"proxygen/internal/descriptor"
	"proxygen/internal/diag"
	"proxygen/internal/emit"
	"proxygen/internal/model"
	"proxygen/internal/resolve"
	"proxygen/internal/symbols"
)

func orderType() descriptor.Type {
	return descriptor.Type{
		Identity: descriptor.Identity{Namespace: "Shop", Name: "Order"},
		Kind:     descriptor.KindEntity,
		Members: []descriptor.Member{
			{Name: "Id", Type: "int", Key: true},
			{Name: "CustomerId", Type: "int"},
		},
	}
}

func invoiceType() descriptor.Type {
	return descriptor.Type{
		Identity: descriptor.Identity{Namespace: "Shop", Name: "Invoice"},
		Kind:     descriptor.KindEntity,
		Members: []descriptor.Member{
			{Name: "Id", Type: "int", Key: true},
			{Name: "Order", Type: "Shop.Order", Association: &descriptor.Association{Target: "Shop.Order"}},
		},
	}
}

func complexType(name string, refs ...string) descriptor.Type {
	t := descriptor.Type{
		Identity: descriptor.Identity{Namespace: "Shop", Name: name},
		Kind:     descriptor.KindComplex,
		Members:  []descriptor.Member{{Name: "Note", Type: "string"}},
	}
	for _, r := range refs {
		_, n := descriptor.SplitQualified(r)
		t.Members = append(t.Members, descriptor.Member{Name: n, Type: r})
	}
	return t
}

func writeModule(t *testing.T, dir, file string, m *symbols.Module) string {
	t.Helper()
	data, err := symbols.Marshal(m)
	if err != nil {
		t.Fatalf("marshal %s: %v", file, err)
	}
	p := filepath.Join(dir, file)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func clientOrder(idType string) symbols.ModuleType {
	return symbols.ModuleType{
		Namespace: "Shop",
		Name:      "Order",
		Members: []symbols.ModuleMember{
			{Name: "Id", Type: idType, Key: true},
			{Name: "CustomerId", Type: "int32"},
		},
	}
}

func run(t *testing.T, req *Request) *Result {
	t.Helper()
	res, err := Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func countCode(diags []diag.Diagnostic, code diag.Code) int {
	n := 0
	for _, d := range diags {
		if d.Code == code {
			n++
		}
	}
	return n
}

func unitNames(units []emit.Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.Name
	}
	return out
}

func TestNoCandidatesEmitsOrder(t *testing.T) {
	res := run(t, &Request{Set: &descriptor.Set{Types: []descriptor.Type{orderType()}}})

	if d := res.Decisions["Shop.Order"]; d.Kind != resolve.NotShared {
		t.Fatalf("decision = %v, want not-shared", d)
	}
	if got := unitNames(res.Units); !slices.Equal(got, []string{"Shop.Order"}) {
		t.Fatalf("units = %v", got)
	}
	if res.HasErrors || res.ExitStatus(false) != diag.ExitOK {
		t.Fatalf("unexpected errors: %+v", res.Diagnostics)
	}
}

func TestSharedExactEmitsNothing(t *testing.T) {
	dir := t.TempDir()
	mod := writeModule(t, dir, "client.psym", &symbols.Module{Name: "Client", Types: []symbols.ModuleType{clientOrder("int")}})

	res := run(t, &Request{Set: &descriptor.Set{Types: []descriptor.Type{orderType()}}, Modules: []string{mod}})

	d := res.Decisions["Shop.Order"]
	if d.Kind != resolve.SharedExact || d.Module != "Client" || d.Path != mod {
		t.Fatalf("decision = %+v", d)
	}
	if len(res.Units) != 0 {
		t.Fatalf("shared type must not produce units, got %v", unitNames(res.Units))
	}
	if countCode(res.Diagnostics, diag.ShrSharedType) != 1 {
		t.Fatalf("expected one SHR3005 info, got %+v", res.Diagnostics)
	}
}

func TestConflictSkipsDependents(t *testing.T) {
	dir := t.TempDir()
	mod := writeModule(t, dir, "client.psym", &symbols.Module{Name: "Client", Types: []symbols.ModuleType{clientOrder("string")}})
	set := &descriptor.Set{Types: []descriptor.Type{orderType(), invoiceType()}}

	res := run(t, &Request{Set: set, Modules: []string{mod}})

	d := res.Decisions["Shop.Order"]
	if d.Kind != resolve.Conflict || d.Reason != resolve.ReasonIncompatible {
		t.Fatalf("decision = %+v", d)
	}
	errs, _, _ := diag.CountBySeverity(res.Diagnostics)
	if errs != 1 || countCode(res.Diagnostics, diag.ShrConflict) != 1 {
		t.Fatalf("expected exactly one conflict error, got %+v", res.Diagnostics)
	}
	var skipped *diag.Diagnostic
	for i := range res.Diagnostics {
		if res.Diagnostics[i].Code == diag.ShrDependencySkipped {
			skipped = &res.Diagnostics[i]
		}
	}
	if skipped == nil || skipped.Subject != "Shop.Invoice" || !strings.Contains(skipped.Message, "see diagnostic for Shop.Order") {
		t.Fatalf("expected Invoice skip warning, got %+v", res.Diagnostics)
	}
	if len(res.Units) != 0 {
		t.Fatalf("units = %v", unitNames(res.Units))
	}
	if res.ExitStatus(false) != diag.ExitErrors {
		t.Fatalf("exit status = %d", res.ExitStatus(false))
	}
}

func TestDependencyCycleBecomesConflict(t *testing.T) {
	set := &descriptor.Set{Types: []descriptor.Type{
		complexType("A", "Shop.B"),
		complexType("B", "Shop.A"),
		complexType("C", "Shop.A"),
		complexType("D"),
	}}
	res := run(t, &Request{Set: set})

	const reason = "dependency cycle: Shop.A -> Shop.B -> Shop.A"
	for _, q := range []string{"Shop.A", "Shop.B"} {
		d := res.Decisions[q]
		if d.Kind != resolve.Conflict || d.Reason != reason {
			t.Fatalf("%s decision = %+v", q, d)
		}
	}
	if countCode(res.Diagnostics, diag.ShrDependencyCycle) != 2 {
		t.Fatalf("expected two cycle errors, got %+v", res.Diagnostics)
	}
	if countCode(res.Diagnostics, diag.ShrDependencySkipped) != 1 {
		t.Fatalf("expected C to be skipped, got %+v", res.Diagnostics)
	}
	if got := unitNames(res.Units); !slices.Equal(got, []string{"Shop.D"}) {
		t.Fatalf("units = %v", got)
	}
}

func TestUnitsFollowDependencies(t *testing.T) {
	status := descriptor.Type{
		Identity: descriptor.Identity{Namespace: "Shop", Name: "Status"},
		Kind:     descriptor.KindEnum,
		Values:   []descriptor.EnumValue{{Name: "Open"}, {Name: "Closed", Value: 1}},
	}
	order := orderType()
	order.Members = append(order.Members, descriptor.Member{Name: "Status", Type: "Shop.Status"})
	customer := descriptor.Type{
		Identity: descriptor.Identity{Namespace: "Shop", Name: "Customer"},
		Kind:     descriptor.KindEntity,
		Members: []descriptor.Member{
			{Name: "Id", Type: "int", Key: true},
			{Name: "Orders", Type: "Shop.Order", Collection: true, Association: &descriptor.Association{Target: "Shop.Order", Collection: true}},
		},
	}
	res := run(t, &Request{Set: &descriptor.Set{Types: []descriptor.Type{customer, order, status}}})

	got := unitNames(res.Units)
	pos := func(name string) int { return slices.Index(got, name) }
	if len(got) != 3 || pos("Shop.Status") > pos("Shop.Order") || pos("Shop.Order") > pos("Shop.Customer") {
		t.Fatalf("units out of dependency order: %v", got)
	}
	for _, u := range res.Units {
		for _, dep := range u.Deps {
			if i := pos(dep); i >= 0 && i > pos(u.Name) {
				t.Fatalf("%s emitted before its dependency %s", u.Name, dep)
			}
		}
	}
}

func TestIdempotentRuns(t *testing.T) {
	dir := t.TempDir()
	mod := writeModule(t, dir, "client.psym", &symbols.Module{Name: "Client", Types: []symbols.ModuleType{clientOrder("string")}})
	req := &Request{
		Set: &descriptor.Set{Types: []descriptor.Type{
			orderType(), invoiceType(), complexType("Address"), complexType("Contact", "Shop.Address"),
		}},
		Modules: []string{mod},
		Jobs:    4,
	}
	first := run(t, req)
	second := run(t, req)

	if len(first.Units) != len(second.Units) {
		t.Fatalf("unit counts differ: %d vs %d", len(first.Units), len(second.Units))
	}
	for i := range first.Units {
		a, b := first.Units[i], second.Units[i]
		if a.Name != b.Name || a.FileName != b.FileName || !bytes.Equal(a.Text, b.Text) {
			t.Fatalf("unit %d differs between runs: %s vs %s", i, a.Name, b.Name)
		}
	}
	if !slices.EqualFunc(first.Diagnostics, second.Diagnostics, func(x, y diag.Diagnostic) bool {
		return x.Code == y.Code && x.Subject == y.Subject && x.Message == y.Message && x.Severity == y.Severity
	}) {
		t.Fatalf("diagnostics differ:\n%+v\n%+v", first.Diagnostics, second.Diagnostics)
	}
}

func TestPrecedenceAndModuleFailures(t *testing.T) {
	dir := t.TempDir()
	near := writeModule(t, dir, "near.psym", &symbols.Module{Name: "Near", Types: []symbols.ModuleType{clientOrder("int")}})
	far := writeModule(t, dir, "far.psym", &symbols.Module{Name: "Far", Stripped: true, Types: []symbols.ModuleType{clientOrder("int")}})
	missing := filepath.Join(dir, "missing.psym")
	garbage := filepath.Join(dir, "garbage.psym")
	if err := os.WriteFile(garbage, []byte("not a symbol store"), 0o600); err != nil {
		t.Fatal(err)
	}

	res := run(t, &Request{
		Set:     &descriptor.Set{Types: []descriptor.Type{orderType()}},
		Modules: []string{missing, near, garbage, far, near},
	})

	d := res.Decisions["Shop.Order"]
	if d.Kind != resolve.SharedExact || d.Module != "Near" || d.Caveat {
		t.Fatalf("decision must come from the nearer module: %+v", d)
	}
	if len(res.Indices) != 2 || res.Indices[0].Path != near || res.Indices[1].Path != far {
		t.Fatalf("unexpected indices: %d", len(res.Indices))
	}
	for _, code := range []diag.Code{diag.SymModuleNotFound, diag.SymFormatError, diag.SymPartialIndex, diag.SymDuplicateModule} {
		if countCode(res.Diagnostics, code) != 1 {
			t.Fatalf("expected one %s, got %+v", code.ID(), res.Diagnostics)
		}
	}
	if res.HasErrors {
		t.Fatalf("module failures must not be errors: %+v", res.Diagnostics)
	}
	if res.ExitStatus(true) != diag.ExitErrors {
		t.Fatalf("warnings-as-errors must fail the run")
	}
}

func TestExternalAssociationTarget(t *testing.T) {
	dir := t.TempDir()
	mod := writeModule(t, dir, "client.psym", &symbols.Module{Name: "Client", Types: []symbols.ModuleType{clientOrder("int")}})

	res := run(t, &Request{Set: &descriptor.Set{Types: []descriptor.Type{invoiceType()}}, Modules: []string{mod}})

	if res.HasErrors {
		t.Fatalf("client-visible association target must resolve: %+v", res.Diagnostics)
	}
	if countCode(res.Diagnostics, diag.ModExternalReference) != 1 {
		t.Fatalf("expected MOD2010 info, got %+v", res.Diagnostics)
	}
	if got := unitNames(res.Units); !slices.Equal(got, []string{"Shop.Invoice"}) {
		t.Fatalf("units = %v", got)
	}
}

func TestEmptySetIsFatal(t *testing.T) {
	res, err := Run(context.Background(), &Request{Set: &descriptor.Set{}})
	if !errors.Is(err, model.ErrEmptyInput) {
		t.Fatalf("err = %v, want ErrEmptyInput", err)
	}
	if !res.Fatal || countCode(res.Diagnostics, diag.RunEmptyInput) != 1 {
		t.Fatalf("expected fatal result with RUN5001, got %+v", res)
	}
	if res.ExitStatus(false) != diag.ExitFatal {
		t.Fatalf("exit status = %d", res.ExitStatus(false))
	}
}

func TestCancelledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Run(ctx, &Request{Set: &descriptor.Set{Types: []descriptor.Type{orderType()}}})
	if err != nil {
		t.Fatalf("cancellation is not an error: %v", err)
	}
	if !res.Cancelled || countCode(res.Diagnostics, diag.RunCancelled) != 1 {
		t.Fatalf("expected cancelled result, got %+v", res.Diagnostics)
	}
	if res.ExitStatus(false) != diag.ExitCancelled {
		t.Fatalf("exit status = %d", res.ExitStatus(false))
	}
}

func TestInvalidRequest(t *testing.T) {
	if _, err := Run(context.Background(), nil); err == nil {
		t.Fatalf("nil request must fail")
	}
	if _, err := Run(context.Background(), &Request{Set: &descriptor.Set{}, Package: "not valid"}); err == nil {
		t.Fatalf("bad package must fail")
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) OnEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func TestProgressObserverAndTimings(t *testing.T) {
	dir := t.TempDir()
	mod := writeModule(t, dir, "client.psym", &symbols.Module{Name: "Client", Types: []symbols.ModuleType{clientOrder("int")}})
	sink := &recordingSink{}
	var phases []PhaseEvent

	res := run(t, &Request{
		Set:      &descriptor.Set{Types: []descriptor.Type{orderType(), invoiceType()}},
		Modules:  []string{mod},
		Progress: sink,
		Observer: func(ev PhaseEvent) { phases = append(phases, ev) },
		Timings:  true,
	})

	if len(phases) != 2*len(Stages) {
		t.Fatalf("observer saw %d events, want %d", len(phases), 2*len(Stages))
	}
	var moduleDone, stageDone int
	for _, ev := range sink.events {
		switch {
		case ev.Module == mod && ev.Status == StatusDone:
			moduleDone++
		case ev.Module == "" && ev.Status == StatusDone:
			stageDone++
		}
	}
	if moduleDone != 1 || stageDone != len(Stages) {
		t.Fatalf("progress: module done %d, stages done %d", moduleDone, stageDone)
	}
	if countCode(res.Diagnostics, diag.ObsTimings) != 1 || len(res.Timings.Phases) != len(Stages) {
		t.Fatalf("expected timings, got %+v", res.Timings)
	}
}

func TestMaxDiagnosticsKeepsErrorFlag(t *testing.T) {
	dir := t.TempDir()
	mod := writeModule(t, dir, "client.psym", &symbols.Module{Name: "Client", Types: []symbols.ModuleType{clientOrder("string")}})
	res := run(t, &Request{
		Set:            &descriptor.Set{Types: []descriptor.Type{orderType(), invoiceType()}},
		Modules:        []string{mod, mod},
		MaxDiagnostics: 1,
	})
	if len(res.Diagnostics) != 1 || res.Dropped == 0 {
		t.Fatalf("expected truncation, got %d kept, %d dropped", len(res.Diagnostics), res.Dropped)
	}
	if !res.HasErrors || res.ExitStatus(false) != diag.ExitErrors {
		t.Fatalf("dropped conflict must still fail the run")
	}
}

func TestBrokenTypeSkipsDirectDependentsOnly(t *testing.T) {
	keyless := descriptor.Type{
		Identity: descriptor.Identity{Namespace: "Shop", Name: "X"},
		Kind:     descriptor.KindEntity,
		Members:  []descriptor.Member{{Name: "Label", Type: "string"}},
	}
	set := &descriptor.Set{Types: []descriptor.Type{keyless, complexType("Y", "Shop.X"), complexType("Z", "Shop.Y")}}
	res := run(t, &Request{Set: set})

	if countCode(res.Diagnostics, diag.ModKeyMissing) != 1 || countCode(res.Diagnostics, diag.ModDependencySkipped) != 1 {
		t.Fatalf("unexpected model diagnostics: %+v", res.Diagnostics)
	}
	if got := unitNames(res.Units); !slices.Equal(got, []string{"Shop.Z"}) {
		t.Fatalf("units = %v", got)
	}
	if !strings.Contains(res.Plan.Missing["Shop.Y"], "Shop.X") {
		t.Fatalf("missing reason = %q", res.Plan.Missing["Shop.Y"])
	}
	if countCode(res.Diagnostics, diag.EmtReferencesSkipped) != 1 {
		t.Fatalf("expected EMT4002 for Shop.Z, got %+v", res.Diagnostics)
	}
}
