package emit

import (
	"bytes"
	"context"
	"errors"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"proxygen/internal/descriptor"
	"proxygen/internal/diag"
	"proxygen/internal/model"
)

func mustModel(t *testing.T, set *descriptor.Set, external ...string) *model.Model {
	t.Helper()
	ext := make(map[string]bool)
	for _, e := range external {
		ext[e] = true
	}
	bag := diag.NewBag(0)
	m, err := model.Build(set, model.Options{
		Reporter: diag.BagReporter{Bag: bag},
		External: func(q string) bool { return ext[q] },
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if bag.HasErrors() {
		t.Fatalf("model errors: %v", bag.Items())
	}
	return m
}

func ptr(f float64) *float64 { return &f }

func shopSet() *descriptor.Set {
	return &descriptor.Set{
		Types: []descriptor.Type{
			{
				Identity: descriptor.Identity{Namespace: "Shop", Name: "Customer"},
				Kind:     descriptor.KindEntity,
				Members: []descriptor.Member{
					{Name: "Id", Type: "int", Key: true},
					{Name: "Name", Type: "string", Required: true, Constraints: []descriptor.Constraint{
						{Kind: descriptor.ConstraintLength, Max: ptr(64)},
						{Kind: descriptor.ConstraintPattern, Pattern: `^[A-Z]`},
					}},
					{Name: "Orders", Type: "Shop.Order", Collection: true, Association: &descriptor.Association{Target: "Shop.Order", Collection: true}},
				},
			},
			{
				Identity: descriptor.Identity{Namespace: "Shop", Name: "Order"},
				Kind:     descriptor.KindEntity,
				Members: []descriptor.Member{
					{Name: "Id", Type: "int", Key: true, ComputedOnInsert: true},
					{Name: "CustomerId", Type: "int"},
					{Name: "Placed", Type: "datetime"},
					{Name: "Status", Type: "Shop.Status"},
					{Name: "Total", Type: "double", Constraints: []descriptor.Constraint{{Kind: descriptor.ConstraintRange, Min: ptr(0)}}},
				},
			},
			{
				Identity: descriptor.Identity{Namespace: "Shop", Name: "Status"},
				Kind:     descriptor.KindEnum,
				Values:   []descriptor.EnumValue{{Name: "Open", Value: 0}, {Name: "Closed", Value: 1}},
			},
		},
		Services: []descriptor.Service{{
			Identity: descriptor.Identity{Namespace: "Shop", Name: "OrderService"},
			Operations: []descriptor.Operation{
				{Name: "GetOrders", Kind: descriptor.OpQuery, Parameters: []descriptor.Parameter{{Name: "customerId", Type: "int"}}, Returns: "Shop.Order", ReturnsCollection: true},
				{Name: "Cancel", Kind: descriptor.OpInvoke, Parameters: []descriptor.Parameter{{Name: "type", Type: "string"}}},
			},
		}},
	}
}

func unitByName(units []Unit, name string) (Unit, bool) {
	for _, u := range units {
		if u.Name == name {
			return u, true
		}
	}
	return Unit{}, false
}

// squash collapses gofmt column padding so tests can match single-spaced text.
func squash(b []byte) string {
	return strings.Join(strings.Fields(string(b)), " ")
}

func mustParse(t *testing.T, u Unit) {
	t.Helper()
	if _, err := parser.ParseFile(token.NewFileSet(), u.FileName, u.Text, parser.AllErrors); err != nil {
		t.Fatalf("%s does not parse: %v\n%s", u.FileName, err, u.Text)
	}
}

func TestEmitSingleUnit(t *testing.T) {
	m := mustModel(t, &descriptor.Set{Types: []descriptor.Type{{
		Identity: descriptor.Identity{Namespace: "Shop", Name: "Order"},
		Kind:     descriptor.KindEntity,
		Members: []descriptor.Member{
			{Name: "Id", Type: "int", Key: true},
			{Name: "CustomerId", Type: "int"},
		},
	}}})
	units, err := Emit(context.Background(), m, Plan{Order: []string{"Shop.Order"}}, Options{})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("units = %d, want 1", len(units))
	}
	u := units[0]
	if u.FileName != "shop_order.go" {
		t.Fatalf("file name = %q", u.FileName)
	}
	text := squash(u.Text)
	for _, want := range []string{
		"// Code generated by proxygen. DO NOT EDIT.",
		"package proxy",
		"type Order struct",
		"`json:\"Id\" proxy:\"key\"`",
		"`json:\"CustomerId,omitempty\"`",
		"func (x *Order) Key() []any",
		"func (x *Order) Validate() error",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("unit misses %q:\n%s", want, text)
		}
	}
	mustParse(t, u)
}

func TestEmitIsIdempotent(t *testing.T) {
	plan := Plan{
		Order:      []string{"Shop.Status", "Shop.Order", "Shop.Customer"},
		Components: [][]string{{"Shop.Status", "Shop.Order", "Shop.Customer"}},
		Services:   []string{"Shop.OrderService"},
	}
	run := func() []Unit {
		units, err := Emit(context.Background(), mustModel(t, shopSet()), plan, Options{Package: "client", Jobs: 4})
		if err != nil {
			t.Fatalf("Emit: %v", err)
		}
		return units
	}
	a, b := run(), run()
	if len(a) != len(b) || len(a) != 5 {
		t.Fatalf("unit counts %d / %d, want 5", len(a), len(b))
	}
	for i := range a {
		if a[i].Name != b[i].Name || !bytes.Equal(a[i].Text, b[i].Text) {
			t.Fatalf("unit %d differs between runs", i)
		}
		mustParse(t, a[i])
	}
	wantOrder := []string{"Shop.Status", "Shop.Order", "Shop.Customer", "Shop.OrderService", RuntimeUnit}
	for i, want := range wantOrder {
		if a[i].Name != want {
			t.Fatalf("unit[%d] = %s, want %s", i, a[i].Name, want)
		}
	}
}

func TestEmitRendersMembersAndValidation(t *testing.T) {
	plan := Plan{Order: []string{"Shop.Status", "Shop.Order", "Shop.Customer"}, Services: []string{"Shop.OrderService"}}
	units, err := Emit(context.Background(), mustModel(t, shopSet()), plan, Options{})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	customer, _ := unitByName(units, "Shop.Customer")
	text := squash(customer.Text)
	for _, want := range []string{
		"Orders []Order",
		`proxy:"assoc=Shop.Order,many"`,
		`var customerNamePattern = regexp.MustCompile("^[A-Z]")`,
		`if x.Name == "" {`,
		"len(x.Name) > 64",
		"return errors.Join(errs...)",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("Customer unit misses %q:\n%s", want, text)
		}
	}
	if len(customer.Deps) != 1 || customer.Deps[0] != "Shop.Order" {
		t.Fatalf("Customer deps = %v", customer.Deps)
	}

	order, _ := unitByName(units, "Shop.Order")
	text = squash(order.Text)
	for _, want := range []string{
		"Placed time.Time",
		"Status Status",
		`proxy:"key,computed=insert"`,
		"float64(x.Total) < 0",
		`"time"`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("Order unit misses %q:\n%s", want, text)
		}
	}

	status, _ := unitByName(units, "Shop.Status")
	if !strings.Contains(squash(status.Text), "StatusClosed Status = 1") {
		t.Fatalf("enum constants missing:\n%s", status.Text)
	}

	svc, ok := unitByName(units, "Shop.OrderService")
	if !ok || svc.FileName != "shop_orderservice_client.go" {
		t.Fatalf("service unit: %+v", svc)
	}
	text = squash(svc.Text)
	for _, want := range []string{
		"func (c *OrderServiceClient) GetOrders(ctx context.Context, customerId int32) ([]Order, error)",
		`c.inv.Invoke(ctx, "Shop.OrderService", "GetOrders", OpQuery, []any{customerId}, &out)`,
		"func (c *OrderServiceClient) Cancel(ctx context.Context, typeArg string) error",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("service unit misses %q:\n%s", want, text)
		}
	}
	if _, ok := unitByName(units, RuntimeUnit); !ok {
		t.Fatalf("runtime unit missing")
	}
}

func TestEmitReferencesSharedTypesThroughImports(t *testing.T) {
	m := mustModel(t, shopSet())
	plan := Plan{Order: []string{"Shop.Customer"}}
	units, err := Emit(context.Background(), m, plan, Options{
		Namespaces: map[string]string{"Shop": "example.com/client/shop"},
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("units = %d, want 1 (shared types get no unit)", len(units))
	}
	text := squash(units[0].Text)
	if !strings.Contains(text, `"example.com/client/shop"`) || !strings.Contains(text, "Orders []shop.Order") {
		t.Fatalf("shared reference not imported:\n%s", text)
	}
	mustParse(t, units[0])
}

func TestEmitWarnsAboutMissingReferences(t *testing.T) {
	m := mustModel(t, shopSet())
	bag := diag.NewBag(0)
	plan := Plan{
		Order:   []string{"Shop.Customer"},
		Missing: map[string]string{"Shop.Order": "generation skipped"},
	}
	if _, err := Emit(context.Background(), m, plan, Options{Reporter: diag.BagReporter{Bag: bag}}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	items := bag.Items()
	if len(items) != 1 || items[0].Code != diag.EmtReferencesSkipped || items[0].Subject != "Shop.Customer" {
		t.Fatalf("diagnostics = %v", items)
	}
}

func TestEmitPostProcessors(t *testing.T) {
	m := mustModel(t, shopSet())
	bag := diag.NewBag(0)
	failing := Func{Label: "broken", Fn: func(context.Context, Unit) ([]byte, error) {
		return nil, errors.New("boom")
	}}
	units, err := Emit(context.Background(), m, Plan{Order: []string{"Shop.Status"}}, Options{
		Reporter: diag.BagReporter{Bag: bag},
		Post:     []PostProcessor{Header{Text: "Copyright Example"}, failing, Gofmt{}},
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.HasPrefix(string(units[0].Text), "// Copyright Example\n\n// Code generated") {
		t.Fatalf("header missing:\n%s", units[0].Text)
	}
	items := bag.Items()
	if len(items) != 1 || items[0].Code != diag.EmtPostProcessFailed || items[0].Severity != diag.SevWarning {
		t.Fatalf("diagnostics = %v", items)
	}
}

func TestEmitCancelled(t *testing.T) {
	m := mustModel(t, shopSet())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	units, err := Emit(ctx, m, Plan{Order: []string{"Shop.Status", "Shop.Order"}, Services: []string{"Shop.OrderService"}}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(units) != 0 {
		t.Fatalf("no units expected, got %d", len(units))
	}
}

func TestEmitRejectsBadPackage(t *testing.T) {
	if _, err := Emit(context.Background(), mustModel(t, shopSet()), Plan{}, Options{Package: "not-a-name"}); err == nil {
		t.Fatalf("expected error for invalid package name")
	}
}

func TestExportedNames(t *testing.T) {
	cases := map[string]string{
		"order_line": "OrderLine",
		"customerId": "CustomerId",
		"":           "X",
		"ID":         "ID",
	}
	for in, want := range cases {
		if got := exported(in); got != want {
			t.Fatalf("exported(%q) = %q, want %q", in, got, want)
		}
	}
	names := localNames([]string{"A.Order", "B.Order", "Invoker"})
	if names["A.Order"] != "Order" || names["B.Order"] != "BOrder" {
		t.Fatalf("collisions: %v", names)
	}
	if names["Invoker"] == "Invoker" {
		t.Fatalf("reserved name not avoided: %v", names)
	}
}

func TestEmitKeepsFileNamesUnique(t *testing.T) {
	entity := func(ns, name string) descriptor.Type {
		return descriptor.Type{
			Identity: descriptor.Identity{Namespace: ns, Name: name},
			Kind:     descriptor.KindEntity,
			Members:  []descriptor.Member{{Name: "Id", Type: "int", Key: true}},
		}
	}
	m := mustModel(t, &descriptor.Set{Types: []descriptor.Type{
		entity("Shop", "Order"),
		entity("", "Shop_Order"),
		entity("shop", "order"),
	}})
	plan := Plan{Order: []string{"Shop.Order", "Shop_Order", "shop.order"}}
	units, err := Emit(context.Background(), m, plan, Options{})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	want := map[string]string{
		"Shop.Order": "shop_order.go",
		"Shop_Order": "shop_order_2.go",
		"shop.order": "shop_order_3.go",
	}
	if len(units) != len(want) {
		t.Fatalf("units = %d, want %d", len(units), len(want))
	}
	for _, u := range units {
		if u.FileName != want[u.Name] {
			t.Fatalf("%s: file name = %q, want %q", u.Name, u.FileName, want[u.Name])
		}
	}
}

func TestUniqueFileNamesKeepsRuntimeUnit(t *testing.T) {
	units := []Unit{
		{Name: "Invoker", FileName: "invoker.go"},
		{Name: RuntimeUnit, FileName: RuntimeUnit + ".go"},
	}
	uniqueFileNames(units)
	if units[1].FileName != "invoker.go" || units[0].FileName != "invoker_2.go" {
		t.Fatalf("file names = %q, %q", units[0].FileName, units[1].FileName)
	}
}
