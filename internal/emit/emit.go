// Package emit renders the intermediate model into Go client source units.
// Output depends only on the model, the plan and the options, so repeated
// runs produce byte-identical units.
package emit

import (
	"context"
	"fmt"
	"go/token"
	"runtime"

	"golang.org/x/sync/errgroup"

	"proxygen/internal/diag"
	"proxygen/internal/model"
)

// DefaultPackage is the package clause of generated units.
const DefaultPackage = "proxy"

// RuntimeUnit names the unit declaring Invoker.
const RuntimeUnit = "invoker"

// Unit is one generated source file.
type Unit struct {
	// Name is the qualified type or service name, or RuntimeUnit.
	Name     string
	FileName string
	Text     []byte
	// Deps lists the model types the unit refers to, sorted.
	Deps []string
}

// Plan tells the emitter what to render and in which order.
type Plan struct {
	// Order lists the types that get a unit, dependencies first.
	Order []string
	// Components partitions Order into independent groups, each in Order's order.
	// Nil means a single group.
	Components [][]string
	// Services lists the services that get a client unit.
	Services []string
	// Missing maps referenced types that have neither a unit nor a client
	// definition to the reason.
	Missing map[string]string
}

// Options configure Emit.
type Options struct {
	Package string
	// Namespaces maps a type namespace to the Go import path that provides
	// client types of that namespace.
	Namespaces map[string]string
	Jobs       int
	Reporter   diag.Reporter
	Post       []PostProcessor
}

type rendered struct {
	unit  *Unit
	diags []diag.Diagnostic
}

// Emit renders plan. Units come back in plan order, then services, then the
// runtime unit. When ctx is cancelled the units finished so far are returned
// together with the context error.
func Emit(ctx context.Context, m *model.Model, plan Plan, opts Options) ([]Unit, error) {
	if opts.Package == "" {
		opts.Package = DefaultPackage
	}
	if !token.IsIdentifier(opts.Package) {
		return nil, fmt.Errorf("invalid package name %q", opts.Package)
	}
	if opts.Reporter == nil {
		opts.Reporter = diag.NopReporter{}
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	e := newEmitter(m, plan, opts)
	comps := plan.Components
	if comps == nil && len(plan.Order) > 0 {
		comps = [][]string{plan.Order}
	}

	results := make([][]rendered, len(comps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, comp := range comps {
		g.Go(func() error {
			out := make([]rendered, 0, len(comp))
			defer func() { results[i] = out }()
			for _, name := range comp {
				if err := gctx.Err(); err != nil {
					return err
				}
				out = append(out, e.renderType(name))
			}
			return nil
		})
	}
	cancelled := g.Wait() != nil || ctx.Err() != nil

	byName := make(map[string]rendered, len(plan.Order))
	for _, rs := range results {
		for _, r := range rs {
			byName[r.unit.Name] = r
		}
	}
	var done []rendered
	for _, name := range plan.Order {
		if r, ok := byName[name]; ok {
			done = append(done, r)
		}
	}
	if !cancelled {
		for _, name := range plan.Services {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			done = append(done, e.renderService(name))
		}
		if e.servicesEmitted {
			done = append(done, e.renderRuntime())
		}
	}

	units := make([]Unit, 0, len(done))
	for _, r := range done {
		for _, d := range r.diags {
			opts.Reporter.Report(d)
		}
		if r.unit.Text == nil {
			continue
		}
		units = append(units, *r.unit)
	}
	uniqueFileNames(units)
	units = postProcess(context.WithoutCancel(ctx), units, opts.Post, opts.Reporter)
	if cancelled {
		return units, ctx.Err()
	}
	return units, nil
}
