// Package driver runs one generation: index the client modules, build the
// model, decide sharing, plan and emit. Nothing here touches the output
// directory; callers write Result.Units themselves.
package driver

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"time"

	"proxygen/internal/descriptor"
	"proxygen/internal/diag"
	"proxygen/internal/emit"
	"proxygen/internal/model"
	"proxygen/internal/observ"
	"proxygen/internal/resolve"
	"proxygen/internal/symbols"
	"proxygen/internal/trace"
)

// Request describes one generation run.
type Request struct {
	Set *descriptor.Set
	// Modules are client module paths, nearer project references first.
	Modules []string

	Jobs    int
	Timeout time.Duration // per module read
	Memory  *symbols.MemoryCache
	Disk    *symbols.DiskCache

	Package    string
	Namespaces map[string]string
	Post       []emit.PostProcessor

	MaxDiagnostics int
	// Timings adds an OBS6001 diagnostic with per-phase durations.
	Timings bool

	Progress ProgressSink
	Observer PhaseObserver
}

// Result is everything a run produced. Units stay valid when the run was
// cancelled part way.
type Result struct {
	Units       []emit.Unit
	Diagnostics []diag.Diagnostic
	// Dropped counts diagnostics discarded by MaxDiagnostics.
	Dropped int
	// HasErrors includes dropped error diagnostics.
	HasErrors bool

	Model     *model.Model
	Decisions resolve.Decisions
	// Indices are the client modules that were read, in precedence order.
	Indices []*symbols.Index
	Plan    emit.Plan

	Cancelled bool
	Fatal     bool
	Timings   observ.Report
}

// ExitStatus maps the result to a process exit code.
func (r *Result) ExitStatus(warningsAsErrors bool) int {
	st := diag.ExitStatus(r.Diagnostics, diag.ExitOptions{
		WarningsAsErrors: warningsAsErrors,
		Fatal:            r.Fatal,
		Cancelled:        r.Cancelled,
	})
	if st == diag.ExitOK && r.HasErrors {
		return diag.ExitErrors
	}
	return st
}

type runner struct {
	req   *Request
	bag   *diag.Bag
	rep   diag.Reporter
	timer *observ.Timer
	sink  ProgressSink
	res   *Result
}

// Run executes the pipeline. The returned error is non-nil only for an
// invalid request or an empty descriptor set (model.ErrEmptyInput); in the
// latter case the Result still carries the RUN5001 diagnostic. Cancellation
// is not an error: the Result is marked Cancelled.
func Run(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || req.Set == nil {
		return nil, errors.New("driver: missing descriptor set")
	}
	if req.Package != "" && !token.IsIdentifier(req.Package) {
		return nil, fmt.Errorf("driver: invalid package name %q", req.Package)
	}

	bag := diag.NewBag(req.MaxDiagnostics)
	r := &runner{
		req:   req,
		bag:   bag,
		rep:   diag.NewDedupReporter(diag.BagReporter{Bag: bag}),
		timer: observ.NewTimer(),
		sink:  req.Progress,
		res:   &Result{},
	}
	if r.sink == nil {
		r.sink = nopSink{}
	}

	ctx, span := trace.Start(ctx, trace.ScopeRun, "generate")
	err := r.run(ctx)
	r.finish()
	span.Count("units", len(r.res.Units)).
		Count("diagnostics", len(r.res.Diagnostics)).
		End(runDetail(r.res))
	return r.res, err
}

func runDetail(res *Result) string {
	switch {
	case res.Fatal:
		return "fatal"
	case res.Cancelled:
		return "cancelled"
	}
	return ""
}

func (r *runner) run(ctx context.Context) error {
	steps := []struct {
		stage Stage
		fn    func(context.Context) (string, error)
	}{
		{StageIndex, r.index},
		{StageModel, r.buildModel},
		{StageResolve, r.resolve},
		{StagePlan, r.plan},
		{StageEmit, r.emit},
	}
	for _, s := range steps {
		err := r.phase(ctx, s.stage, s.fn)
		switch {
		case err == nil:
		case isCancel(err):
			r.res.Cancelled = true
			return nil
		case errors.Is(err, model.ErrEmptyInput):
			r.res.Fatal = true
			return err
		default:
			return err
		}
		if ctx.Err() != nil {
			r.res.Cancelled = true
			return nil
		}
	}
	return nil
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (r *runner) phase(ctx context.Context, stage Stage, fn func(context.Context) (string, error)) error {
	name := string(stage)
	idx := r.timer.Begin(name)
	r.observe(PhaseEvent{Name: name, Status: PhaseStart})
	r.sink.OnEvent(Event{Stage: stage, Status: StatusWorking})
	pctx, span := trace.Start(ctx, trace.ScopePhase, name)
	start := time.Now()

	note, err := fn(pctx)

	elapsed := time.Since(start)
	status := StatusDone
	detail := note
	if err != nil {
		status = StatusError
		detail = err.Error()
	}
	span.End(detail)
	r.timer.End(idx, note)
	r.observe(PhaseEvent{Name: name, Status: PhaseEnd, Elapsed: elapsed})
	r.sink.OnEvent(Event{Stage: stage, Status: status, Err: err, Elapsed: elapsed})
	return err
}

func (r *runner) observe(ev PhaseEvent) {
	if r.req.Observer != nil {
		r.req.Observer(ev)
	}
}

func (r *runner) buildModel(context.Context) (string, error) {
	m, err := model.Build(r.req.Set, model.Options{Reporter: r.rep, External: r.external})
	if err != nil {
		if errors.Is(err, model.ErrEmptyInput) {
			r.rep.Report(diag.NewError(diag.RunEmptyInput, "", "no server types to generate"))
		}
		return "", err
	}
	r.res.Model = m
	return fmt.Sprintf("%d types, %d services", len(m.Types), len(m.Services)), nil
}

// external reports whether a client module exposes qualified.
func (r *runner) external(qualified string) bool {
	for _, idx := range r.res.Indices {
		if sym, ok := idx.LookupQualified(qualified); ok && sym.Visibility.Visible() {
			return true
		}
	}
	return false
}

func (r *runner) resolve(ctx context.Context) (string, error) {
	decisions, err := resolve.ResolveAll(ctx, r.res.Model, r.res.Indices, r.rep)
	r.res.Decisions = decisions
	t := trace.FromContext(ctx)
	parent := trace.CurrentSpan(ctx).SpanID
	shared := 0
	for _, typ := range r.res.Model.Types {
		d, ok := decisions[typ.Qualified()]
		if !ok {
			continue
		}
		if d.Shared() {
			shared++
		}
		trace.Point(t, trace.ScopeType, "decide", typ.Qualified()+": "+d.String(), parent)
	}
	return fmt.Sprintf("%d shared", shared), err
}

func (r *runner) plan(context.Context) (string, error) {
	r.res.Plan = buildPlan(r.res.Model, r.res.Decisions, r.rep)
	return fmt.Sprintf("%d units planned", len(r.res.Plan.Order)+len(r.res.Plan.Services)), nil
}

func (r *runner) emit(ctx context.Context) (string, error) {
	units, err := emit.Emit(ctx, r.res.Model, r.res.Plan, emit.Options{
		Package:    r.req.Package,
		Namespaces: r.req.Namespaces,
		Jobs:       r.req.Jobs,
		Reporter:   r.rep,
		Post:       r.req.Post,
	})
	r.res.Units = units
	return fmt.Sprintf("%d units", len(units)), err
}

func (r *runner) finish() {
	if r.res.Cancelled {
		r.rep.Report(diag.NewWarning(diag.RunCancelled, "",
			fmt.Sprintf("generation cancelled; %d units produced before cancellation", len(r.res.Units))))
	}
	r.res.Timings = r.timer.Report()
	if r.req.Timings {
		if d, ok := timingDiagnostic(r.res.Timings); ok {
			r.rep.Report(d)
		}
	}
	r.res.HasErrors = r.bag.HasErrors()
	r.res.Dropped = r.bag.Dropped()
	r.res.Diagnostics = r.bag.Drain()
}
