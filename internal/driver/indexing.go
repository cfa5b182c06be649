package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"proxygen/internal/diag"
	"proxygen/internal/symbols"
	"proxygen/internal/trace"
)

// index reads every client module. Module failures become diagnostics and
// exclude only that module.
func (r *runner) index(ctx context.Context) (string, error) {
	paths := r.uniqueModules()
	for _, p := range paths {
		r.sink.OnEvent(Event{Module: p, Stage: StageIndex, Status: StatusQueued})
	}

	t := trace.FromContext(ctx)
	parent := trace.CurrentSpan(ctx).SpanID
	results, err := symbols.IndexAll(ctx, paths, symbols.Options{
		Jobs:    r.req.Jobs,
		Timeout: r.req.Timeout,
		Memory:  r.req.Memory,
		Disk:    r.req.Disk,
		Notify: func(path string, done bool, res *symbols.Result) {
			if !done {
				r.sink.OnEvent(Event{Module: path, Stage: StageIndex, Status: StatusWorking})
				return
			}
			ev := Event{Module: path, Stage: StageIndex, Status: StatusDone, Elapsed: res.Elapsed, Err: res.Err}
			detail := res.Source.String()
			if res.Err != nil {
				ev.Status = StatusError
				detail = res.Err.Error()
			}
			r.sink.OnEvent(ev)
			trace.Point(t, trace.ScopeModule, "module:"+path, detail, parent)
		},
	})

	// диагностики пишутся после join, в порядке модулей
	for i := range results {
		r.record(&results[i])
	}
	return fmt.Sprintf("%d of %d modules", len(r.res.Indices), len(paths)), err
}

// uniqueModules drops repeated paths, keeping the first (higher precedence)
// occurrence.
func (r *runner) uniqueModules() []string {
	seen := make(map[string]bool, len(r.req.Modules))
	out := make([]string, 0, len(r.req.Modules))
	for _, p := range r.req.Modules {
		if seen[p] {
			r.rep.Report(diag.NewWarning(diag.SymDuplicateModule, "",
				fmt.Sprintf("module %s listed more than once; the first occurrence is used", p)).
				At(diag.Location{Module: p}))
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func (r *runner) record(res *symbols.Result) {
	loc := diag.Location{Module: res.Path}
	if res.CacheErr != nil {
		r.rep.Report(diag.NewWarning(diag.SymCacheUnavailable, "",
			fmt.Sprintf("symbol cache unavailable: %v", res.CacheErr)).At(loc))
	}
	if res.Err != nil {
		// таймаут модуля приходит как FormatError и остаётся диагностикой
		var fe *symbols.FormatError
		if isCancel(res.Err) && !errors.As(res.Err, &fe) {
			return
		}
		r.rep.Report(moduleFailure(res.Err).At(loc))
		return
	}

	idx := res.Index
	r.res.Indices = append(r.res.Indices, idx)
	if idx.Partial {
		reason := idx.PartialReason
		if reason == "" {
			reason = "no member-level symbols"
		}
		r.rep.Report(diag.NewWarning(diag.SymPartialIndex, "",
			fmt.Sprintf("module %s has partial symbols (%s); matches against it are not verified member by member", idx.Name(), reason)).At(loc))
	}
	if len(idx.Duplicates) > 0 {
		names := make([]string, len(idx.Duplicates))
		for i, k := range idx.Duplicates {
			names[i] = k.String()
		}
		r.rep.Report(diag.New(diag.SevInfo, diag.SymDuplicateTypeName, "",
			fmt.Sprintf("module %s records %d types more than once; the first record is used", idx.Name(), len(names))).
			At(loc).WithNote("", strings.Join(names, ", ")))
	}
}

func moduleFailure(err error) diag.Diagnostic {
	var nf *symbols.ModuleNotFoundError
	var fe *symbols.FormatError
	switch {
	case errors.As(err, &nf):
		return diag.NewWarning(diag.SymModuleNotFound, "",
			fmt.Sprintf("module %s cannot be read and is excluded: %v", nf.Path, nf.Err))
	case errors.As(err, &fe) && fe.Timeout:
		return diag.NewWarning(diag.SymTimeout, "",
			fmt.Sprintf("reading symbols timed out and the module is excluded: %v", err))
	default:
		return diag.NewWarning(diag.SymFormatError, "",
			fmt.Sprintf("module is excluded: %v", err))
	}
}
