package driver

import (
	"fmt"
	"strings"

	"proxygen/internal/diag"
	"proxygen/internal/emit"
	"proxygen/internal/graph"
	"proxygen/internal/model"
	"proxygen/internal/resolve"
)

const reasonCycle = "dependency cycle"

// planner turns decisions into an emission plan. Types on a dependency
// cycle become conflicts; everything downstream of a conflict is withheld.
type planner struct {
	m         *model.Model
	decisions resolve.Decisions
	r         diag.Reporter
	// blocked maps a withheld type to the conflict it is withheld for.
	blocked map[string]string
}

func buildPlan(m *model.Model, decisions resolve.Decisions, r diag.Reporter) emit.Plan {
	p := &planner{m: m, decisions: decisions, r: r, blocked: make(map[string]string)}

	var cands []*model.Type
	for _, t := range m.Types {
		if t.Usable() && decisions[t.Qualified()].Kind == resolve.NotShared {
			cands = append(cands, t)
		}
	}

	p.breakCycles(cands)
	p.withholdDownstream(cands)

	var emitted []graph.Node
	for _, t := range cands {
		q := t.Qualified()
		if p.conflict(q) || p.blocked[q] != "" {
			continue
		}
		emitted = append(emitted, graph.Node{Name: q, Deps: t.Deps})
	}
	idx := graph.BuildIndex(emitted)
	g := graph.BuildGraph(idx, emitted)
	topo := graph.ToposortKahn(g)

	plan := emit.Plan{
		Order:   idx.Names(topo.Order),
		Missing: make(map[string]string),
	}
	for _, comp := range graph.Components(g, topo.Order) {
		plan.Components = append(plan.Components, idx.Names(comp))
	}

	inPlan := make(map[string]bool, len(plan.Order))
	for _, q := range plan.Order {
		inPlan[q] = true
	}
	for _, s := range m.Services {
		if !s.Usable() {
			continue
		}
		if cause, dep := p.serviceBlocker(s); cause != "" {
			p.r.Report(diag.NewWarning(diag.ShrDependencySkipped, s.Qualified(),
				fmt.Sprintf("generation skipped, see diagnostic for %s", cause)).
				WithNote(s.Qualified(), "depends on "+dep))
			continue
		}
		plan.Services = append(plan.Services, s.Qualified())
		p.noteMissing(plan.Missing, s.Deps, inPlan)
	}
	for _, q := range plan.Order {
		t, _ := m.Lookup(q)
		p.noteMissing(plan.Missing, t.Deps, inPlan)
	}
	return plan
}

func (p *planner) conflict(q string) bool {
	return p.decisions[q].Kind == resolve.Conflict
}

// breakCycles marks every type on a dependency loop among cands as a conflict.
func (p *planner) breakCycles(cands []*model.Type) {
	nodes := make([]graph.Node, 0, len(cands))
	for _, t := range cands {
		nodes = append(nodes, graph.Node{Name: t.Qualified(), Deps: t.Deps})
	}
	idx := graph.BuildIndex(nodes)
	g := graph.BuildGraph(idx, nodes)
	for _, scc := range graph.StronglyConnected(g) {
		path := idx.Names(graph.CyclePath(g, scc))
		reason := reasonCycle + ": " + strings.Join(path, " -> ")
		for _, q := range idx.Names(scc) {
			d := p.decisions[q]
			d.Kind = resolve.Conflict
			d.Reason = reason
			d.Candidate = -1
			p.decisions[q] = d
			p.r.Report(diag.NewError(diag.ShrDependencyCycle, q,
				fmt.Sprintf("%s is not generated: %s", q, reason)))
		}
	}
}

// withholdDownstream blocks every candidate that depends, directly or
// through other candidates, on a conflict. Iterates to a fixed point in
// model order so the recorded cause is deterministic.
func (p *planner) withholdDownstream(cands []*model.Type) {
	for changed := true; changed; {
		changed = false
		for _, t := range cands {
			q := t.Qualified()
			if p.conflict(q) || p.blocked[q] != "" {
				continue
			}
			for _, dep := range t.Deps {
				cause := dep
				if !p.conflict(dep) {
					cause = p.blocked[dep]
				}
				if cause != "" {
					p.blocked[q] = cause
					changed = true
					break
				}
			}
		}
	}
	for _, t := range cands {
		q := t.Qualified()
		if cause := p.blocked[q]; cause != "" {
			p.r.Report(diag.NewWarning(diag.ShrDependencySkipped, q,
				fmt.Sprintf("generation skipped, see diagnostic for %s", cause)))
		}
	}
}

func (p *planner) serviceBlocker(s *model.Service) (cause, dep string) {
	for _, d := range s.Deps {
		if p.conflict(d) {
			return d, d
		}
		if c := p.blocked[d]; c != "" {
			return c, d
		}
	}
	return "", ""
}

// noteMissing records referenced types that end up with neither a unit nor a
// client definition.
func (p *planner) noteMissing(missing map[string]string, deps []string, inPlan map[string]bool) {
	for _, dep := range deps {
		if inPlan[dep] || p.decisions[dep].Shared() {
			continue
		}
		if _, seen := missing[dep]; seen {
			continue
		}
		t, ok := p.m.Lookup(dep)
		switch {
		case !ok:
			continue
		case t.Broken:
			missing[dep] = "it has errors"
		case t.Skipped:
			missing[dep] = "its generation was skipped because of " + t.SkippedFor
		case p.conflict(dep):
			missing[dep] = p.decisions[dep].Reason
		default:
			missing[dep] = "it was withheld because of " + p.blocked[dep]
		}
	}
}
