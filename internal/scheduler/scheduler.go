package scheduler

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/ctxlog"
	"github.com/vk/cellgridgo/internal/namegraph"
)

// Plan is an ordered, filtered subset of cells to execute for one change
// event, plus skip and stale annotations. A fixed notebook state and a fixed
// changed set always yield the same plan.
type Plan struct {
	// ID correlates the plan's status events.
	ID uuid.UUID
	// Runnable is the topological execution order over the affected subgraph.
	Runnable []cell.ID
	// Skip holds cells barred from execution, mapped to the structural
	// diagnostic barring them. Disabled cells carry a nil diagnostic.
	Skip map[cell.ID]error
	// Stale holds descendants of skipped cells. They retain their last-known
	// output but are marked outdated.
	Stale map[cell.ID]struct{}
	// Cycle is the minimal-cycle diagnostic, when the graph is cyclic.
	Cycle *namegraph.CycleError
}

// Empty reports whether the plan has nothing to do.
func (p *Plan) Empty() bool {
	return len(p.Runnable) == 0 && len(p.Skip) == 0 && len(p.Stale) == 0
}

// Statuses exposes cell execution status to the planner, so a plan can
// account for failures left behind by earlier plans.
type Statuses interface {
	Status(id cell.ID) (cell.Status, bool)
}

// Scheduler derives plans from a dependency graph snapshot.
type Scheduler struct {
	graph    *namegraph.Graph
	statuses Statuses
}

// New creates a scheduler over the given graph. statuses may be nil when no
// execution history exists to consult.
func New(g *namegraph.Graph, statuses Statuses) *Scheduler {
	return &Scheduler{graph: g, statuses: statuses}
}

// Schedule computes the plan for a set of changed cells (edited, newly
// registered, or interacted with). Cells no longer registered are ignored:
// a deletion dirties its former descendants, not itself.
func (s *Scheduler) Schedule(ctx context.Context, changed []cell.ID) *Plan {
	logger := ctxlog.FromContext(ctx)
	plan := &Plan{
		ID:    uuid.New(),
		Skip:  make(map[cell.ID]error),
		Stale: make(map[cell.ID]struct{}),
	}

	affected := s.affectedSet(changed)
	if len(affected) == 0 {
		logger.Debug("Empty change set, empty plan.", "plan_id", plan.ID)
		return plan
	}
	logger.Debug("Computed affected set.", "plan_id", plan.ID, "affected", len(affected))

	plan.Cycle = s.graph.Cycle()
	for _, id := range s.inDocumentOrder(affected) {
		if reason, skip := s.barred(id, plan.Cycle); skip {
			plan.Skip[id] = reason
		}
	}

	// A cell downstream of an ancestor that failed in an earlier plan, or
	// whose input is owned by a disabled cell, keeps its last-good output
	// and waits; re-running it against missing inputs would only turn
	// staleness into a fresh error.
	for id := range affected {
		if _, skip := plan.Skip[id]; skip {
			continue
		}
		if s.failedUpstream(id, affected) || len(s.graph.DormantRefs(id)) > 0 {
			plan.Stale[id] = struct{}{}
		}
	}

	// Descendants of a barred or stale cell must not run on top of missing
	// inputs; they keep their last-good output and are marked stale instead.
	blocked := make([]cell.ID, 0, len(plan.Skip)+len(plan.Stale))
	for id := range plan.Skip {
		blocked = append(blocked, id)
	}
	for id := range plan.Stale {
		blocked = append(blocked, id)
	}
	for _, id := range blocked {
		descendants := s.graph.Descendants(id)
		if s.graph.Disabled(id) {
			// A disabled cell owns no names, so its readers are no longer
			// dependents in the graph; they still lose their input.
			descendants = s.graph.FormerDependents(id)
		}
		for _, desc := range descendants {
			if _, inPlan := affected[desc]; !inPlan {
				continue
			}
			if _, alsoSkip := plan.Skip[desc]; alsoSkip {
				continue
			}
			plan.Stale[desc] = struct{}{}
		}
	}

	s.sortRunnable(plan, affected)
	logger.Debug("Plan ready.",
		"plan_id", plan.ID,
		"runnable", len(plan.Runnable),
		"skip", len(plan.Skip),
		"stale", len(plan.Stale),
	)
	return plan
}

// affectedSet returns changed ∪ descendants(changed), restricted to cells
// still registered.
func (s *Scheduler) affectedSet(changed []cell.ID) map[cell.ID]struct{} {
	affected := make(map[cell.ID]struct{})
	for _, id := range changed {
		if !s.graph.Contains(id) {
			continue
		}
		affected[id] = struct{}{}
		for _, desc := range s.graph.Descendants(id) {
			affected[desc] = struct{}{}
		}
	}
	return affected
}

// barred reports the structural diagnostic excluding a cell from execution,
// if any. Disabled cells are barred with no diagnostic.
func (s *Scheduler) barred(id cell.ID, cyc *namegraph.CycleError) (error, bool) {
	if s.graph.Disabled(id) {
		return nil, true
	}
	if s.graph.Conflicted(id) {
		for _, conflict := range s.graph.Conflicts() {
			for _, member := range conflict.Cells {
				if member == id {
					return conflict, true
				}
			}
		}
	}
	if s.graph.InCycle(id, cyc) {
		return cyc, true
	}
	if undefined := s.graph.UndefinedRefs(id); len(undefined) > 0 {
		return undefined[0], true
	}
	return nil, false
}

// failedUpstream reports whether the cell has an ancestor in error state
// that this plan does not re-run.
func (s *Scheduler) failedUpstream(id cell.ID, affected map[cell.ID]struct{}) bool {
	if s.statuses == nil {
		return false
	}
	for _, anc := range s.graph.Ancestors(id) {
		if _, rerun := affected[anc]; rerun {
			continue
		}
		if status, ok := s.statuses.Status(anc); ok && status == cell.StatusError {
			return true
		}
	}
	return false
}

// sortRunnable topologically sorts affected minus skip minus stale with
// Kahn's algorithm over the induced subgraph. Ready ties break on document
// order so repeated runs are deterministic and diffable. Any leftover cells
// sit on a cycle the minimal-cycle diagnostic did not cover; they are demoted
// to skip.
func (s *Scheduler) sortRunnable(plan *Plan, affected map[cell.ID]struct{}) {
	candidate := make(map[cell.ID]struct{}, len(affected))
	for id := range affected {
		if _, skip := plan.Skip[id]; skip {
			continue
		}
		if _, stale := plan.Stale[id]; stale {
			continue
		}
		candidate[id] = struct{}{}
	}

	indegree := make(map[cell.ID]int, len(candidate))
	for id := range candidate {
		deg := 0
		for _, dep := range s.graph.DirectDependencies(id) {
			if _, in := candidate[dep]; in {
				deg++
			}
		}
		indegree[id] = deg
	}

	var ready []cell.ID
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return s.before(ready[i], ready[j]) })
		next := ready[0]
		ready = ready[1:]
		plan.Runnable = append(plan.Runnable, next)
		delete(indegree, next)
		for _, dep := range s.graph.DirectDependents(next) {
			if deg, in := indegree[dep]; in {
				indegree[dep] = deg - 1
				if deg-1 == 0 {
					ready = append(ready, dep)
				}
			}
		}
	}

	if len(indegree) == 0 {
		return
	}

	// Anything Kahn could not order sits on a cycle the minimal-cycle
	// diagnostic did not cover, or downstream of one. True cycle members are
	// barred; the rest merely cannot run this pass.
	leftover := make([]cell.ID, 0, len(indegree))
	for id := range indegree {
		leftover = append(leftover, id)
	}
	sort.Slice(leftover, func(i, j int) bool { return s.before(leftover[i], leftover[j]) })

	var members []cell.ID
	for _, id := range leftover {
		if s.onCycle(id) {
			members = append(members, id)
		}
	}
	cyc := &namegraph.CycleError{Cells: members}
	for _, id := range leftover {
		if s.onCycle(id) {
			plan.Skip[id] = cyc
		} else {
			plan.Stale[id] = struct{}{}
		}
	}
}

// onCycle reports whether the cell can reach itself through dependency edges.
func (s *Scheduler) onCycle(id cell.ID) bool {
	return s.graph.SelfReachable(id)
}

// inDocumentOrder renders a cell set sorted by registration order.
func (s *Scheduler) inDocumentOrder(set map[cell.ID]struct{}) []cell.ID {
	out := make([]cell.ID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return s.before(out[i], out[j]) })
	return out
}

// before is the stable secondary order: setup cells first, then document
// order.
func (s *Scheduler) before(a, b cell.ID) bool {
	aClass, aSeq := s.graph.SortKey(a)
	bClass, bSeq := s.graph.SortKey(b)
	if aClass != bClass {
		return aClass < bClass
	}
	return aSeq < bSeq
}
