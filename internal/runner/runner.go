package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/ctxlog"
	"github.com/vk/cellgridgo/internal/events"
	"github.com/vk/cellgridgo/internal/extract"
	"github.com/vk/cellgridgo/internal/namegraph"
	"github.com/vk/cellgridgo/internal/namespace"
	"github.com/vk/cellgridgo/internal/scheduler"
)

// Runner executes plans sequentially against the shared namespace. Exactly
// one cell body runs at a time; the namespace is the runner's alone for the
// duration of a plan.
type Runner struct {
	ns     *namespace.Table
	graph  *namegraph.Graph
	sink   events.Sink
	states States

	// cellTimeout bounds one cell's execution. Zero means unbounded. The
	// bound is enforced by issuing cancellation at safe points, never by
	// killing execution asynchronously.
	cellTimeout time.Duration
}

// New creates a runner. sink may be nil when no one observes the status
// stream; states may be nil when reactive values are unused.
func New(ns *namespace.Table, graph *namegraph.Graph, sink events.Sink, states States, cellTimeout time.Duration) *Runner {
	return &Runner{ns: ns, graph: graph, sink: sink, states: states, cellTimeout: cellTimeout}
}

// Run executes the plan's runnable cells in order. Skipped cells surface
// their structural diagnostic, stale cells are marked without touching their
// last-good defs, and a runtime failure demotes the failing cell's in-plan
// descendants to stale instead of running them.
//
// Cancellation is cooperative: the context is checked between cells and
// between a cell's attribute evaluations. On interrupt the current cell ends
// in error and every not-yet-started cell is discarded as stale, leaving the
// graph consistent for the next schedule.
func (r *Runner) Run(ctx context.Context, plan *scheduler.Plan, cells map[cell.ID]*cell.Cell) error {
	logger := ctxlog.FromContext(ctx).With("plan_id", plan.ID)
	logger.Debug("Runner starting plan.", "runnable", len(plan.Runnable), "skip", len(plan.Skip), "stale", len(plan.Stale))

	r.announceSkips(plan, cells)
	for _, id := range plan.Runnable {
		r.transition(plan, cells[id], cell.StatusQueued, nil)
	}

	demoted := make(map[cell.ID]struct{})
	var failures []error

	for i, id := range plan.Runnable {
		c := cells[id]

		if err := ctx.Err(); err != nil {
			r.abort(plan, cells, plan.Runnable[i:], logger)
			return fmt.Errorf("plan %s interrupted: %w", plan.ID, err)
		}

		if _, ok := demoted[id]; ok {
			logger.Debug("Cell demoted to stale by upstream failure.", "cell_id", id)
			r.transition(plan, c, cell.StatusStale, nil)
			continue
		}

		r.transition(plan, c, cell.StatusRunning, nil)
		logger.Debug("Executing cell.", "cell_id", id)

		err := r.executeCell(ctx, c)
		if err == nil {
			c.SetErr(nil)
			r.transition(plan, c, cell.StatusIdle, nil)
			logger.Debug("Cell finished.", "cell_id", id)
			continue
		}

		var interrupted *InterruptedError
		if errors.As(err, &interrupted) {
			c.SetErr(err)
			r.transition(plan, c, cell.StatusError, err)
			r.abort(plan, cells, plan.Runnable[i+1:], logger)
			return fmt.Errorf("plan %s interrupted: %w", plan.ID, err)
		}

		logger.Error("Cell execution failed.", "cell_id", id, "error", err)
		c.SetErr(err)
		r.transition(plan, c, cell.StatusError, err)
		failures = append(failures, err)

		// Downstream cells must not run on top of a failed ancestor. Their
		// own defs stay untouched, preserving last-good values.
		for _, desc := range r.graph.Descendants(id) {
			demoted[desc] = struct{}{}
		}
	}

	if len(failures) > 0 {
		ids := make([]string, len(failures))
		for i, err := range failures {
			var rte *RuntimeExecutionError
			if errors.As(err, &rte) {
				ids[i] = string(rte.Cell)
			}
		}
		return fmt.Errorf("execution failed for %s: %w", strings.Join(ids, ", "), failures[0])
	}
	logger.Debug("Runner finished plan.")
	return nil
}

// announceSkips emits the structural outcomes decided at schedule time, in
// document order so the stream is deterministic.
func (r *Runner) announceSkips(plan *scheduler.Plan, cells map[cell.ID]*cell.Cell) {
	skipIDs := make([]cell.ID, 0, len(plan.Skip))
	for id := range plan.Skip {
		skipIDs = append(skipIDs, id)
	}
	sort.Slice(skipIDs, func(i, j int) bool { return r.seq(skipIDs[i]) < r.seq(skipIDs[j]) })
	for _, id := range skipIDs {
		c := cells[id]
		if c == nil {
			continue
		}
		reason := plan.Skip[id]
		if reason == nil {
			r.transition(plan, c, cell.StatusDisabled, nil)
			continue
		}
		c.SetErr(reason)
		r.transition(plan, c, cell.StatusError, reason)
	}

	staleIDs := make([]cell.ID, 0, len(plan.Stale))
	for id := range plan.Stale {
		staleIDs = append(staleIDs, id)
	}
	sort.Slice(staleIDs, func(i, j int) bool { return r.seq(staleIDs[i]) < r.seq(staleIDs[j]) })
	for _, id := range staleIDs {
		if c := cells[id]; c != nil {
			r.transition(plan, c, cell.StatusStale, nil)
		}
	}
}

// abort marks every not-yet-started cell of an interrupted plan stale. Their
// inputs may have moved under them, so their outputs are outdated, but none
// of them execute in this pass.
func (r *Runner) abort(plan *scheduler.Plan, cells map[cell.ID]*cell.Cell, remaining []cell.ID, logger *slog.Logger) {
	logger.Warn("Plan interrupted, discarding remaining cells.", "discarded", len(remaining))
	for _, id := range remaining {
		if c := cells[id]; c != nil && c.Status() == cell.StatusQueued {
			r.transition(plan, c, cell.StatusStale, nil)
		}
	}
}

// executeCell evaluates one cell body against the freshest namespace values.
// Bindings are read immediately before execution, never earlier, so a cell
// always observes what its ancestors just wrote.
func (r *Runner) executeCell(ctx context.Context, c *cell.Cell) error {
	cellCtx := ctx
	if r.cellTimeout > 0 {
		var cancel context.CancelFunc
		cellCtx, cancel = context.WithTimeout(ctx, r.cellTimeout)
		defer cancel()
	}

	vars, _ := r.ns.Snapshot()
	pending := make(map[string]cty.Value)
	funcs := r.cellFunctions(c.ID(), pending)

	for _, attr := range cellAttributes(c.Body) {
		// Attribute boundaries are the cell's cooperative safe points.
		if err := cellCtx.Err(); err != nil {
			if ctx.Err() != nil {
				return &InterruptedError{Cell: c.ID()}
			}
			return &RuntimeExecutionError{Cell: c.ID(), Err: fmt.Errorf("cell timed out after %s: %w", r.cellTimeout, err)}
		}

		evalCtx := &hcl.EvalContext{
			Variables: make(map[string]cty.Value, len(vars)+len(pending)),
			Functions: funcs,
		}
		for name, v := range vars {
			evalCtx.Variables[name] = v
		}
		for name, v := range pending {
			evalCtx.Variables[name] = v
		}

		val, diags := attr.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return &RuntimeExecutionError{Cell: c.ID(), Diags: diags}
		}
		pending[attr.Name] = val
	}

	// Success is the only path that touches the namespace. Names the cell
	// reads without owning (read-before-write) evaluate locally but are
	// never committed; ownership stays with the upstream definer.
	for _, name := range c.Refs {
		delete(pending, name)
	}
	r.ns.SetAll(pending)
	return nil
}

// cellAttributes returns every attribute of the cell body, setup-block ones
// included, in source order.
func cellAttributes(body *hclsyntax.Body) []*hclsyntax.Attribute {
	attrs := extract.OrderedAttributes(body)
	for _, block := range body.Blocks {
		attrs = append(attrs, extract.OrderedAttributes(block.Body)...)
	}
	sort.SliceStable(attrs, func(i, j int) bool {
		return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
	})
	return attrs
}

// transition updates a cell's status and emits it on the stream in the same
// breath, so observers see transitions in execution order.
func (r *Runner) transition(plan *scheduler.Plan, c *cell.Cell, status cell.Status, err error) {
	c.SetStatus(status)
	if r.sink != nil {
		r.sink.Emit(events.Event{PlanID: plan.ID, Cell: c.ID(), Status: status, Err: err})
	}
}

func (r *Runner) seq(id cell.ID) int {
	seq, _ := r.graph.Seq(id)
	return seq
}
