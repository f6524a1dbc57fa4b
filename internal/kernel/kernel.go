package kernel

import (
	"context"
	"sync"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/ctxlog"
	"github.com/vk/cellgridgo/internal/events"
	"github.com/vk/cellgridgo/internal/extract"
	"github.com/vk/cellgridgo/internal/namegraph"
	"github.com/vk/cellgridgo/internal/namespace"
	"github.com/vk/cellgridgo/internal/runner"
	"github.com/vk/cellgridgo/internal/scheduler"
)

// Options configures a Kernel. The zero value is usable.
type Options struct {
	// Extractor overrides the default HCL extractor, mainly for tests.
	Extractor extract.Extractor
	// CellTimeout bounds each cell's execution. Zero means no limit.
	CellTimeout time.Duration
	// EventBuffer sizes the status stream. Zero picks a default.
	EventBuffer int
	// Sink, when set, receives status events in addition to the stream.
	Sink events.Sink
}

// Kernel owns a notebook: the registered cells, the name dependency graph,
// the shared namespace and the machinery that re-executes affected cells on
// change. Its methods are safe for concurrent callers; mutation and plan
// execution are serialized by a single lock so the graph and namespace have
// exactly one writer at a time.
type Kernel struct {
	mu sync.Mutex

	extractor extract.Extractor
	graph     *namegraph.Graph
	ns        *namespace.Table
	sched     *scheduler.Scheduler
	runner    *runner.Runner
	states    *stateRegistry
	stream    *events.Stream

	cells   map[cell.ID]*cell.Cell
	nextSeq int
	setupID cell.ID

	// cancel interrupts the in-flight plan, if any. Guarded by cancelMu so
	// Interrupt never waits on the main lock a running plan is holding.
	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// New creates an empty kernel.
func New(opts Options) *Kernel {
	k := &Kernel{
		extractor: opts.Extractor,
		graph:     namegraph.New(),
		ns:        namespace.New(),
		states:    newStateRegistry(),
		stream:    events.NewStream(opts.EventBuffer),
		cells:     make(map[cell.ID]*cell.Cell),
	}
	if k.extractor == nil {
		k.extractor = extract.New()
	}
	k.sched = scheduler.New(k.graph, cellStatuses{cells: k.cells})
	var sink events.Sink = k.stream
	if opts.Sink != nil {
		sink = events.Tee{k.stream, opts.Sink}
	}
	k.runner = runner.New(k.ns, k.graph, sink, k.states, opts.CellTimeout)
	return k
}

// AddOrUpdateCell registers new cell source under a stable id, or replaces
// the source of an already registered cell. Registration never triggers
// execution; call RequestRun to execute. On a parse error the previous
// registration, if any, stays in force and only the cell's visible status
// changes.
func (k *Kernel) AddOrUpdateCell(ctx context.Context, id cell.ID, source []byte) RegistrationResult {
	k.mu.Lock()
	defer k.mu.Unlock()
	logger := ctxlog.FromContext(ctx)

	res, err := k.extractor.Extract(source, string(id))
	if err != nil {
		parseErr, ok := err.(*extract.ParseError)
		if !ok {
			return RegistrationResult{Outcome: RegistrationRejected, Err: err}
		}
		logger.Debug("Cell source failed to parse.", "cell", id, "error", parseErr)
		if c, exists := k.cells[id]; exists {
			c.SetErr(parseErr)
			k.announce(c, cell.StatusError, parseErr)
		}
		return RegistrationResult{Outcome: RegistrationParseError, ParseErr: parseErr}
	}

	if res.Setup && k.setupID != "" && k.setupID != id {
		rej := &DuplicateSetupError{Existing: k.setupID, Rejected: id}
		return RegistrationResult{Outcome: RegistrationRejected, Err: rej}
	}

	c, exists := k.cells[id]
	if !exists {
		c = cell.New(id, k.nextSeq)
		k.nextSeq++
		k.cells[id] = c
	}
	c.Source = source
	c.Body = res.Body
	c.Defs = res.Defs
	c.Refs = res.Refs
	c.DynamicDefs = res.DynamicDefs
	c.Setup = res.Setup
	c.SetErr(nil)
	c.SetStatus(cell.StatusIdle)
	if res.Setup {
		k.setupID = id
	} else if k.setupID == id {
		k.setupID = ""
	}

	conflicts := k.graph.Register(id, res.Defs, res.Refs, res.DynamicDefs, res.Setup)
	logger.Debug("Registered cell.",
		"cell", id,
		"defs", len(res.Defs),
		"refs", len(res.Refs),
		"dynamic", res.DynamicDefs,
		"conflicts", len(conflicts))
	if len(conflicts) > 0 {
		return RegistrationResult{Outcome: RegistrationConflict, Conflicts: conflicts}
	}
	return RegistrationResult{Outcome: RegistrationOK}
}

// DeleteCell removes a cell. Its namespace bindings and reactive values are
// dropped and its former dependents re-execute against the now missing
// names, surfacing undefined references where nothing else owns them.
func (k *Kernel) DeleteCell(ctx context.Context, id cell.ID) (*scheduler.Plan, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	c, exists := k.cells[id]
	if !exists {
		return &scheduler.Plan{}, nil
	}
	dependents := k.graph.Descendants(id)

	for _, name := range c.Defs {
		if owner, ok := k.graph.Owner(name); ok && owner == id {
			k.ns.Delete(name)
		}
	}
	k.states.dropOwner(id)
	k.graph.Unregister(id)
	delete(k.cells, id)
	if k.setupID == id {
		k.setupID = ""
	}
	ctxlog.FromContext(ctx).Debug("Deleted cell.", "cell", id, "dependents", len(dependents))

	return k.runPlanLocked(ctx, dependents)
}

// SetCellDisabled toggles a cell's disabled flag and re-plans around it.
// Disabling releases the cell's name ownership, which may resolve a conflict
// or orphan a dependent; enabling reclaims it.
func (k *Kernel) SetCellDisabled(ctx context.Context, id cell.ID, disabled bool) (*scheduler.Plan, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	c, exists := k.cells[id]
	if !exists {
		return &scheduler.Plan{}, nil
	}
	if c.Disabled == disabled {
		return &scheduler.Plan{}, nil
	}
	// Dependents are collected on both sides of the toggle: disabling must
	// dirty the readers that are about to lose the names, enabling the
	// readers that just gained them.
	changed := append([]cell.ID{id}, k.graph.Descendants(id)...)
	c.Disabled = disabled
	k.graph.SetDisabled(id, disabled)
	changed = append(changed, k.graph.Descendants(id)...)
	ctxlog.FromContext(ctx).Debug("Toggled cell.", "cell", id, "disabled", disabled)

	return k.runPlanLocked(ctx, changed)
}

// Snapshot returns a copy of the current namespace and its version. Between
// plans the snapshot is stable; during a plan it reflects the latest
// committed cell.
func (k *Kernel) Snapshot() (map[string]cty.Value, uint64) {
	return k.ns.Snapshot()
}

// Cell returns the registered cell for id, if any. The returned cell's
// status and error accessors are safe to call concurrently with a running
// plan.
func (k *Kernel) Cell(id cell.ID) (*cell.Cell, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	c, ok := k.cells[id]
	return c, ok
}

// Statuses returns the current status of every registered cell.
func (k *Kernel) Statuses() map[cell.ID]cell.Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make(map[cell.ID]cell.Status, len(k.cells))
	for id, c := range k.cells {
		out[id] = c.Status()
	}
	return out
}

// cellStatuses adapts the kernel's cell map to the scheduler's view of
// execution history. The scheduler only runs under the kernel lock, so the
// map read is safe.
type cellStatuses struct {
	cells map[cell.ID]*cell.Cell
}

func (s cellStatuses) Status(id cell.ID) (cell.Status, bool) {
	c, ok := s.cells[id]
	if !ok {
		return cell.StatusIdle, false
	}
	return c.Status(), true
}

// announce emits a status transition outside any plan. uuid.Nil marks it as
// unplanned.
func (k *Kernel) announce(c *cell.Cell, status cell.Status, err error) {
	c.SetStatus(status)
	k.stream.Emit(events.Event{Cell: c.ID(), Status: status, Err: err})
}
