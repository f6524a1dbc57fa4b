package cell

import (
	"sync"
	"sync/atomic"

	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// ID is the stable, client-supplied identity of a cell. It survives edits;
// only deletion retires it.
type ID string

// Cell is a single independently-editable unit of code in a notebook. The
// kernel owns one Cell per registered ID and mutates it in place as the cell
// is edited and re-executed.
type Cell struct {
	id ID

	// Seq is the registration/document order of the cell. It is the stable
	// secondary sort key used to break scheduling ties, so it must never
	// change across edits of the same cell.
	Seq int

	// Source is the cell's current source text.
	Source []byte
	// Body is the compiled form of Source.
	Body *hclsyntax.Body

	// Defs and Refs are the names the cell binds at top level and the names
	// it reads without locally binding, as computed by the extractor.
	Defs []string
	Refs []string

	// DynamicDefs marks a cell that may bind names not statically visible.
	// The graph treats such a cell as a potential owner of any otherwise
	// unowned name.
	DynamicDefs bool

	// Setup marks the distinguished always-first cell.
	Setup bool

	// Disabled cells never execute and own no names.
	Disabled bool

	// state is the cell's current execution status, managed atomically so
	// that status readers (healthcheck, snapshots) never block the runner.
	state atomic.Int32

	mu      sync.Mutex
	lastErr error
}

// New creates an idle cell with the given identity and registration order.
func New(id ID, seq int) *Cell {
	return &Cell{id: id, Seq: seq}
}

// ID returns the cell's stable identity.
func (c *Cell) ID() ID {
	return c.id
}

// Status atomically retrieves the cell's current status.
func (c *Cell) Status() Status {
	return Status(c.state.Load())
}

// SetStatus atomically sets the cell's current status.
func (c *Cell) SetStatus(s Status) {
	c.state.Store(int32(s))
}

// Err returns the last error recorded for the cell, or nil.
func (c *Cell) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// SetErr records the cell's last error. Pass nil to clear it.
func (c *Cell) SetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
}
