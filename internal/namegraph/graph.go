package namegraph

import (
	"sort"
	"sync"

	"github.com/vk/cellgridgo/internal/cell"
)

// entry is a single arena slot. Slots are never reused: a deleted cell's slot
// stays behind with live=false so that arena indices remain stable document
// order for every cell ever registered.
type entry struct {
	id       cell.ID
	defs     []string
	refs     []string
	dynamic  bool
	disabled bool
	live     bool
	setup    bool

	// needsRevalidation is set when a name this cell references was orphaned
	// by an unregister. It is cleared when the kernel next revalidates.
	needsRevalidation bool
}

// Graph is the dependency graph over cells. All operations are
// concurrency-safe, though the kernel serializes mutation through its run
// loop anyway.
type Graph struct {
	mu sync.RWMutex

	arena []entry
	index map[cell.ID]int

	// claimants maps a name to the live, non-disabled cells binding it.
	// A name with more than one claimant is in conflict.
	claimants map[string]map[int]struct{}
	// readers maps a name to the live cells referencing it.
	readers map[string]map[int]struct{}
	// dynamic holds live, non-disabled cells that may bind names not
	// statically visible. They count as owners of any unowned name.
	dynamic map[int]struct{}

	// cycle caches the minimal-cycle verdict between mutations, so repeated
	// planning over an unchanged graph never re-walks it.
	cycleCached bool
	cycle       *CycleError
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		index:     make(map[cell.ID]int),
		claimants: make(map[string]map[int]struct{}),
		readers:   make(map[string]map[int]struct{}),
		dynamic:   make(map[int]struct{}),
	}
}

// Register inserts or updates a cell's bindings and recomputes only the
// indices touching that cell. It returns the conflicts the registration
// creates or joins; the cell is flagged conflicted, not rejected, so the
// caller still owns a consistent graph.
func (g *Graph) Register(id cell.ID, defs, refs []string, dynamic, setup bool) []*MultipleDefinitionError {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx, ok := g.index[id]
	if !ok {
		idx = len(g.arena)
		g.arena = append(g.arena, entry{id: id})
		g.index[id] = idx
	} else {
		g.dropNames(idx)
	}

	e := &g.arena[idx]
	e.live = true
	e.defs = append([]string(nil), defs...)
	e.refs = append([]string(nil), refs...)
	e.dynamic = dynamic
	e.setup = setup
	e.needsRevalidation = false
	g.claimNames(idx)
	g.cycleCached = false

	var conflicts []*MultipleDefinitionError
	for _, name := range defs {
		if err := g.conflictOn(name); err != nil {
			conflicts = append(conflicts, err)
		}
	}
	return conflicts
}

// Unregister removes a cell and releases its name ownership. Every live cell
// referencing a now-orphaned name is flagged for revalidation; it will report
// an undefined reference until another cell rebinds the name.
func (g *Graph) Unregister(id cell.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx, ok := g.index[id]
	if !ok {
		return
	}

	g.dropNames(idx)
	for _, name := range g.arena[idx].defs {
		if len(g.claimants[name]) > 0 {
			continue // Another claimant keeps the name bound.
		}
		for rIdx := range g.readers[name] {
			g.arena[rIdx].needsRevalidation = true
		}
	}

	e := &g.arena[idx]
	e.live = false
	e.defs = nil
	e.refs = nil
	e.dynamic = false
	delete(g.index, id)
	g.cycleCached = false
}

// SetDisabled toggles a cell's disabled flag. A disabled cell owns no names,
// so disabling can resolve a conflict or orphan a name, and enabling can
// recreate either.
func (g *Graph) SetDisabled(id cell.ID, disabled bool) []*MultipleDefinitionError {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx, ok := g.index[id]
	if !ok || g.arena[idx].disabled == disabled {
		return nil
	}
	g.cycleCached = false

	e := &g.arena[idx]
	if disabled {
		for _, name := range e.defs {
			g.unclaim(name, idx)
		}
		delete(g.dynamic, idx)
		e.disabled = true
		return nil
	}

	e.disabled = false
	for _, name := range e.defs {
		g.claim(name, idx)
	}
	if e.dynamic {
		g.dynamic[idx] = struct{}{}
	}
	var conflicts []*MultipleDefinitionError
	for _, name := range e.defs {
		if err := g.conflictOn(name); err != nil {
			conflicts = append(conflicts, err)
		}
	}
	return conflicts
}

// claimNames indexes a cell's defs, refs and dynamic flag.
func (g *Graph) claimNames(idx int) {
	e := &g.arena[idx]
	if !e.disabled {
		for _, name := range e.defs {
			g.claim(name, idx)
		}
		if e.dynamic {
			g.dynamic[idx] = struct{}{}
		}
	}
	for _, name := range e.refs {
		set, ok := g.readers[name]
		if !ok {
			set = make(map[int]struct{})
			g.readers[name] = set
		}
		set[idx] = struct{}{}
	}
}

// dropNames removes a cell from every name index it appears in.
func (g *Graph) dropNames(idx int) {
	e := &g.arena[idx]
	for _, name := range e.defs {
		g.unclaim(name, idx)
	}
	for _, name := range e.refs {
		if set, ok := g.readers[name]; ok {
			delete(set, idx)
			if len(set) == 0 {
				delete(g.readers, name)
			}
		}
	}
	delete(g.dynamic, idx)
}

func (g *Graph) claim(name string, idx int) {
	set, ok := g.claimants[name]
	if !ok {
		set = make(map[int]struct{})
		g.claimants[name] = set
	}
	set[idx] = struct{}{}
}

func (g *Graph) unclaim(name string, idx int) {
	if set, ok := g.claimants[name]; ok {
		delete(set, idx)
		if len(set) == 0 {
			delete(g.claimants, name)
		}
	}
}

// conflictOn reports the conflict on name, if any. Caller holds the lock.
func (g *Graph) conflictOn(name string) *MultipleDefinitionError {
	set := g.claimants[name]
	if len(set) < 2 {
		return nil
	}
	return &MultipleDefinitionError{Name: name, Cells: g.sortedIDs(set)}
}

// sortedIDs renders a set of arena indices as cell IDs in document order.
// Caller holds the lock.
func (g *Graph) sortedIDs(set map[int]struct{}) []cell.ID {
	idxs := make([]int, 0, len(set))
	for idx := range set {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	ids := make([]cell.ID, len(idxs))
	for i, idx := range idxs {
		ids[i] = g.arena[idx].id
	}
	return ids
}

// Owner returns the unique live cell binding name. It reports false when the
// name is unbound or in conflict.
func (g *Graph) Owner(name string) (cell.ID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set := g.claimants[name]
	if len(set) != 1 {
		return "", false
	}
	for idx := range set {
		return g.arena[idx].id, true
	}
	return "", false
}

// Conflicted reports whether any of the cell's defs collide with another live
// cell's defs.
func (g *Graph) Conflicted(id cell.ID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.index[id]
	if !ok {
		return false
	}
	for _, name := range g.arena[idx].defs {
		if len(g.claimants[name]) > 1 {
			return true
		}
	}
	return false
}

// Conflicts returns every current multiple-definition diagnostic, ordered by
// name for determinism.
func (g *Graph) Conflicts() []*MultipleDefinitionError {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var names []string
	for name, set := range g.claimants {
		if len(set) > 1 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]*MultipleDefinitionError, 0, len(names))
	for _, name := range names {
		out = append(out, &MultipleDefinitionError{Name: name, Cells: g.sortedIDs(g.claimants[name])})
	}
	return out
}

// UndefinedRefs returns the names the cell references that no live cell
// defines, in the cell's own reference order. A dynamic definer elsewhere in
// the notebook suppresses the diagnostic: the name may exist at runtime. So
// does a disabled cell still declaring the name; that reference is dormant,
// not broken.
func (g *Graph) UndefinedRefs(id cell.ID) []*UndefinedReferenceError {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.index[id]
	if !ok {
		return nil
	}
	var out []*UndefinedReferenceError
	for _, name := range g.arena[idx].refs {
		if len(g.claimants[name]) > 0 {
			continue
		}
		if g.dynamicOwnersFor(idx) {
			continue
		}
		if g.dormantOwnerFor(name, idx) {
			continue
		}
		out = append(out, &UndefinedReferenceError{Cell: id, Name: name})
	}
	return out
}

// DormantRefs returns the names the cell references whose only registered
// definer is currently disabled. Such a reference is not an error: the cell
// keeps its last-good output until the definer is re-enabled.
func (g *Graph) DormantRefs(id cell.ID) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.index[id]
	if !ok {
		return nil
	}
	var out []string
	for _, name := range g.arena[idx].refs {
		if len(g.claimants[name]) > 0 {
			continue
		}
		if g.dynamicOwnersFor(idx) {
			continue
		}
		if g.dormantOwnerFor(name, idx) {
			out = append(out, name)
		}
	}
	return out
}

// dynamicOwnersFor reports whether a dynamic definer other than idx exists.
// Caller holds the lock.
func (g *Graph) dynamicOwnersFor(idx int) bool {
	for dIdx := range g.dynamic {
		if dIdx != idx {
			return true
		}
	}
	return false
}

// dormantOwnerFor reports whether a live but disabled cell other than idx
// still declares name among its defs. Caller holds the lock.
func (g *Graph) dormantOwnerFor(name string, idx int) bool {
	for i := range g.arena {
		if i == idx || !g.arena[i].live || !g.arena[i].disabled {
			continue
		}
		for _, def := range g.arena[i].defs {
			if def == name {
				return true
			}
		}
	}
	return false
}

// NeedsRevalidation drains the set of cells flagged by earlier unregisters.
func (g *Graph) NeedsRevalidation() []cell.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []cell.ID
	for idx := range g.arena {
		if g.arena[idx].live && g.arena[idx].needsRevalidation {
			g.arena[idx].needsRevalidation = false
			out = append(out, g.arena[idx].id)
		}
	}
	return out
}

// Seq returns the cell's stable document order.
func (g *Graph) Seq(id cell.ID) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.index[id]
	return idx, ok
}

// SortKey returns the cell's scheduling tie-break key. Setup cells sort
// before everything else; within each class, document order wins.
func (g *Graph) SortKey(id cell.ID) (int, int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.index[id]
	if !ok {
		return 1, int(^uint(0) >> 1)
	}
	if g.arena[idx].setup {
		return 0, idx
	}
	return 1, idx
}

// Contains reports whether the cell is currently registered.
func (g *Graph) Contains(id cell.ID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.index[id]
	return ok
}

// Disabled reports whether the cell is registered and disabled.
func (g *Graph) Disabled(id cell.ID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if idx, ok := g.index[id]; ok {
		return g.arena[idx].disabled
	}
	return false
}

// All returns every live cell in document order.
func (g *Graph) All() []cell.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]cell.ID, 0, len(g.index))
	for idx := range g.arena {
		if g.arena[idx].live {
			out = append(out, g.arena[idx].id)
		}
	}
	return out
}

// Defs returns the cell's defs as last registered.
func (g *Graph) Defs(id cell.ID) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if idx, ok := g.index[id]; ok {
		return append([]string(nil), g.arena[idx].defs...)
	}
	return nil
}

// Refs returns the cell's refs as last registered.
func (g *Graph) Refs(id cell.ID) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if idx, ok := g.index[id]; ok {
		return append([]string(nil), g.arena[idx].refs...)
	}
	return nil
}
