package namegraph

import (
	"sort"

	"github.com/vk/cellgridgo/internal/cell"
)

// dependentsIdx returns the arena indices of cells that reference any name
// the cell at idx defines. A dynamic definer additionally feeds every reader
// of an unowned name. Caller holds the lock.
func (g *Graph) dependentsIdx(idx int) map[int]struct{} {
	e := &g.arena[idx]
	out := make(map[int]struct{})
	if e.disabled || !e.live {
		return out
	}
	for _, name := range e.defs {
		for rIdx := range g.readers[name] {
			if rIdx != idx {
				out[rIdx] = struct{}{}
			}
		}
	}
	if e.dynamic {
		for name, set := range g.readers {
			if len(g.claimants[name]) > 0 {
				continue
			}
			for rIdx := range set {
				if rIdx != idx {
					out[rIdx] = struct{}{}
				}
			}
		}
	}
	return out
}

// dependenciesIdx returns the arena indices of cells defining any name the
// cell at idx references. Conflicted names contribute every claimant: the
// referencer must wait on whichever survives. Caller holds the lock.
func (g *Graph) dependenciesIdx(idx int) map[int]struct{} {
	e := &g.arena[idx]
	out := make(map[int]struct{})
	if !e.live {
		return out
	}
	for _, name := range e.refs {
		set := g.claimants[name]
		if len(set) == 0 {
			for dIdx := range g.dynamic {
				if dIdx != idx {
					out[dIdx] = struct{}{}
				}
			}
			continue
		}
		for cIdx := range set {
			if cIdx != idx {
				out[cIdx] = struct{}{}
			}
		}
	}
	return out
}

// closure runs a BFS from the given start indices following next and returns
// every index reached, excluding the starts themselves. The cost is
// proportional to the subgraph actually reached. Caller holds the lock.
func (g *Graph) closure(starts []int, next func(int) map[int]struct{}) map[int]struct{} {
	seen := make(map[int]struct{}, len(starts))
	queue := append([]int(nil), starts...)
	for _, s := range starts {
		seen[s] = struct{}{}
	}
	out := make(map[int]struct{})
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for nIdx := range next(cur) {
			if _, ok := seen[nIdx]; ok {
				continue
			}
			seen[nIdx] = struct{}{}
			out[nIdx] = struct{}{}
			queue = append(queue, nIdx)
		}
	}
	return out
}

// Descendants returns every cell transitively referencing a name the given
// cell defines, in document order.
func (g *Graph) Descendants(id cell.ID) []cell.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.orderedIDs(g.closure([]int{idx}, g.dependentsIdx))
}

// Ancestors returns every cell transitively defining a name the given cell
// references, in document order.
func (g *Graph) Ancestors(id cell.ID) []cell.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.orderedIDs(g.closure([]int{idx}, g.dependenciesIdx))
}

// DirectDependents returns the cells one edge downstream of id, in document
// order.
func (g *Graph) DirectDependents(id cell.ID) []cell.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.orderedIDs(g.dependentsIdx(idx))
}

// DirectDependencies returns the cells one edge upstream of id, in document
// order.
func (g *Graph) DirectDependencies(id cell.ID) []cell.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.orderedIDs(g.dependenciesIdx(idx))
}

// orderedIDs renders an index set in document order. Caller holds the lock.
func (g *Graph) orderedIDs(set map[int]struct{}) []cell.ID {
	if len(set) == 0 {
		return nil
	}
	return g.sortedIDs(set)
}

// Cycle returns the minimal dependency cycle in the graph as an ordered cell
// list, or nil when the graph is acyclic. When several minimal cycles exist
// the one through the earliest-registered cell wins, so diagnostics are
// stable across calls. The verdict is cached until the next mutation, so
// planning over an unchanged graph pays for the walk once.
func (g *Graph) Cycle() *CycleError {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cycleCached {
		return g.cycle
	}

	var best []int
	for start := range g.arena {
		if !g.arena[start].live || g.arena[start].disabled {
			continue
		}
		loop := g.shortestLoop(start)
		if loop == nil {
			continue
		}
		if best == nil || len(loop) < len(best) {
			best = loop
		}
	}
	g.cycleCached = true
	if best == nil {
		g.cycle = nil
		return nil
	}

	// Rotate so the earliest-registered member leads.
	minAt := 0
	for i, idx := range best {
		if idx < best[minAt] {
			minAt = i
		}
	}
	ids := make([]cell.ID, 0, len(best))
	for i := range best {
		ids = append(ids, g.arena[best[(minAt+i)%len(best)]].id)
	}
	g.cycle = &CycleError{Cells: ids}
	return g.cycle
}

// shortestLoop BFSes from start over dependency edges and reconstructs the
// shortest path leading back to start, if one exists. Caller holds the lock.
func (g *Graph) shortestLoop(start int) []int {
	parent := map[int]int{start: -1}
	queue := []int{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		nexts := g.dependentsIdx(cur)
		// Deterministic expansion order.
		ordered := make([]int, 0, len(nexts))
		for nIdx := range nexts {
			ordered = append(ordered, nIdx)
		}
		sort.Ints(ordered)
		for _, nIdx := range ordered {
			if nIdx == start {
				loop := []int{start}
				for p := cur; p != -1; p = parent[p] {
					if p != start {
						loop = append(loop, p)
					}
				}
				// Path was collected backwards from cur; restore edge order.
				for i, j := 1, len(loop)-1; i < j; i, j = i+1, j-1 {
					loop[i], loop[j] = loop[j], loop[i]
				}
				return loop
			}
			if _, seen := parent[nIdx]; seen {
				continue
			}
			parent[nIdx] = cur
			queue = append(queue, nIdx)
		}
	}
	return nil
}

// FormerDependents returns the cells that would depend on id were it not
// disabled: the readers of its orphaned defs plus everything downstream of
// them, in document order. A disabled cell has no live dependents, but those
// readers still go stale when it is toggled.
func (g *Graph) FormerDependents(id cell.ID) []cell.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.index[id]
	if !ok {
		return nil
	}

	seeds := make(map[int]struct{})
	var starts []int
	for _, name := range g.arena[idx].defs {
		if len(g.claimants[name]) > 0 {
			continue // Another live cell owns the name; its readers are fine.
		}
		for rIdx := range g.readers[name] {
			if rIdx == idx {
				continue
			}
			if _, seen := seeds[rIdx]; !seen {
				seeds[rIdx] = struct{}{}
				starts = append(starts, rIdx)
			}
		}
	}

	out := g.closure(starts, g.dependentsIdx)
	for sIdx := range seeds {
		out[sIdx] = struct{}{}
	}
	return g.orderedIDs(out)
}

// SelfReachable reports whether the cell can reach itself through dependency
// edges, i.e. whether it sits on some cycle.
func (g *Graph) SelfReachable(id cell.ID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	start, ok := g.index[id]
	if !ok {
		return false
	}
	seen := map[int]struct{}{start: {}}
	queue := []int{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for nIdx := range g.dependentsIdx(cur) {
			if nIdx == start {
				return true
			}
			if _, ok := seen[nIdx]; ok {
				continue
			}
			seen[nIdx] = struct{}{}
			queue = append(queue, nIdx)
		}
	}
	return false
}

// InCycle reports whether the cell participates in the minimal cycle, if any.
func (g *Graph) InCycle(id cell.ID, cyc *CycleError) bool {
	if cyc == nil {
		return false
	}
	for _, member := range cyc.Cells {
		if member == id {
			return true
		}
	}
	return false
}
