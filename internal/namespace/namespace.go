// Package namespace holds the notebook's single global variable table.
//
// The table is a single-writer resource: during a plan's execution it is
// exclusively owned by the runner, and every mutation is serialized through
// it. External collaborators never see the live map; between plans they take
// a versioned snapshot, so a reader can tell whether anything ran since its
// last look without comparing values.
package namespace

import (
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// Table is the shared namespace of a single notebook.
type Table struct {
	mu      sync.RWMutex
	values  map[string]cty.Value
	version uint64
}

// New creates an empty namespace table.
func New() *Table {
	return &Table{values: make(map[string]cty.Value)}
}

// Get returns the current value bound to name.
func (t *Table) Get(name string) (cty.Value, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[name]
	return v, ok
}

// Set binds name to value and bumps the table version.
func (t *Table) Set(name string, value cty.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[name] = value
	t.version++
}

// SetAll binds every entry of values in one version bump, so a successful
// cell's defs land atomically from a snapshot reader's point of view.
func (t *Table) SetAll(values map[string]cty.Value) {
	if len(values) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, value := range values {
		t.values[name] = value
	}
	t.version++
}

// Delete removes a binding. Removing an absent name is a no-op and does not
// bump the version.
func (t *Table) Delete(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.values[name]; !ok {
		return
	}
	delete(t.values, name)
	t.version++
}

// Version returns the table's current version.
func (t *Table) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Snapshot returns a copy of the table and the version it reflects. The copy
// is the caller's to keep; later runs never mutate it.
func (t *Table) Snapshot() (map[string]cty.Value, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]cty.Value, len(t.values))
	for name, value := range t.values {
		out[name] = value
	}
	return out, t.version
}
