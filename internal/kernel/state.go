package kernel

import (
	"context"
	"fmt"
	"sync"

	"github.com/zclconf/go-cty/cty"
	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/scheduler"
)

// stateRegistry backs the state() builtin: named reactive values, each owned
// by the cell that first evaluated it. It has its own lock because the
// runner calls Register mid-plan while the kernel lock is held.
type stateRegistry struct {
	mu     sync.Mutex
	values map[string]stateEntry
}

type stateEntry struct {
	owner cell.ID
	value cty.Value
}

func newStateRegistry() *stateRegistry {
	return &stateRegistry{values: make(map[string]stateEntry)}
}

// Register implements runner.States. The first cell to evaluate a state name
// owns it; a second cell evaluating the same name is a conflict, because two
// owners would make SetState's re-run target ambiguous.
func (r *stateRegistry) Register(owner cell.ID, name string, def cty.Value) (cty.Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.values[name]
	if !ok {
		r.values[name] = stateEntry{owner: owner, value: def}
		return def, nil
	}
	if entry.owner != owner {
		return cty.NilVal, fmt.Errorf("state %q is owned by cell %q", name, entry.owner)
	}
	return entry.value, nil
}

// set overwrites a registered value and returns its owner.
func (r *stateRegistry) set(name string, value cty.Value) (cell.ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.values[name]
	if !ok {
		return "", false
	}
	entry.value = value
	r.values[name] = entry
	return entry.owner, true
}

// dropOwner forgets every value a deleted cell owned, so a later cell can
// re-register the names fresh.
func (r *stateRegistry) dropOwner(owner cell.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, entry := range r.values {
		if entry.owner == owner {
			delete(r.values, name)
		}
	}
}

// UnknownStateError rejects a SetState on a name no cell has registered.
type UnknownStateError struct {
	Name string
}

// Error implements the error interface.
func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("no cell has registered state %q", e.Name)
}

// SetState mutates a reactive value registered via the state() builtin and
// re-executes its owning cell and everything downstream. The owning cell
// observes the new value on its next evaluation.
func (k *Kernel) SetState(ctx context.Context, name string, value cty.Value) (*scheduler.Plan, error) {
	owner, ok := k.states.set(name, value)
	if !ok {
		return nil, &UnknownStateError{Name: name}
	}
	return k.NotifyValueChanged(ctx, owner)
}
