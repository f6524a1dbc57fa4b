package kernel

import (
	"context"

	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/ctxlog"
	"github.com/vk/cellgridgo/internal/events"
	"github.com/vk/cellgridgo/internal/scheduler"
)

// RequestRun plans and executes the given cells plus everything downstream
// of them. With no ids it re-plans the whole notebook. The returned plan
// reflects what was attempted; the error is the first cell failure, or nil
// when every runnable cell succeeded.
func (k *Kernel) RequestRun(ctx context.Context, ids ...cell.ID) (*scheduler.Plan, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(ids) == 0 {
		ids = k.graph.All()
	}
	return k.runPlanLocked(ctx, ids)
}

// NotifyValueChanged reports that something a cell owns changed outside a
// plan and re-executes its dependents. The cell itself re-runs too, so its
// bindings are recomputed before anything reads them.
func (k *Kernel) NotifyValueChanged(ctx context.Context, owner cell.ID) (*scheduler.Plan, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.runPlanLocked(ctx, []cell.ID{owner})
}

// Interrupt cancels the in-flight plan, if any. The running cell stops at
// its next evaluation boundary; queued cells are marked stale. Safe to call
// from any goroutine, including event stream consumers.
func (k *Kernel) Interrupt() {
	k.cancelMu.Lock()
	cancel := k.cancel
	k.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Events returns the kernel's status stream. Every cell transition within
// and outside plans is delivered in order; slow consumers lose oldest
// events first.
func (k *Kernel) Events() <-chan events.Event {
	return k.stream.C()
}

// Close shuts the status stream. The kernel stays usable for planning but
// no further events are delivered.
func (k *Kernel) Close() {
	k.stream.Close()
}

// runPlanLocked schedules and executes one plan. Caller holds k.mu.
func (k *Kernel) runPlanLocked(ctx context.Context, changed []cell.ID) (*scheduler.Plan, error) {
	// Cells whose upstream names were released since the last plan have to
	// re-validate even when the caller did not name them.
	changed = append(changed, k.graph.NeedsRevalidation()...)

	plan := k.sched.Schedule(ctx, changed)
	if plan.Empty() {
		return plan, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	k.cancelMu.Lock()
	k.cancel = cancel
	k.cancelMu.Unlock()
	defer func() {
		k.cancelMu.Lock()
		k.cancel = nil
		k.cancelMu.Unlock()
		cancel()
	}()

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Executing plan.", "plan_id", plan.ID, "runnable", len(plan.Runnable))
	err := k.runner.Run(runCtx, plan, k.cells)
	if err != nil {
		logger.Debug("Plan finished with failures.", "plan_id", plan.ID, "error", err)
	}
	return plan, err
}
