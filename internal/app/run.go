package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"github.com/vk/cellgridgo/internal/ctxlog"
)

// Run executes the whole notebook once: plan everything, run it, report the
// resulting values and cell statuses. The error is non-nil when any cell
// failed, so the CLI can map it to a non-zero exit code.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(a.config.HealthcheckPort)
	}

	// Stream transitions as they happen so long-running notebooks stay
	// observable. The channel is drop-oldest, so a slow terminal never
	// stalls the runner.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range a.kernel.Events() {
			a.logger.Info("Cell transition.",
				"plan_id", ev.PlanID, "cell", ev.Cell, "status", ev.Status.String(), "error", ev.Err)
		}
	}()

	plan, runErr := a.kernel.RequestRun(ctx)
	a.kernel.Close()
	<-drained

	fmt.Fprint(a.outW, plan.Render())
	a.printSummary()

	if runErr != nil {
		return fmt.Errorf("notebook run failed: %w", runErr)
	}
	a.logger.Debug("App.Run method finished.")
	return nil
}

// printSummary writes the final value of every defined name and the terminal
// status of every cell, in document order.
func (a *App) printSummary() {
	values, version := a.kernel.Snapshot()
	fmt.Fprintf(a.outW, "\nnamespace (version %d):\n", version)
	for _, name := range sortedNames(values) {
		fmt.Fprintf(a.outW, "  %s = %s\n", name, renderValue(values[name]))
	}

	statuses := a.kernel.Statuses()
	fmt.Fprintf(a.outW, "\ncells:\n")
	for _, id := range a.order {
		status, ok := statuses[id]
		if !ok {
			continue
		}
		line := fmt.Sprintf("  %s: %s", id, status)
		if c, found := a.kernel.Cell(id); found {
			if err := c.Err(); err != nil {
				line += fmt.Sprintf(" (%v)", err)
			}
		}
		fmt.Fprintln(a.outW, line)
	}
}

func sortedNames(values map[string]cty.Value) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// renderValue formats a namespace value for the run summary. JSON keeps the
// output copy-pasteable; values that cannot round-trip fall back to cty's
// debug form.
func renderValue(v cty.Value) string {
	raw, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return v.GoString()
	}
	return string(raw)
}
