package runner

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/cellgridgo/internal/cell"
)

// RuntimeExecutionError wraps an exception raised while executing one cell's
// body. It is isolated to that cell and its descendants for the current plan.
type RuntimeExecutionError struct {
	Cell  cell.ID
	Diags hcl.Diagnostics
	Err   error
}

// Error implements the error interface.
func (e *RuntimeExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cell %q failed: %s", e.Cell, e.Err)
	}
	return fmt.Sprintf("cell %q failed: %s", e.Cell, e.Diags.Error())
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *RuntimeExecutionError) Unwrap() error {
	return e.Err
}

// InterruptedError marks a cell aborted by cooperative cancellation mid-plan.
type InterruptedError struct {
	Cell cell.ID
}

// Error implements the error interface.
func (e *InterruptedError) Error() string {
	return fmt.Sprintf("cell %q interrupted", e.Cell)
}
