package namegraph

import (
	"fmt"
	"strings"

	"github.com/vk/cellgridgo/internal/cell"
)

// MultipleDefinitionError reports that two or more live cells bind the same
// name. Every claimant is flagged conflicted and none of them runs until the
// collision is resolved; the graph itself stays consistent.
type MultipleDefinitionError struct {
	Name  string
	Cells []cell.ID
}

// Error implements the error interface.
func (e *MultipleDefinitionError) Error() string {
	ids := make([]string, len(e.Cells))
	for i, id := range e.Cells {
		ids[i] = string(id)
	}
	return fmt.Sprintf("name %q is defined by multiple cells: %s", e.Name, strings.Join(ids, ", "))
}

// CycleError reports a dependency cycle. Every cell on the cycle is barred
// from execution.
type CycleError struct {
	Cells []cell.ID
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	ids := make([]string, len(e.Cells))
	for i, id := range e.Cells {
		ids[i] = string(id)
	}
	return fmt.Sprintf("dependency cycle: %s", strings.Join(ids, " -> "))
}

// UndefinedReferenceError reports that a cell references a name no live cell
// defines.
type UndefinedReferenceError struct {
	Cell cell.ID
	Name string
}

// Error implements the error interface.
func (e *UndefinedReferenceError) Error() string {
	return fmt.Sprintf("cell %q references undefined name %q", e.Cell, e.Name)
}
