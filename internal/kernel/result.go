package kernel

import (
	"fmt"

	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/extract"
	"github.com/vk/cellgridgo/internal/namegraph"
)

// RegistrationOutcome classifies the result of registering a cell.
type RegistrationOutcome int

const (
	// RegistrationOK means the cell was registered cleanly.
	RegistrationOK RegistrationOutcome = iota
	// RegistrationParseError means the source did not parse. An existing
	// registration for the same id is retained unchanged.
	RegistrationParseError
	// RegistrationConflict means the cell registered but one or more of its
	// defs collide with another cell. Both sides are barred from execution
	// until the conflict is resolved.
	RegistrationConflict
	// RegistrationRejected means the cell could not be registered at all,
	// for a structural reason other than a parse failure.
	RegistrationRejected
)

// RegistrationResult reports how a cell registration went. Conflicts are not
// fatal: a conflicted cell stays registered and re-registering either side
// with disjoint defs clears the conflict.
type RegistrationResult struct {
	Outcome RegistrationOutcome

	// ParseErr holds the syntax diagnostic when Outcome is
	// RegistrationParseError.
	ParseErr *extract.ParseError

	// Conflicts holds the name collisions when Outcome is
	// RegistrationConflict.
	Conflicts []*namegraph.MultipleDefinitionError

	// Err holds the rejection reason when Outcome is RegistrationRejected.
	Err error
}

// OK reports whether the cell is registered and runnable.
func (r RegistrationResult) OK() bool {
	return r.Outcome == RegistrationOK
}

// Error flattens the result into a single error, or nil when OK.
func (r RegistrationResult) Error() error {
	switch r.Outcome {
	case RegistrationParseError:
		return r.ParseErr
	case RegistrationConflict:
		return r.Conflicts[0]
	case RegistrationRejected:
		return r.Err
	default:
		return nil
	}
}

// DuplicateSetupError rejects a second setup cell. A notebook has at most one
// distinguished always-first cell.
type DuplicateSetupError struct {
	Existing cell.ID
	Rejected cell.ID
}

// Error implements the error interface.
func (e *DuplicateSetupError) Error() string {
	return fmt.Sprintf("cell %q declares a setup block but cell %q already does", e.Rejected, e.Existing)
}
