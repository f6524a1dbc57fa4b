package cell

// Status represents the execution status of a cell.
type Status int32

const (
	// StatusIdle indicates the cell's last run succeeded (or it has never run)
	// and its outputs are current.
	StatusIdle Status = iota
	// StatusQueued indicates the cell is part of the current plan and waiting
	// for its turn to execute.
	StatusQueued
	// StatusRunning indicates the cell's body is currently executing.
	StatusRunning
	// StatusStale indicates the cell's last output is retained but known to be
	// outdated because an ancestor did not successfully run.
	StatusStale
	// StatusError indicates the cell's last run failed, or the cell is in a
	// structural error state (conflict, cycle, undefined reference).
	StatusError
	// StatusDisabled indicates the cell is excluded from execution and owns
	// no names.
	StatusDisabled
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusStale:
		return "stale"
	case StatusError:
		return "error"
	case StatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}
