// Package runner applies execution plans to the shared namespace.
//
// The model is single-threaded cooperative: a plan is a strict sequence, and
// the runner awaits full completion of one cell (success, error, or
// interrupt) before advancing, because cell N+1 may read values cell N
// writes. Concurrency around a cell is the cell's own business; the runner
// only promises ordering and failure containment.
package runner
