// Package cell defines the core cell type shared by the graph, scheduler and
// runner: a stable identity, source text and its compiled form, the extracted
// defs/refs sets, and the cell's execution status.
package cell
