// Package namegraph maintains the dependency graph over cells, keyed by the
// names cells define and reference.
//
// Edges are not stored. The graph keeps two hash indices, name to claiming
// cell and name to referencing cells, and derives a cell's dependency edges
// on demand by joining its defs/refs against those indices. Updating a cell
// therefore touches only the names of that cell, never the whole notebook.
//
// Cells are interned to dense arena indices on first registration. The index
// doubles as the cell's document order and is the stable tie-break key the
// scheduler relies on, so a slot is never reused even after its cell is
// deleted.
package namegraph
