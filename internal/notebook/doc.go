// Package notebook loads notebook files from disk. A notebook file is a
// sequence of cell blocks, each carrying a stable id label and a body of
// plain attribute bindings. The loader only slices files into per-cell
// sources; extraction and registration belong to the kernel.
package notebook
