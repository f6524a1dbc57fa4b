// Package scheduler computes execution plans: given the set of changed cells
// and the current dependency graph, it decides which cells must re-run, in
// what order, and which cells are barred (skip) or merely outdated (stale).
package scheduler
