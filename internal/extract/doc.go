// Package extract performs the static analysis that turns one cell's source
// text into the set of names it defines and the set of names it references.
//
// The analysis is deliberately conservative: anything that could bind a name
// dynamically widens the def set rather than narrowing it, because a false
// positive only costs an unnecessary re-run while a false negative silently
// leaves a stale cell behind.
package extract
