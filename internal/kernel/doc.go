// Package kernel is the facade tying the notebook subsystems together: the
// extractor, the name dependency graph, the scheduler, the runner and the
// shared namespace. All notebook mutation funnels through a Kernel, which
// serializes edits and plan execution so the graph and namespace only ever
// have one writer.
package kernel
