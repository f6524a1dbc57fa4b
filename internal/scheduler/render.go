package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vk/cellgridgo/internal/cell"
)

// Render writes the plan in a stable, human-readable form. The plan ID is
// omitted so the output is diffable across runs.
func (p *Plan) Render() string {
	var sb strings.Builder

	sb.WriteString("runnable:")
	if len(p.Runnable) == 0 {
		sb.WriteString(" (none)")
	}
	sb.WriteString("\n")
	for i, id := range p.Runnable {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, id)
	}

	skipIDs := make([]cell.ID, 0, len(p.Skip))
	for id := range p.Skip {
		skipIDs = append(skipIDs, id)
	}
	sort.Slice(skipIDs, func(i, j int) bool { return skipIDs[i] < skipIDs[j] })
	sb.WriteString("skip:")
	if len(skipIDs) == 0 {
		sb.WriteString(" (none)")
	}
	sb.WriteString("\n")
	for _, id := range skipIDs {
		if reason := p.Skip[id]; reason != nil {
			fmt.Fprintf(&sb, "  %s (%s)\n", id, reason)
		} else {
			fmt.Fprintf(&sb, "  %s (disabled)\n", id)
		}
	}

	staleIDs := make([]cell.ID, 0, len(p.Stale))
	for id := range p.Stale {
		staleIDs = append(staleIDs, id)
	}
	sort.Slice(staleIDs, func(i, j int) bool { return staleIDs[i] < staleIDs[j] })
	sb.WriteString("stale:")
	if len(staleIDs) == 0 {
		sb.WriteString(" (none)")
	}
	sb.WriteString("\n")
	for _, id := range staleIDs {
		fmt.Fprintf(&sb, "  %s\n", id)
	}

	return sb.String()
}
