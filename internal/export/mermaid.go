package export

import (
	"fmt"
	"strings"

	"github.com/conclave-ai/conclave/internal/ensemble"
)

// TopologyMermaid produces a Mermaid graph TD diagram of a topology: one
// node per stage unit, grouped in subgraphs per fan-out stage, with edges
// following the data flow between stages (including the critique ring and
// the parallel synthesis halves).
func TopologyMermaid(t ensemble.Topology) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	sb.WriteString("  Q((question))\n")

	// Node IDs are assigned in stage order so diagrams are stable.
	nextID := 0
	getID := func() string {
		id := fmt.Sprintf("N%d", nextID)
		nextID++
		return id
	}

	ids := make([][]string, len(t.Stages))
	for si, stage := range t.Stages {
		ids[si] = make([]string, stage.Units)
		if stage.Units > 1 {
			fmt.Fprintf(&sb, "  subgraph S%d[\"%s\"]\n", si, stage.Kind)
			for u := range ids[si] {
				ids[si][u] = getID()
				fmt.Fprintf(&sb, "    %s[\"%s %d\"]\n", ids[si][u], stage.Kind, u+1)
			}
			sb.WriteString("  end\n")
		} else {
			ids[si][0] = getID()
			fmt.Fprintf(&sb, "  %s[\"%s\"]\n", ids[si][0], stage.Kind)
		}
	}
	sb.WriteString("  A((answer))\n")

	for _, id := range ids[0] {
		fmt.Fprintf(&sb, "  Q --> %s\n", id)
	}
	for si := 1; si < len(t.Stages); si++ {
		stageEdges(&sb, t.Stages, ids, si)
	}
	last := ids[len(ids)-1]
	fmt.Fprintf(&sb, "  %s --> A\n", last[len(last)-1])

	return sb.String()
}

// stageEdges emits the edges into stage si, following how the pipeline
// actually routes outputs.
func stageEdges(sb *strings.Builder, stages []ensemble.Stage, ids [][]string, si int) {
	prev, cur := ids[si-1], ids[si]
	n := len(prev)

	switch stages[si].Kind {
	case ensemble.StageElaborate:
		// Each unit expands its own draft.
		for i := range cur {
			edge(sb, prev[i], cur[i])
		}
	case ensemble.StageCritique:
		// Unit i reviews the draft of its right-hand neighbor.
		for i := range cur {
			edge(sb, prev[(i+1)%n], cur[i])
		}
	case ensemble.StageRevise:
		// Own draft from two stages back plus the critique about it.
		drafts := ids[si-2]
		for i := range cur {
			edge(sb, drafts[i], cur[i])
			edge(sb, prev[(i-1+n)%n], cur[i])
		}
	case ensemble.StageParallelSynthesize:
		mid := n / 2
		for _, p := range prev[:mid] {
			edge(sb, p, cur[0])
		}
		for _, p := range prev[mid:] {
			edge(sb, p, cur[1])
		}
	default:
		// Refine, synthesis, review and verify consume everything upstream.
		for _, p := range prev {
			for _, c := range cur {
				edge(sb, p, c)
			}
		}
	}
}

func edge(sb *strings.Builder, from, to string) {
	fmt.Fprintf(sb, "  %s --> %s\n", from, to)
}
