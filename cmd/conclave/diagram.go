package main

import (
	"fmt"

	"github.com/conclave-ai/conclave/internal/ensemble"
	"github.com/conclave-ai/conclave/internal/export"
)

// runDiagram prints the selected topology as a Mermaid graph.
func runDiagram(flags cliFlags) error {
	topo, err := ensemble.Select(flags.Agents, flags.Deep)
	if err != nil {
		return err
	}

	fmt.Print(export.TopologyMermaid(topo))
	return nil
}
