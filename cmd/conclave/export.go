package main

import (
	"fmt"

	"github.com/conclave-ai/conclave/internal/export"
)

// runExport re-renders a saved transcript JSON file as Markdown on stdout.
func runExport(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: conclave export <transcript.json>")
	}

	doc, err := export.ReadTranscript(args[0])
	if err != nil {
		return err
	}

	fmt.Print(doc.Markdown())
	return nil
}
