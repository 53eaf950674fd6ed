// Package status renders run progress for terminal output.
package status

import (
	"fmt"
	"strings"

	"github.com/conclave-ai/conclave/internal/ensemble"
)

const (
	glyphPending  = "○"
	glyphWorking  = "●"
	glyphComplete = "✓"
	glyphFailed   = "✗"
)

// Line formats a single progress event as a human-readable status line.
func Line(ev ensemble.ProgressEvent) string {
	label := unitLabel(ev)
	switch ev.Status {
	case ensemble.ProgressPending:
		return fmt.Sprintf("  %s %s (pending)", glyphPending, label)
	case ensemble.ProgressWorking:
		return fmt.Sprintf("  %s %s...", glyphWorking, label)
	case ensemble.ProgressComplete:
		return fmt.Sprintf("  %s %s complete", glyphComplete, label)
	case ensemble.ProgressFailed:
		return fmt.Sprintf("  %s %s failed: %s", glyphFailed, label, ev.Message)
	default:
		return fmt.Sprintf("  ? %s (unknown status)", label)
	}
}

// unitLabel names the event's unit within its stage. Single-unit stages go
// by the stage name alone.
func unitLabel(ev ensemble.ProgressEvent) string {
	if ev.Units > 1 {
		return fmt.Sprintf("%s %d/%d", ev.Stage, ev.Unit+1, ev.Units)
	}
	return string(ev.Stage)
}

// Render draws a per-stage table from a tracker snapshot: one row per stage
// in execution order, with a per-unit cell block for fan-out stages.
func Render(order []ensemble.StageKind, snapshot map[ensemble.StageKind]ensemble.StageProgress) string {
	width := 0
	for _, kind := range order {
		if len(kind) > width {
			width = len(kind)
		}
	}

	var sb strings.Builder
	for _, kind := range order {
		progress, ok := snapshot[kind]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "  %s %-*s", stageGlyph(progress), width, kind)
		if len(progress.Units) > 0 {
			sb.WriteString("  [")
			for _, done := range progress.Units {
				if done {
					sb.WriteString(glyphComplete)
				} else {
					sb.WriteString(glyphPending)
				}
			}
			sb.WriteString("]")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// stageGlyph summarizes a stage: complete, started, or untouched.
func stageGlyph(progress ensemble.StageProgress) string {
	if progress.Done {
		return glyphComplete
	}
	for _, done := range progress.Units {
		if done {
			return glyphWorking
		}
	}
	return glyphPending
}
