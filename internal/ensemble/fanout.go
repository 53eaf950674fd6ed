package ensemble

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/conclave-ai/conclave/internal/llm"
)

// FanOut dispatches one stage's completion calls in parallel and collects
// their outputs. If any unit fails, the derived context is canceled so that
// remaining in-flight calls are abandoned promptly.
type FanOut struct {
	client     llm.Client
	onProgress func(ProgressEvent)
}

// NewFanOut creates a FanOut that issues completions via client.
// onProgress is called synchronously from each goroutine; it may be nil.
func NewFanOut(client llm.Client, onProgress func(ProgressEvent)) *FanOut {
	return &FanOut{
		client:     client,
		onProgress: onProgress,
	}
}

// Run dispatches every unit request in parallel and returns the outputs in
// input order: unit i's completion lands at index i no matter when it
// finishes. onUnitDone fires exactly once per unit, immediately after that
// unit succeeds and before its complete event; it never fires for a failed
// unit. It uses errgroup.WithContext so that the first unit failure cancels
// the derived context, causing the remaining calls to return early.
//
// The outputs are only meaningful when the returned error is nil: a failed
// stage hands nothing downstream.
func (f *FanOut) Run(ctx context.Context, runID string, kind StageKind, reqs []llm.Request, onUnitDone func(int)) ([]string, error) {
	results := make([]string, len(reqs))
	g, gctx := errgroup.WithContext(ctx)

	for i, req := range reqs {
		f.emit(ProgressEvent{
			RunID:  runID,
			Stage:  kind,
			Unit:   i,
			Units:  len(reqs),
			Status: ProgressPending,
		})

		g.Go(func() error {
			f.emit(ProgressEvent{
				RunID:  runID,
				Stage:  kind,
				Unit:   i,
				Units:  len(reqs),
				Status: ProgressWorking,
			})

			out, err := f.client.Complete(gctx, req)
			if err != nil {
				f.emit(ProgressEvent{
					RunID:   runID,
					Stage:   kind,
					Unit:    i,
					Units:   len(reqs),
					Status:  ProgressFailed,
					Message: err.Error(),
				})
				// Triggers context cancellation for the sibling units.
				return fmt.Errorf("unit %d: %w", i, err)
			}

			results[i] = out
			if onUnitDone != nil {
				onUnitDone(i)
			}
			f.emit(ProgressEvent{
				RunID:  runID,
				Stage:  kind,
				Unit:   i,
				Units:  len(reqs),
				Status: ProgressComplete,
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// emit sends a progress event if a callback is registered.
func (f *FanOut) emit(ev ProgressEvent) {
	if f.onProgress != nil {
		f.onProgress(ev)
	}
}
