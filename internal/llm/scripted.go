package llm

import (
	"context"
	"sync/atomic"
)

// Compile-time interface check.
var _ Client = (*Scripted)(nil)

// Scripted is a deterministic in-process Client for tests and offline runs.
// Each call is numbered (starting at 1) and handed to the reply function
// along with the request.
type Scripted struct {
	calls atomic.Int32
	reply func(call int, req Request) (string, error)
}

// NewScripted creates a Scripted client around a reply function.
func NewScripted(reply func(call int, req Request) (string, error)) *Scripted {
	return &Scripted{reply: reply}
}

// Complete returns the scripted reply for this call, honoring context
// cancellation like a real upstream would.
func (s *Scripted) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &UpstreamError{Op: "scripted", Err: err}
	}
	n := int(s.calls.Add(1))
	return s.reply(n, req)
}

// Calls returns how many completions have been requested so far.
func (s *Scripted) Calls() int {
	return int(s.calls.Load())
}
