// Package llm is the completion boundary: one request in, one answer out.
// There is no retry, no fallback and no caching here; every failure of the
// upstream model surfaces as a single opaque error kind so callers treat
// auth, quota, network and malformed-response failures identically.
package llm

import (
	"context"
	"fmt"

	"github.com/conclave-ai/conclave/internal/chat"
)

// Request is one completion call. History is prepended unchanged with roles
// preserved; Parts form the final user content of the call; the system
// instruction rides outside the content list.
type Request struct {
	History           []chat.Turn
	Parts             []chat.Part
	SystemInstruction string
}

// Client produces one completion per call.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// UpstreamError wraps any failure of the upstream model. Callers do not
// branch on the cause; the cause is preserved for logs via Unwrap.
type UpstreamError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("llm: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}
