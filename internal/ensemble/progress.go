package ensemble

import "sync"

// Reporter emits progress events through a buffered channel. Emission never
// blocks the pipeline: when no one drains the channel, events are dropped.
type Reporter struct {
	ch   chan ProgressEvent
	once sync.Once
}

// NewReporter creates a Reporter with a buffered channel of size 64.
func NewReporter() *Reporter {
	return &Reporter{
		ch: make(chan ProgressEvent, 64),
	}
}

// Emit sends a progress event in a non-blocking fashion.
// If the channel is full, the event is silently dropped.
func (r *Reporter) Emit(event ProgressEvent) {
	select {
	case r.ch <- event:
	default:
		// Drop the event if the channel is full.
	}
}

// Events returns a read-only channel for consuming progress events.
func (r *Reporter) Events() <-chan ProgressEvent {
	return r.ch
}

// Close closes the event channel. Safe to call more than once.
func (r *Reporter) Close() {
	r.once.Do(func() { close(r.ch) })
}
