package ensemble

import "sync"

// StageProgress is the completion state of one stage. Units carries the
// per-unit flags of fan-out stages; single-unit stages report through Done
// alone.
type StageProgress struct {
	Units []bool `json:"units,omitempty"`
	Done  bool   `json:"done"`
}

// Tracker holds per-run completion state keyed by stage kind. Flags only
// ever go from false to true during a run; a new run resets the state
// wholesale. Unit completions are keyed merges by index, never whole-state
// rewrites, so concurrent units from one barrier cannot clobber each other.
type Tracker struct {
	mu     sync.Mutex
	runID  string
	stages map[StageKind][]bool
	order  []StageKind
}

// NewTracker returns an empty Tracker; StartRun arms it for a topology.
func NewTracker() *Tracker {
	return &Tracker{stages: make(map[StageKind][]bool)}
}

// StartRun resets the tracker for a new run: every unit of every stage in
// the topology starts false.
func (t *Tracker) StartRun(runID string, topo Topology) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.runID = runID
	t.stages = make(map[StageKind][]bool, len(topo.Stages))
	t.order = make([]StageKind, 0, len(topo.Stages))
	for _, stage := range topo.Stages {
		t.stages[stage.Kind] = make([]bool, stage.Units)
		t.order = append(t.order, stage.Kind)
	}
}

// UnitDone marks one unit of a stage complete. The update is monotonic and
// idempotent; unknown stages and out-of-range units are ignored rather than
// letting a stray callback corrupt the state.
func (t *Tracker) UnitDone(kind StageKind, unit int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	flags, ok := t.stages[kind]
	if !ok || unit < 0 || unit >= len(flags) {
		return
	}
	flags[unit] = true
}

// RunID returns the ID of the run the tracker currently covers.
func (t *Tracker) RunID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runID
}

// Snapshot returns a deep copy of the per-stage completion state.
func (t *Tracker) Snapshot() map[StageKind]StageProgress {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[StageKind]StageProgress, len(t.stages))
	for kind, flags := range t.stages {
		sp := StageProgress{Done: allTrue(flags)}
		if len(flags) > 1 {
			sp.Units = make([]bool, len(flags))
			copy(sp.Units, flags)
		}
		out[kind] = sp
	}
	return out
}

// Stages returns the stage kinds of the current run in execution order.
func (t *Tracker) Stages() []StageKind {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]StageKind, len(t.order))
	copy(out, t.order)
	return out
}

// Complete reports whether every unit of every stage is done.
func (t *Tracker) Complete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.stages) == 0 {
		return false
	}
	for _, flags := range t.stages {
		if !allTrue(flags) {
			return false
		}
	}
	return true
}

func allTrue(flags []bool) bool {
	for _, f := range flags {
		if !f {
			return false
		}
	}
	return len(flags) > 0
}
