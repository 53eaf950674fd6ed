package ensemble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-ai/conclave/internal/codecheck"
	"github.com/conclave-ai/conclave/internal/llm"
)

// stageOf maps a request back to its stage via the system instruction.
func stageOf(req llm.Request) StageKind {
	for kind, instruction := range systemInstructions {
		if instruction == req.SystemInstruction {
			return kind
		}
	}
	return ""
}

// callLog records every completion request a test pipeline issues, keyed by
// the stage that issued it.
type callLog struct {
	mu   sync.Mutex
	reqs map[StageKind][]llm.Request
}

func newCallLog() *callLog {
	return &callLog{reqs: make(map[StageKind][]llm.Request)}
}

func (l *callLog) record(req llm.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kind := stageOf(req)
	l.reqs[kind] = append(l.reqs[kind], req)
}

func (l *callLog) count(kind StageKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.reqs[kind])
}

func (l *callLog) total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, reqs := range l.reqs {
		n += len(reqs)
	}
	return n
}

func (l *callLog) contexts(kind StageKind) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.reqs[kind]))
	for _, req := range l.reqs[kind] {
		out = append(out, req.Parts[len(req.Parts)-1].Text)
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testPipeline builds a pipeline whose client answers by stage kind and
// records every call.
func testPipeline(t *testing.T, replies map[StageKind]string, opts ...PipelineOption) (*Pipeline, *callLog) {
	t.Helper()
	log := newCallLog()
	client := &stubClient{
		complete: func(ctx context.Context, req llm.Request) (string, error) {
			log.record(req)
			reply, ok := replies[stageOf(req)]
			if !ok {
				return "", fmt.Errorf("unexpected %s call", stageOf(req))
			}
			return reply, nil
		},
	}
	opts = append([]PipelineOption{WithLogger(quietLogger())}, opts...)
	return NewPipeline(client, opts...), log
}

func TestPipeline_StandardRun(t *testing.T) {
	p, log := testPipeline(t, map[StageKind]string{
		StageInitial:    "a first draft",
		StageRefine:     "a refined draft",
		StageSynthesize: "The capital of France is Paris.",
	})

	result, err := p.Run(context.Background(), Request{Query: "capital of France?"})
	require.NoError(t, err)

	assert.Equal(t, "The capital of France is Paris.", result.Answer)
	assert.Equal(t, "standard", result.Topology)
	assert.NotEmpty(t, result.RunID)
	assert.False(t, result.Repaired)
	assert.Empty(t, result.Diagnostic)

	// 4 initial + 4 refine + 1 synthesize; no code block, so no repair call.
	assert.Equal(t, 4, log.count(StageInitial))
	assert.Equal(t, 4, log.count(StageRefine))
	assert.Equal(t, 1, log.count(StageSynthesize))
	assert.Equal(t, 9, log.total())

	assert.True(t, p.tracker.Complete(), "every stage including verify must be marked done")
}

func TestPipeline_RefineSeesInitialDrafts(t *testing.T) {
	p, log := testPipeline(t, map[StageKind]string{
		StageInitial:    "identical seed draft",
		StageRefine:     "refined",
		StageSynthesize: "done",
	})

	_, err := p.Run(context.Background(), Request{Query: "q"})
	require.NoError(t, err)

	for _, text := range log.contexts(StageRefine) {
		assert.Contains(t, text, "identical seed draft")
		assert.Contains(t, text, "Peer answer 3:")
	}
	for _, text := range log.contexts(StageSynthesize) {
		assert.Contains(t, text, "refined")
		assert.Contains(t, text, "Candidate 4:")
	}
}

func TestPipeline_ValidCodePassesWithoutRepair(t *testing.T) {
	answer := "Use this:\n\n```python\ndef add(a, b):\n    return a + b\n```\n"
	p, log := testPipeline(t, map[StageKind]string{
		StageInitial:    "draft",
		StageRefine:     "refined",
		StageSynthesize: answer,
	})

	result, err := p.Run(context.Background(), Request{Query: "add function"})
	require.NoError(t, err)

	assert.Equal(t, answer, result.Answer)
	assert.False(t, result.Repaired)
	assert.Equal(t, 0, log.count(StageVerify))
	assert.Equal(t, 9, log.total())
}

func TestPipeline_BrokenCodeGetsOneRepair(t *testing.T) {
	broken := "Here is the fix:\n\n```python\ndef f(:\n    return 1\n```\n\nThat should do it.\n"
	p, log := testPipeline(t, map[StageKind]string{
		StageInitial:    "draft",
		StageRefine:     "refined",
		StageSynthesize: broken,
		StageVerify:     "```python\ndef f(x):\n    return 1\n```",
	})

	result, err := p.Run(context.Background(), Request{Query: "fix my function"})
	require.NoError(t, err)

	assert.True(t, result.Repaired)
	assert.NotEmpty(t, result.Diagnostic)
	assert.Contains(t, result.Answer, "def f(x):")
	assert.NotContains(t, result.Answer, "def f(:")

	// The prose around the block survives the splice.
	assert.Contains(t, result.Answer, "Here is the fix:")
	assert.Contains(t, result.Answer, "That should do it.")

	assert.Equal(t, 1, log.count(StageVerify))
	assert.Equal(t, 10, log.total())

	// The repair prompt carries the broken body and the diagnostic.
	repairCtx := log.contexts(StageVerify)[0]
	assert.Contains(t, repairCtx, "def f(:")
	assert.Contains(t, repairCtx, "Checker report:")
}

func TestPipeline_RepairFixesOnlyTheFirstRunnableBlock(t *testing.T) {
	answer := strings.Join([]string{
		"First:",
		"```python",
		"def a(:",
		"    pass",
		"```",
		"Second:",
		"```python",
		"def b(:",
		"    pass",
		"```",
		"",
	}, "\n")
	p, log := testPipeline(t, map[StageKind]string{
		StageInitial:    "draft",
		StageRefine:     "refined",
		StageSynthesize: answer,
		StageVerify:     "```python\ndef a(x):\n    pass\n```",
	})

	result, err := p.Run(context.Background(), Request{Query: "two snippets"})
	require.NoError(t, err)

	assert.Equal(t, 1, log.count(StageVerify), "a run spends at most one repair call")
	assert.Contains(t, result.Answer, "def a(x):")
	assert.Contains(t, result.Answer, "def b(:", "the second block is out of scope for the single repair")
	assert.NotContains(t, result.Answer, "def a(:")
}

func TestPipeline_SkipsNonRunnableBlocks(t *testing.T) {
	answer := strings.Join([]string{
		"Sample output:",
		"```text",
		"not code at all ((",
		"```",
		"The script:",
		"```python",
		"print(",
		"```",
		"",
	}, "\n")
	p, log := testPipeline(t, map[StageKind]string{
		StageInitial:    "draft",
		StageRefine:     "refined",
		StageSynthesize: answer,
		StageVerify:     "```python\nprint()\n```",
	})

	result, err := p.Run(context.Background(), Request{Query: "q"})
	require.NoError(t, err)

	// The text block is not checkable; the python block after it is the one
	// that gets repaired.
	assert.True(t, result.Repaired)
	assert.Contains(t, result.Answer, "not code at all ((")
	assert.Contains(t, result.Answer, "print()")
	assert.Equal(t, 1, log.count(StageVerify))
}

func TestPipeline_UncheckableLanguagePasses(t *testing.T) {
	answer := "```go\nfunc broken( {{{\n```\n"
	p, log := testPipeline(t, map[StageKind]string{
		StageInitial:    "draft",
		StageRefine:     "refined",
		StageSynthesize: answer,
	})

	result, err := p.Run(context.Background(), Request{Query: "q"})
	require.NoError(t, err)

	assert.Equal(t, answer, result.Answer)
	assert.False(t, result.Repaired)
	assert.Equal(t, 0, log.count(StageVerify))
}

func TestPipeline_StageFailureAbortsTheRun(t *testing.T) {
	var refineCalls atomic.Int32
	log := newCallLog()
	client := &stubClient{
		complete: func(ctx context.Context, req llm.Request) (string, error) {
			log.record(req)
			switch stageOf(req) {
			case StageInitial:
				return "draft", nil
			case StageRefine:
				if refineCalls.Add(1) == 2 {
					return "", &llm.UpstreamError{Op: "generate", Err: errors.New("quota exceeded")}
				}
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				default:
					return "refined", nil
				}
			default:
				return "", fmt.Errorf("stage %s must not run after a failure", stageOf(req))
			}
		},
	}
	p := NewPipeline(client, WithLogger(quietLogger()))

	result, err := p.Run(context.Background(), Request{Query: "q"})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "refine stage")

	var upstream *llm.UpstreamError
	assert.ErrorAs(t, err, &upstream)
	assert.Equal(t, 0, log.count(StageSynthesize), "nothing downstream of a failed stage may run")
}

func TestPipeline_RepairCallFailureIsTerminal(t *testing.T) {
	broken := "```python\ndef f(:\n    pass\n```\n"
	log := newCallLog()
	client := &stubClient{
		complete: func(ctx context.Context, req llm.Request) (string, error) {
			log.record(req)
			switch stageOf(req) {
			case StageVerify:
				return "", &llm.UpstreamError{Op: "generate", Err: errors.New("model offline")}
			case StageSynthesize:
				return broken, nil
			default:
				return "draft", nil
			}
		},
	}
	p := NewPipeline(client, WithLogger(quietLogger()))

	result, err := p.Run(context.Background(), Request{Query: "q"})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "verify stage")
}

type failingChecker struct{}

func (failingChecker) Check(lang, code string) (*codecheck.Diagnostic, error) {
	return nil, errors.New("grammar failed to load")
}

func TestPipeline_CheckerMalfunctionIsNotFatal(t *testing.T) {
	answer := "```python\ndef f(:\n    pass\n```\n"
	p, log := testPipeline(t, map[StageKind]string{
		StageInitial:    "draft",
		StageRefine:     "refined",
		StageSynthesize: answer,
	}, WithChecker(failingChecker{}))

	result, err := p.Run(context.Background(), Request{Query: "q"})
	require.NoError(t, err)

	// The answer ships unchanged rather than dying on a checker bug.
	assert.Equal(t, answer, result.Answer)
	assert.False(t, result.Repaired)
	assert.Equal(t, 0, log.count(StageVerify))
}

func TestPipeline_BareRepairReplyIsSpliced(t *testing.T) {
	broken := "```python\ndef f(:\n    pass\n```\n"
	p, _ := testPipeline(t, map[StageKind]string{
		StageInitial:    "draft",
		StageRefine:     "refined",
		StageSynthesize: broken,
		StageVerify:     "  def f(x):\n    pass\n  ",
	})

	result, err := p.Run(context.Background(), Request{Query: "q"})
	require.NoError(t, err)

	// A reply without a fence is used as-is, trimmed.
	assert.Contains(t, result.Answer, "```python\ndef f(x):\n    pass\n```")
}

func TestPipeline_DeepRun(t *testing.T) {
	p, log := testPipeline(t, map[StageKind]string{
		StageInitial:            "initial draft",
		StageRefine:             "refined draft",
		StageCritique:           "pointed critique",
		StageRevise:             "revised draft",
		StageParallelSynthesize: "partial merge",
		StageFinalSynthesize:    "merged answer",
		StageReview:             "polished final answer",
	})

	result, err := p.Run(context.Background(), Request{Query: "hard question", Deep: true})
	require.NoError(t, err)

	assert.Equal(t, "deep", result.Topology)
	assert.Equal(t, "polished final answer", result.Answer)

	assert.Equal(t, 6, log.count(StageInitial))
	assert.Equal(t, 6, log.count(StageRefine))
	assert.Equal(t, 6, log.count(StageCritique))
	assert.Equal(t, 6, log.count(StageRevise))
	assert.Equal(t, 2, log.count(StageParallelSynthesize))
	assert.Equal(t, 1, log.count(StageFinalSynthesize))
	assert.Equal(t, 1, log.count(StageReview))
	assert.Equal(t, 28, log.total())

	// Each parallel unit merges half of the six revised drafts.
	for _, text := range log.contexts(StageParallelSynthesize) {
		assert.Contains(t, text, "3 candidate answers")
		assert.Contains(t, text, "revised draft")
	}
	finalCtx := log.contexts(StageFinalSynthesize)[0]
	assert.Contains(t, finalCtx, "Partial answer 1:")
	assert.Contains(t, finalCtx, "Partial answer 2:")
	assert.Contains(t, finalCtx, "partial merge")

	reviewCtx := log.contexts(StageReview)[0]
	assert.Contains(t, reviewCtx, "merged answer")
}

func TestPipeline_CallerSuppliedRunIDIsKept(t *testing.T) {
	p, _ := testPipeline(t, map[StageKind]string{
		StageInitial:    "draft",
		StageRefine:     "refined",
		StageSynthesize: "done",
	})

	result, err := p.Run(context.Background(), Request{Query: "q", RunID: "run-fixed"})
	require.NoError(t, err)
	assert.Equal(t, "run-fixed", result.RunID)
	assert.Equal(t, "run-fixed", p.tracker.RunID())
}

func TestPipeline_EmptyQueryIsRejected(t *testing.T) {
	p, log := testPipeline(t, nil)

	_, err := p.Run(context.Background(), Request{Query: "   \n\t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty query")
	assert.Equal(t, 0, log.total())
}

func TestPipeline_InvalidAgentCountIsRejected(t *testing.T) {
	p, log := testPipeline(t, nil)

	_, err := p.Run(context.Background(), Request{Query: "q", Agents: 9})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
	assert.Equal(t, 0, log.total())
}

func TestPipeline_ElaborationRunForSmallEnsembles(t *testing.T) {
	p, log := testPipeline(t, map[StageKind]string{
		StageInitial:    "seed",
		StageElaborate:  "expanded",
		StageRefine:     "refined",
		StageSynthesize: "final",
	})

	result, err := p.Run(context.Background(), Request{Query: "q", Agents: 2})
	require.NoError(t, err)

	assert.Equal(t, "elaboration", result.Topology)
	assert.Equal(t, 2, log.count(StageElaborate))
	assert.Equal(t, 7, log.total())

	// Elaboration feeds the expanded drafts, not the seeds, into refine.
	for _, text := range log.contexts(StageRefine) {
		assert.Contains(t, text, "expanded")
	}
}

func TestPipeline_EmitsProgressForEveryStage(t *testing.T) {
	p, _ := testPipeline(t, map[StageKind]string{
		StageInitial:    "draft",
		StageRefine:     "refined",
		StageSynthesize: "done",
	})

	_, err := p.Run(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	p.Close()

	seen := make(map[StageKind]bool)
	for ev := range p.Events() {
		if ev.Status == ProgressComplete {
			seen[ev.Stage] = true
		}
	}
	for _, kind := range []StageKind{StageInitial, StageRefine, StageSynthesize, StageVerify} {
		assert.True(t, seen[kind], "missing complete event for %s", kind)
	}
}
