package ensemble

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-ai/conclave/internal/chat"
	"github.com/conclave-ai/conclave/internal/llm"
)

// contextText returns the stage context part of a built request, which is
// always the final part.
func contextText(t *testing.T, req llm.Request) string {
	t.Helper()
	require.NotEmpty(t, req.Parts)
	last := req.Parts[len(req.Parts)-1]
	require.True(t, last.IsText())
	return last.Text
}

func drafts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("draft-%d text", i)
	}
	return out
}

func TestPromptBuilder_PartsCarryAttachmentQueryAndContext(t *testing.T) {
	att, err := chat.NewAttachment("notes.txt", "text/plain", []byte("attached notes"), 0)
	require.NoError(t, err)

	b := newPromptBuilder(Request{
		Query:      "what is in the notes?",
		History:    []chat.Turn{chat.AgentTurn("earlier answer")},
		Attachment: att,
	})

	reqs, err := b.initialUnits(1)
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	req := reqs[0]
	require.Len(t, req.Parts, 3)
	assert.Equal(t, "notes.txt", req.Parts[0].Name)
	assert.Equal(t, []byte("attached notes"), req.Parts[0].Data)
	assert.Equal(t, "what is in the notes?", req.Parts[1].Text)
	assert.NotEmpty(t, req.Parts[2].Text)

	require.Len(t, req.History, 1)
	assert.Equal(t, "earlier answer", req.History[0].Text())
	assert.Equal(t, systemInstructions[StageInitial], req.SystemInstruction)
}

func TestInitialUnits_AreIdentical(t *testing.T) {
	b := newPromptBuilder(Request{Query: "q"})
	reqs, err := b.initialUnits(4)
	require.NoError(t, err)
	require.Len(t, reqs, 4)

	// The units diverge through sampling, not through their prompts.
	first := contextText(t, reqs[0])
	for _, req := range reqs[1:] {
		assert.Equal(t, first, contextText(t, req))
	}
}

func TestElaborateUnits_UseOwnDraft(t *testing.T) {
	b := newPromptBuilder(Request{Query: "q"})
	ds := drafts(3)

	reqs, err := b.elaborateUnits(ds)
	require.NoError(t, err)
	require.Len(t, reqs, 3)

	for i, req := range reqs {
		text := contextText(t, req)
		assert.Contains(t, text, ds[i])
		for j, other := range ds {
			if j != i {
				assert.NotContains(t, text, other)
			}
		}
	}
}

func TestRefineUnits_NumberEveryPeer(t *testing.T) {
	b := newPromptBuilder(Request{Query: "q"})
	ds := drafts(4)

	reqs, err := b.refineUnits(ds)
	require.NoError(t, err)
	require.Len(t, reqs, 4)

	// Unit 2 sees its own draft plus peers 0, 1 and 3 numbered 1..3.
	text := contextText(t, reqs[2])
	assert.Contains(t, text, ds[2])
	assert.Contains(t, text, "Peer answer 1:\ndraft-0 text")
	assert.Contains(t, text, "Peer answer 2:\ndraft-1 text")
	assert.Contains(t, text, "Peer answer 3:\ndraft-3 text")
	assert.NotContains(t, text, "Peer answer 4:")
}

func TestCritiqueUnits_RingSkipsSelf(t *testing.T) {
	b := newPromptBuilder(Request{Query: "q"})
	ds := drafts(6)

	reqs, err := b.critiqueUnits(ds)
	require.NoError(t, err)
	require.Len(t, reqs, 6)

	for i, req := range reqs {
		text := contextText(t, req)
		assert.Contains(t, text, ds[(i+1)%6], "unit %d must review its right-hand neighbor", i)
		assert.NotContains(t, text, ds[i], "unit %d must never review itself", i)
	}
}

func TestReviseUnits_CritiqueComesFromTheReviewer(t *testing.T) {
	b := newPromptBuilder(Request{Query: "q"})
	ds := drafts(6)
	critiques := make([]string, 6)
	for i := range critiques {
		critiques[i] = fmt.Sprintf("critique-by-%d", i)
	}

	reqs, err := b.reviseUnits(ds, critiques)
	require.NoError(t, err)
	require.Len(t, reqs, 6)

	// Unit i's draft was reviewed by unit (i-1+n) mod n.
	for i, req := range reqs {
		text := contextText(t, req)
		assert.Contains(t, text, ds[i])
		assert.Contains(t, text, fmt.Sprintf("critique-by-%d", (i+5)%6))
	}
}

func TestRingMath_AuthorInvertsTarget(t *testing.T) {
	for n := 2; n <= 8; n++ {
		for i := 0; i < n; i++ {
			assert.Equal(t, i, ringAuthor(ringTarget(i, n), n), "n=%d i=%d", n, i)
			assert.NotEqual(t, i, ringTarget(i, n), "a unit must never target itself")
		}
	}
}

func TestSynthesisUnit_NumbersEveryAnswer(t *testing.T) {
	b := newPromptBuilder(Request{Query: "q"})
	answers := []string{"alpha answer", "beta answer", "gamma answer"}

	reqs, err := b.synthesisUnit(StageSynthesize, "synthesize.tmpl", answers)
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	text := contextText(t, reqs[0])
	assert.Contains(t, text, "3 candidate answers")
	assert.Contains(t, text, "Candidate 1:\nalpha answer")
	assert.Contains(t, text, "Candidate 2:\nbeta answer")
	assert.Contains(t, text, "Candidate 3:\ngamma answer")
}

func TestParallelSynthesisUnits_SplitIntoContiguousHalves(t *testing.T) {
	b := newPromptBuilder(Request{Query: "q"})
	answers := drafts(6)

	reqs, err := b.parallelSynthesisUnits(answers)
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	first := contextText(t, reqs[0])
	for _, want := range answers[:3] {
		assert.Contains(t, first, want)
	}
	for _, not := range answers[3:] {
		assert.NotContains(t, first, not)
	}

	second := contextText(t, reqs[1])
	for _, want := range answers[3:] {
		assert.Contains(t, second, want)
	}
	for _, not := range answers[:3] {
		assert.NotContains(t, second, not)
	}

	// Each half renumbers its candidates from 1.
	assert.Contains(t, second, "Candidate 1:")
	assert.NotContains(t, second, "Candidate 4:")
}

func TestRepairUnit_NormalizesTrailingNewline(t *testing.T) {
	b := newPromptBuilder(Request{Query: "q"})

	reqs, err := b.repairUnit("python", "x = (1", "line 1, column 5: syntax error near \"(1\"")
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	text := contextText(t, reqs[0])
	assert.Contains(t, text, "```python\nx = (1\n```")
	assert.Contains(t, text, "Checker report: line 1, column 5")
	assert.Equal(t, systemInstructions[StageVerify], reqs[0].SystemInstruction)
}
