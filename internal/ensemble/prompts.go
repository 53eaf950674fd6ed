package ensemble

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/conclave-ai/conclave/internal/chat"
	"github.com/conclave-ai/conclave/internal/llm"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var stageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// systemInstructions give each stage its role line. The verify entry is the
// repair call's instruction; verification itself makes no completion call.
var systemInstructions = map[StageKind]string{
	StageInitial:            "You are one agent in an ensemble, answering the user's question independently.",
	StageElaborate:          "You expand and deepen your own earlier draft.",
	StageRefine:             "You improve your answer using the drafts of the other agents.",
	StageCritique:           "You are a strict reviewer of another agent's draft.",
	StageRevise:             "You revise your own draft using a peer critique.",
	StageSynthesize:         "You merge candidate answers into one final answer.",
	StageParallelSynthesize: "You merge several candidate answers into one partial answer.",
	StageFinalSynthesize:    "You merge partial answers into one final answer.",
	StageReview:             "You are the final reviewer before the answer reaches the user.",
	StageVerify:             "You fix broken code blocks precisely, changing as little as possible.",
}

// numbered is one peer or candidate answer as shown in a prompt.
type numbered struct {
	Num  int
	Text string
}

// ringTarget returns which unit's draft unit i critiques.
func ringTarget(i, n int) int { return (i + 1) % n }

// ringAuthor returns which unit wrote the critique of unit i's draft.
// Inverse of ringTarget: ringAuthor(ringTarget(i, n), n) == i.
func ringAuthor(i, n int) int { return (i - 1 + n) % n }

// promptBuilder renders per-unit completion requests for one run. The base
// parts (attachment first, then the query) and the history snapshot are
// shared verbatim by every request of the run; stage context rides in one
// extra text part at the end.
type promptBuilder struct {
	history []chat.Turn
	base    []chat.Part
}

func newPromptBuilder(req Request) *promptBuilder {
	return &promptBuilder{
		history: req.History,
		base:    chat.UserTurn(req.Query, req.Attachment).Parts,
	}
}

func (b *promptBuilder) request(kind StageKind, context string) llm.Request {
	parts := make([]chat.Part, 0, len(b.base)+1)
	parts = append(parts, b.base...)
	parts = append(parts, chat.NewTextPart(context))
	return llm.Request{
		History:           b.history,
		Parts:             parts,
		SystemInstruction: systemInstructions[kind],
	}
}

// initialUnits are identical: the units diverge through sampling alone.
func (b *promptBuilder) initialUnits(n int) ([]llm.Request, error) {
	context, err := render("initial.tmpl", nil)
	if err != nil {
		return nil, err
	}
	reqs := make([]llm.Request, n)
	for i := range reqs {
		reqs[i] = b.request(StageInitial, context)
	}
	return reqs, nil
}

func (b *promptBuilder) elaborateUnits(drafts []string) ([]llm.Request, error) {
	reqs := make([]llm.Request, len(drafts))
	for i, draft := range drafts {
		context, err := render("elaborate.tmpl", struct{ Draft string }{draft})
		if err != nil {
			return nil, err
		}
		reqs[i] = b.request(StageElaborate, context)
	}
	return reqs, nil
}

// refineUnits give every unit all of its peers' drafts. Peer numbering is
// stable (ascending unit order) and excludes the unit itself.
func (b *promptBuilder) refineUnits(drafts []string) ([]llm.Request, error) {
	reqs := make([]llm.Request, len(drafts))
	for i, draft := range drafts {
		peers := make([]numbered, 0, len(drafts)-1)
		for j, text := range drafts {
			if j == i {
				continue
			}
			peers = append(peers, numbered{Num: len(peers) + 1, Text: text})
		}
		context, err := render("refine.tmpl", struct {
			Draft string
			Peers []numbered
		}{draft, peers})
		if err != nil {
			return nil, err
		}
		reqs[i] = b.request(StageRefine, context)
	}
	return reqs, nil
}

// critiqueUnits pair the units in a ring: unit i reviews the draft of unit
// (i+1) mod n, so no unit ever reviews itself.
func (b *promptBuilder) critiqueUnits(drafts []string) ([]llm.Request, error) {
	n := len(drafts)
	reqs := make([]llm.Request, n)
	for i := range drafts {
		context, err := render("critique.tmpl", struct{ Draft string }{drafts[ringTarget(i, n)]})
		if err != nil {
			return nil, err
		}
		reqs[i] = b.request(StageCritique, context)
	}
	return reqs, nil
}

// reviseUnits hand each unit its own draft plus the critique written about
// that draft, which unit (i-1+n) mod n authored.
func (b *promptBuilder) reviseUnits(drafts, critiques []string) ([]llm.Request, error) {
	n := len(drafts)
	reqs := make([]llm.Request, n)
	for i, draft := range drafts {
		context, err := render("revise.tmpl", struct {
			Draft    string
			Critique string
		}{draft, critiques[ringAuthor(i, n)]})
		if err != nil {
			return nil, err
		}
		reqs[i] = b.request(StageRevise, context)
	}
	return reqs, nil
}

func (b *promptBuilder) synthesisUnit(kind StageKind, tmpl string, answers []string) ([]llm.Request, error) {
	list := make([]numbered, len(answers))
	for i, text := range answers {
		list[i] = numbered{Num: i + 1, Text: text}
	}
	context, err := render(tmpl, struct{ Answers []numbered }{list})
	if err != nil {
		return nil, err
	}
	return []llm.Request{b.request(kind, context)}, nil
}

// parallelSynthesisUnits split the answers into two contiguous halves, one
// synthesis unit per half.
func (b *promptBuilder) parallelSynthesisUnits(answers []string) ([]llm.Request, error) {
	mid := len(answers) / 2
	first, err := b.synthesisUnit(StageParallelSynthesize, "synthesize.tmpl", answers[:mid])
	if err != nil {
		return nil, err
	}
	second, err := b.synthesisUnit(StageParallelSynthesize, "synthesize.tmpl", answers[mid:])
	if err != nil {
		return nil, err
	}
	return append(first, second...), nil
}

func (b *promptBuilder) reviewUnit(answer string) ([]llm.Request, error) {
	context, err := render("review.tmpl", struct{ Draft string }{answer})
	if err != nil {
		return nil, err
	}
	return []llm.Request{b.request(StageReview, context)}, nil
}

func (b *promptBuilder) repairUnit(lang, code, diagnostic string) ([]llm.Request, error) {
	if code != "" && !strings.HasSuffix(code, "\n") {
		code += "\n"
	}
	context, err := render("repair.tmpl", struct {
		Lang       string
		Code       string
		Diagnostic string
	}{lang, code, diagnostic})
	if err != nil {
		return nil, err
	}
	return []llm.Request{b.request(StageVerify, context)}, nil
}

func render(name string, data any) (string, error) {
	var sb strings.Builder
	if err := stageTemplates.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return sb.String(), nil
}
