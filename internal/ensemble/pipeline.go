package ensemble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/conclave-ai/conclave/internal/codecheck"
	"github.com/conclave-ai/conclave/internal/fence"
	"github.com/conclave-ai/conclave/internal/llm"
)

// SyntaxChecker reports at most one diagnostic for a fenced code body.
// A nil diagnostic with a nil error means the body passed or the language
// is not checkable.
type SyntaxChecker interface {
	Check(lang, code string) (*codecheck.Diagnostic, error)
}

// Pipeline drives a topology end to end: fan out each stage, thread the
// outputs into the next stage's prompts, then verify and, when a checkable
// block fails, spend a single repair completion on it.
type Pipeline struct {
	client   llm.Client
	checker  SyntaxChecker
	reporter *Reporter
	tracker  *Tracker
	fan      *FanOut
	log      *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithChecker replaces the default syntax checker.
func WithChecker(checker SyntaxChecker) PipelineOption {
	return func(p *Pipeline) {
		p.checker = checker
	}
}

// WithLogger sets the logger used for run progress and repair decisions.
func WithLogger(log *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.log = log
	}
}

// NewPipeline builds a Pipeline around a completion client.
func NewPipeline(client llm.Client, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		client:   client,
		checker:  codecheck.New(),
		reporter: NewReporter(),
		tracker:  NewTracker(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.fan = NewFanOut(client, p.reporter.Emit)
	return p
}

// Events exposes the live progress stream for the current run.
func (p *Pipeline) Events() <-chan ProgressEvent {
	return p.reporter.Events()
}

// Progress returns a snapshot of per-stage completion for the current run.
func (p *Pipeline) Progress() map[StageKind]StageProgress {
	return p.tracker.Snapshot()
}

// Stages returns the current run's stages in execution order.
func (p *Pipeline) Stages() []StageKind {
	return p.tracker.Stages()
}

// Close releases the progress stream. The pipeline must not be reused.
func (p *Pipeline) Close() {
	p.reporter.Close()
}

// Run executes one full ensemble round for the request and returns the
// final answer. Any stage failure aborts the run; the caller decides what
// the user sees in that case.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("ensemble: empty query")
	}
	topo, err := Select(req.Agents, req.Deep)
	if err != nil {
		return nil, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	p.tracker.StartRun(runID, topo)
	p.log.Info("run started",
		"run_id", runID,
		"topology", topo.Name,
		"agents", topo.Agents,
		"stages", len(topo.Stages))

	builder := newPromptBuilder(req)
	result := &Result{RunID: runID, Topology: topo.Name}

	// outputs is the working set each stage consumes; critiques only exist
	// between the critique and revise stages.
	var outputs, critiques []string
	var answer string

	for _, stage := range topo.Stages {
		var reqs []llm.Request
		switch stage.Kind {
		case StageInitial:
			reqs, err = builder.initialUnits(stage.Units)
		case StageElaborate:
			reqs, err = builder.elaborateUnits(outputs)
		case StageRefine:
			reqs, err = builder.refineUnits(outputs)
		case StageCritique:
			reqs, err = builder.critiqueUnits(outputs)
		case StageRevise:
			reqs, err = builder.reviseUnits(outputs, critiques)
		case StageSynthesize:
			reqs, err = builder.synthesisUnit(StageSynthesize, "synthesize.tmpl", outputs)
		case StageParallelSynthesize:
			reqs, err = builder.parallelSynthesisUnits(outputs)
		case StageFinalSynthesize:
			reqs, err = builder.synthesisUnit(StageFinalSynthesize, "final_synthesize.tmpl", outputs)
		case StageReview:
			reqs, err = builder.reviewUnit(answer)
		case StageVerify:
			answer, err = p.verify(ctx, runID, builder, answer, result)
			if err != nil {
				return nil, err
			}
			continue
		default:
			err = fmt.Errorf("unknown stage %q", stage.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("ensemble: %s stage: %w", stage.Kind, err)
		}

		texts, err := p.fan.Run(ctx, runID, stage.Kind, reqs, func(unit int) {
			p.tracker.UnitDone(stage.Kind, unit)
		})
		if err != nil {
			p.log.Error("stage failed", "run_id", runID, "stage", stage.Kind, "error", err)
			return nil, fmt.Errorf("ensemble: %s stage: %w", stage.Kind, err)
		}

		switch stage.Kind {
		case StageCritique:
			critiques = texts
		case StageSynthesize, StageFinalSynthesize, StageReview:
			answer = texts[0]
		default:
			outputs = texts
		}
	}

	result.Answer = answer
	p.log.Info("run finished", "run_id", runID, "repaired", result.Repaired)
	return result, nil
}

// verify scans the answer for the first runnable fenced block, checks it,
// and spends at most one repair completion when the check fails. The
// corrected body is spliced back without re-validation.
func (p *Pipeline) verify(ctx context.Context, runID string, builder *promptBuilder, answer string, result *Result) (string, error) {
	block, ok := fence.First(answer, codecheck.Runnable)
	if !ok {
		p.passVerify(runID)
		return answer, nil
	}

	lang := codecheck.Normalize(block.Lang)
	diag, err := p.checker.Check(lang, block.Body)
	if err != nil {
		// A checker malfunction must not sink an otherwise good answer.
		p.log.Warn("syntax check failed", "run_id", runID, "lang", lang, "error", err)
		p.passVerify(runID)
		return answer, nil
	}
	if diag == nil {
		p.passVerify(runID)
		return answer, nil
	}

	p.log.Info("repairing code block",
		"run_id", runID,
		"lang", lang,
		"diagnostic", diag.String())
	reqs, err := builder.repairUnit(lang, block.Body, diag.String())
	if err != nil {
		return "", fmt.Errorf("ensemble: %s stage: %w", StageVerify, err)
	}
	texts, err := p.fan.Run(ctx, runID, StageVerify, reqs, func(unit int) {
		p.tracker.UnitDone(StageVerify, unit)
	})
	if err != nil {
		return "", fmt.Errorf("ensemble: %s stage: %w", StageVerify, err)
	}

	result.Repaired = true
	result.Diagnostic = diag.String()
	return fence.Replace(answer, block, repairBody(texts[0])), nil
}

// passVerify flips the verify stage without an upstream call.
func (p *Pipeline) passVerify(runID string) {
	p.tracker.UnitDone(StageVerify, 0)
	p.reporter.Emit(ProgressEvent{
		RunID:  runID,
		Stage:  StageVerify,
		Unit:   0,
		Units:  1,
		Status: ProgressComplete,
	})
}

// repairBody extracts the corrected code from a repair reply: the first
// fenced block if the model returned one, the trimmed reply otherwise.
func repairBody(reply string) string {
	if block, ok := fence.First(reply, func(string) bool { return true }); ok {
		return block.Body
	}
	return strings.TrimSpace(reply)
}
