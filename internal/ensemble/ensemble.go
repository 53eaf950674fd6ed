// Package ensemble runs one user question through a staged pipeline of
// concurrent completion calls: independent drafts, cross-pollination,
// optional ring critique, synthesis into a single answer, and a final
// syntax check of the answer's first runnable code block.
package ensemble

import (
	"github.com/conclave-ai/conclave/internal/chat"
)

// StageKind identifies a pipeline stage.
type StageKind string

const (
	StageInitial            StageKind = "initial"
	StageElaborate          StageKind = "elaborate"
	StageRefine             StageKind = "refine"
	StageCritique           StageKind = "critique"
	StageRevise             StageKind = "revise"
	StageSynthesize         StageKind = "synthesize"
	StageParallelSynthesize StageKind = "parallel-synthesize"
	StageFinalSynthesize    StageKind = "final-synthesize"
	StageReview             StageKind = "review"
	StageVerify             StageKind = "verify"
)

// Stage is one step of a topology: a kind and how many units fan out.
type Stage struct {
	Kind  StageKind `json:"kind"`
	Units int       `json:"units"`
}

// ProgressStatus is the state of a unit within a stage.
type ProgressStatus string

const (
	ProgressPending  ProgressStatus = "pending"
	ProgressWorking  ProgressStatus = "working"
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
)

// ProgressEvent is emitted while a run is in flight. Single-unit stages use
// Unit 0 with Units 1.
type ProgressEvent struct {
	RunID   string         `json:"runId"`
	Stage   StageKind      `json:"stage"`
	Unit    int            `json:"unit"`
	Units   int            `json:"units"`
	Status  ProgressStatus `json:"status"`
	Message string         `json:"message,omitempty"`
}

// Request is everything one run depends on. History is a snapshot that
// excludes the in-flight turn and is never mutated here. RunID lets a
// caller pre-assign the run identifier; a fresh one is minted when empty.
type Request struct {
	Query      string
	History    []chat.Turn
	Attachment *chat.Attachment
	Agents     int
	Deep       bool
	RunID      string
}

// Result is the outcome of a successful run.
type Result struct {
	RunID      string `json:"runId"`
	Topology   string `json:"topology"`
	Answer     string `json:"answer"`
	Repaired   bool   `json:"repaired"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// ApologyMessage is the only text a failed run ever puts in front of the
// user. The underlying error goes to the log, never to the conversation.
const ApologyMessage = "Sorry, something went wrong while preparing your answer. Please try again."
