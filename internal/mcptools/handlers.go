package mcptools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/conclave-ai/conclave/internal/chat"
	"github.com/conclave-ai/conclave/internal/config"
	"github.com/conclave-ai/conclave/internal/ensemble"
)

// Runner executes one ensemble run. The pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, req ensemble.Request) (*ensemble.Result, error)
}

// Service handles MCP tool calls. It wraps a Runner to answer questions and
// a session store to thread conversation history across calls.
type Service struct {
	cfg    config.Config
	runner Runner
	store  *chat.Store
}

// NewService creates a Service with the given config, runner and store.
func NewService(cfg config.Config, runner Runner, store *chat.Store) *Service {
	return &Service{
		cfg:    cfg,
		runner: runner,
		store:  store,
	}
}

// Ask runs the ensemble for one question and returns the final answer.
// Session names are created on first use, so a client threads a conversation
// just by repeating the same name.
func (s *Service) Ask(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, AskOutput{}, fmt.Errorf("empty query")
	}

	agents := input.Agents
	if agents == 0 {
		agents = s.cfg.Ensemble.Agents
	}
	deep := input.Deep || s.cfg.Ensemble.Deep

	// Reject bad shape parameters with a real message; only run failures
	// are reduced to the apology.
	if _, err := ensemble.Select(agents, deep); err != nil {
		return nil, AskOutput{}, err
	}

	req := ensemble.Request{Query: query, Agents: agents, Deep: deep}
	if input.Session != "" {
		s.store.Ensure(input.Session)
		history, _ := s.store.Snapshot(input.Session)
		req.History = history
	}

	res, err := s.runner.Run(ctx, req)
	if err != nil {
		return nil, AskOutput{}, errors.New(ensemble.ApologyMessage)
	}

	if input.Session != "" {
		// Ensure above guarantees the session exists.
		_ = s.store.Append(input.Session, chat.UserTurn(query, nil), chat.AgentTurn(res.Answer))
	}

	return nil, AskOutput{
		Answer:   res.Answer,
		RunID:    res.RunID,
		Repaired: res.Repaired,
		Topology: res.Topology,
	}, nil
}

// Topologies lists every selectable pipeline shape.
func (s *Service) Topologies(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ TopologiesInput,
) (*mcp.CallToolResult, TopologiesOutput, error) {
	shapes := ensemble.Topologies()

	out := TopologiesOutput{Topologies: make([]TopologyInfo, len(shapes))}
	for i, tp := range shapes {
		stages := make([]string, len(tp.Stages))
		for j, st := range tp.Stages {
			stages[j] = string(st.Kind)
		}
		out.Topologies[i] = TopologyInfo{
			Name:   tp.Name,
			Agents: tp.Agents,
			Stages: stages,
		}
	}
	return nil, out, nil
}

// Transcript returns the conversation history of a named session.
func (s *Service) Transcript(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input TranscriptInput,
) (*mcp.CallToolResult, TranscriptOutput, error) {
	history, ok := s.store.Snapshot(input.Session)
	if !ok {
		return nil, TranscriptOutput{}, fmt.Errorf("unknown session %q", input.Session)
	}

	out := TranscriptOutput{Session: input.Session, Turns: make([]TranscriptTurn, len(history))}
	for i, turn := range history {
		out.Turns[i] = TranscriptTurn{Role: string(turn.Role), Text: turn.Text()}
	}
	return nil, out, nil
}
