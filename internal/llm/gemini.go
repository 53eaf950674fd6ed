package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/conclave-ai/conclave/internal/chat"
)

// Compile-time interface check.
var _ Client = (*Gemini)(nil)

const defaultModel = "gemini-2.5-flash"

// Gemini implements Client against the Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

// GeminiOption configures a Gemini client.
type GeminiOption func(*Gemini)

// WithModel selects the model name.
func WithModel(model string) GeminiOption {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) GeminiOption {
	return func(g *Gemini) {
		g.temperature = t
	}
}

// NewGemini creates a Gemini completion client.
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("llm: missing API key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create client: %w", err)
	}

	g := &Gemini{
		client:      client,
		model:       defaultModel,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Complete performs exactly one upstream call. An empty completion counts as
// malformed, so callers never receive an empty answer without an error.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	contents := toContents(req.History, req.Parts)

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", &UpstreamError{Op: "generate", Err: err}
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &UpstreamError{Op: "generate", Err: errors.New("empty completion")}
	}
	return text, nil
}

// toContents maps the history turn-for-turn onto upstream contents and
// appends the current-turn parts as the final user content.
func toContents(history []chat.Turn, parts []chat.Part) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		contents = append(contents, genai.NewContentFromParts(toParts(turn.Parts), toRole(turn.Role)))
	}
	if len(parts) > 0 {
		contents = append(contents, genai.NewContentFromParts(toParts(parts), genai.RoleUser))
	}
	return contents
}

func toRole(r chat.Role) genai.Role {
	if r == chat.RoleAgent {
		return genai.RoleModel
	}
	return genai.RoleUser
}

func toParts(parts []chat.Part) []*genai.Part {
	out := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.IsText() {
			out = append(out, genai.NewPartFromText(p.Text))
			continue
		}
		out = append(out, genai.NewPartFromBytes(p.Data, p.MediaType))
	}
	return out
}
