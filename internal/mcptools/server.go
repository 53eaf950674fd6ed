package mcptools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/conclave-ai/conclave/internal/chat"
	"github.com/conclave-ai/conclave/internal/config"
)

// version is set by the linker at build time.
var version = "dev"

// NewServer creates an MCP server with the 3 conclave tools registered:
// conclave_ask, conclave_topologies, and conclave_transcript.
func NewServer(cfg config.Config, runner Runner, store *chat.Store) *mcp.Server {
	svc := NewService(cfg, runner, store)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "conclave",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "conclave_ask",
		Description: "Answer a question with a multi-agent ensemble. Several agents draft, refine and merge candidate answers before one is returned. Pass a session name to thread follow-up questions.",
	}, svc.Ask)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "conclave_topologies",
		Description: "List the selectable ensemble shapes: name, agent count and stage order for each.",
	}, svc.Topologies)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "conclave_transcript",
		Description: "Read the conversation history of a named session created by conclave_ask.",
	}, svc.Transcript)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
