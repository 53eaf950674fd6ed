package mcptools

// --- MCP Tool Input/Output Types ---
// These structs define the JSON schema for each MCP tool. The MCP Go SDK
// auto-generates JSON schemas from struct tags.

// AskInput is the input for the conclave_ask MCP tool.
type AskInput struct {
	Query   string `json:"query" jsonschema:"the question to answer"`
	Deep    bool   `json:"deep,omitempty" jsonschema:"run the six-agent deep topology"`
	Agents  int    `json:"agents,omitempty" jsonschema:"ensemble size (2-8, default from config)"`
	Session string `json:"session,omitempty" jsonschema:"session name; reusing a name threads conversation history"`
}

// AskOutput is the result of the conclave_ask MCP tool.
type AskOutput struct {
	Answer   string `json:"answer"`
	RunID    string `json:"runId"`
	Repaired bool   `json:"repaired"`
	Topology string `json:"topology"`
}

// TopologiesInput is the input for the conclave_topologies MCP tool.
type TopologiesInput struct{}

// TopologiesOutput is the result of the conclave_topologies MCP tool.
type TopologiesOutput struct {
	Topologies []TopologyInfo `json:"topologies"`
}

// TopologyInfo describes one selectable pipeline shape.
type TopologyInfo struct {
	Name   string   `json:"name"`
	Agents int      `json:"agents"`
	Stages []string `json:"stages"`
}

// TranscriptInput is the input for the conclave_transcript MCP tool.
type TranscriptInput struct {
	Session string `json:"session" jsonschema:"session name to read"`
}

// TranscriptOutput is the result of the conclave_transcript MCP tool.
type TranscriptOutput struct {
	Session string           `json:"session"`
	Turns   []TranscriptTurn `json:"turns"`
}

// TranscriptTurn is one conversation entry in a transcript.
type TranscriptTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}
