package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// mcpConfig represents the structure of a .mcp.json file.
type mcpConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

// conclaveMCPEntry is the MCP server configuration for the conclave binary.
var conclaveMCPEntry = json.RawMessage(`{
  "type": "stdio",
  "command": "conclave",
  "args": ["-serve-mcp"]
}`)

// starterConfig is the conclave.yml written by init.
const starterConfig = `version: 1

model:
  name: gemini-2.5-flash
  # temperature: 0.7
  api_key_env: GEMINI_API_KEY

ensemble:
  agents: 4
  deep: false

server:
  addr: localhost:8389

limits:
  attachment_mb: 8

log:
  level: INFO
  # file: conclave.log
`

// runInit writes a starter conclave.yml and registers the MCP server entry
// in .mcp.json in the target directory.
func runInit(dir string, force bool) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving target dir: %w", err)
	}

	cfgPath := filepath.Join(abs, "conclave.yml")
	if _, err := os.Stat(cfgPath); err == nil && !force {
		fmt.Printf("  skipped conclave.yml (exists, use -force to overwrite)\n")
	} else {
		if err := os.WriteFile(cfgPath, []byte(starterConfig), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", cfgPath, err)
		}
		fmt.Printf("  created %s\n", dotRelative(abs, cfgPath))
	}

	if err := mergeMCPConfig(filepath.Join(abs, ".mcp.json"), force); err != nil {
		return err
	}

	fmt.Println("\nSetup complete. Run 'conclave <question>' or start the MCP server with 'conclave -serve-mcp'.")
	return nil
}

// mergeMCPConfig creates or merges the conclave entry into .mcp.json.
func mergeMCPConfig(mcpPath string, force bool) error {
	var cfg mcpConfig

	data, err := os.ReadFile(mcpPath)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", mcpPath, err)
		}
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]json.RawMessage)
	}

	if _, exists := cfg.MCPServers["conclave"]; exists && !force {
		fmt.Printf("  skipped .mcp.json conclave entry (exists, use -force to overwrite)\n")
		return nil
	}

	cfg.MCPServers["conclave"] = conclaveMCPEntry

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling .mcp.json: %w", err)
	}

	if err := os.WriteFile(mcpPath, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", mcpPath, err)
	}

	action := "created"
	if data != nil {
		action = "updated"
	}
	fmt.Printf("  %s .mcp.json with conclave MCP server\n", action)
	return nil
}

// dotRelative returns a display path relative to the base dir, prefixed
// with "./".
func dotRelative(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return "./" + rel
}
