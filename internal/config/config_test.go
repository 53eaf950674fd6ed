package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, cfg.Model.Name)
	assert.Equal(t, DefaultAPIKeyEnv, cfg.Model.APIKeyEnv)
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultAttachmentMB, cfg.Limits.AttachmentMB)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, 0, cfg.Ensemble.Agents, "agent count stays unset so the pipeline default applies")
	assert.Nil(t, cfg.Model.Temperature)
}

func TestLoad_ReadsYml(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "conclave.yml", `
version: 1
model:
  name: gemini-2.5-pro
  temperature: 0.4
  api_key_env: MY_KEY
ensemble:
  agents: 6
  deep: true
server:
  addr: 0.0.0.0:9000
limits:
  attachment_mb: 2
log:
  level: DEBUG
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "gemini-2.5-pro", cfg.Model.Name)
	require.NotNil(t, cfg.Model.Temperature)
	assert.InDelta(t, 0.4, float64(*cfg.Model.Temperature), 0.001)
	assert.Equal(t, "MY_KEY", cfg.Model.APIKeyEnv)
	assert.Equal(t, 6, cfg.Ensemble.Agents)
	assert.True(t, cfg.Ensemble.Deep)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, int64(2<<20), cfg.MaxAttachmentBytes())
	assert.Equal(t, "DEBUG", cfg.Log.Level)
}

func TestLoad_FallsBackToYamlExtension(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "conclave.yaml", "ensemble:\n  agents: 3\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Ensemble.Agents)
}

func TestLoad_YmlWinsOverYaml(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "conclave.yml", "ensemble:\n  agents: 4\n")
	writeConfig(t, dir, "conclave.yaml", "ensemble:\n  agents: 8\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Ensemble.Agents)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "conclave.yml", "model: [unclosed\n")

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conclave.yml")
}

func TestValidate_Bounds(t *testing.T) {
	temp := func(v float32) *float32 { return &v }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"agents too low", func(c *Config) { c.Ensemble.Agents = 1 }, "out of range"},
		{"agents too high", func(c *Config) { c.Ensemble.Agents = 9 }, "out of range"},
		{"temperature negative", func(c *Config) { c.Model.Temperature = temp(-0.1) }, "out of range"},
		{"temperature too hot", func(c *Config) { c.Model.Temperature = temp(2.5) }, "out of range"},
		{"attachment negative", func(c *Config) { c.Limits.AttachmentMB = -1 }, "must be positive"},
		{"log level unknown", func(c *Config) { c.Log.Level = "CHATTY" }, "not one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.withDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.withDefaults()
	assert.NoError(t, cfg.Validate())

	cfg.Log.Level = "debug"
	assert.NoError(t, cfg.Validate(), "level names are case-insensitive")
}

func TestAPIKey_ReadsConfiguredEnvVar(t *testing.T) {
	t.Setenv("CONCLAVE_TEST_KEY", "sk-123")

	cfg := &Config{Model: ModelConfig{APIKeyEnv: "CONCLAVE_TEST_KEY"}}
	assert.Equal(t, "sk-123", cfg.APIKey())
}
