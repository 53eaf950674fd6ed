// Package config loads project-level settings from conclave.yml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conclave-ai/conclave/internal/logging"
)

// Defaults applied by withDefaults when the config file omits a value.
const (
	DefaultModel        = "gemini-2.5-flash"
	DefaultAPIKeyEnv    = "GEMINI_API_KEY"
	DefaultAddr         = "localhost:8389"
	DefaultAttachmentMB = 8
	DefaultLogLevel     = "INFO"
)

// Config holds settings loaded from conclave.yml.
type Config struct {
	Version  int            `yaml:"version,omitempty"`
	Model    ModelConfig    `yaml:"model,omitempty"`
	Ensemble EnsembleConfig `yaml:"ensemble,omitempty"`
	Server   ServerConfig   `yaml:"server,omitempty"`
	Limits   LimitsConfig   `yaml:"limits,omitempty"`
	Log      LogConfig      `yaml:"log,omitempty"`
}

// ModelConfig selects the upstream model and how to find its key.
type ModelConfig struct {
	Name        string   `yaml:"name,omitempty"`
	Temperature *float32 `yaml:"temperature,omitempty"`
	APIKeyEnv   string   `yaml:"api_key_env,omitempty"`
}

// EnsembleConfig sets the default run shape.
type EnsembleConfig struct {
	Agents int  `yaml:"agents,omitempty"`
	Deep   bool `yaml:"deep,omitempty"`
}

// ServerConfig holds HTTP serving settings.
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// LimitsConfig bounds what a request may carry.
type LimitsConfig struct {
	AttachmentMB int `yaml:"attachment_mb,omitempty"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
	File  string `yaml:"file,omitempty"`
}

// Load reads conclave.yml or conclave.yaml from dir. A missing file is not
// an error: defaults apply. A file that exists but does not parse or does
// not validate is an error.
func Load(dir string) (*Config, error) {
	for _, name := range []string{"conclave.yml", "conclave.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		cfg.withDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return &cfg, nil
	}
	cfg := &Config{}
	cfg.withDefaults()
	return cfg, nil
}

func (c *Config) withDefaults() {
	if c.Model.Name == "" {
		c.Model.Name = DefaultModel
	}
	if c.Model.APIKeyEnv == "" {
		c.Model.APIKeyEnv = DefaultAPIKeyEnv
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Limits.AttachmentMB == 0 {
		c.Limits.AttachmentMB = DefaultAttachmentMB
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Validate rejects settings the pipeline would refuse at run time anyway,
// so a bad config fails at startup instead of on the first question.
func (c *Config) Validate() error {
	if a := c.Ensemble.Agents; a != 0 && (a < 2 || a > 8) {
		return fmt.Errorf("ensemble.agents %d out of range 2-8", a)
	}
	if t := c.Model.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("model.temperature %v out of range 0-2", *t)
	}
	if c.Limits.AttachmentMB < 0 {
		return fmt.Errorf("limits.attachment_mb %d must be positive", c.Limits.AttachmentMB)
	}
	if lv := c.Log.Level; lv != "" && !slices.Contains(logging.ValidLevels(), strings.ToUpper(lv)) {
		return fmt.Errorf("log.level %q not one of %s", lv, strings.Join(logging.ValidLevels(), ", "))
	}
	return nil
}

// APIKey resolves the upstream key from the configured environment variable.
func (c *Config) APIKey() string {
	return os.Getenv(c.Model.APIKeyEnv)
}

// MaxAttachmentBytes converts the configured megabyte cap to bytes.
func (c *Config) MaxAttachmentBytes() int64 {
	return int64(c.Limits.AttachmentMB) << 20
}
