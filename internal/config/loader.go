package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/tailscale/hujson"

	"github.com/dohr-michael/forge/internal/tasks"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates,
// standardizes it to plain JSON, unmarshals it into Config, applies defaults
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Default returns a config with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Parse decodes JSONC config bytes.
func Parse(data []byte) (*Config, error) {
	// Expand environment variable templates (before standardizing, since templates are in strings)
	expanded := expandEnvTemplates(string(data))

	std, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Engine.Mode == "" {
		cfg.Engine.Mode = string(tasks.ModeAgentDriven)
	}
	if cfg.Engine.AssistedPolicy == "" {
		cfg.Engine.AssistedPolicy = "lenient"
	}
	if cfg.Engine.MaxSteps == 0 {
		cfg.Engine.MaxSteps = 50
	}
	if cfg.Engine.ReviewConcurrency == 0 {
		cfg.Engine.ReviewConcurrency = 4
	}
	if cfg.Engine.ToolHistoryCap == 0 {
		cfg.Engine.ToolHistoryCap = 10000
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "file"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = filepath.Join(ForgePath(), "data")
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18430
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Events.LogDir == "" {
		cfg.Events.LogDir = filepath.Join(ForgePath(), "logs")
	}
	if cfg.Prompts.Dir == "" {
		cfg.Prompts.Dir = filepath.Join(ForgePath(), "prompts")
	}
	// Auth resolution is deferred to models.ResolveAuth() at model init time.
}

// Validate rejects settings the engine cannot honor.
func (c *Config) Validate() error {
	if !tasks.ExecutionMode(c.Engine.Mode).Valid() {
		return fmt.Errorf("engine.mode: unknown mode %q", c.Engine.Mode)
	}
	switch c.Engine.AssistedPolicy {
	case "lenient", "strict":
	default:
		return fmt.Errorf("engine.assisted_policy: unknown policy %q", c.Engine.AssistedPolicy)
	}
	if c.Engine.MaxSteps < 0 {
		return fmt.Errorf("engine.max_steps must not be negative")
	}
	switch c.Tools.WebSearch.Provider {
	case "", "duckduckgo", "google", "bing":
	default:
		return fmt.Errorf("tools.web_search.provider: unknown provider %q", c.Tools.WebSearch.Provider)
	}
	switch c.Storage.Driver {
	case "file", "sqlite":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if c.Models.Default != "" {
		if _, ok := c.Models.Providers[c.Models.Default]; !ok {
			return fmt.Errorf("models.default: provider %q is not configured", c.Models.Default)
		}
	}
	return nil
}
