package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/forge/internal/config"
	"github.com/dohr-michael/forge/internal/secrets"
)

// NewInitCommand returns the onboarding subcommand.
func NewInitCommand() *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Initialize the forge home directory (~/.forge)",
		Action: runInit,
	}
}

func runInit(_ context.Context, _ *cli.Command) error {
	root := config.ForgePath()
	created := false

	dirs := []string{
		root,
		filepath.Join(root, "data"),
		filepath.Join(root, "logs"),
		filepath.Join(root, "prompts"),
	}
	for _, d := range dirs {
		if _, err := os.Stat(d); err != nil {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", d, err)
			}
			fmt.Printf("  Created %s\n", d)
			created = true
		}
	}

	files := []struct {
		path    string
		content string
		perm    os.FileMode
	}{
		{config.ConfigPath(), defaultConfig, 0o644},
		{config.DotenvPath(), defaultDotenv, 0o600},
	}
	for _, f := range files {
		if _, err := os.Stat(f.path); err == nil {
			continue
		}
		if err := os.WriteFile(f.path, []byte(f.content), f.perm); err != nil {
			return fmt.Errorf("write %s: %w", f.path, err)
		}
		fmt.Printf("  Created %s\n", f.path)
		created = true
	}

	keyPath := config.KeyPath()
	if _, err := os.Stat(keyPath); err != nil {
		if err := secrets.GenerateIdentity(keyPath); err != nil {
			return err
		}
		fmt.Printf("  Created %s\n", keyPath)
		created = true
	}

	if !created {
		fmt.Printf("%s is already initialized. Nothing to do.\n", root)
		return nil
	}

	fmt.Printf(`
  forge home set up at %s

  Next steps:
    1. Store your API key: forge secret set --encrypt ANTHROPIC_API_KEY sk-ant-...
    2. Tweak %s if you feel like it
    3. Run: forge run "Add a health endpoint" --project .
`, root, config.ConfigPath())
	return nil
}

const defaultConfig = `{
	// forge configuration

	"models": {
		"default": "claude",
		"providers": {
			"claude": {
				"driver": "claude",
				"model": "claude-sonnet-4-20250514",
				"auth": {
					"api_key": "${{ .Env.ANTHROPIC_API_KEY }}"
				},
				"max_tokens": 8192
			}

			// Local model via Ollama (no auth required)
			// "local": {
			// 	"driver": "ollama",
			// 	"model": "qwen2.5-coder:14b",
			// 	"base_url": "http://localhost:11434"
			// }
		}
	},

	"engine": {
		// "agent-driven" stops at the first worker failure,
		// "agent-assisted" records it and moves on.
		"mode": "agent-driven",
		"assisted_policy": "lenient",
		"max_steps": 50,
		"review_concurrency": 4
		// "test_command": "go test ./...",
		// "graph_file": "~/.forge/graph.yaml",
		// "checkpoint_schedule": "*/15 * * * *"
	},

	"storage": {
		"driver": "file"
	},

	"gateway": {
		"host": "127.0.0.1",
		"port": 18430
	},

	"events": {
		"buffer_size": 1024
	},

	"tools": {
		// Lets the planner and architect search the web.
		"web_search": {
			"enabled": false,
			"provider": "duckduckgo"
		}
	}
}
`

const defaultDotenv = `# forge environment variables
# This file is loaded automatically. Existing env vars are never overridden.
# Values written with "forge secret set --encrypt" are stored as ENC[age:...].

# ANTHROPIC_API_KEY=sk-ant-...
# OPENAI_API_KEY=sk-...
# GEMINI_API_KEY=...
`
