package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/forge/internal/config"
)

// CreateModel creates a chat model from a provider config.
func CreateModel(ctx context.Context, cfg config.ProviderConfig) (model.BaseChatModel, error) {
	switch driver := strings.ToLower(cfg.Driver); driver {
	case "claude", "anthropic":
		cfg.Driver = "claude"
		key, err := ResolveAuth(cfg)
		if err != nil {
			return nil, fmt.Errorf("resolve auth: %w", err)
		}
		return NewClaude(ctx, cfg, key)
	case "openai", "mistral":
		key, err := ResolveAuth(cfg)
		if err != nil {
			return nil, fmt.Errorf("resolve auth: %w", err)
		}
		if driver == "mistral" && cfg.BaseURL == "" {
			cfg.BaseURL = defaultMistralBaseURL
		}
		return NewOpenAI(ctx, cfg, key)
	case "gemini", "google":
		cfg.Driver = "gemini"
		key, err := ResolveAuth(cfg)
		if err != nil {
			return nil, fmt.Errorf("resolve auth: %w", err)
		}
		return NewGemini(ctx, cfg, key)
	case "ollama":
		return NewOllama(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown driver: %s", cfg.Driver)
	}
}
