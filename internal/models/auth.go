package models

import (
	"fmt"
	"os"
	"strings"

	"github.com/dohr-michael/forge/internal/config"
)

// driverEnv is the fallback environment variable holding each driver's key.
var driverEnv = map[string]string{
	"claude":  "ANTHROPIC_API_KEY",
	"openai":  "OPENAI_API_KEY",
	"mistral": "MISTRAL_API_KEY",
	"gemini":  "GEMINI_API_KEY",
}

// ResolveAuth returns the API key for a provider.
// Resolution order: direct api_key (or ${VAR}) → driver default env.
func ResolveAuth(cfg config.ProviderConfig) (string, error) {
	key := strings.TrimSpace(cfg.Auth.APIKey)
	if strings.HasPrefix(key, "${") && strings.HasSuffix(key, "}") {
		key = os.Getenv(key[2 : len(key)-1])
	}
	if key != "" {
		return key, nil
	}

	env, ok := driverEnv[strings.ToLower(cfg.Driver)]
	if !ok {
		return "", fmt.Errorf("unknown driver %q: cannot resolve auth", cfg.Driver)
	}
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%s not set", env)
}
