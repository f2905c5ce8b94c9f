package config

import "time"

// Config is the root configuration for forge.
type Config struct {
	Models  ModelsConfig  `json:"models"`
	Engine  EngineConfig  `json:"engine"`
	Storage StorageConfig `json:"storage"`
	Gateway GatewayConfig `json:"gateway"`
	Events  EventsConfig  `json:"events"`
	Prompts PromptsConfig `json:"prompts"`
	Tools   ToolsConfig   `json:"tools"`
}

// ModelsConfig holds model provider configuration.
type ModelsConfig struct {
	Default   string                    `json:"default"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver    string         `json:"driver"` // "claude", "openai", "mistral", "gemini", "ollama"
	Model     string         `json:"model"`
	BaseURL   string         `json:"base_url,omitempty"`
	Auth      AuthConfig     `json:"auth"`
	MaxTokens int            `json:"max_tokens,omitempty"`
	Timeout   Duration       `json:"timeout,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// AuthConfig configures API key resolution.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty"` // Direct API key or ${{ .Env.VAR }} template
}

// EngineConfig governs task execution.
type EngineConfig struct {
	Mode              string `json:"mode"`            // "agent-driven" or "agent-assisted"
	AssistedPolicy    string `json:"assisted_policy"` // "lenient" or "strict"
	MaxSteps          int    `json:"max_steps"`
	GraphFile         string `json:"graph_file,omitempty"`
	TestCommand       string `json:"test_command,omitempty"`
	ReviewConcurrency int    `json:"review_concurrency"`
	ToolHistoryCap    int    `json:"tool_history_cap"`
	// CheckpointSchedule is a 5-field cron expression; forge serve
	// checkpoints running tasks on it. Empty disables.
	CheckpointSchedule string `json:"checkpoint_schedule,omitempty"`
}

// StorageConfig selects the task persistence backend.
type StorageConfig struct {
	Driver string `json:"driver"` // "file" or "sqlite"
	Dir    string `json:"dir"`
}

// GatewayConfig holds the HTTP gateway settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int    `json:"buffer_size"`
	LogDir     string `json:"log_dir,omitempty"`
}

// PromptsConfig points at a directory of prompt template overrides.
type PromptsConfig struct {
	Dir string `json:"dir,omitempty"`
}

// ToolsConfig configures optional tools beyond the native set.
type ToolsConfig struct {
	WebSearch WebSearchConfig `json:"web_search"`
}

// WebSearchConfig configures the web_search tool.
type WebSearchConfig struct {
	Enabled      bool     `json:"enabled"`
	Provider     string   `json:"provider,omitempty"` // "duckduckgo", "google" or "bing"
	MaxResults   int      `json:"max_results,omitempty"`
	Timeout      Duration `json:"timeout,omitempty"`
	GoogleAPIKey string   `json:"google_api_key,omitempty"`
	GoogleCX     string   `json:"google_cx,omitempty"`
	BingAPIKey   string   `json:"bing_api_key,omitempty"`
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
