package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/bingsearch"
	duckduckgo "github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/forge/internal/config"
	"github.com/dohr-michael/forge/internal/tasks"
)

const (
	WebSearchToolName = "web_search"
	CategoryWeb       = "web"

	defaultSearchResults = 5
	defaultSearchTimeout = 15 * time.Second
)

// WebSearchTool delegates to the eino-ext search tool of the configured provider.
type WebSearchTool struct {
	provider string
	inner    tool.InvokableTool
}

// NewWebSearchTool builds the search tool for cfg.Provider: "duckduckgo"
// (default, keyless), "google" or "bing".
func NewWebSearchTool(ctx context.Context, cfg config.WebSearchConfig) (*WebSearchTool, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "duckduckgo"
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultSearchResults
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultSearchTimeout
	}

	var (
		inner tool.InvokableTool
		err   error
	)
	switch provider {
	case "duckduckgo":
		inner, err = duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
			ToolName:   WebSearchToolName,
			MaxResults: maxResults,
			Timeout:    timeout,
		})
	case "google":
		inner, err = googlesearch.NewTool(ctx, &googlesearch.Config{
			APIKey:         cfg.GoogleAPIKey,
			SearchEngineID: cfg.GoogleCX,
			Num:            maxResults,
			ToolName:       WebSearchToolName,
		})
	case "bing":
		inner, err = bingsearch.NewTool(ctx, &bingsearch.Config{
			APIKey:     cfg.BingAPIKey,
			MaxResults: maxResults,
			Timeout:    timeout,
			ToolName:   WebSearchToolName,
		})
	default:
		return nil, fmt.Errorf("web_search: unknown provider %q", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("web_search: init %s: %w", provider, err)
	}
	return &WebSearchTool{provider: provider, inner: inner}, nil
}

// WebSearchSpec declares the web_search tool. Only the planning roles may
// reach the network.
func WebSearchSpec() ToolSpec {
	return ToolSpec{
		Name:        WebSearchToolName,
		Description: "Search the web. Returns titles, URLs and snippets as JSON.",
		Category:    CategoryWeb,
		Parameters: map[string]ParamSpec{
			"query": {
				Type:        TypeString,
				Description: "The search query",
				Required:    true,
			},
		},
		Roles: []tasks.Role{tasks.RolePlanner, tasks.RoleArchitect},
	}
}

func (t *WebSearchTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return t.inner.Info(ctx)
}

func (t *WebSearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	out, err := t.inner.InvokableRun(ctx, argumentsInJSON, opts...)
	if err != nil {
		return "", fmt.Errorf("%s search: %w", t.provider, err)
	}
	return out, nil
}

var _ tool.InvokableTool = (*WebSearchTool)(nil)

// RegisterWebSearch registers web_search when cfg enables it.
func RegisterWebSearch(ctx context.Context, g *Gateway, cfg config.WebSearchConfig) error {
	if !cfg.Enabled {
		return nil
	}
	t, err := NewWebSearchTool(ctx, cfg)
	if err != nil {
		return err
	}
	return g.Register(WebSearchSpec(), t)
}
