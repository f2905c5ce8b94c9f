package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dohr-michael/forge/internal/tasks"
	"github.com/dohr-michael/forge/internal/tools"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// NewServer creates an MCP server exposing the gateway's tools. With a
// non-empty role only the tools in that role's capability set are listed,
// and calls are checked against it. Every call goes through the gateway, so
// it is validated and recorded in the invocation history.
func NewServer(gw *tools.Gateway, role tasks.Role) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "forge",
		Version: Version,
	}, nil)

	specs := gw.List()
	if role != "" {
		specs = gw.ListForRole(role)
	}

	for _, spec := range specs {
		name := spec.Name
		server.AddTool(toolSpecToMCPTool(spec), func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			params := map[string]any{}
			if len(req.Params.Arguments) > 0 {
				if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
					return errorResult("invalid arguments: " + err.Error()), nil
				}
			}

			var res tools.ToolInvocationResult
			if role != "" {
				res = gw.InvokeAs(ctx, role, name, params)
			} else {
				res = gw.Invoke(ctx, name, params)
			}
			if !res.Success {
				slog.Debug("mcp tool error", "tool", name, "error", res.Error)
				return errorResult(res.Error), nil
			}
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: res.Output}},
			}, nil
		})

		slog.Debug("mcp tool registered", "tool", name)
	}

	return server
}

func errorResult(msg string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: msg}},
	}
}
