package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dohr-michael/forge/internal/tasks"
	"github.com/dohr-michael/forge/internal/tools"
)

func TestToolSpecToMCPTool(t *testing.T) {
	spec := tools.ToolSpec{
		Name:        "test_tool",
		Description: "A test tool",
		Parameters: map[string]tools.ParamSpec{
			"name":  {Type: tools.TypeString, Description: "The name", Required: true},
			"count": {Type: tools.TypeNumber, Description: "A count", Default: 3.0},
			"mode":  {Type: tools.TypeString, Required: true, Enum: []string{"fast", "slow"}},
		},
	}

	mcpTool := toolSpecToMCPTool(spec)
	if mcpTool.Name != "test_tool" {
		t.Errorf("Name = %q, want %q", mcpTool.Name, "test_tool")
	}

	schemaBytes, err := json.Marshal(mcpTool.InputSchema)
	if err != nil {
		t.Fatalf("marshal InputSchema: %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		t.Fatalf("unmarshal InputSchema: %v", err)
	}

	if schema["type"] != "object" {
		t.Errorf("schema type = %v, want object", schema["type"])
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok || len(props) != 3 {
		t.Fatalf("schema properties = %v, want 3 entries", schema["properties"])
	}
	req, ok := schema["required"].([]any)
	if !ok || len(req) != 2 || req[0] != "mode" || req[1] != "name" {
		t.Errorf("schema required = %v, want [mode name]", schema["required"])
	}
	count, _ := props["count"].(map[string]any)
	if count["default"] != 3.0 {
		t.Errorf("count default = %v, want 3", count["default"])
	}
}

func TestToolSpecToMCPTool_NoRequired(t *testing.T) {
	mcpTool := toolSpecToMCPTool(tools.ToolSpec{Name: "simple"})

	schemaBytes, err := json.Marshal(mcpTool.InputSchema)
	if err != nil {
		t.Fatalf("marshal InputSchema: %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		t.Fatalf("unmarshal InputSchema: %v", err)
	}
	if _, ok := schema["required"]; ok {
		t.Error("schema should not have required field when no params are required")
	}
}

func newGateway(t *testing.T) *tools.Gateway {
	t.Helper()
	gw := tools.NewGateway()
	err := gw.RegisterFunc(tools.ToolSpec{
		Name:       "greet",
		Category:   tools.CategoryCustom,
		Parameters: map[string]tools.ParamSpec{"name": {Type: tools.TypeString, Required: true}},
	}, func(_ context.Context, p map[string]any) (any, error) {
		return map[string]any{"greeting": "hello " + p["name"].(string)}, nil
	})
	if err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	err = gw.RegisterFunc(tools.ToolSpec{
		Name:     "deploy",
		Category: tools.CategoryExec,
		Roles:    []tasks.Role{tasks.RoleTester},
	}, func(context.Context, map[string]any) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	return gw
}

func connect(t *testing.T, server *mcpsdk.Server) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	st, ct := mcpsdk.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "0"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func TestNewServer_RoleFiltersTools(t *testing.T) {
	cs := connect(t, NewServer(newGateway(t), tasks.RoleCoder))

	res, err := cs.ListTools(context.Background(), &mcpsdk.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(res.Tools) != 1 || res.Tools[0].Name != "greet" {
		names := make([]string, len(res.Tools))
		for i, tl := range res.Tools {
			names[i] = tl.Name
		}
		t.Errorf("tools = %v, want [greet]", names)
	}
}

func TestNewServer_CallGoesThroughGateway(t *testing.T) {
	gw := newGateway(t)
	cs := connect(t, NewServer(gw, ""))
	ctx := context.Background()

	ok, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: "greet", Arguments: map[string]any{"name": "ada"}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if ok.IsError {
		t.Fatalf("greet returned an error result: %+v", ok.Content)
	}
	text := ok.Content[0].(*mcpsdk.TextContent).Text
	if !strings.Contains(text, "hello ada") {
		t.Errorf("output = %q, want greeting", text)
	}

	bad, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: "greet", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !bad.IsError {
		t.Error("missing required param should produce an error result")
	}

	hist := gw.History(0)
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	if !hist[0].Success || hist[1].Success {
		t.Errorf("history success = [%v %v], want [true false]", hist[0].Success, hist[1].Success)
	}
}
