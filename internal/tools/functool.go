package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Func is a plain tool body. A string result is returned verbatim; anything
// else is JSON-encoded.
type Func func(ctx context.Context, params map[string]any) (any, error)

// FuncTool adapts a Func to Eino's tool.InvokableTool.
type FuncTool struct {
	spec ToolSpec
	fn   Func
}

// NewFuncTool wraps fn under spec.
func NewFuncTool(spec ToolSpec, fn Func) *FuncTool {
	return &FuncTool{spec: spec, fn: fn}
}

// Info returns the tool info for Eino registration.
func (t *FuncTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.spec.ToolInfo(), nil
}

// InvokableRun decodes the arguments and calls the function.
func (t *FuncTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	params := map[string]any{}
	if argumentsInJSON != "" {
		if err := json.Unmarshal([]byte(argumentsInJSON), &params); err != nil {
			return "", fmt.Errorf("%s: parse input: %w", t.spec.Name, err)
		}
	}
	out, err := t.fn(ctx, params)
	if err != nil {
		return "", err
	}
	switch v := out.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("%s: marshal result: %w", t.spec.Name, err)
		}
		return string(data), nil
	}
}

var _ tool.InvokableTool = (*FuncTool)(nil)
