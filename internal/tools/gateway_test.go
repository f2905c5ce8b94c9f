package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dohr-michael/forge/internal/events"
	"github.com/dohr-michael/forge/internal/tasks"
)

func echoSpec() ToolSpec {
	return ToolSpec{
		Name:     "echo",
		Category: CategoryCustom,
		Parameters: map[string]ParamSpec{
			"text":  {Type: TypeString, Required: true},
			"times": {Type: TypeNumber, Default: 1.0},
			"loud":  {Type: TypeBoolean},
			"tags":  {Type: TypeArray},
		},
	}
}

func newEchoGateway(t *testing.T, opts ...GatewayOption) *Gateway {
	t.Helper()
	g := NewGateway(opts...)
	err := g.RegisterFunc(echoSpec(), func(_ context.Context, p map[string]any) (any, error) {
		return map[string]any{"text": p["text"], "times": p["times"]}, nil
	})
	if err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	return g
}

func TestInvoke_SequentialReadFileHistory(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.ts"), []byte("export const a = 1;\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	g := NewGateway()
	if err := RegisterNative(g, root); err != nil {
		t.Fatalf("RegisterNative: %v", err)
	}

	ctx := context.Background()
	first := g.Invoke(ctx, "read_file", map[string]any{"path": "a.ts"})
	second := g.Invoke(ctx, "read_file", map[string]any{"path": "a.ts"})

	hist := g.History(0)
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	if hist[0].ID != first.ID || hist[1].ID != second.ID {
		t.Errorf("history order = [%s %s], want [%s %s]", hist[0].ID, hist[1].ID, first.ID, second.ID)
	}
	for i, h := range hist {
		if !h.Success {
			t.Errorf("entry %d failed: %s", i, h.Error)
		}
		if h.Duration < 0 {
			t.Errorf("entry %d has negative duration %v", i, h.Duration)
		}
	}

	var out ReadFileOutput
	if err := first.Decode(&out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !strings.Contains(out.Content, "export const a") {
		t.Errorf("content = %q", out.Content)
	}
}

func TestInvoke_MissingRequiredParam(t *testing.T) {
	g := newEchoGateway(t)

	res := g.Invoke(context.Background(), "echo", map[string]any{"times": 2})
	if res.Success {
		t.Fatal("expected failure")
	}
	if !errors.Is(res.Err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", res.Err)
	}
	if !strings.Contains(res.Error, `"text"`) {
		t.Errorf("message %q does not name the missing field", res.Error)
	}
	if len(g.History(0)) != 1 {
		t.Errorf("validation failure not recorded in history")
	}
}

func TestInvoke_TypeMismatch(t *testing.T) {
	g := newEchoGateway(t)

	cases := map[string]map[string]any{
		"times": {"text": "hi", "times": "three"},
		"loud":  {"text": "hi", "loud": "yes"},
		"tags":  {"text": "hi", "tags": "a,b"},
		"text":  {"text": 42},
	}
	for field, params := range cases {
		res := g.Invoke(context.Background(), "echo", params)
		if res.Success || !errors.Is(res.Err, ErrValidation) {
			t.Errorf("%s: result = %+v, want validation failure", field, res)
			continue
		}
		if !strings.Contains(res.Error, `"`+field+`"`) {
			t.Errorf("%s: message %q does not name the field", field, res.Error)
		}
	}

	ok := g.Invoke(context.Background(), "echo", map[string]any{"text": "hi", "times": 3, "loud": true, "tags": []string{"a"}})
	if !ok.Success {
		t.Errorf("valid params rejected: %s", ok.Error)
	}
}

func TestInvoke_AppliesDefaults(t *testing.T) {
	g := newEchoGateway(t)
	res := g.Invoke(context.Background(), "echo", map[string]any{"text": "hi"})
	if !res.Success {
		t.Fatalf("Invoke: %s", res.Error)
	}
	if res.Params["times"] != 1.0 {
		t.Errorf("default not applied: %v", res.Params)
	}
	var out map[string]any
	if err := res.Decode(&out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out["times"] != 1.0 {
		t.Errorf("tool saw times = %v", out["times"])
	}
}

func TestInvoke_UnknownTool(t *testing.T) {
	g := NewGateway()
	res := g.Invoke(context.Background(), "nope", nil)
	if res.Success || !errors.Is(res.Err, ErrNotFound) {
		t.Errorf("result = %+v, want ErrNotFound", res)
	}
}

func TestInvoke_CancelledContext(t *testing.T) {
	g := NewGateway()
	called := false
	_ = g.RegisterFunc(ToolSpec{Name: "slow"}, func(context.Context, map[string]any) (any, error) {
		called = true
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := g.Invoke(ctx, "slow", nil)
	if res.Success || !errors.Is(res.Err, context.Canceled) {
		t.Errorf("result = %+v, want context.Canceled", res)
	}
	if called {
		t.Error("tool ran on a cancelled context")
	}
}

func TestInvoke_ToolErrorAndPanic(t *testing.T) {
	g := NewGateway()
	_ = g.RegisterFunc(ToolSpec{Name: "fail"}, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("disk full")
	})
	_ = g.RegisterFunc(ToolSpec{Name: "explode"}, func(context.Context, map[string]any) (any, error) {
		panic("boom")
	})

	if res := g.Invoke(context.Background(), "fail", nil); res.Success || res.Error != "disk full" {
		t.Errorf("fail result = %+v", res)
	}
	if res := g.Invoke(context.Background(), "explode", nil); res.Success || !strings.Contains(res.Error, "panicked") {
		t.Errorf("explode result = %+v", res)
	}
}

func TestInvokeAs_Forbidden(t *testing.T) {
	g := NewGateway()
	if err := RegisterNative(g, t.TempDir()); err != nil {
		t.Fatalf("RegisterNative: %v", err)
	}

	res := g.InvokeAs(context.Background(), tasks.RolePlanner, "write_file", map[string]any{"path": "x.txt", "content": "x"})
	if res.Success || !errors.Is(res.Err, ErrForbidden) {
		t.Errorf("result = %+v, want ErrForbidden", res)
	}
	if res := g.InvokeAs(context.Background(), tasks.RoleCoder, "write_file", map[string]any{"path": "x.txt", "content": "x"}); !res.Success {
		t.Errorf("coder write_file failed: %s", res.Error)
	}
}

func TestListForRole(t *testing.T) {
	g := NewGateway()
	if err := RegisterNative(g, t.TempDir()); err != nil {
		t.Fatalf("RegisterNative: %v", err)
	}

	names := func(specs []ToolSpec) string {
		var out []string
		for _, s := range specs {
			out = append(out, s.Name)
		}
		return strings.Join(out, ",")
	}
	if got := names(g.ListForRole(tasks.RolePlanner)); got != "list_files,read_file" {
		t.Errorf("planner tools = %s", got)
	}
	if got := names(g.ListForRole(tasks.RoleCoder)); got != "list_files,read_file,run_command,write_file" {
		t.Errorf("coder tools = %s", got)
	}
	if got := names(g.ListForRole(tasks.RoleTester)); got != "list_files,read_file,run_command" {
		t.Errorf("tester tools = %s", got)
	}
	if infos := g.ToolInfos(tasks.RoleCoder); len(infos) != 4 || infos[0].Name != "list_files" {
		t.Errorf("ToolInfos = %+v", infos)
	}
}

func TestRegister_Rejects(t *testing.T) {
	g := newEchoGateway(t)
	if err := g.RegisterFunc(echoSpec(), func(context.Context, map[string]any) (any, error) { return nil, nil }); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate: err = %v", err)
	}
	bad := ToolSpec{Name: "bad", Parameters: map[string]ParamSpec{"x": {Type: "date"}}}
	if err := g.RegisterFunc(bad, func(context.Context, map[string]any) (any, error) { return nil, nil }); err == nil {
		t.Error("unknown parameter type accepted")
	}
}

func TestHistory_EvictsOldest(t *testing.T) {
	g := newEchoGateway(t, WithHistoryCap(3))
	for _, text := range []string{"a", "b", "c", "d", "e"} {
		g.Invoke(context.Background(), "echo", map[string]any{"text": text})
	}
	hist := g.History(0)
	if len(hist) != 3 {
		t.Fatalf("history length = %d, want 3", len(hist))
	}
	for i, want := range []string{"c", "d", "e"} {
		if hist[i].Params["text"] != want {
			t.Errorf("hist[%d] = %v, want %s", i, hist[i].Params["text"], want)
		}
	}
	if last := g.History(1); len(last) != 1 || last[0].Params["text"] != "e" {
		t.Errorf("History(1) = %+v", last)
	}
}

func TestHistory_IsolatedFromCallerParams(t *testing.T) {
	g := newEchoGateway(t)
	tags := []any{"a", "b"}
	params := map[string]any{"text": "hi", "tags": tags}
	res := g.Invoke(context.Background(), "echo", params)
	if !res.Success {
		t.Fatalf("invoke failed: %s", res.Error)
	}

	tags[0] = "mutated"
	params["text"] = "changed"
	res.Params["tags"].([]any)[1] = "mutated"

	hist := g.History(0)
	if len(hist) != 1 {
		t.Fatalf("history length = %d", len(hist))
	}
	got := hist[0].Params
	if got["text"] != "hi" {
		t.Errorf("text = %v, want hi", got["text"])
	}
	if rec := got["tags"].([]any); rec[0] != "a" || rec[1] != "b" {
		t.Errorf("tags = %v, want [a b]", rec)
	}

	hist[0].Params["tags"].([]any)[0] = "mutated"
	if again := g.History(0)[0].Params["tags"].([]any); again[0] != "a" {
		t.Errorf("history entry changed through a returned copy: %v", again)
	}
}

func TestInvoke_PublishesEvent(t *testing.T) {
	bus := events.NewBus(16)
	g := newEchoGateway(t, WithBus(bus))

	ctx := events.ContextWithTaskID(context.Background(), "task_1")
	g.InvokeAs(ctx, tasks.RoleTester, "echo", map[string]any{"text": "hi"})

	hist := bus.History(0)
	if len(hist) != 1 {
		t.Fatalf("events = %d, want 1", len(hist))
	}
	p, ok := events.ExtractPayload[events.ToolInvokedPayload](hist[0])
	if !ok {
		t.Fatal("payload not a ToolInvokedPayload")
	}
	if hist[0].TaskID != "task_1" || p.Tool != "echo" || p.Role != "tester" || !p.Success {
		t.Errorf("event = %+v payload = %+v", hist[0], p)
	}
}
