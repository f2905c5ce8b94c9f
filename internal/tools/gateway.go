package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/forge/internal/events"
	"github.com/dohr-michael/forge/internal/tasks"
)

var (
	// ErrNotFound is reported for an unknown tool name.
	ErrNotFound = errors.New("tool not found")
	// ErrValidation is reported when parameters do not match the tool's schema.
	ErrValidation = errors.New("invalid tool parameters")
	// ErrForbidden is reported when a role outside the tool's capability set invokes it.
	ErrForbidden = errors.New("tool not allowed for role")
	// ErrDuplicate is returned when registering a name twice.
	ErrDuplicate = errors.New("tool already registered")
)

// DefaultHistoryCap bounds the invocation history when no cap is configured.
const DefaultHistoryCap = 10000

// ToolInvocationResult records one call through the gateway. Failures are
// carried here and never returned as errors.
type ToolInvocationResult struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool"`
	TaskID    string         `json:"task_id,omitempty"`
	Role      tasks.Role     `json:"role,omitempty"`
	Params    map[string]any `json:"params"`
	Success   bool           `json:"success"`
	Output    string         `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	Err       error          `json:"-"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// Decode unmarshals a JSON tool output into out.
func (r ToolInvocationResult) Decode(out any) error {
	if !r.Success {
		return fmt.Errorf("%s failed: %s", r.Tool, r.Error)
	}
	return json.Unmarshal([]byte(r.Output), out)
}

// clone returns r with its parameters deep-copied.
func (r ToolInvocationResult) clone() ToolInvocationResult {
	r.Params = cloneParams(r.Params)
	return r
}

// cloneParams copies params down through nested maps and slices so a
// recorded invocation shares no mutable state with its caller.
func cloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneParams(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(v)
	case []float64:
		return slices.Clone(v)
	case []int:
		return slices.Clone(v)
	case []bool:
		return slices.Clone(v)
	default:
		return v
	}
}

type entry struct {
	spec ToolSpec
	impl tool.InvokableTool
}

// Gateway is the tool catalog plus its invocation history.
type Gateway struct {
	mu      sync.RWMutex
	tools   map[string]*entry
	history *history
	bus     *events.Bus
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithHistoryCap bounds the retained invocation history.
func WithHistoryCap(n int) GatewayOption {
	return func(g *Gateway) { g.history = newHistory(n) }
}

// WithBus publishes a tool_invoked event after each invocation.
func WithBus(bus *events.Bus) GatewayOption {
	return func(g *Gateway) { g.bus = bus }
}

// NewGateway creates an empty Gateway.
func NewGateway(opts ...GatewayOption) *Gateway {
	g := &Gateway{
		tools:   make(map[string]*entry),
		history: newHistory(DefaultHistoryCap),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register adds a tool under spec.Name.
func (g *Gateway) Register(spec ToolSpec, impl tool.InvokableTool) error {
	if spec.Name == "" {
		return fmt.Errorf("register tool: name is required")
	}
	if impl == nil {
		return fmt.Errorf("register tool %q: nil implementation", spec.Name)
	}
	for name, p := range spec.Parameters {
		if !knownType(p.Type) {
			return fmt.Errorf("register tool %q: parameter %q has unknown type %q", spec.Name, name, p.Type)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.tools[spec.Name]; ok {
		return fmt.Errorf("register tool %q: %w", spec.Name, ErrDuplicate)
	}
	g.tools[spec.Name] = &entry{spec: spec, impl: impl}
	slog.Debug("tool registered", "tool", spec.Name, "category", spec.Category)
	return nil
}

// RegisterFunc adds a plain function as a tool.
func (g *Gateway) RegisterFunc(spec ToolSpec, fn Func) error {
	return g.Register(spec, NewFuncTool(spec, fn))
}

// Spec returns the declaration of a registered tool.
func (g *Gateway) Spec(name string) (ToolSpec, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.tools[name]
	if !ok {
		return ToolSpec{}, false
	}
	return e.spec, true
}

// AvailableTo reports whether the named tool exists and role may invoke it.
func (g *Gateway) AvailableTo(role tasks.Role, name string) bool {
	spec, ok := g.Spec(name)
	return ok && spec.AllowedFor(role)
}

// ListForRole returns the tools role may invoke, sorted by name.
func (g *Gateway) ListForRole(role tasks.Role) []ToolSpec {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []ToolSpec
	for _, e := range g.tools {
		if e.spec.AllowedFor(role) {
			out = append(out, e.spec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// List returns every registered tool, sorted by name.
func (g *Gateway) List() []ToolSpec {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]ToolSpec, 0, len(g.tools))
	for _, name := range slices.Sorted(maps.Keys(g.tools)) {
		out = append(out, g.tools[name].spec)
	}
	return out
}

// ToolInfos returns Eino tool descriptors for role, for model tool binding.
func (g *Gateway) ToolInfos(role tasks.Role) []*schema.ToolInfo {
	specs := g.ListForRole(role)
	out := make([]*schema.ToolInfo, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.ToolInfo())
	}
	return out
}

// Invoke runs a tool without a role check.
func (g *Gateway) Invoke(ctx context.Context, name string, params map[string]any) ToolInvocationResult {
	return g.invoke(ctx, tasks.Role(events.RoleFromContext(ctx)), false, name, params)
}

// InvokeAs runs a tool on behalf of role, enforcing the tool's capability set.
func (g *Gateway) InvokeAs(ctx context.Context, role tasks.Role, name string, params map[string]any) ToolInvocationResult {
	return g.invoke(ctx, role, true, name, params)
}

func (g *Gateway) invoke(ctx context.Context, role tasks.Role, enforce bool, name string, params map[string]any) ToolInvocationResult {
	start := time.Now()
	res := ToolInvocationResult{
		ID:        tasks.NewID("call"),
		Tool:      name,
		TaskID:    events.TaskIDFromContext(ctx),
		Role:      role,
		Params:    cloneParams(params),
		StartedAt: start.UTC(),
	}
	if res.Params == nil {
		res.Params = map[string]any{}
	}

	res.Output, res.Err = g.run(ctx, role, enforce, name, &res)
	res.Duration = time.Since(start)
	if res.Err != nil {
		res.Error = res.Err.Error()
	} else {
		res.Success = true
	}

	g.history.add(res.clone())
	g.publish(res)
	if res.Err != nil {
		slog.Debug("tool invocation failed", "tool", name, "task_id", res.TaskID, "error", res.Err)
	}
	return res
}

func (g *Gateway) run(ctx context.Context, role tasks.Role, enforce bool, name string, res *ToolInvocationResult) (out string, err error) {
	g.mu.RLock()
	e, ok := g.tools[name]
	g.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if enforce && !e.spec.AllowedFor(role) {
		return "", fmt.Errorf("%s for %s: %w", name, role, ErrForbidden)
	}

	params := withDefaults(e.spec, res.Params)
	res.Params = params
	if err := validateParams(e.spec, params); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}

	args, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("%s: encode params: %w", name, err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
	}()
	if role != "" {
		ctx = events.ContextWithRole(ctx, string(role))
	}
	return e.impl.InvokableRun(ctx, string(args))
}

func (g *Gateway) publish(res ToolInvocationResult) {
	if g.bus == nil {
		return
	}
	_ = g.bus.Publish(events.NewTypedEvent(events.SourceTools, res.TaskID, events.ToolInvokedPayload{
		Tool:       res.Tool,
		Role:       string(res.Role),
		Success:    res.Success,
		Error:      res.Error,
		DurationMs: res.Duration.Milliseconds(),
	}))
}

// History returns up to limit recent invocations, oldest first. A limit of
// zero or less returns the whole retained history.
func (g *Gateway) History(limit int) []ToolInvocationResult {
	return g.history.get(limit)
}

// history is a bounded, append-only ring of invocation results. The oldest
// entry is evicted once the cap is reached.
type history struct {
	mu    sync.Mutex
	items []ToolInvocationResult
	cap   int
	pos   int
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &history{cap: capacity}
}

func (h *history) add(r ToolInvocationResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.items) < h.cap {
		h.items = append(h.items, r)
		return
	}
	h.items[h.pos] = r
	h.pos = (h.pos + 1) % h.cap
}

func (h *history) get(n int) []ToolInvocationResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	ordered := make([]ToolInvocationResult, 0, len(h.items))
	for _, r := range h.items[h.pos:] {
		ordered = append(ordered, r.clone())
	}
	for _, r := range h.items[:h.pos] {
		ordered = append(ordered, r.clone())
	}
	if n > 0 && n < len(ordered) {
		ordered = ordered[len(ordered)-n:]
	}
	if len(ordered) == 0 {
		return nil
	}
	return ordered
}
