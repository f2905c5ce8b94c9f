package agents

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/forge/internal/prompts"
	"github.com/dohr-michael/forge/internal/tasks"
	"github.com/dohr-michael/forge/internal/tools"
)

// scriptedModel answers by the role named in the system prompt.
type scriptedModel struct {
	mu      sync.Mutex
	answer  func(role, prompt string) (string, error)
	prompts []string
}

func (m *scriptedModel) Complete(_ context.Context, msgs []*schema.Message) (string, error) {
	var system, prompt string
	for _, msg := range msgs {
		switch msg.Role {
		case schema.System:
			system = msg.Content
		case schema.User:
			prompt = msg.Content
		}
	}
	role := ""
	for _, r := range []string{"planner", "architect", "coder", "tester", "reviewer"} {
		if strings.Contains(system, "You are the "+r) {
			role = r
		}
	}
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	return m.answer(role, prompt)
}

func (m *scriptedModel) Stream(ctx context.Context, msgs []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Complete(ctx, msgs)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage(out, nil)}), nil
}

func happyAnswers(role, prompt string) (string, error) {
	switch role {
	case "planner":
		return `{"summary":"Build it","steps":[{"title":"Model"},{"title":"Handler"}]}`, nil
	case "architect":
		return "Here you go:\n```json\n" +
			`{"summary":"Two files","files":[{"path":"src/new.go","action":"create","description":"new package"},{"path":"src/app.txt","action":"modify","description":"update"}]}` +
			"\n```", nil
	case "coder":
		if strings.Contains(prompt, "File: src/new.go") {
			return "```go\npackage src\n```", nil
		}
		return "new content\n", nil
	case "tester":
		return "- all files present\n- no failures", nil
	case "reviewer":
		return "LGTM", nil
	}
	return "", errors.New("unexpected role " + role)
}

type fixture struct {
	dir   string
	store *tasks.Store
	env   Env
	task  tasks.TaskRecord
	model *scriptedModel
}

func newFixture(t *testing.T, answer func(role, prompt string) (string, error)) *fixture {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "app.txt"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	g := tools.NewGateway()
	if err := tools.RegisterNative(g, dir); err != nil {
		t.Fatalf("RegisterNative: %v", err)
	}
	store := tasks.NewStore()
	m := &scriptedModel{answer: answer}
	return &fixture{
		dir:   dir,
		store: store,
		model: m,
		task:  store.CreateTask("Build Feature", "Add a feature", dir, []string{"Go"}),
		env: Env{
			Store:             store,
			Model:             m,
			Prompts:           prompts.NewStore(),
			Tools:             g,
			ModelName:         "fake",
			TestCommand:       "ls src",
			ReviewConcurrency: 2,
		},
	}
}

func (f *fixture) run(t *testing.T, ctx context.Context, role tasks.Role) error {
	t.Helper()
	agent, err := f.store.CreateAgent(f.task.ID, role, f.env.ModelName)
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	w, err := DefaultRegistry().New(role, f.env, Binding{TaskID: f.task.ID, AgentID: agent.ID})
	if err != nil {
		t.Fatalf("New(%s): %v", role, err)
	}
	return w.Execute(ctx)
}

var pipeline = []tasks.Role{tasks.RolePlanner, tasks.RoleArchitect, tasks.RoleCoder, tasks.RoleTester, tasks.RoleReviewer}

func TestPipeline(t *testing.T) {
	f := newFixture(t, happyAnswers)
	for _, role := range pipeline {
		if err := f.run(t, context.Background(), role); err != nil {
			t.Fatalf("%s: %v", role, err)
		}
	}

	task, err := f.store.GetTask(f.task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != tasks.TaskComplete || task.Progress != 100 || task.CompletedAt == nil {
		t.Errorf("task status=%s progress=%d completed=%v", task.Status, task.Progress, task.CompletedAt)
	}
	if len(task.Errors) != 0 {
		t.Errorf("errors = %+v", task.Errors)
	}
	if task.Plan == nil || len(task.Plan.Steps) != 2 || task.Plan.Steps[1].ID != "step_2" {
		t.Errorf("plan = %+v", task.Plan)
	}
	if task.ImplementationPlan == nil || len(task.ImplementationPlan.Files) != 2 {
		t.Fatalf("implementation plan = %+v", task.ImplementationPlan)
	}

	var types []tasks.ArtifactType
	for _, a := range task.Artifacts {
		types = append(types, a.Type)
	}
	want := []tasks.ArtifactType{
		tasks.ArtifactPlan, tasks.ArtifactImplementationPlan, tasks.ArtifactCodePatch,
		tasks.ArtifactReasoning, tasks.ArtifactWalkthrough,
	}
	if !reflect.DeepEqual(types, want) {
		t.Errorf("artifact types = %v, want %v", types, want)
	}

	for path, want := range map[string]string{"src/new.go": "package src\n", "src/app.txt": "new content\n"} {
		data, err := os.ReadFile(filepath.Join(f.dir, path))
		if err != nil || string(data) != want {
			t.Errorf("%s = %q, %v; want %q", path, data, err, want)
		}
	}

	for _, a := range task.Agents {
		if a.Status != tasks.AgentComplete || a.Progress != 100 || a.StartedAt == nil || a.CompletedAt == nil {
			t.Errorf("agent %s = %+v", a.Role, a)
		}
		if len(a.ArtifactIDs) == 0 {
			t.Errorf("agent %s produced no artifacts", a.Role)
		}
	}

	modified := false
	for _, p := range f.model.prompts {
		if strings.Contains(p, "File: src/app.txt") && strings.Contains(p, "Current content:\nold") {
			modified = true
		}
	}
	if !modified {
		t.Error("coder prompt for a modified file lacks its current content")
	}

	walk, _ := task.LatestArtifact(tasks.ArtifactWalkthrough)
	md := walk.Content.(*tasks.WalkthroughContent).Markdown
	for _, frag := range []string{"## Summary", "2 of 2 changes applied", "## create src/new.go", "LGTM"} {
		if !strings.Contains(md, frag) {
			t.Errorf("walkthrough missing %q:\n%s", frag, md)
		}
	}
}

func TestPreconditions(t *testing.T) {
	tests := []struct {
		role tasks.Role
		want string
	}{
		{tasks.RoleArchitect, "plan not found - planner must execute first"},
		{tasks.RoleCoder, "implementation plan not found - architect must execute first"},
		{tasks.RoleTester, "code patches not found - coder must execute first"},
		{tasks.RoleReviewer, "code patches not found - coder must execute first"},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			f := newFixture(t, happyAnswers)
			err := f.run(t, context.Background(), tt.role)
			if err == nil || err.Error() != tt.want {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestCancelled(t *testing.T) {
	f := newFixture(t, happyAnswers)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.run(t, ctx, tasks.RolePlanner); !errors.Is(err, ErrCancelled) {
		t.Errorf("err = %v, want ErrCancelled", err)
	}
	if len(f.model.prompts) != 0 {
		t.Error("model called after cancellation")
	}
}

func TestCoder_FileFailureIsWarning(t *testing.T) {
	f := newFixture(t, func(role, prompt string) (string, error) {
		if role == "coder" && strings.Contains(prompt, "File: src/new.go") {
			return "", errors.New("model overloaded")
		}
		return happyAnswers(role, prompt)
	})
	for _, role := range pipeline[:3] {
		if err := f.run(t, context.Background(), role); err != nil {
			t.Fatalf("%s: %v", role, err)
		}
	}

	task, _ := f.store.GetTask(f.task.ID)
	if len(task.Errors) != 1 || task.Errors[0].Severity != tasks.SeverityWarning || task.Errors[0].Role != tasks.RoleCoder {
		t.Fatalf("errors = %+v", task.Errors)
	}
	art, _ := task.LatestArtifact(tasks.ArtifactCodePatch)
	if art.Metadata.Summary != "1 of 2 patches applied" {
		t.Errorf("summary = %q", art.Metadata.Summary)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "src", "new.go")); !os.IsNotExist(err) {
		t.Errorf("failed file was written: %v", err)
	}
}

func TestTester_FailingCommandIsWarning(t *testing.T) {
	f := newFixture(t, happyAnswers)
	f.env.TestCommand = "exit 1"
	for _, role := range pipeline[:4] {
		if err := f.run(t, context.Background(), role); err != nil {
			t.Fatalf("%s: %v", role, err)
		}
	}
	task, _ := f.store.GetTask(f.task.ID)
	if len(task.Errors) != 1 || !strings.Contains(task.Errors[0].Message, "exited with code 1") {
		t.Errorf("errors = %+v", task.Errors)
	}
	if task.Status != tasks.TaskVerifying || task.Progress != 80 {
		t.Errorf("status=%s progress=%d", task.Status, task.Progress)
	}
}

func TestTester_Screenshot(t *testing.T) {
	f := newFixture(t, happyAnswers)
	err := f.env.Tools.RegisterFunc(tools.ToolSpec{
		Name:     ScreenshotTool,
		Category: tools.CategoryBrowser,
		Roles:    []tasks.Role{tasks.RoleTester},
	}, func(context.Context, map[string]any) (any, error) {
		return map[string]any{"path": "shots/home.png"}, nil
	})
	if err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	for _, role := range pipeline[:4] {
		if err := f.run(t, context.Background(), role); err != nil {
			t.Fatalf("%s: %v", role, err)
		}
	}
	task, _ := f.store.GetTask(f.task.ID)
	shot, ok := task.LatestArtifact(tasks.ArtifactScreenshot)
	if !ok || shot.Content.(*tasks.ScreenshotContent).Path != "shots/home.png" {
		t.Errorf("screenshot = %+v, %v", shot, ok)
	}
}

func TestPlanner_WebResearch(t *testing.T) {
	f := newFixture(t, happyAnswers)
	var query any
	spec := tools.WebSearchSpec()
	err := f.env.Tools.RegisterFunc(spec, func(_ context.Context, p map[string]any) (any, error) {
		query = p["query"]
		return "Feature flags in Go - https://example.com/flags", nil
	})
	if err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	if err := f.run(t, context.Background(), tasks.RolePlanner); err != nil {
		t.Fatalf("planner: %v", err)
	}
	if query != "Build Feature" {
		t.Errorf("query = %v, want task title", query)
	}
	if len(f.model.prompts) != 1 || !strings.Contains(f.model.prompts[0], "https://example.com/flags") {
		t.Errorf("planner prompt lacks search results: %q", f.model.prompts)
	}
}

func TestPlanner_WebResearchFailureIsWarning(t *testing.T) {
	f := newFixture(t, happyAnswers)
	err := f.env.Tools.RegisterFunc(tools.WebSearchSpec(), func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("rate limited")
	})
	if err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	if err := f.run(t, context.Background(), tasks.RolePlanner); err != nil {
		t.Fatalf("planner: %v", err)
	}
	task, _ := f.store.GetTask(f.task.ID)
	if task.Plan == nil || len(task.Plan.Steps) != 2 {
		t.Errorf("plan = %+v", task.Plan)
	}
	if len(task.Errors) != 1 || task.Errors[0].Severity != tasks.SeverityWarning {
		t.Errorf("errors = %+v, want one warning", task.Errors)
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	want := []tasks.Role{tasks.RoleArchitect, tasks.RoleCoder, tasks.RolePlanner, tasks.RoleReviewer, tasks.RoleTester}
	if got := r.Roles(); !reflect.DeepEqual(got, want) {
		t.Errorf("Roles() = %v", got)
	}
	if _, err := r.New("deployer", Env{}, Binding{}); err == nil {
		t.Error("expected error for unknown role")
	}
	w, err := r.New(tasks.RoleCoder, Env{}, Binding{})
	if err != nil || w.Role() != tasks.RoleCoder {
		t.Errorf("New(coder) = %v, %v", w, err)
	}
}
