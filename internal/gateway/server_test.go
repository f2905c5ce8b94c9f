package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/dohr-michael/forge/internal/agents"
	"github.com/dohr-michael/forge/internal/artifacts"
	"github.com/dohr-michael/forge/internal/events"
	"github.com/dohr-michael/forge/internal/orchestrator"
	"github.com/dohr-michael/forge/internal/prompts"
	"github.com/dohr-michael/forge/internal/tasks"
	"github.com/dohr-michael/forge/internal/tools"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 2000; i++ {
		if cond() {
			return
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met")
}

type stubWorker struct {
	role  tasks.Role
	b     agents.Binding
	store *tasks.Store
	run   func(ctx context.Context) error
}

func (s *stubWorker) Role() tasks.Role { return s.role }

func (s *stubWorker) Task() (tasks.TaskRecord, error) { return s.store.GetTask(s.b.TaskID) }

func (s *stubWorker) Execute(ctx context.Context) error {
	if s.run == nil {
		return nil
	}
	return s.run(ctx)
}

// blockUntilCancelled keeps a worker busy until its run is cancelled.
func blockUntilCancelled(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type testServer struct {
	*Server
	bus   *events.Bus
	store *tasks.Store
}

func newTestServer(t *testing.T, planner func(context.Context) error) *testServer {
	t.Helper()
	bus := events.NewBus(256)
	t.Cleanup(func() { bus.Close() })

	store := tasks.NewStore()
	reg := agents.NewRegistry()
	for _, role := range tasks.AllRoles() {
		var run func(context.Context) error
		if role == tasks.RolePlanner {
			run = planner
		}
		reg.Register(role, func(_ agents.Env, b agents.Binding) agents.Worker {
			return &stubWorker{role: role, b: b, store: store, run: run}
		})
	}

	tg := tools.NewGateway()
	if err := tools.RegisterNative(tg, t.TempDir()); err != nil {
		t.Fatalf("RegisterNative: %v", err)
	}
	orch := orchestrator.New(orchestrator.Config{
		Env:      agents.Env{Store: store, Prompts: prompts.NewStore(), Tools: tg, ModelName: "stub"},
		Bus:      bus,
		Registry: reg,
	})

	srv := NewServer(bus, orch, tg, "localhost", 0)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return &testServer{Server: srv, bus: bus, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func (s *testServer) hasEvent(taskID string, typ events.EventType) bool {
	for _, e := range s.bus.TaskHistory(taskID, 256) {
		if e.Type == typ {
			return true
		}
	}
	return false
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	w := srv.do(t, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if body := decode[map[string]string](t, w); body["status"] != "ok" {
		t.Fatalf("expected status %q, got %q", "ok", body["status"])
	}
}

func TestHandleEvents(t *testing.T) {
	srv := newTestServer(t, nil)

	w := srv.do(t, http.MethodGet, "/api/events", nil)
	if body := decode[[]events.Event](t, w); len(body) != 0 {
		t.Fatalf("expected empty array, got %d items", len(body))
	}

	for i := 0; i < 10; i++ {
		srv.bus.Publish(events.NewEvent(events.EventAgentStarted, events.SourceOrchestrator, "task_a", map[string]any{"i": i}))
	}
	srv.bus.Publish(events.NewEvent(events.EventAgentStarted, events.SourceOrchestrator, "task_b", nil))

	if body := decode[[]events.Event](t, srv.do(t, http.MethodGet, "/api/events?limit=5", nil)); len(body) != 5 {
		t.Fatalf("expected 5 events with limit=5, got %d", len(body))
	}
	body := decode[[]events.Event](t, srv.do(t, http.MethodGet, "/api/events?task_id=task_b", nil))
	if len(body) != 1 || body[0].TaskID != "task_b" {
		t.Fatalf("task filter returned %+v", body)
	}
}

func TestTasks_CRUD(t *testing.T) {
	srv := newTestServer(t, nil)

	w := srv.do(t, http.MethodPost, "/api/tasks", CreateTaskRequest{Title: "Build", ProjectPath: "/p", TechStack: []string{"Go"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", w.Code)
	}
	created := decode[tasks.TaskRecord](t, w)
	if created.ID == "" || created.Status != tasks.TaskPending {
		t.Fatalf("created = %+v", created)
	}

	if w := srv.do(t, http.MethodPost, "/api/tasks", CreateTaskRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty title: expected 400, got %d", w.Code)
	}

	if list := decode[[]tasks.TaskRecord](t, srv.do(t, http.MethodGet, "/api/tasks", nil)); len(list) != 1 {
		t.Errorf("list = %d tasks", len(list))
	}

	got := decode[tasks.TaskRecord](t, srv.do(t, http.MethodGet, "/api/tasks/"+created.ID, nil))
	if got.Title != "Build" || got.Context.ProjectPath != "/p" {
		t.Errorf("get = %+v", got)
	}

	if w := srv.do(t, http.MethodDelete, "/api/tasks/"+created.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}
	if w := srv.do(t, http.MethodGet, "/api/tasks/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get deleted: expected 404, got %d", w.Code)
	}
}

func TestExecute_RunsInBackground(t *testing.T) {
	srv := newTestServer(t, nil)
	task := srv.store.CreateTask("Build", "", "", nil)

	w := srv.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/execute", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if body := decode[map[string]string](t, w); body["mode"] != string(tasks.ModeAgentDriven) {
		t.Errorf("default mode = %q", body["mode"])
	}
	waitFor(t, func() bool {
		return srv.hasEvent(task.ID, events.EventTaskCompleted) && !srv.orch.IsRunning(task.ID)
	})

	st := decode[orchestrator.ExecutionStatus](t, srv.do(t, http.MethodGet, "/api/tasks/"+task.ID+"/status", nil))
	if st.Running || st.Agents[tasks.AgentIdle] != len(tasks.AllRoles()) {
		t.Errorf("status = %+v", st)
	}

	if w := srv.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/execute", ExecuteRequest{Mode: "manual"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad mode: expected 400, got %d", w.Code)
	}
	if w := srv.do(t, http.MethodPost, "/api/tasks/missing/execute", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing task: expected 404, got %d", w.Code)
	}
}

func TestExecute_ControlWhileRunning(t *testing.T) {
	srv := newTestServer(t, blockUntilCancelled)
	task := srv.store.CreateTask("Build", "", "", nil)
	base := "/api/tasks/" + task.ID

	if w := srv.do(t, http.MethodPost, base+"/pause", nil); w.Code != http.StatusConflict {
		t.Errorf("pause idle task: expected 409, got %d", w.Code)
	}

	if w := srv.do(t, http.MethodPost, base+"/execute", ExecuteRequest{Mode: tasks.ModeAgentAssisted}); w.Code != http.StatusAccepted {
		t.Fatalf("execute: expected 202, got %d", w.Code)
	}
	waitFor(t, func() bool { return srv.hasEvent(task.ID, events.EventAgentStarted) })

	if w := srv.do(t, http.MethodPost, base+"/execute", nil); w.Code != http.StatusConflict {
		t.Errorf("second execute: expected 409, got %d", w.Code)
	}
	if w := srv.do(t, http.MethodDelete, base, nil); w.Code != http.StatusConflict {
		t.Errorf("delete running task: expected 409, got %d", w.Code)
	}

	if w := srv.do(t, http.MethodPost, base+"/pause", nil); w.Code != http.StatusOK {
		t.Errorf("pause: expected 200, got %d", w.Code)
	}
	st := decode[orchestrator.ExecutionStatus](t, srv.do(t, http.MethodGet, base+"/status", nil))
	if !st.Running || !st.Paused || st.Mode != tasks.ModeAgentAssisted {
		t.Errorf("status = %+v", st)
	}
	if w := srv.do(t, http.MethodPost, base+"/resume", ResumeRequest{Feedback: "carry on"}); w.Code != http.StatusOK {
		t.Errorf("resume: expected 200, got %d", w.Code)
	}

	if w := srv.do(t, http.MethodPost, base+"/cancel", nil); w.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", w.Code)
	}
	if w := srv.do(t, http.MethodPost, base+"/cancel", nil); w.Code != http.StatusConflict {
		t.Errorf("second cancel: expected 409, got %d", w.Code)
	}
	waitFor(t, func() bool { return srv.hasEvent(task.ID, events.EventTaskCancelled) })
}

func TestCheckpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	task := srv.store.CreateTask("Build", "", "", nil)
	base := "/api/tasks/" + task.ID

	w := srv.do(t, http.MethodPost, base+"/checkpoints", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create checkpoint: expected 201, got %d", w.Code)
	}
	cpID := decode[map[string]string](t, w)["checkpoint_id"]

	if list := decode[[]tasks.Checkpoint](t, srv.do(t, http.MethodGet, base+"/checkpoints", nil)); len(list) != 1 || list[0].ID != cpID {
		t.Errorf("checkpoints = %+v", list)
	}

	if err := srv.store.UpdateTask(task.ID, tasks.TaskUpdate{Status: tasks.Ptr(tasks.TaskFailed)}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	restored := decode[tasks.TaskRecord](t, srv.do(t, http.MethodPost, "/api/checkpoints/"+cpID+"/restore", nil))
	if restored.Status != tasks.TaskPending {
		t.Errorf("restored status = %s", restored.Status)
	}
	if w := srv.do(t, http.MethodPost, "/api/checkpoints/nope/restore", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown checkpoint: expected 404, got %d", w.Code)
	}
}

func TestFeedbackAndReport(t *testing.T) {
	srv := newTestServer(t, nil)
	task := srv.store.CreateTask("Build", "", "", nil)
	art := artifacts.FromPlan(artifacts.Origin{TaskID: task.ID}, tasks.Plan{Summary: "do it"})
	if err := srv.store.AddArtifact(task.ID, art); err != nil {
		t.Fatalf("AddArtifact: %v", err)
	}
	base := "/api/tasks/" + task.ID

	w := srv.do(t, http.MethodPost, base+"/artifacts/"+art.ID+"/feedback", FeedbackRequest{Author: "alice", Content: "more detail"})
	if w.Code != http.StatusOK {
		t.Fatalf("feedback: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode[tasks.Artifact](t, w); got.Metadata.Version != 2 || len(got.Feedback) != 1 {
		t.Errorf("artifact = %+v", got.Metadata)
	}
	if w := srv.do(t, http.MethodPost, base+"/artifacts/"+art.ID+"/feedback", FeedbackRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty feedback: expected 400, got %d", w.Code)
	}
	if w := srv.do(t, http.MethodPost, base+"/artifacts/nope/feedback", FeedbackRequest{Content: "x"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown artifact: expected 404, got %d", w.Code)
	}

	w = srv.do(t, http.MethodGet, base+"/report", nil)
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/markdown") {
		t.Fatalf("report: %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "# Execution Report: Build") {
		t.Errorf("report = %s", w.Body.String())
	}
}

func TestToolsAndStats(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.store.CreateTask("Build", "", "", nil)

	names := func(specs []tools.ToolSpec) map[string]bool {
		out := make(map[string]bool)
		for _, s := range specs {
			out[s.Name] = true
		}
		return out
	}
	planner := names(decode[[]tools.ToolSpec](t, srv.do(t, http.MethodGet, "/api/tools?role=planner", nil)))
	if !planner["read_file"] || planner["write_file"] {
		t.Errorf("planner tools = %v", planner)
	}
	coder := names(decode[[]tools.ToolSpec](t, srv.do(t, http.MethodGet, "/api/tools?role=coder", nil)))
	if !coder["write_file"] || !coder["run_command"] {
		t.Errorf("coder tools = %v", coder)
	}
	if w := srv.do(t, http.MethodGet, "/api/tools?role=deployer", nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown role: expected 400, got %d", w.Code)
	}
	if w := srv.do(t, http.MethodGet, "/api/tools/history", nil); w.Code != http.StatusOK {
		t.Errorf("history: expected 200, got %d", w.Code)
	}

	stats := decode[orchestrator.Statistics](t, srv.do(t, http.MethodGet, "/api/stats", nil))
	if stats.Tasks != 1 || stats.TasksByStatus[tasks.TaskPending] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
