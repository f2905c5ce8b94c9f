package events

import (
	"context"
	"testing"
)

func TestTaskIDRoundTrip(t *testing.T) {
	ctx := ContextWithTaskID(context.Background(), "task_abc123")
	got := TaskIDFromContext(ctx)
	if got != "task_abc123" {
		t.Errorf("got %q, want %q", got, "task_abc123")
	}
}

func TestTaskIDFromEmptyContext(t *testing.T) {
	got := TaskIDFromContext(context.Background())
	if got != "" {
		t.Errorf("got %q, want empty string", got)
	}
}

func TestRoleRoundTrip(t *testing.T) {
	ctx := ContextWithRole(context.Background(), "coder")
	if got := RoleFromContext(ctx); got != "coder" {
		t.Errorf("got %q, want coder", got)
	}
}

func TestWorkDirRoundTrip(t *testing.T) {
	ctx := ContextWithWorkDir(context.Background(), "/home/user/project")
	got := WorkDirFromContext(ctx)
	if got != "/home/user/project" {
		t.Errorf("got %q, want %q", got, "/home/user/project")
	}
}

func TestWorkDirEmptyStringNoOp(t *testing.T) {
	bg := context.Background()
	ctx := ContextWithWorkDir(bg, "")
	if ctx != bg {
		t.Error("expected same context when dir is empty")
	}
}
