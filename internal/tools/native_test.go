package tools

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/dohr-michael/forge/internal/config"
	"github.com/dohr-michael/forge/internal/events"
	"github.com/dohr-michael/forge/internal/tasks"
)

func nativeGateway(t *testing.T) (*Gateway, string) {
	t.Helper()
	root := t.TempDir()
	g := NewGateway()
	if err := RegisterNative(g, root); err != nil {
		t.Fatalf("RegisterNative: %v", err)
	}
	return g, root
}

func TestWriteThenReadFile(t *testing.T) {
	g, root := nativeGateway(t)
	ctx := context.Background()

	w := g.InvokeAs(ctx, tasks.RoleCoder, "write_file", map[string]any{"path": "src/app.go", "content": "package app\n"})
	if !w.Success {
		t.Fatalf("write_file: %s", w.Error)
	}
	if _, err := os.Stat(filepath.Join(root, "src", "app.go")); err != nil {
		t.Fatalf("file not written: %v", err)
	}

	r := g.Invoke(ctx, "read_file", map[string]any{"path": "src/app.go"})
	var out ReadFileOutput
	if err := r.Decode(&out); err != nil {
		t.Fatalf("read_file: %v", err)
	}
	if out.Content != "package app\n" {
		t.Errorf("content = %q", out.Content)
	}
}

func TestWriteFile_Delete(t *testing.T) {
	g, root := nativeGateway(t)
	path := filepath.Join(root, "old.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	res := g.InvokeAs(context.Background(), tasks.RoleCoder, "write_file", map[string]any{"path": "old.txt", "action": "delete"})
	if !res.Success {
		t.Fatalf("delete: %s", res.Error)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
}

func TestReadFile_OffsetLimit(t *testing.T) {
	g, root := nativeGateway(t)
	if err := os.WriteFile(filepath.Join(root, "lines.txt"), []byte("a\nb\nc\nd"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	res := g.Invoke(context.Background(), "read_file", map[string]any{"path": "lines.txt", "offset": 1, "limit": 2})
	var out ReadFileOutput
	if err := res.Decode(&out); err != nil {
		t.Fatalf("read_file: %v", err)
	}
	if out.Content != "b\nc" || !out.Truncated || out.Lines != 4 {
		t.Errorf("out = %+v", out)
	}
}

func TestFileTools_JailedToRoot(t *testing.T) {
	g, _ := nativeGateway(t)
	ctx := context.Background()

	for _, p := range []string{"../escape.txt", "/etc/passwd", "a/../../b"} {
		if res := g.Invoke(ctx, "read_file", map[string]any{"path": p}); res.Success || !strings.Contains(res.Error, "outside project root") {
			t.Errorf("read_file %q: %+v", p, res)
		}
		if res := g.InvokeAs(ctx, tasks.RoleCoder, "write_file", map[string]any{"path": p, "content": "x"}); res.Success {
			t.Errorf("write_file %q escaped the root", p)
		}
	}
}

func TestFileTools_ContextRootWins(t *testing.T) {
	g, _ := nativeGateway(t)
	project := t.TempDir()
	if err := os.WriteFile(filepath.Join(project, "README.md"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	ctx := events.ContextWithWorkDir(context.Background(), project)
	if res := g.Invoke(ctx, "read_file", map[string]any{"path": "README.md"}); !res.Success {
		t.Errorf("read_file in context root: %s", res.Error)
	}
}

func TestListFiles(t *testing.T) {
	g, root := nativeGateway(t)
	for _, p := range []string{"main.go", "pkg/a.go", "pkg/a_test.go", "docs/x.md", ".git/HEAD", "node_modules/m/index.js"} {
		full := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	res := g.Invoke(context.Background(), "list_files", map[string]any{"pattern": "**/*.go"})
	var out ListFilesOutput
	if err := res.Decode(&out); err != nil {
		t.Fatalf("list_files: %v", err)
	}
	if want := []string{"main.go", "pkg/a.go", "pkg/a_test.go"}; !reflect.DeepEqual(out.Files, want) {
		t.Errorf("files = %v, want %v", out.Files, want)
	}

	all := g.Invoke(context.Background(), "list_files", nil)
	if err := all.Decode(&out); err != nil {
		t.Fatalf("list_files default: %v", err)
	}
	for _, f := range out.Files {
		if strings.HasPrefix(f, ".git/") || strings.HasPrefix(f, "node_modules/") {
			t.Errorf("skipped dir leaked: %s", f)
		}
	}

	if res := g.Invoke(context.Background(), "list_files", map[string]any{"pattern": "../*"}); res.Success {
		t.Error("parent pattern accepted")
	}
}

func TestRunCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	g, root := nativeGateway(t)
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	res := g.InvokeAs(context.Background(), tasks.RoleTester, "run_command", map[string]any{"command": "pwd && echo oops >&2 && exit 3", "working_dir": "sub"})
	var out CmdOutput
	if err := res.Decode(&out); err != nil {
		t.Fatalf("run_command: %v", err)
	}
	if out.ExitCode != 3 || !strings.HasSuffix(strings.TrimSpace(out.Stdout), "sub") || strings.TrimSpace(out.Stderr) != "oops" {
		t.Errorf("out = %+v", out)
	}
}

func TestRunCommand_Refused(t *testing.T) {
	g, _ := nativeGateway(t)
	ctx := context.Background()

	if res := g.InvokeAs(ctx, tasks.RoleTester, "run_command", map[string]any{"command": "rm -rf /"}); res.Success || !strings.Contains(res.Error, "destructive") {
		t.Errorf("rm -rf: %+v", res)
	}
	if res := g.InvokeAs(ctx, tasks.RoleTester, "run_command", map[string]any{"command": "ls", "working_dir": "../.."}); res.Success {
		t.Error("working_dir escaped the root")
	}
	if res := g.InvokeAs(ctx, tasks.RoleReviewer, "run_command", map[string]any{"command": "ls"}); res.Success {
		t.Error("reviewer allowed to run commands")
	}
}

func TestWebSearch_Registration(t *testing.T) {
	g := NewGateway()
	if err := RegisterWebSearch(context.Background(), g, config.WebSearchConfig{}); err != nil {
		t.Fatalf("RegisterWebSearch disabled: %v", err)
	}
	if g.AvailableTo(tasks.RolePlanner, WebSearchToolName) {
		t.Error("disabled web_search must not be registered")
	}

	_, err := NewWebSearchTool(context.Background(), config.WebSearchConfig{Enabled: true, Provider: "altavista"})
	if err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Errorf("unknown provider: err = %v", err)
	}

	spec := WebSearchSpec()
	if !spec.AllowedFor(tasks.RolePlanner) || !spec.AllowedFor(tasks.RoleArchitect) || spec.AllowedFor(tasks.RoleCoder) {
		t.Errorf("web_search roles = %v", spec.Roles)
	}
}
