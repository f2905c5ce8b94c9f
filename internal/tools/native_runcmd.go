package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/forge/internal/tasks"
)

const (
	defaultRunCmdTimeout = 30 * time.Second
	maxRunCmdTimeout     = 300 * time.Second
)

// RunCmdTool executes shell commands inside the project root. Commands are
// parsed first and destructive invocations are refused.
type RunCmdTool struct {
	root string
}

// NewRunCmdTool creates a new run_command tool.
func NewRunCmdTool(root string) *RunCmdTool {
	return &RunCmdTool{root: root}
}

// RunCmdSpec declares the run_command tool, available to the coder and tester.
func RunCmdSpec() ToolSpec {
	return ToolSpec{
		Name:        "run_command",
		Description: "Execute a shell command in the project root with a timeout. Returns stdout, stderr, and exit code.",
		Category:    CategoryExec,
		Parameters: map[string]ParamSpec{
			"command": {
				Type:        TypeString,
				Description: "The shell command to execute",
				Required:    true,
			},
			"working_dir": {
				Type:        TypeString,
				Description: "Working directory relative to the project root",
			},
			"timeout": {
				Type:        TypeInteger,
				Description: "Timeout in seconds (default: 30, max: 300)",
			},
		},
		Roles: []tasks.Role{tasks.RoleCoder, tasks.RoleTester},
	}
}

type runCmdInput struct {
	Command    string `json:"command"`
	WorkingDir string `json:"working_dir"`
	Timeout    int    `json:"timeout"`
}

// CmdOutput is the JSON result of run_command.
type CmdOutput struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Info returns the tool info for Eino registration.
func (t *RunCmdTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return RunCmdSpec().ToolInfo(), nil
}

// InvokableRun executes the shell command.
func (t *RunCmdTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input runCmdInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("run_command: parse input: %w", err)
	}
	if input.Command == "" {
		return "", fmt.Errorf("run_command: command is required")
	}
	if err := checkCommand(input.Command); err != nil {
		return "", fmt.Errorf("run_command: %w", err)
	}

	root, err := rootFor(ctx, t.root)
	if err != nil {
		return "", fmt.Errorf("run_command: %w", err)
	}
	dir := root
	if input.WorkingDir != "" {
		if dir, err = resolveInRoot(root, input.WorkingDir); err != nil {
			return "", fmt.Errorf("run_command: working_dir %w", err)
		}
	}

	timeout := defaultRunCmdTimeout
	if input.Timeout > 0 {
		timeout = time.Duration(input.Timeout) * time.Second
		if timeout > maxRunCmdTimeout {
			timeout = maxRunCmdTimeout
		}
	}

	slog.Info("run_command: executing", "command", input.Command, "dir", dir, "timeout", timeout)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", input.Command)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("run_command: %w", ctx.Err())
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", fmt.Errorf("run_command: exec: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	out, err := json.Marshal(CmdOutput{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	})
	if err != nil {
		return "", fmt.Errorf("run_command: marshal result: %w", err)
	}
	return string(out), nil
}

var _ tool.InvokableTool = (*RunCmdTool)(nil)
