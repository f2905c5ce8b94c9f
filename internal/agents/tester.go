package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dohr-michael/forge/internal/artifacts"
	"github.com/dohr-michael/forge/internal/tasks"
	"github.com/dohr-michael/forge/internal/tools"
)

// ScreenshotTool is the optional tool the tester calls when a browser
// backend is registered. It must return {"path": ..., "url": ...}.
const ScreenshotTool = "capture_screenshot"

// Tester runs the configured test command against the written code and
// records its findings.
type Tester struct{ base }

// NewTester is the tester's Factory.
func NewTester(env Env, b Binding) Worker {
	return &Tester{base{env: env, b: b, role: tasks.RoleTester}}
}

type screenshotOutput struct {
	Path    string `json:"path"`
	URL     string `json:"url"`
	Caption string `json:"caption"`
}

func (w *Tester) Execute(ctx context.Context) error {
	task, err := w.Task()
	if err != nil {
		return err
	}
	patchArt, ok := task.LatestArtifact(tasks.ArtifactCodePatch)
	if !ok {
		return errors.New("code patches not found - coder must execute first")
	}
	if err := w.start(tasks.AgentExecuting); err != nil {
		return err
	}
	if err := w.env.Store.UpdateTask(task.ID, tasks.TaskUpdate{Status: tasks.Ptr(tasks.TaskVerifying)}); err != nil {
		return err
	}

	_ = w.step("running tests", 20)
	output, err := w.runTests(ctx, task)
	if err != nil {
		return err
	}

	if w.canUse(ScreenshotTool) {
		_ = w.step("capturing screenshot", 50)
		if err := w.screenshot(ctx, task); err != nil {
			return err
		}
	}

	_ = w.step("analyzing results", 70)
	var files []string
	if c, ok := patchArt.Content.(*tasks.CodePatchContent); ok {
		for _, p := range c.Patches {
			files = append(files, p.Path)
		}
	}
	vars := taskVars(task)
	vars["Files"] = files
	vars["Command"] = w.env.TestCommand
	vars["Output"] = output
	answer, err := w.ask(ctx, "tester", vars)
	switch {
	case errors.Is(err, ErrCancelled):
		return err
	case err != nil:
		w.warn("analyze test results: %v", err)
	default:
		for _, line := range answerLines(answer) {
			w.reason("%s", line)
		}
	}

	agent, err := w.env.Store.GetAgent(w.b.AgentID)
	if err != nil {
		return err
	}
	if err := w.addArtifact(artifacts.FromReasoningTrace(w.origin(), w.role, agent.Reasoning)); err != nil {
		return err
	}
	if err := w.env.Store.UpdateTask(task.ID, tasks.TaskUpdate{
		Status:   tasks.Ptr(tasks.TaskVerifying),
		Progress: tasks.Ptr(80),
	}); err != nil {
		return err
	}
	return w.finish()
}

// runTests returns the combined command output, or a note when no command
// ran. A failing command is a warning, not a worker failure.
func (w *Tester) runTests(ctx context.Context, task tasks.TaskRecord) (string, error) {
	if w.env.TestCommand == "" {
		w.reason("no test command configured")
		return "no test command configured", nil
	}
	if !w.canUse("run_command") {
		w.reason("run_command unavailable to tester")
		return "run_command unavailable", nil
	}

	res, err := w.invoke(ctx, task, "run_command", map[string]any{"command": w.env.TestCommand})
	if err != nil {
		return "", err
	}
	if !res.Success {
		w.warn("run %q: %s", w.env.TestCommand, res.Error)
		return res.Error, nil
	}
	var out tools.CmdOutput
	if err := res.Decode(&out); err != nil {
		w.warn("decode test output: %v", err)
		return res.Output, nil
	}
	if out.ExitCode != 0 {
		w.warn("tests failed: %q exited with code %d", w.env.TestCommand, out.ExitCode)
	}
	w.reason("%q exited with code %d", w.env.TestCommand, out.ExitCode)
	return strings.TrimSpace(out.Stdout + "\n" + out.Stderr), nil
}

func (w *Tester) screenshot(ctx context.Context, task tasks.TaskRecord) error {
	res, err := w.invoke(ctx, task, ScreenshotTool, map[string]any{"name": task.ID})
	if err != nil {
		return err
	}
	var out screenshotOutput
	if !res.Success {
		w.warn("%s: %s", ScreenshotTool, res.Error)
		return nil
	}
	if err := res.Decode(&out); err != nil || (out.Path == "" && out.URL == "") {
		w.warn("%s returned no image", ScreenshotTool)
		return nil
	}
	caption := out.Caption
	if caption == "" {
		caption = fmt.Sprintf("Screenshot of %s", task.Title)
	}
	w.reason("captured screenshot %s", out.Path)
	return w.addArtifact(artifacts.FromScreenshot(w.origin(), out.Path, out.URL, caption))
}
