package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dohr-michael/forge/internal/tasks"
)

// extractJSON decodes the first JSON object embedded in a model answer,
// tolerating surrounding prose and code fences.
func extractJSON(text string, out any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in answer")
	}
	return json.Unmarshal([]byte(text[start:end+1]), out)
}

// answerLines splits free text into trimmed lines, stripping list markers.
func answerLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•")
		line = strings.TrimSpace(trimOrdinal(line))
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// trimOrdinal drops a leading "1." or "2)" marker.
func trimOrdinal(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return s[i+1:]
	}
	return s
}

// stripFences returns the body of a fenced code block if the answer is one.
func stripFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return text
	}
	nl := strings.Index(t, "\n")
	if nl < 0 {
		return ""
	}
	t = t[nl+1:]
	if i := strings.LastIndex(t, "```"); i >= 0 {
		t = t[:i]
	}
	return strings.TrimRight(t, "\n") + "\n"
}

type planAnswer struct {
	Summary string `json:"summary"`
	Steps   []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"steps"`
}

// parsePlan reads the planner's answer. Without usable JSON each non-empty
// line becomes a step.
func parsePlan(answer, fallbackSummary string) *tasks.Plan {
	plan := &tasks.Plan{Summary: fallbackSummary}
	var pa planAnswer
	if err := extractJSON(answer, &pa); err == nil && len(pa.Steps) > 0 {
		if pa.Summary != "" {
			plan.Summary = pa.Summary
		}
		for _, s := range pa.Steps {
			plan.Steps = append(plan.Steps, tasks.PlanStep{Title: s.Title, Description: s.Description})
		}
	} else {
		for _, line := range answerLines(answer) {
			plan.Steps = append(plan.Steps, tasks.PlanStep{Title: line})
		}
	}
	for i := range plan.Steps {
		plan.Steps[i].ID = fmt.Sprintf("step_%d", i+1)
	}
	return plan
}

type implAnswer struct {
	Summary string `json:"summary"`
	Files   []struct {
		Path        string `json:"path"`
		Action      string `json:"action"`
		Description string `json:"description"`
	} `json:"files"`
}

// parseImplementationPlan reads the architect's answer. Without usable JSON,
// lines that look like file paths become file creations.
func parseImplementationPlan(answer, fallbackSummary string) (*tasks.ImplementationPlan, error) {
	plan := &tasks.ImplementationPlan{Summary: fallbackSummary}
	var ia implAnswer
	if err := extractJSON(answer, &ia); err == nil && len(ia.Files) > 0 {
		if ia.Summary != "" {
			plan.Summary = ia.Summary
		}
		for _, f := range ia.Files {
			if f.Path == "" {
				continue
			}
			plan.Files = append(plan.Files, tasks.FileChange{
				Path:        f.Path,
				Action:      normalizeAction(f.Action),
				Description: f.Description,
			})
		}
	} else {
		for _, line := range answerLines(answer) {
			if looksLikePath(line) {
				plan.Files = append(plan.Files, tasks.FileChange{Path: strings.Trim(line, "`"), Action: tasks.FileCreate})
			}
		}
	}
	if len(plan.Files) == 0 {
		return nil, fmt.Errorf("implementation plan lists no files")
	}
	return plan, nil
}

func normalizeAction(a string) tasks.FileAction {
	switch tasks.FileAction(strings.ToLower(strings.TrimSpace(a))) {
	case tasks.FileModify:
		return tasks.FileModify
	case tasks.FileDelete:
		return tasks.FileDelete
	}
	return tasks.FileCreate
}

func looksLikePath(s string) bool {
	s = strings.Trim(s, "`")
	return s != "" && !strings.ContainsAny(s, " \t") && strings.Contains(s, ".")
}
