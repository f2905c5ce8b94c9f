// Package artifacts builds typed, versioned artifacts from role outputs.
// Every constructor is pure: it copies its input, assigns a fresh id, sets
// version 1 and embeds a markdown rendering next to the structured data.
package artifacts

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dohr-michael/forge/internal/tasks"
)

// Origin identifies the task and agent an artifact belongs to.
type Origin struct {
	TaskID  string
	AgentID string
}

// clock is replaced in tests.
var clock = time.Now

func newArtifact(o Origin, typ tasks.ArtifactType, summary string, content tasks.ArtifactContent) tasks.Artifact {
	now := clock().UTC()
	return tasks.Artifact{
		ID:      "art_" + uuid.NewString(),
		Type:    typ,
		AgentID: o.AgentID,
		TaskID:  o.TaskID,
		Content: content,
		Metadata: tasks.ArtifactMetadata{
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
			Summary:   summary,
		},
		Feedback: []tasks.Feedback{},
	}
}

// FromPlan builds a plan artifact.
func FromPlan(o Origin, plan tasks.Plan) tasks.Artifact {
	plan = *plan.Clone()
	summary := fmt.Sprintf("Plan with %s", plural(len(plan.Steps), "step"))
	return newArtifact(o, tasks.ArtifactPlan, summary, &tasks.PlanContent{
		Plan:     plan,
		Markdown: renderPlan(plan),
	})
}

// FromImplementationPlan builds an implementation_plan artifact.
func FromImplementationPlan(o Origin, plan tasks.ImplementationPlan) tasks.Artifact {
	plan = *plan.Clone()
	summary := fmt.Sprintf("Implementation plan touching %s", plural(len(plan.Files), "file"))
	return newArtifact(o, tasks.ArtifactImplementationPlan, summary, &tasks.ImplementationPlanContent{
		Plan:     plan,
		Markdown: renderImplementationPlan(plan),
	})
}

// FromCodePatches builds a code_patch artifact.
func FromCodePatches(o Origin, patches []tasks.CodePatch) tasks.Artifact {
	patches = append([]tasks.CodePatch{}, patches...)
	applied := 0
	for _, p := range patches {
		if p.Applied {
			applied++
		}
	}
	summary := fmt.Sprintf("%d of %s applied", applied, plural(len(patches), "patch"))
	return newArtifact(o, tasks.ArtifactCodePatch, summary, &tasks.CodePatchContent{
		Patches:  patches,
		Markdown: renderCodePatches(patches),
	})
}

// FromWalkthrough builds a walkthrough artifact.
func FromWalkthrough(o Origin, title string, sections []tasks.Section) tasks.Artifact {
	sections = append([]tasks.Section{}, sections...)
	summary := title
	if summary == "" {
		summary = "Walkthrough"
	}
	summary = fmt.Sprintf("%s (%s)", summary, plural(len(sections), "section"))
	return newArtifact(o, tasks.ArtifactWalkthrough, summary, &tasks.WalkthroughContent{
		Title:    title,
		Sections: sections,
		Markdown: renderWalkthrough(title, sections),
	})
}

// FromReasoningTrace builds a reasoning artifact from a role's trace.
func FromReasoningTrace(o Origin, role tasks.Role, entries []string) tasks.Artifact {
	entries = append([]string{}, entries...)
	summary := fmt.Sprintf("%s reasoning, %s", role, plural(len(entries), "entry"))
	return newArtifact(o, tasks.ArtifactReasoning, summary, &tasks.ReasoningContent{
		Role:     role,
		Entries:  entries,
		Markdown: renderReasoning(role, entries),
	})
}

// FromScreenshot builds a screenshot artifact.
func FromScreenshot(o Origin, path, url, caption string) tasks.Artifact {
	summary := caption
	if summary == "" {
		summary = "Screenshot " + path
	}
	return newArtifact(o, tasks.ArtifactScreenshot, summary, &tasks.ScreenshotContent{
		Path:     path,
		URL:      url,
		Caption:  caption,
		Markdown: renderScreenshot(path, url, caption),
	})
}

// ApplyFeedback returns a new artifact with fb appended and the version
// incremented by one. a is left untouched.
func ApplyFeedback(a tasks.Artifact, fb tasks.Feedback) tasks.Artifact {
	now := clock().UTC()
	if fb.ID == "" {
		fb.ID = tasks.NewID("fb")
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = now
	}
	return a.WithFeedback(fb, now)
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	switch noun {
	case "patch":
		return fmt.Sprintf("%d patches", n)
	case "entry":
		return fmt.Sprintf("%d entries", n)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
