package artifacts

import (
	"fmt"
	"path"
	"strings"

	"github.com/dohr-michael/forge/internal/tasks"
)

func renderPlan(p tasks.Plan) string {
	var sb strings.Builder
	sb.WriteString("# Plan\n\n")
	if p.Summary != "" {
		sb.WriteString(p.Summary + "\n\n")
	}
	for i, s := range p.Steps {
		fmt.Fprintf(&sb, "%d. **%s**", i+1, s.Title)
		if s.Description != "" {
			sb.WriteString(" - " + s.Description)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderImplementationPlan(p tasks.ImplementationPlan) string {
	var sb strings.Builder
	sb.WriteString("# Implementation Plan\n\n")
	if p.Summary != "" {
		sb.WriteString(p.Summary + "\n\n")
	}
	if len(p.Files) > 0 {
		sb.WriteString("| File | Action | Description |\n|---|---|---|\n")
		for _, f := range p.Files {
			fmt.Fprintf(&sb, "| `%s` | %s | %s |\n", f.Path, f.Action, oneLine(f.Description))
		}
	}
	return sb.String()
}

func renderCodePatches(patches []tasks.CodePatch) string {
	var sb strings.Builder
	sb.WriteString("# Code Changes\n")
	for _, p := range patches {
		status := "applied"
		if !p.Applied {
			status = "not applied"
			if p.Error != "" {
				status += ": " + p.Error
			}
		}
		fmt.Fprintf(&sb, "\n## %s `%s` (%s)\n", p.Action, p.Path, status)
		if p.Content != "" && p.Action != tasks.FileDelete {
			fmt.Fprintf(&sb, "\n```%s\n%s\n```\n", fenceLang(p.Path), strings.TrimRight(p.Content, "\n"))
		}
	}
	return sb.String()
}

func renderWalkthrough(title string, sections []tasks.Section) string {
	var sb strings.Builder
	if title == "" {
		title = "Walkthrough"
	}
	sb.WriteString("# " + title + "\n")
	for _, s := range sections {
		fmt.Fprintf(&sb, "\n## %s\n\n%s\n", s.Heading, strings.TrimSpace(s.Body))
	}
	return sb.String()
}

func renderReasoning(role tasks.Role, entries []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Reasoning (%s)\n\n", role)
	for _, e := range entries {
		sb.WriteString("- " + oneLine(e) + "\n")
	}
	return sb.String()
}

func renderScreenshot(p, url, caption string) string {
	target := url
	if target == "" {
		target = p
	}
	alt := caption
	if alt == "" {
		alt = path.Base(p)
	}
	md := fmt.Sprintf("![%s](%s)\n", alt, target)
	if caption != "" {
		md += "\n_" + caption + "_\n"
	}
	return md
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// fenceLang picks a code fence language from a file extension.
func fenceLang(p string) string {
	ext := strings.TrimPrefix(path.Ext(p), ".")
	switch ext {
	case "ts", "tsx":
		return "typescript"
	case "js", "jsx":
		return "javascript"
	case "py":
		return "python"
	case "yml":
		return "yaml"
	case "md":
		return "markdown"
	}
	return ext
}
