package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

const maxListEntries = 1000

// skipDirs are directories never reported by list_files.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".hg":          true,
}

// ListFilesTool lists project files matching a glob.
type ListFilesTool struct {
	root string
}

// NewListFilesTool creates a new list_files tool.
func NewListFilesTool(root string) *ListFilesTool {
	return &ListFilesTool{root: root}
}

// ListFilesSpec declares the list_files tool.
func ListFilesSpec() ToolSpec {
	return ToolSpec{
		Name:        "list_files",
		Description: "List project files matching a glob pattern. Supports ** for recursive matching (e.g. \"**/*.go\").",
		Category:    CategoryFilesystem,
		Parameters: map[string]ParamSpec{
			"pattern": {
				Type:        TypeString,
				Description: "Glob pattern relative to the project root",
				Default:     "**/*",
			},
		},
	}
}

type listFilesInput struct {
	Pattern string `json:"pattern"`
}

// ListFilesOutput is the JSON result of list_files.
type ListFilesOutput struct {
	Files     []string `json:"files"`
	Truncated bool     `json:"truncated"`
}

// Info returns the tool info for Eino registration.
func (t *ListFilesTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return ListFilesSpec().ToolInfo(), nil
}

// InvokableRun globs the project root.
func (t *ListFilesTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input listFilesInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("list_files: parse input: %w", err)
	}
	if input.Pattern == "" {
		input.Pattern = "**/*"
	}
	if path.IsAbs(input.Pattern) || strings.HasPrefix(path.Clean(input.Pattern), "..") {
		return "", fmt.Errorf("list_files: pattern %q must be relative to the project root", input.Pattern)
	}
	if !doublestar.ValidatePattern(input.Pattern) {
		return "", fmt.Errorf("list_files: invalid pattern %q", input.Pattern)
	}

	root, err := rootFor(ctx, t.root)
	if err != nil {
		return "", fmt.Errorf("list_files: %w", err)
	}

	matches, err := doublestar.Glob(os.DirFS(root), input.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return "", fmt.Errorf("list_files: %w", err)
	}

	sort.Strings(matches)

	result := ListFilesOutput{Files: []string{}}
	for _, m := range matches {
		if skipped(m) {
			continue
		}
		if len(result.Files) == maxListEntries {
			result.Truncated = true
			break
		}
		result.Files = append(result.Files, m)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("list_files: marshal result: %w", err)
	}
	return string(out), nil
}

func skipped(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if skipDirs[part] {
			return true
		}
	}
	return false
}

var _ tool.InvokableTool = (*ListFilesTool)(nil)
