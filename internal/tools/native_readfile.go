package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// ReadFileTool reads file contents under the project root with optional offset and limit.
type ReadFileTool struct {
	root string
}

// NewReadFileTool creates a new read_file tool. root is used when the call
// context carries no project root.
func NewReadFileTool(root string) *ReadFileTool {
	return &ReadFileTool{root: root}
}

// ReadFileSpec declares the read_file tool.
func ReadFileSpec() ToolSpec {
	return ToolSpec{
		Name:        "read_file",
		Description: "Read the contents of a project file. Returns the text content with optional line offset and limit.",
		Category:    CategoryFilesystem,
		Parameters: map[string]ParamSpec{
			"path": {
				Type:        TypeString,
				Description: "Path to the file, relative to the project root",
				Required:    true,
			},
			"offset": {
				Type:        TypeInteger,
				Description: "Line offset (0-based) to start reading from",
			},
			"limit": {
				Type:        TypeInteger,
				Description: "Maximum number of lines to return",
			},
		},
	}
}

type readFileInput struct {
	Path   string `json:"path"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// ReadFileOutput is the JSON result of read_file.
type ReadFileOutput struct {
	Content   string `json:"content"`
	Lines     int    `json:"lines"`
	Truncated bool   `json:"truncated"`
}

// Info returns the tool info for Eino registration.
func (t *ReadFileTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return ReadFileSpec().ToolInfo(), nil
}

// InvokableRun reads the file and returns its contents.
func (t *ReadFileTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input readFileInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("read_file: parse input: %w", err)
	}
	if input.Path == "" {
		return "", fmt.Errorf("read_file: path is required")
	}

	root, err := rootFor(ctx, t.root)
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}
	path, err := resolveInRoot(root, input.Path)
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}

	lines := bytes.Split(data, []byte("\n"))
	totalLines := len(lines)
	truncated := false

	if input.Offset > 0 {
		if input.Offset >= len(lines) {
			lines = nil
		} else {
			lines = lines[input.Offset:]
		}
	}

	if input.Limit > 0 && input.Limit < len(lines) {
		lines = lines[:input.Limit]
		truncated = true
	}

	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, string(l))
	}

	out, err := json.Marshal(ReadFileOutput{
		Content:   strings.Join(parts, "\n"),
		Lines:     totalLines,
		Truncated: truncated,
	})
	if err != nil {
		return "", fmt.Errorf("read_file: marshal result: %w", err)
	}
	return string(out), nil
}

var _ tool.InvokableTool = (*ReadFileTool)(nil)
