package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/forge/internal/tasks"
)

// WriteFileTool writes or deletes files under the project root.
type WriteFileTool struct {
	root string
}

// NewWriteFileTool creates a new write_file tool.
func NewWriteFileTool(root string) *WriteFileTool {
	return &WriteFileTool{root: root}
}

// WriteFileSpec declares the write_file tool. Only the coder may write.
func WriteFileSpec() ToolSpec {
	return ToolSpec{
		Name:        "write_file",
		Description: "Create, overwrite or delete a project file. Parent directories are created as needed.",
		Category:    CategoryFilesystem,
		Parameters: map[string]ParamSpec{
			"path": {
				Type:        TypeString,
				Description: "Path to the file, relative to the project root",
				Required:    true,
			},
			"content": {
				Type:        TypeString,
				Description: "Full file content",
				Default:     "",
			},
			"action": {
				Type:        TypeString,
				Description: "create, modify or delete",
				Default:     string(tasks.FileCreate),
				Enum:        []string{string(tasks.FileCreate), string(tasks.FileModify), string(tasks.FileDelete)},
			},
		},
		Roles: []tasks.Role{tasks.RoleCoder},
	}
}

type writeFileInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Action  string `json:"action"`
}

// WriteFileOutput is the JSON result of write_file.
type WriteFileOutput struct {
	Path         string `json:"path"`
	Action       string `json:"action"`
	BytesWritten int    `json:"bytes_written"`
}

// Info returns the tool info for Eino registration.
func (t *WriteFileTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return WriteFileSpec().ToolInfo(), nil
}

// InvokableRun writes content to the file, or removes it for a delete action.
func (t *WriteFileTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input writeFileInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("write_file: parse input: %w", err)
	}
	if input.Path == "" {
		return "", fmt.Errorf("write_file: path is required")
	}

	root, err := rootFor(ctx, t.root)
	if err != nil {
		return "", fmt.Errorf("write_file: %w", err)
	}
	absPath, err := resolveInRoot(root, input.Path)
	if err != nil {
		return "", fmt.Errorf("write_file: %w", err)
	}

	result := WriteFileOutput{Path: absPath, Action: input.Action}
	if tasks.FileAction(input.Action) == tasks.FileDelete {
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("write_file: %w", err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return "", fmt.Errorf("write_file: create dirs: %w", err)
		}
		data := []byte(input.Content)
		if err := os.WriteFile(absPath, data, 0644); err != nil {
			return "", fmt.Errorf("write_file: %w", err)
		}
		result.BytesWritten = len(data)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("write_file: marshal result: %w", err)
	}
	return string(out), nil
}

var _ tool.InvokableTool = (*WriteFileTool)(nil)
