package tools

import "github.com/cloudwego/eino/components/tool"

// RegisterNative registers the built-in filesystem and exec tools. root is
// the fallback project root for calls whose context carries none.
func RegisterNative(g *Gateway, root string) error {
	natives := []struct {
		spec ToolSpec
		impl tool.InvokableTool
	}{
		{ReadFileSpec(), NewReadFileTool(root)},
		{WriteFileSpec(), NewWriteFileTool(root)},
		{ListFilesSpec(), NewListFilesTool(root)},
		{RunCmdSpec(), NewRunCmdTool(root)},
	}
	for _, n := range natives {
		if err := g.Register(n.spec, n.impl); err != nil {
			return err
		}
	}
	return nil
}
