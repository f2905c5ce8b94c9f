package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dohr-michael/forge/internal/events"
)

// rootFor returns the directory native tools are jailed to: the project root
// carried by ctx, else fallback.
func rootFor(ctx context.Context, fallback string) (string, error) {
	root := events.WorkDirFromContext(ctx)
	if root == "" {
		root = fallback
	}
	if root == "" {
		return "", fmt.Errorf("no project root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}
	return abs, nil
}

// resolveInRoot resolves path against root and rejects anything that lands
// outside it, following symlinks where they exist.
func resolveInRoot(root, path string) (string, error) {
	cleanRoot := filepath.Clean(root)
	if real, err := filepath.EvalSymlinks(cleanRoot); err == nil {
		cleanRoot = real
	}

	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(cleanRoot, resolved)
	}
	resolved = filepath.Clean(resolved)

	if real, err := evalSymlinksExisting(resolved); err == nil {
		resolved = real
	}

	if !isUnder(resolved, cleanRoot) {
		return "", fmt.Errorf("path %q is outside project root %q", path, root)
	}
	return resolved, nil
}

// isUnder returns true if child is equal to or a descendant of parent.
func isUnder(child, parent string) bool {
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

// evalSymlinksExisting resolves symlinks for the longest existing prefix of a path.
func evalSymlinksExisting(path string) (string, error) {
	real, err := filepath.EvalSymlinks(path)
	if err == nil {
		return real, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if dir == path {
		return "", err
	}

	resolvedDir, err := evalSymlinksExisting(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}
