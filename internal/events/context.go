package events

import "context"

type (
	taskIDKey  struct{}
	roleKey    struct{}
	workDirKey struct{}
)

// ContextWithTaskID returns a new context carrying the task ID.
func ContextWithTaskID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, taskIDKey{}, id)
}

// TaskIDFromContext extracts the task ID from the context, or "" if absent.
func TaskIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(taskIDKey{}).(string); ok {
		return id
	}
	return ""
}

// ContextWithRole returns a new context carrying the invoking role name.
func ContextWithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

// RoleFromContext extracts the role name from the context, or "" if absent.
func RoleFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(roleKey{}).(string); ok {
		return r
	}
	return ""
}

// ContextWithWorkDir returns a new context carrying the project root tools are jailed to.
// An empty dir returns ctx unchanged.
func ContextWithWorkDir(ctx context.Context, dir string) context.Context {
	if dir == "" {
		return ctx
	}
	return context.WithValue(ctx, workDirKey{}, dir)
}

// WorkDirFromContext extracts the project root, or "" if absent.
func WorkDirFromContext(ctx context.Context) string {
	if d, ok := ctx.Value(workDirKey{}).(string); ok {
		return d
	}
	return ""
}
