// Package agents implements the role workers of the pipeline. A worker reads
// its task from the State Store, asks the model, invokes tools through the
// gateway and writes its artifacts, progress and errors back to the store.
package agents

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dohr-michael/forge/internal/models"
	"github.com/dohr-michael/forge/internal/prompts"
	"github.com/dohr-michael/forge/internal/tasks"
	"github.com/dohr-michael/forge/internal/tools"
)

// ErrCancelled is reported by a worker that observed cancellation at a
// suspension point. It is distinct from a worker failure.
var ErrCancelled = errors.New("execution cancelled")

// Worker executes one role for one task.
type Worker interface {
	Role() tasks.Role
	Execute(ctx context.Context) error
	Task() (tasks.TaskRecord, error)
}

// Env carries the collaborators every worker uses.
type Env struct {
	Store   *tasks.Store
	Model   models.Completer
	Prompts *prompts.Store
	Tools   *tools.Gateway

	// ModelName is recorded on each agent record.
	ModelName string
	// TestCommand is run by the tester when set.
	TestCommand string
	// ReviewConcurrency bounds parallel patch reviews.
	ReviewConcurrency int
}

// Binding ties a worker to its task and agent record.
type Binding struct {
	TaskID  string
	AgentID string
}

// Factory builds a worker.
type Factory func(env Env, b Binding) Worker

// Registry maps roles to worker constructors.
type Registry struct {
	factories map[tasks.Role]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[tasks.Role]Factory)}
}

// DefaultRegistry returns a registry with the five built-in workers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(tasks.RolePlanner, NewPlanner)
	r.Register(tasks.RoleArchitect, NewArchitect)
	r.Register(tasks.RoleCoder, NewCoder)
	r.Register(tasks.RoleTester, NewTester)
	r.Register(tasks.RoleReviewer, NewReviewer)
	return r
}

// Register sets the constructor for role, replacing any previous one.
func (r *Registry) Register(role tasks.Role, f Factory) {
	r.factories[role] = f
}

// New builds the worker for role.
func (r *Registry) New(role tasks.Role, env Env, b Binding) (Worker, error) {
	f, ok := r.factories[role]
	if !ok {
		return nil, fmt.Errorf("no worker registered for role %q", role)
	}
	return f(env, b), nil
}

// Has reports whether a constructor is registered for role.
func (r *Registry) Has(role tasks.Role) bool {
	_, ok := r.factories[role]
	return ok
}

// Roles returns the registered roles, sorted.
func (r *Registry) Roles() []tasks.Role {
	out := make([]tasks.Role, 0, len(r.factories))
	for role := range r.factories {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
