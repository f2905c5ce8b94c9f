package orchestrator

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dohr-michael/forge/internal/tasks"
)

// Predicate decides whether an edge is taken after its source role ran.
type Predicate func(task tasks.TaskRecord) bool

// Edge connects two roles. When names a predicate (see predicateFor); an
// empty When, or a nil Pred, means the edge is always taken.
type Edge struct {
	From tasks.Role `yaml:"from"`
	To   tasks.Role `yaml:"to"`
	Name string     `yaml:"name,omitempty"`
	When string     `yaml:"when,omitempty"`

	Pred Predicate `yaml:"-"`
}

// Graph is the role transition graph a run walks.
type Graph struct {
	Start tasks.Role   `yaml:"start"`
	Nodes []tasks.Role `yaml:"nodes"`
	Edges []Edge       `yaml:"edges"`
}

// DefaultGraph is the linear planner → architect → coder → tester → reviewer
// pipeline.
func DefaultGraph() *Graph {
	roles := tasks.AllRoles()
	g := &Graph{Start: roles[0], Nodes: roles}
	for i := 0; i+1 < len(roles); i++ {
		g.Edges = append(g.Edges, Edge{From: roles[i], To: roles[i+1]})
	}
	return g
}

// Next returns the target of the first edge out of role, in declaration
// order, whose predicate holds for task. An empty role means role is
// terminal.
func (g *Graph) Next(role tasks.Role, task tasks.TaskRecord) tasks.Role {
	for _, e := range g.Edges {
		if e.From != role {
			continue
		}
		if e.Pred == nil || e.Pred(task) {
			return e.To
		}
	}
	return ""
}

// Validate checks the start node, the roles and the edge predicates.
func (g *Graph) Validate() error {
	if g.Start == "" {
		return fmt.Errorf("graph: start node is required")
	}
	if len(g.Nodes) == 0 {
		return fmt.Errorf("graph: no nodes")
	}
	for _, n := range g.Nodes {
		if !n.Valid() {
			return fmt.Errorf("graph: unknown role %q", n)
		}
	}
	if !slices.Contains(g.Nodes, g.Start) {
		return fmt.Errorf("graph: start node %q is not a node", g.Start)
	}
	for i, e := range g.Edges {
		if !slices.Contains(g.Nodes, e.From) || !slices.Contains(g.Nodes, e.To) {
			return fmt.Errorf("graph: edge %d (%s -> %s) references an unknown node", i, e.From, e.To)
		}
		if e.When != "" {
			if _, err := predicateFor(e.When); err != nil {
				return fmt.Errorf("graph: edge %d: %w", i, err)
			}
		}
	}
	return nil
}

// LoadGraph reads a YAML graph definition:
//
//	start: planner
//	nodes: [planner, architect, coder, tester, reviewer]
//	edges:
//	  - {from: planner, to: architect, when: has_plan}
//	  - {from: coder, to: tester}
func LoadGraph(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph %s: %w", path, err)
	}
	g, err := ParseGraph(data)
	if err != nil {
		return nil, fmt.Errorf("graph %s: %w", path, err)
	}
	return g, nil
}

// ParseGraph decodes and validates a YAML graph definition.
func ParseGraph(data []byte) (*Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse graph: %w", err)
	}
	if len(g.Nodes) == 0 {
		g.Nodes = tasks.AllRoles()
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	for i := range g.Edges {
		if g.Edges[i].When == "" {
			continue
		}
		g.Edges[i].Pred, _ = predicateFor(g.Edges[i].When)
	}
	if dead := g.Unreachable(); len(dead) > 0 {
		slog.Warn("graph has roles unreachable from start", "start", g.Start, "roles", dead)
	}
	if g.Cyclic() {
		slog.Info("graph contains a cycle; runs are bounded by max_steps", "start", g.Start)
	}
	return &g, nil
}

// Unreachable returns the nodes no edge path from Start leads to, in node order.
func (g *Graph) Unreachable() []tasks.Role {
	seen := map[tasks.Role]bool{g.Start: true}
	queue := []tasks.Role{g.Start}
	for len(queue) > 0 {
		role := queue[0]
		queue = queue[1:]
		for _, e := range g.Edges {
			if e.From == role && !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}

	var out []tasks.Role
	for _, n := range g.Nodes {
		if !seen[n] {
			out = append(out, n)
		}
	}
	return out
}

// Cyclic reports whether the edges, predicates ignored, contain a cycle.
func (g *Graph) Cyclic() bool {
	inDegree := make(map[tasks.Role]int, len(g.Nodes))
	next := make(map[tasks.Role][]tasks.Role, len(g.Nodes))
	for _, n := range g.Nodes {
		inDegree[n] += 0
	}
	for _, e := range g.Edges {
		inDegree[e.To]++
		next[e.From] = append(next[e.From], e.To)
	}

	// Kahn: whatever never reaches in-degree zero sits on a cycle.
	var queue []tasks.Role
	for _, n := range g.Nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, to := range next[n] {
			inDegree[to]--
			if inDegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	return visited != len(inDegree)
}

// predicateFor resolves a named predicate:
// always, never, has_plan, has_implementation_plan, no_errors,
// has_artifact:<type> and status:<status>.
func predicateFor(name string) (Predicate, error) {
	switch name {
	case "always":
		return func(tasks.TaskRecord) bool { return true }, nil
	case "never":
		return func(tasks.TaskRecord) bool { return false }, nil
	case "has_plan":
		return func(t tasks.TaskRecord) bool { return t.Plan != nil }, nil
	case "has_implementation_plan":
		return func(t tasks.TaskRecord) bool { return t.ImplementationPlan != nil }, nil
	case "no_errors":
		return func(t tasks.TaskRecord) bool { return len(t.Errors) == 0 }, nil
	}

	kind, arg, ok := strings.Cut(name, ":")
	if ok && arg != "" {
		switch kind {
		case "has_artifact":
			typ := tasks.ArtifactType(arg)
			return func(t tasks.TaskRecord) bool {
				_, found := t.LatestArtifact(typ)
				return found
			}, nil
		case "status":
			status := tasks.TaskStatus(arg)
			return func(t tasks.TaskRecord) bool { return t.Status == status }, nil
		}
	}
	return nil, fmt.Errorf("unknown predicate %q", name)
}
