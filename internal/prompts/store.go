// Package prompts provides the named prompt templates each role renders
// before calling the model.
//
// A template is a markdown file with a YAML front matter block:
//
//	---
//	name: planner
//	system: |
//	  You are the planner...
//	---
//	Task: {{ .Title }}
//
// The body is a text/template rendered with the caller's variables. Built-in
// templates ship for the five roles; files in an override directory replace
// them by name.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

var ErrTemplateNotFound = errors.New("prompt template not found")

//go:embed templates/*.md
var builtinFS embed.FS

// Template is a parsed prompt template.
type Template struct {
	ID     string
	Name   string
	System string
	Source string

	body *template.Template
}

type frontMatter struct {
	Name   string `yaml:"name"`
	System string `yaml:"system"`
}

var funcs = template.FuncMap{
	"join":  strings.Join,
	"upper": strings.ToUpper,
	"trim":  strings.TrimSpace,
}

// Store holds templates by name.
type Store struct {
	mu     sync.RWMutex
	byName map[string]*Template
	byID   map[string]*Template
}

// NewStore returns a store holding the built-in templates.
func NewStore() *Store {
	s := &Store{
		byName: make(map[string]*Template),
		byID:   make(map[string]*Template),
	}
	entries, err := fs.ReadDir(builtinFS, "templates")
	if err != nil {
		panic(fmt.Sprintf("prompts: read builtin templates: %v", err))
	}
	for _, e := range entries {
		data, err := builtinFS.ReadFile("templates/" + e.Name())
		if err != nil {
			panic(fmt.Sprintf("prompts: read %s: %v", e.Name(), err))
		}
		t, err := Parse("builtin", strings.TrimSuffix(e.Name(), ".md"), data)
		if err != nil {
			panic(fmt.Sprintf("prompts: %v", err))
		}
		s.add(t)
	}
	return s
}

// LoadDir parses every *.md file in dir, replacing built-ins with the same
// name. A missing directory is not an error; an unparsable file is skipped
// with a warning.
func (s *Store) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("prompts directory not found, skipping", "dir", dir)
			return nil
		}
		return fmt.Errorf("read prompts dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("failed to read prompt template", "path", path, "error", err)
			continue
		}
		t, err := Parse("file", strings.TrimSuffix(e.Name(), ".md"), data)
		if err != nil {
			slog.Warn("failed to parse prompt template", "path", path, "error", err)
			continue
		}
		s.add(t)
		slog.Debug("prompt template loaded", "name", t.Name, "path", path)
	}
	return nil
}

// Add registers a template, replacing any template with the same name.
func (s *Store) Add(t *Template) {
	s.add(t)
}

func (s *Store) add(t *Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byName[t.Name]; ok {
		delete(s.byID, old.ID)
	}
	s.byName[t.Name] = t
	s.byID[t.ID] = t
}

// GetTemplateByName returns the template registered under name.
func (s *Store) GetTemplateByName(name string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return t, nil
}

// Render executes the template with the given id against vars. Every
// variable the template references must be present.
func (s *Store) Render(id string, vars map[string]any) (string, error) {
	s.mu.RLock()
	t, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: id %q", ErrTemplateNotFound, id)
	}
	return t.Execute(vars)
}

// Names returns the registered template names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Execute renders the template body.
func (t *Template) Execute(vars map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.body.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", t.Name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Parse builds a template from a front-matter document. fallbackName is used
// when the front matter does not name the template.
func Parse(source, fallbackName string, data []byte) (*Template, error) {
	meta, body, err := splitFrontMatter(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", fallbackName, err)
	}
	var fm frontMatter
	if len(meta) > 0 {
		if err := yaml.Unmarshal(meta, &fm); err != nil {
			return nil, fmt.Errorf("template %s: front matter: %w", fallbackName, err)
		}
	}
	if fm.Name == "" {
		fm.Name = fallbackName
	}
	tmpl, err := template.New(fm.Name).Funcs(funcs).Option("missingkey=error").Parse(string(body))
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", fm.Name, err)
	}
	return &Template{
		ID:     source + ":" + fm.Name,
		Name:   fm.Name,
		System: strings.TrimSpace(fm.System),
		Source: source,
		body:   tmpl,
	}, nil
}

func splitFrontMatter(data []byte) (meta, body []byte, err error) {
	const delim = "---"
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, delim+"\n") {
		return nil, []byte(text), nil
	}
	rest := text[len(delim)+1:]
	end := strings.Index(rest, "\n"+delim+"\n")
	if end < 0 {
		if strings.HasSuffix(rest, "\n"+delim) {
			return []byte(rest[:len(rest)-len(delim)-1]), nil, nil
		}
		return nil, nil, errors.New("unterminated front matter")
	}
	return []byte(rest[:end]), []byte(rest[end+len(delim)+2:]), nil
}
