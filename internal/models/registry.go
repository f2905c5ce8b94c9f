package models

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudwego/eino/callbacks"

	"github.com/dohr-michael/forge/internal/config"
)

type providerEntry struct {
	cfg       config.ProviderConfig
	completer Completer
	once      sync.Once
	err       error
}

// Registry manages named model providers with lazy initialization.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]*providerEntry
	defaultName string
	handlers    []callbacks.Handler
}

// NewRegistry creates a model registry from config. handlers are attached to
// every completer it creates.
func NewRegistry(cfg config.ModelsConfig, handlers ...callbacks.Handler) *Registry {
	r := &Registry{
		providers:   make(map[string]*providerEntry),
		defaultName: cfg.Default,
		handlers:    handlers,
	}
	for name, provCfg := range cfg.Providers {
		r.providers[name] = &providerEntry{cfg: provCfg}
	}
	return r
}

// Get returns the named provider's completer, creating the model on first use.
func (r *Registry) Get(ctx context.Context, name string) (Completer, error) {
	r.mu.RLock()
	entry, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("model provider %q not found", name)
	}

	entry.once.Do(func() {
		m, err := CreateModel(ctx, entry.cfg)
		if err != nil {
			entry.err = fmt.Errorf("create model %s: %w", name, err)
			return
		}
		entry.completer = NewCompleter(m, name, r.handlers...)
	})
	return entry.completer, entry.err
}

// Default returns the default provider's completer.
func (r *Registry) Default(ctx context.Context) (Completer, error) {
	if r.defaultName == "" {
		return nil, fmt.Errorf("no default model configured")
	}
	return r.Get(ctx, r.defaultName)
}

// DefaultName returns the name of the default provider.
func (r *Registry) DefaultName() string {
	return r.defaultName
}

// ModelName returns the model identifier configured for a provider.
func (r *Registry) ModelName(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.providers[name]; ok {
		return e.cfg.Model
	}
	return ""
}

// Names returns the configured provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
