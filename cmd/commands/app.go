package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/forge/internal/agents"
	forgecb "github.com/dohr-michael/forge/internal/callbacks"
	"github.com/dohr-michael/forge/internal/config"
	"github.com/dohr-michael/forge/internal/events"
	"github.com/dohr-michael/forge/internal/models"
	"github.com/dohr-michael/forge/internal/orchestrator"
	"github.com/dohr-michael/forge/internal/prompts"
	"github.com/dohr-michael/forge/internal/storage"
	"github.com/dohr-michael/forge/internal/storage/sqlstore"
	"github.com/dohr-michael/forge/internal/tasks"
	"github.com/dohr-michael/forge/internal/tools"
)

// app is the wired engine shared by the subcommands.
type app struct {
	cfg   *config.Config
	bus   *events.Bus
	store *tasks.Store
	tools *tools.Gateway
	orch  *orchestrator.Orchestrator

	closers []func()
}

type appOptions struct {
	// withModel resolves the default model provider; commands that never
	// execute tasks leave it off so they work without credentials.
	withModel bool
}

func setupLogging(cmd *cli.Command) {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
}

func newApp(ctx context.Context, cmd *cli.Command, opts appOptions) (*app, error) {
	setupLogging(cmd)

	configPath := cmd.String("config")
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	persister, err := openPersister(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if c, isCloser := persister.(io.Closer); isCloser {
		a.closers = append(a.closers, func() { c.Close() })
	}
	a.store = tasks.NewStore(tasks.WithPersister(persister))
	if err := a.store.Load(); err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	a.bus = events.NewBus(cfg.Events.BufferSize)
	a.closers = append(a.closers, a.bus.Close)
	eventLog := storage.NewEventLogger(cfg.Events.LogDir, a.bus)
	a.closers = append(a.closers, eventLog.Close)

	a.tools = tools.NewGateway(tools.WithHistoryCap(cfg.Engine.ToolHistoryCap), tools.WithBus(a.bus))
	cwd, _ := os.Getwd()
	if err := tools.RegisterNative(a.tools, cwd); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	if err := tools.RegisterWebSearch(ctx, a.tools, cfg.Tools.WebSearch); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	promptStore := prompts.NewStore()
	if err := promptStore.LoadDir(cfg.Prompts.Dir); err != nil {
		return nil, err
	}

	env := agents.Env{
		Store:             a.store,
		Prompts:           promptStore,
		Tools:             a.tools,
		TestCommand:       cfg.Engine.TestCommand,
		ReviewConcurrency: cfg.Engine.ReviewConcurrency,
	}
	if opts.withModel {
		registry := models.NewRegistry(cfg.Models, forgecb.NewEventBusHandler(a.bus))
		completer, err := registry.Default(ctx)
		if err != nil {
			return nil, fmt.Errorf("init default model: %w", err)
		}
		env.Model = completer
		env.ModelName = registry.ModelName(registry.DefaultName())
	}

	var graph *orchestrator.Graph
	if cfg.Engine.GraphFile != "" {
		graph, err = orchestrator.LoadGraph(cfg.Engine.GraphFile)
		if err != nil {
			return nil, err
		}
	}

	a.orch = orchestrator.New(orchestrator.Config{
		Env:      env,
		Bus:      a.bus,
		Graph:    graph,
		Policy:   orchestrator.AssistedPolicy(cfg.Engine.AssistedPolicy),
		MaxSteps: cfg.Engine.MaxSteps,
	})
	ok = true
	return a, nil
}

func openPersister(cfg config.StorageConfig) (tasks.Persister, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := sqlstore.Open(filepath.Join(cfg.Dir, "forge.db"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	default:
		return tasks.NewFileStore(cfg.Dir), nil
	}
}

// close releases resources in reverse acquisition order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func requireArg(cmd *cli.Command, name, usage string) (string, error) {
	v := cmd.Args().First()
	if v == "" {
		return "", fmt.Errorf("usage: forge %s %s", usage, name)
	}
	return v, nil
}
