package commands

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/forge/internal/autosave"
	"github.com/dohr-michael/forge/internal/config"
	"github.com/dohr-michael/forge/internal/events"
	"github.com/dohr-michael/forge/internal/gateway"
	"github.com/dohr-michael/forge/internal/heartbeat"
)

// NewServeCommand returns the gateway subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the forge HTTP and WebSocket gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd, appOptions{withModel: true})
	if err != nil {
		return err
	}
	defer a.close()

	// CLI flags override config
	if cmd.IsSet("host") {
		a.cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		a.cfg.Gateway.Port = cmd.Int("port")
	}

	slog.Info("tools loaded", "count", len(a.tools.List()))
	server := gateway.NewServer(a.bus, a.orch, a.tools, a.cfg.Gateway.Host, a.cfg.Gateway.Port)

	addr := net.JoinHostPort(a.cfg.Gateway.Host, strconv.Itoa(a.cfg.Gateway.Port))
	hb := heartbeat.NewWriter(config.HeartbeatPath(), addr, a.orch.RunningTasks)
	hb.Start()
	defer hb.Stop()
	unsubscribe := a.bus.Subscribe(func(events.Event) { hb.Touch() }, events.EventTaskStarted)
	defer unsubscribe()

	if spec := a.cfg.Engine.CheckpointSchedule; spec != "" {
		saver, err := autosave.New(spec, a.orch)
		if err != nil {
			return err
		}
		saver.Start()
		defer saver.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
