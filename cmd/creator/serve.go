package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jakesimonds/Creator/internal/action"
	"github.com/jakesimonds/Creator/internal/bitmap"
	"github.com/jakesimonds/Creator/internal/command"
	"github.com/jakesimonds/Creator/internal/config"
	"github.com/jakesimonds/Creator/internal/generator"
	"github.com/jakesimonds/Creator/internal/logging"
	"github.com/jakesimonds/Creator/internal/mcp"
	"github.com/jakesimonds/Creator/internal/session"
	"github.com/jakesimonds/Creator/internal/stream"
	"github.com/jakesimonds/Creator/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Accept session websockets and run the command loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return serve(cfg)
		},
	}
}

// orchestrators tracks the orchestrator of every open session, and of
// closed sessions whose generation is still running, so shutdown can wait
// for submitted work.
type orchestrators struct {
	mu       sync.Mutex
	sessions map[*session.Session]*action.Orchestrator
	draining map[*action.Orchestrator]struct{}
}

func (o *orchestrators) add(s *session.Session, orch *action.Orchestrator) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sessions == nil {
		o.sessions = make(map[*session.Session]*action.Orchestrator)
	}
	o.sessions[s] = orch
}

// release forgets the orchestrator of s once its generation has finished.
func (o *orchestrators) release(s *session.Session) {
	o.mu.Lock()
	orch, ok := o.sessions[s]
	delete(o.sessions, s)
	if ok {
		if o.draining == nil {
			o.draining = make(map[*action.Orchestrator]struct{})
		}
		o.draining[orch] = struct{}{}
	}
	o.mu.Unlock()
	if !ok {
		return
	}
	go func() {
		orch.Wait()
		o.mu.Lock()
		delete(o.draining, orch)
		o.mu.Unlock()
	}()
}

func (o *orchestrators) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions) + len(o.draining)
}

func (o *orchestrators) wait(timeout time.Duration) bool {
	o.mu.Lock()
	all := make([]*action.Orchestrator, 0, len(o.sessions)+len(o.draining))
	for _, orch := range o.sessions {
		all = append(all, orch)
	}
	for orch := range o.draining {
		all = append(all, orch)
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, orch := range all {
			orch.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func serve(cfg *config.Config) error {
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	shutdownTracing, err := telemetry.Setup(rootCtx, telemetry.Options{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logging.Warnw("telemetry shutdown failed", "err", err)
		}
	}()

	gen, closeGen, err := buildGenerator(rootCtx, cfg)
	if err != nil {
		return err
	}
	defer closeGen()

	frames, err := progressFrames(cfg.Action.FramesDir)
	if err != nil {
		return err
	}
	var orchs orchestrators
	registry := newSessionRegistry(&orchs)
	streams := newStreamServer(rootCtx, gen, cfg, frames, registry, &orchs)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           streams.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logging.Infow("session server listening", "addr", cfg.Listen, "backend", cfg.Generator.Backend)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		logging.Infow("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logging.Warnw("http shutdown failed", "err", err)
	}
	registry.CloseAll()
	streams.Close()
	if !orchs.wait(shutdownTimeout) {
		logging.Warnw("generations still running at shutdown")
	}
	rootCancel()
	logging.Infow("session server stopped")
	return nil
}

// newSessionRegistry returns a registry that hands each exiting session's
// orchestrator back to orchs.
func newSessionRegistry(orchs *orchestrators) *session.Registry {
	return session.NewRegistry(session.WithExitHook(orchs.release))
}

// newStreamServer opens a session, with its own state machine and
// orchestrator, for every accepted connection. registry should come from
// newSessionRegistry with the same orchs.
func newStreamServer(ctx context.Context, gen generator.Client, cfg *config.Config, frames []action.Frame,
	registry *session.Registry, orchs *orchestrators) *stream.Server {
	machineCfg := cfg.Command.Machine()
	actionCfg := cfg.Action.Orchestrator(frames)
	return stream.NewServer(func(c *stream.Conn) error {
		orch := action.NewOrchestrator(gen, actionCfg)
		s := session.New(c, command.NewMachine(machineCfg), orch)
		orchs.add(s, orch)
		if err := registry.Open(ctx, s); err != nil {
			orchs.release(s)
			return err
		}
		return nil
	})
}

// buildGenerator returns the configured generation backend and a function
// releasing it.
func buildGenerator(ctx context.Context, cfg *config.Config) (generator.Client, func(), error) {
	switch cfg.Generator.Backend {
	case config.BackendMCP:
		client := mcp.NewClientWrapper("creator", version)
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if cfg.MCP.Command != "" {
			if err := client.ConnectCommand(connectCtx, cfg.MCP.Command, cfg.MCP.Args, cfg.MCP.Env); err != nil {
				return nil, nil, fmt.Errorf("mcp start %s: %w", cfg.MCP.Command, err)
			}
		} else if err := client.ConnectWebSocket(connectCtx, cfg.MCP.URL); err != nil {
			return nil, nil, fmt.Errorf("mcp connect %s: %w", cfg.MCP.URL, err)
		}
		return client, func() {
			if err := client.Close(); err != nil {
				logging.Warnw("mcp client close failed", "err", err)
			}
		}, nil
	default:
		return generator.NewHTTPClient(cfg.Generator.HTTP()), func() {}, nil
	}
}

// progressFrames loads image frames from dir. An empty dir keeps the text
// progress indicator.
func progressFrames(dir string) ([]action.Frame, error) {
	if dir == "" {
		return nil, nil
	}
	images, err := bitmap.LoadFrames(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("load progress frames: %w", err)
	}
	frames := make([]action.Frame, 0, len(images))
	for _, img := range images {
		frames = append(frames, action.Frame{Image: img})
	}
	logging.Infow("loaded progress frames", "dir", dir, "count", len(frames))
	return frames, nil
}
