package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/jakesimonds/Creator/internal/config"
	"github.com/jakesimonds/Creator/internal/generator"
	"github.com/jakesimonds/Creator/internal/logging"
	"github.com/jakesimonds/Creator/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var stdio bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the generate_model MCP tool",
		Long: `Expose the HTTP generation client as an MCP tool, over websocket at ` + mcp.WebSocketPath + `
or over stdin/stdout with --stdio. Agents started with generator.backend=mcp
call this tool instead of the generation service directly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Generator.URL == "" {
				return errors.New("invalid config: generator.url is required")
			}
			if stdio {
				return serveMCPStdio(cmd.Context(), cfg)
			}
			return serveMCP(cfg)
		},
	}
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve a single client over stdin/stdout")
	return cmd
}

// serveMCPStdio runs until the parent closes stdin. Set LOG_OUTPUT=stderr
// when starting it by hand; ConnectCommand does so already.
func serveMCPStdio(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	server := mcp.NewServer(generator.NewHTTPClient(cfg.Generator.HTTP()), version)
	logging.Infow("mcp server on stdio")
	return server.Run(ctx, &sdk.StdioTransport{})
}

func serveMCP(cfg *config.Config) error {
	server := mcp.NewServer(generator.NewHTTPClient(cfg.Generator.HTTP()), version)
	handler := mcp.Handler(server)
	httpSrv := &http.Server{
		Addr:              cfg.MCP.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Infow("mcp server listening", "addr", cfg.MCP.Listen)
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
	err := httpSrv.Shutdown(ctx)
	handler.Close()
	return err
}
