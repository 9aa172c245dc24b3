package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/logging"
	"github.com/openclaw/openclaw-memory/internal/mcp"
	"github.com/openclaw/openclaw-memory/internal/memory"
	"github.com/openclaw/openclaw-memory/internal/preflight"
)

func newServeCmd() *cobra.Command {
	var transport string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve memory tools over MCP",
		Long: `Start the MCP server. With the stdio transport (the default) the
JSON-RPC stream owns stdout, so all logging goes to the log file; use
'openclaw-memory logs' to read it. The sse transport binds an HTTP
endpoint on localhost instead.`,
		Example: `  # stdio transport, for agent configs
  openclaw-memory serve

  # SSE transport on a fixed port
  openclaw-memory serve --transport sse --port 8765`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "MCP transport (stdio or sse)")
	cmd.Flags().IntVar(&port, "port", 0, "SSE port (sse transport only)")

	return cmd
}

// runServe is the serve path shared with the bare-binary default.
func runServe(ctx context.Context, transport string, port int) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	if transport != "" {
		cfg.Server.Transport = transport
	}
	if port != 0 {
		cfg.Server.SSEPort = port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// stdout belongs to the protocol stream from here on.
	cleanup, err := logging.SetupServeMode(cfg.Log.Level, cfg.LogPath())
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// First run on this store gets a silent environment check; failures
	// surface through doctor rather than a half-started server.
	if preflight.NeedsCheck(cfg.GlobalRoot) {
		checker := preflight.New(preflight.WithOutput(io.Discard))
		results := checker.RunAll(ctx, cfg)
		if checker.HasCriticalFailures(results) {
			return fmt.Errorf("environment check failed: run 'openclaw-memory doctor'")
		}
		_ = preflight.MarkPassed(cfg.GlobalRoot)
	}

	svc := memory.New(cfg)
	if err := svc.Start(ctx); err != nil {
		return err
	}

	srv, err := mcp.NewServer(svc, cfg)
	if err != nil {
		_ = svc.Close()
		return err
	}
	defer func() { _ = srv.Close() }()

	return srv.Serve(ctx)
}
