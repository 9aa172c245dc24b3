package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/memory"
	"github.com/openclaw/openclaw-memory/pkg/version"
)

// serverName identifies this implementation to MCP clients.
const serverName = "openclaw-memory"

// telemetryResourceURI names the query telemetry resource.
const telemetryResourceURI = "openclaw://telemetry"

// Server bridges MCP clients to the memory engine.
type Server struct {
	mcp    *mcp.Server
	svc    *memory.Service
	config *config.Config
	logger *slog.Logger
}

// ToolInfo describes one registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer builds the MCP server around an engine. The engine may be
// unstarted; the first tool call starts it.
func NewServer(svc *memory.Service, cfg *config.Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("memory service is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		svc:    svc,
		config: cfg,
		logger: slog.Default(),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	s.registerTelemetryResource()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tool surface.
func (s *Server) ListTools() []ToolInfo {
	infos := make([]ToolInfo, len(toolDefs))
	for i, d := range toolDefs {
		infos[i] = ToolInfo{Name: d.name, Description: d.description}
	}
	return infos
}

// toolDefs is the verb surface in registration order.
var toolDefs = []struct {
	name        string
	description string
}{
	{"memory_primer", "Get the session primer: instructions, user identity, project info, preferences, recent context, and active tasks. Call once at session start."},
	{"memory_search", "Search memories by meaning and keywords. Returns salience-ranked snippets within a token budget. Scope filter narrows to global, project, journal, agent, or user memories."},
	{"memory_log", "Save one note as a durable memory. The note is quality-gated, privacy-filtered, routed to the right file, and deduplicated against existing memories."},
	{"memory_session_end", "Record a session summary in today's journal and refresh PRIMER.md and TASKS.md. Call once when a session wraps up."},
	{"memory_update_tasks", "Replace the project task list. TASKS.md is rewritten and the primer refreshed."},
	{"memory_observe", "Record one coding action in today's journal. A substantial insight is also saved as a standalone memory."},
	{"memory_read", "Read one memory file verbatim, such as user/preferences.md or journal/2026-03-07.md."},
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolDefs[0].name, Description: toolDefs[0].description}, s.handlePrimer)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolDefs[1].name, Description: toolDefs[1].description}, s.handleSearch)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolDefs[2].name, Description: toolDefs[2].description}, s.handleLog)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolDefs[3].name, Description: toolDefs[3].description}, s.handleSessionEnd)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolDefs[4].name, Description: toolDefs[4].description}, s.handleUpdateTasks)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolDefs[5].name, Description: toolDefs[5].description}, s.handleObserve)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolDefs[6].name, Description: toolDefs[6].description}, s.handleRead)
	s.logger.Debug("MCP tools registered", slog.Int("count", len(toolDefs)))
}

// registerTelemetryResource exposes query telemetry as a JSON resource so
// clients can inspect retrieval behavior without a dedicated tool.
func (s *Server) registerTelemetryResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "telemetry",
			URI:         telemetryResourceURI,
			Description: "Query telemetry: counts per retrieval stage, latency buckets, and repeat-query rate",
			MIMEType:    "application/json",
		},
		func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			state, ok := s.svc.Telemetry()
			if !ok {
				return nil, NewInvalidParamsError("telemetry not available")
			}
			raw, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return nil, MapError(err)
			}
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{
					{
						URI:      telemetryResourceURI,
						MIMEType: "application/json",
						Text:     string(raw),
					},
				},
			}, nil
		},
	)
}

// Serve runs the server on the configured transport until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	transport := s.config.Server.Transport
	s.logger.Info("starting MCP server", slog.String("transport", transport))

	switch transport {
	case config.TransportStdio:
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			return err
		}
		return nil
	case config.TransportSSE:
		return s.serveSSE(ctx)
	default:
		return fmt.Errorf("unknown transport %q (want stdio or sse)", transport)
	}
}

func (s *Server) serveSSE(ctx context.Context) error {
	handler := mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.config.Server.SSEPort),
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("SSE transport listening", slog.String("addr", srv.Addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Close shuts the engine down. The SDK server stops with its context.
func (s *Server) Close() error {
	return s.svc.Close()
}
