package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/apresai/pdfcast/internal/pipeline"
)

// Config holds server configuration.
type Config struct {
	Version  string
	MaxTasks int
}

// Server is the MCP server for podcast generation.
type Server struct {
	mcp   *server.MCPServer
	tasks *TaskManager
	log   *slog.Logger
}

// New creates the MCP server. Tasks run under baseCtx and drive b through a
// pipeline controller each.
func New(baseCtx context.Context, b pipeline.Backend, store JobStore, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "mcp")
	taskMgr := NewTaskManager(baseCtx, store, b, cfg.MaxTasks, logger)
	handlers := NewHandlers(taskMgr, store, logger)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	mcpServer := server.NewMCPServer(
		"pdfcast",
		version,
		server.WithToolCapabilities(true),
	)

	tools := ToolDefs()
	mcpServer.AddTool(tools[0], handlers.HandleGeneratePodcast)
	mcpServer.AddTool(tools[1], handlers.HandleGetPodcast)
	mcpServer.AddTool(tools[2], handlers.HandleListPodcasts)
	mcpServer.AddTool(tools[3], handlers.HandleCancelPodcast)

	return &Server{mcp: mcpServer, tasks: taskMgr, log: logger}
}

// ServeHTTP runs the streamable HTTP transport on addr until ctx is
// cancelled, then waits for running tasks to record their outcome.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting MCP server", "addr", addr)
		errCh <- httpServer.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("MCP shutdown", "error", err)
	}
	s.tasks.Wait()
	return nil
}

// ServeStdio speaks MCP over stdin and stdout until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// Wait blocks until every started task has finished.
func (s *Server) Wait() {
	s.tasks.Wait()
}
