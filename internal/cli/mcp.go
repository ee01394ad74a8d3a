package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/apresai/pdfcast/internal/config"
	"github.com/apresai/pdfcast/internal/mcpserver"
	"github.com/apresai/pdfcast/internal/observability"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose podcast generation as MCP tools (stdio, or HTTP with --http)",
	RunE:  runMCP,
}

var (
	flagMCPAddr  string
	flagMCPTasks int
)

func init() {
	mcpCmd.Flags().StringVar(&flagMCPAddr, "http", "", "Serve streamable HTTP on this address instead of stdio")
	mcpCmd.Flags().IntVar(&flagMCPTasks, "max-tasks", 5, "Maximum concurrent podcast generations")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// stdout carries the protocol in stdio mode.
	logger := observability.InitLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	shutdown, err := observability.InitTracer(ctx, "pdfcast-mcp", Version, "mcp")
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	b, closeBackend, err := openBackend(ctx, cfg, flagLocal, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	store, err := openJobStore(ctx, cfg)
	if err != nil {
		return err
	}

	srv := mcpserver.New(ctx, b, store, mcpserver.Config{Version: Version, MaxTasks: flagMCPTasks}, logger)
	if flagMCPAddr != "" {
		return srv.ServeHTTP(ctx, flagMCPAddr)
	}
	err = srv.ServeStdio()
	cancel()
	srv.Wait()
	return err
}

func openJobStore(ctx context.Context, cfg *config.Config) (mcpserver.JobStore, error) {
	if cfg.DynamoTable != "" {
		return mcpserver.DialDynamoStore(ctx, cfg.AWSRegion, cfg.DynamoTable)
	}
	return mcpserver.NewMemoryStore(), nil
}
