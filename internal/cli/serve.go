package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/apresai/pdfcast/internal/observability"
	"github.com/apresai/pdfcast/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload, script and audio API over HTTP",
	RunE:  runServe,
}

var flagListen string

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "Listen address (overrides PDFCAST_LISTEN)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagListen != "" {
		cfg.Listen = flagListen
	}
	ctx := cmd.Context()
	logger := observability.InitLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	shutdown, err := observability.InitTracer(ctx, "pdfcast-server", Version, "server")
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	svc, closeService, err := newService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeService()

	srv := server.New(svc, cfg.MaxUploadBytes(), logger)
	logger.Info("Serving API", "addr", cfg.Listen, "version", Version)
	return srv.ListenAndServe(ctx, cfg.Listen)
}
