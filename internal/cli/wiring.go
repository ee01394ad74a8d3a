package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"google.golang.org/api/option"

	"github.com/apresai/pdfcast/internal/artifact"
	"github.com/apresai/pdfcast/internal/assembly"
	"github.com/apresai/pdfcast/internal/backend"
	"github.com/apresai/pdfcast/internal/client"
	"github.com/apresai/pdfcast/internal/config"
	"github.com/apresai/pdfcast/internal/pipeline"
	"github.com/apresai/pdfcast/internal/script"
	"github.com/apresai/pdfcast/internal/tts"
)

// openBackend returns what the controller drives: an HTTP client for a
// running server, or the service itself when local is set.
func openBackend(ctx context.Context, cfg *config.Config, local bool, logger *slog.Logger) (pipeline.Backend, func(), error) {
	if local {
		return newService(ctx, cfg, logger)
	}
	c, err := client.New(cfg.ServerURL, client.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return c, func() {}, nil
}

// newService builds the backend service from configuration. A missing API
// key or speech client only disables the stage that needs it, so the
// service still starts and reports the problem when that stage runs.
func newService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend.Service, func(), error) {
	if err := cfg.LoadSecrets(ctx, logger); err != nil {
		return nil, nil, err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var generator script.Generator
	if cfg.AnthropicAPIKey != "" {
		generator = script.NewClaudeGenerator(cfg.AnthropicAPIKey, cfg.ScriptModel)
	} else {
		logger.Warn("ANTHROPIC_API_KEY is not set, script generation is disabled")
	}

	var opts []option.ClientOption
	if cfg.GoogleCredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.GoogleCredentialsJSON)))
	}
	closeFn := func() {}
	var speech tts.Provider
	google, err := tts.NewGoogleProvider(ctx, tts.ProviderConfig{}, logger, opts...)
	if err != nil {
		logger.Warn("Speech synthesis is disabled", "error", err)
	} else {
		speech = google
		closeFn = func() { google.Close() }
	}

	var assembler assembly.Assembler
	if err := assembly.CheckFFmpeg(); err != nil {
		logger.Warn("Audio assembly is disabled", "error", err)
	} else {
		assembler = assembly.NewFFmpegAssembler(assembly.DefaultSpacing)
	}

	svc := backend.NewService(store, generator, speech, assembler,
		backend.WithMaxUpload(cfg.MaxUploadBytes()),
		backend.WithLogger(logger),
	)
	return svc, closeFn, nil
}

func openStore(ctx context.Context, cfg *config.Config) (backend.Store, error) {
	if cfg.S3Bucket != "" {
		return backend.DialS3Store(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	}
	return backend.NewDiskStore(filepath.Join(cfg.DataDir, "store"))
}

// saveMedia writes m into dir under its suggested name and closes its body.
func saveMedia(m *artifact.Media, dir string) (string, error) {
	defer m.Body.Close()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, filepath.Base(m.Name))
	return path, writeMedia(m.Body, path)
}

func writeMedia(body io.Reader, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
