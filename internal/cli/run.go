package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apresai/pdfcast/internal/ingest"
	"github.com/apresai/pdfcast/internal/observability"
	"github.com/apresai/pdfcast/internal/pipeline"
	"github.com/apresai/pdfcast/internal/progress"
	"github.com/apresai/pdfcast/internal/script"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Upload a PDF, generate the script and audio, and save the podcast",
	RunE:  runHeadless,
}

var (
	flagInput      string
	flagOutput     string
	flagScriptOnly bool
)

func init() {
	runCmd.Flags().StringVarP(&flagInput, "input", "i", "", "PDF file to turn into a podcast")
	runCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output path (default: the server's suggested name)")
	runCmd.Flags().BoolVarP(&flagScriptOnly, "script-only", "S", false, "Save the script JSON and skip audio")
}

func runHeadless(cmd *cobra.Command, args []string) error {
	if flagInput == "" {
		return fmt.Errorf("--input (-i) is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := observability.InitLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	shutdown, err := observability.InitTracer(ctx, "pdfcast", Version, "cli")
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	b, closeBackend, err := openBackend(ctx, cfg, flagLocal, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	doc, err := ingest.Open(flagInput)
	if err != nil {
		return err
	}

	r := progress.NewBarRenderer(os.Stdout)
	defer r.Finish()
	out := cmd.OutOrStdout()

	lang := cfg.Language
	ctrl := pipeline.NewController(ctx, b, pipeline.Options{
		Language:   func() script.Language { return lang },
		OnProgress: r.Handle,
		OnNotice:   func(n pipeline.Notice) { printNotice(out, n) },
		Logger:     logger,
	})

	return runPipeline(ctx, ctrl, doc, out, logger)
}

// runPipeline drives one document through every stage and writes the result.
func runPipeline(ctx context.Context, ctrl *pipeline.Controller, doc *ingest.Document, out io.Writer, logger *slog.Logger) error {
	if err := ctrl.SelectDocument(doc); err != nil {
		return err
	}
	if err := ctrl.Upload(ctx); err != nil {
		return err
	}
	if err := ctrl.GenerateScript(ctx); err != nil {
		return err
	}

	snap := pipeline.Describe(ctrl.State())
	fmt.Fprintf(out, "  %s (%d turns)\n", snap.Script.DisplayTitle(), len(snap.Script.Turns))

	if flagScriptOnly {
		path := flagOutput
		if path == "" {
			path = strings.TrimSuffix(doc.Name, filepath.Ext(doc.Name)) + "_script.json"
		}
		if err := script.SaveScript(snap.Script, path); err != nil {
			return err
		}
		fmt.Fprintf(out, "  Script saved to %s\n", path)
		return nil
	}

	if err := ctrl.GenerateAudio(ctx); err != nil {
		return err
	}
	media, err := ctrl.Download(ctx)
	if err != nil {
		return err
	}

	var path string
	if flagOutput != "" {
		path = flagOutput
		defer media.Body.Close()
		err = writeMedia(media.Body, path)
	} else {
		path, err = saveMedia(media, ".")
	}
	if err != nil {
		return err
	}
	logger.Info("Podcast saved", "path", path, "session_id", ctrl.SessionID())
	fmt.Fprintf(out, "  Podcast saved to %s\n", path)
	return nil
}

func printNotice(w io.Writer, n pipeline.Notice) {
	mark := "-"
	switch n.Level {
	case pipeline.NoticeSuccess:
		mark = "✓"
	case pipeline.NoticeError:
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s\n", mark, n.Message)
}
