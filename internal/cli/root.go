package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/apresai/pdfcast/internal/config"
	"github.com/apresai/pdfcast/internal/script"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:          "pdfcast",
	Short:        "Turn a PDF into a teacher and student podcast",
	SilenceUsage: true,
	RunE:         runStudio,
}

var studioCmd = &cobra.Command{
	Use:   "studio",
	Short: "Interactive upload, script and audio workflow (default)",
	RunE:  runStudio,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pdfcast %s\n", Version)
	},
}

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List the podcast languages",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, l := range script.Languages() {
			fmt.Fprintf(out, "  %-4s %s\n", l.Code, l.Name)
		}
	},
}

var (
	flagServer   string
	flagLocal    bool
	flagLanguage string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "Backend API URL (overrides PDFCAST_SERVER_URL)")
	rootCmd.PersistentFlags().BoolVar(&flagLocal, "local", false, "Run the backend in-process instead of calling a server")
	rootCmd.PersistentFlags().StringVarP(&flagLanguage, "language", "l", "", "Podcast language: en, hi, es, fr, de")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(languagesCmd)
	rootCmd.AddCommand(studioCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagServer != "" {
		cfg.ServerURL = flagServer
	}
	if flagLanguage != "" {
		cfg.Language = script.Language(strings.ToLower(strings.TrimSpace(flagLanguage)))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
