// Package commands defines the Cobra commands of the docqa binary.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"docqa/internal/config"
	"docqa/internal/logging"
)

var (
	logLevel string
	cfg      *config.Config
	logger   *slog.Logger
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docqa",
		Short: "Ask questions about PDF and text documents",
		Long: `docqa extracts answers from local PDF, text and markdown files.

Chunking and windowing settings come from the same configuration as the
server (configs/config.toml, overridden by environment variables). Every
command runs offline with the local hashing embedder and lexical extractor.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			logger = logging.NewWithWriter(cmd.ErrOrStderr(), logLevel, "text")
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(
		NewAskCmd(),
		NewChunkCmd(),
	)
	return root
}
