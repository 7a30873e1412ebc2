package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"marginalia/api/internal/config"
	"marginalia/api/internal/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "marginalia",
		Short:         "Operator tools for the marginalia annotation API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().BoolP("verbose", "v", false, "log at debug level")

	root.AddCommand(newReindexCmd(), newAnalyzeCmd(), newNIPSACmd())
	return root
}

// commandLogger builds the same JSON logger as the API, forced to debug when
// --verbose is set.
func commandLogger(cmd *cobra.Command, cfg config.Config) (*zap.Logger, error) {
	level := cfg.LogLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	return logger.New(logger.Config{
		Environment: cfg.Environment,
		LogLevel:    level,
		ServiceName: "marginalia-cli",
	})
}
