package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ericksa/clauseguard/internal/app"
	"github.com/ericksa/clauseguard/internal/config"
	"github.com/ericksa/clauseguard/internal/logger"
)

// loadConfig is replaced in tests.
var loadConfig = config.Load

var verbose bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clauseguard",
		Short: "Review contract clauses for risk",
		Long: `clauseguard runs a seven-step structured review of contract clauses with a local
language model, optionally grounded in a reference index of standard clauses.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress to stderr")

	root.AddCommand(
		newAnalyzeCmd(),
		newBatchCmd(),
		newCompareCmd(),
		newIndexCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// buildApp loads and validates the configuration and wires the components.
// Logging is quiet unless --verbose is set so reports stay readable.
func buildApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if !verbose {
		cfg.Log.Level = "error"
	}

	l, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return app.Build(cmd.Context(), cfg, l)
}
