// Package cli implements calmctl, the operator and chat command line for calmchat.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"calmchat/internal/app"
	"calmchat/internal/config"
	"calmchat/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

// newApp builds the component graph for one command. Tests replace it to share an in-memory app.
var newApp = app.New

var rootCmd = &cobra.Command{
	Use:   "calmctl",
	Short: "Social phobia document assistant",
	Long: `calmctl ingests PDF guides about social phobia into a vector store and answers
questions about them, citing the documents each answer was grounded on.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cfgFile != "" {
			if err := os.Setenv("CALMCHAT_CONFIG", cfgFile); err != nil {
				return err
			}
		}
		logger.SetOutput(cmd.ErrOrStderr())
		logger.SetVerbose(verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// openApp loads configuration, lets the command adjust it and builds the app.
func openApp(ctx context.Context, adjust func(*config.Config), opts ...app.Option) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Verbose {
		logger.SetVerbose(true)
	}
	if adjust != nil {
		adjust(&cfg)
	}
	a, err := newApp(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise: %w", err)
	}
	return a, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
