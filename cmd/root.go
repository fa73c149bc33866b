package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agroamigo/sipsa-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sipsa-cli",
	Short: "SIPSA wholesale price bulletin pipeline",
	Long:         "Scrapes the DANE SIPSA portal for daily wholesale price bulletins, registers downloads, expands city archives, and parses PDF/Excel files into price observations.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		applyGlobalFlags(cmd, cfg)

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// applyGlobalFlags lets the shared flags override what the config file
// and environment provided.
func applyGlobalFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Root().PersistentFlags()
	if flags.Changed("dry-run") {
		cfg.Pipeline.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("sequential") {
		cfg.Pipeline.Sequential, _ = flags.GetBool("sequential")
	}
	if flags.Changed("threads") {
		cfg.Pipeline.Threads, _ = flags.GetInt("threads")
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("dry-run", false, "discover and parse but persist nothing")
	rootCmd.PersistentFlags().Bool("sequential", false, "process one item at a time")
	rootCmd.PersistentFlags().Int("threads", 8, "worker count for parallel stages")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
