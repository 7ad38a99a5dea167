package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/consensus-engine/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "consensus-engine",
	Short: "Multi-provider consensus engine for lead analysis",
	Long:  "Dispatches business analyses to multiple AI providers in parallel, validates and reconciles their answers with agreement statistics, and emits a single cost-accounted verdict.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
