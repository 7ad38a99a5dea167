package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/consensus-engine/internal/audit"
)

var roundsLimit int

var roundsCmd = &cobra.Command{
	Use:   "rounds",
	Short: "List recent consensus rounds from the audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Audit.Enabled {
			return eris.New("audit log is disabled in config")
		}

		store, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		rounds, err := store.RecentRounds(cmd.Context(), roundsLimit)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(rounds, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal rounds")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	roundsCmd.Flags().IntVar(&roundsLimit, "limit", 20, "maximum rounds to list")
	rootCmd.AddCommand(roundsCmd)
}
