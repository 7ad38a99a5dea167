package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run one canary sweep across all enabled providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		statuses := e.Monitor.CheckAll(cmd.Context())
		for _, s := range statuses {
			state := "ok"
			if !s.Healthy {
				state = "FAIL"
			}
			fmt.Printf("%-12s %-5s %5dms", s.Provider, state, s.LatencyMS)
			if s.LastError != "" {
				fmt.Printf("  %s", s.LastError)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
