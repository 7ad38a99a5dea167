package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/consensus-engine/internal/health"
)

var benchmarkDataset string

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Replay a labeled dataset through every consensus strategy",
	Long:  "Loads a yaml dataset of pre-parsed provider records and reduces each case with every strategy, reporting success rate, agreement and confidence per strategy. No provider calls are made.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if benchmarkDataset == "" {
			return eris.New("--dataset is required")
		}

		ds, err := health.LoadDataset(benchmarkDataset)
		if err != nil {
			return err
		}

		reports, err := health.Benchmark(ds, cfg.Consensus.BucketWidthForKappa)
		if err != nil {
			return err
		}

		fmt.Printf("%-24s %8s %10s %12s %12s\n", "STRATEGY", "SUCCESS", "AGREEMENT", "CONFIDENCE", "LATENCY(us)")
		for _, r := range reports {
			fmt.Printf("%-24s %3d/%-4d %10.3f %12.3f %12d\n",
				r.Strategy, r.Successes, r.Cases, r.AvgAgreement, r.AvgConfidence, r.AvgLatencyUS)
		}
		return nil
	},
}

func init() {
	benchmarkCmd.Flags().StringVar(&benchmarkDataset, "dataset", "", "path to yaml benchmark dataset")
	rootCmd.AddCommand(benchmarkCmd)
}
