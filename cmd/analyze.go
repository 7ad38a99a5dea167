package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/consensus-engine/internal/consensus"
	"github.com/sells-group/consensus-engine/internal/model"
)

var (
	analyzeType      string
	analyzeStrategy  string
	analyzeProviders []string
	analyzeRecord    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one consensus round over a business record",
	Long:  "Reads a business record as JSON (from --record or stdin), dispatches it to the configured providers, and prints the consensus result.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw []byte
		var err error
		if analyzeRecord == "" || analyzeRecord == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(analyzeRecord)
		}
		if err != nil {
			return eris.Wrap(err, "read record")
		}

		var record model.BusinessRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return eris.Wrap(err, "parse record")
		}
		if record.Name == "" {
			return eris.New("record must have a name")
		}

		e, err := buildEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.Engine.Analyze(cmd.Context(), model.AnalysisRequest{
			Record:       record,
			AnalysisType: model.AnalysisType(analyzeType),
			Providers:    analyzeProviders,
			Strategy:     analyzeStrategy,
		})
		if err != nil {
			var nce *consensus.NoConsensusError
			if errors.As(err, &nce) {
				fmt.Fprintf(os.Stderr, "no consensus after %d attempts\n", len(nce.Attempts))
			}
			return err
		}

		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal result")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeType, "type", string(model.AnalysisBusinessPotential), "analysis type")
	analyzeCmd.Flags().StringVar(&analyzeStrategy, "strategy", "", "consensus strategy (default from config)")
	analyzeCmd.Flags().StringSliceVar(&analyzeProviders, "providers", nil, "restrict to these providers")
	analyzeCmd.Flags().StringVar(&analyzeRecord, "record", "", "path to business record JSON (- for stdin)")
	rootCmd.AddCommand(analyzeCmd)
}
