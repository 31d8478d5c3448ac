package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/quadrant-labs/assess/internal/model"
	"github.com/quadrant-labs/assess/internal/scoring"
)

var scoreFile string

// scoreCmd scores an answers file offline. Operator tool for debugging
// profiles without touching the store.
var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score an answers JSON file without persisting",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(scoreFile)
		if err != nil {
			return eris.Wrap(err, "read answers file")
		}

		var answers []model.Answer
		if err := json.Unmarshal(data, &answers); err != nil {
			return eris.Wrap(err, "parse answers file")
		}
		for _, a := range answers {
			if err := a.Validate(); err != nil {
				return eris.Wrap(err, "invalid answer")
			}
		}

		outcome, err := scoring.Compute(answers)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcome); err != nil {
			return eris.Wrap(err, "encode outcome")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "profile: %s\n", outcome.Profile)
		return nil
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreFile, "file", "", "path to answers JSON file")
	_ = scoreCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(scoreCmd)
}
