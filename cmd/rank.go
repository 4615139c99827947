package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pathlight-hq/pathlight/internal/model"
)

var rankContextFile string

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank active strategic paths against a client context",
	Long:  "Reads a client context from a JSON file and prints every active path scored and ordered against it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(rankContextFile)
		if err != nil {
			return eris.Wrap(err, "read context file")
		}
		var cc model.ClientContext
		if err := json.Unmarshal(raw, &cc); err != nil {
			return eris.Wrap(err, "parse context file")
		}

		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		scores, err := env.Engine.RankForContext(cmd.Context(), cc)
		if err != nil {
			return err
		}
		return printJSON(scores)
	},
}

func init() {
	rankCmd.Flags().StringVar(&rankContextFile, "context", "", "path to a client context JSON file (required)")
	_ = rankCmd.MarkFlagRequired("context")
	rootCmd.AddCommand(rankCmd)
}
