package main

import (
	"github.com/spf13/cobra"
)

var varianceCmd = &cobra.Command{
	Use:   "variance [path-slug]",
	Short: "Show prediction variance per path or across all paths",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) == 0 {
			gv, err := env.Variance.GlobalVariance(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(gv)
		}

		p, err := env.Store.GetPathBySlug(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		m, err := env.Variance.PathVariance(cmd.Context(), p.ID)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"slug":    p.Slug,
			"metrics": m,
		})
	},
}

func init() {
	rootCmd.AddCommand(varianceCmd)
}
