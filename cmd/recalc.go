package main

import (
	"os/user"

	"github.com/spf13/cobra"

	"github.com/pathlight-hq/pathlight/internal/model"
)

var (
	recalcAll   bool
	recalcForce bool
	recalcActor string
)

var recalcCmd = &cobra.Command{
	Use:   "recalc [path-slug]",
	Short: "Recalculate published path metrics from accumulated outcomes",
	Long:  "Re-aggregates success rate, timeline and capital bands, risk score and confidence from the path's complete outcome history, bumping the model version. Paths below the new-outcome gate are skipped unless --force is set.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		actor := recalcActor
		if actor == "" {
			actor = "cli"
			if u, err := user.Current(); err == nil && u.Username != "" {
				actor = u.Username
			}
		}

		if recalcAll || len(args) == 0 {
			results, err := env.Recalc.RecalculateAll(cmd.Context(), model.TriggerManual, actor, recalcForce)
			if err != nil {
				return err
			}
			return printJSON(results)
		}

		p, err := env.Store.GetPathBySlug(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		res, err := env.Recalc.Recalculate(cmd.Context(), p.ID, model.TriggerManual, actor, recalcForce)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var recalcHistoryLimit int

var recalcHistoryCmd = &cobra.Command{
	Use:   "history <path-slug>",
	Short: "Show recalculation history for a path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Store.GetPathBySlug(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		runs, err := env.Store.ListRecalculationRuns(cmd.Context(), p.ID, recalcHistoryLimit)
		if err != nil {
			return err
		}
		return printJSON(runs)
	},
}

func init() {
	recalcCmd.Flags().BoolVar(&recalcAll, "all", false, "sweep every active path")
	recalcCmd.Flags().BoolVar(&recalcForce, "force", false, "bypass the new-outcome gate")
	recalcCmd.Flags().StringVar(&recalcActor, "actor", "", "actor recorded in the recalculation history (default current user)")
	recalcHistoryCmd.Flags().IntVar(&recalcHistoryLimit, "limit", 20, "maximum history rows")
	recalcCmd.AddCommand(recalcHistoryCmd)
	rootCmd.AddCommand(recalcCmd)
}
