package main

import (
	"github.com/spf13/cobra"
)

var contradictionsUpdateFlags bool

var contradictionsCmd = &cobra.Command{
	Use:   "contradictions [path-slug]",
	Short: "Detect systematic prediction errors",
	Long:  "Runs contradiction checks for one path or all active paths. With --update-flags the path's contradiction flag snapshot is replaced with the result.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) == 0 {
			summary, err := env.Detector.DetectAll(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(summary)
		}

		p, err := env.Store.GetPathBySlug(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if contradictionsUpdateFlags {
			flags, err := env.Detector.UpdatePathContradictionFlags(cmd.Context(), p.ID)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"slug": p.Slug, "flags": flags})
		}

		found, err := env.Detector.DetectForPath(cmd.Context(), p.ID)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"slug": p.Slug, "contradictions": found})
	},
}

func init() {
	contradictionsCmd.Flags().BoolVar(&contradictionsUpdateFlags, "update-flags", false, "replace the path's contradiction flag snapshot")
	rootCmd.AddCommand(contradictionsCmd)
}
