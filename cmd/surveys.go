package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pathlight-hq/pathlight/internal/survey"
)

var surveysCmd = &cobra.Command{
	Use:   "surveys",
	Short: "Manage outcome surveys",
}

var surveyRecipient string

var surveysCreateCmd = &cobra.Command{
	Use:   "create <exploration-id>",
	Short: "Schedule an outcome survey for an exploration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		var recipient *string
		if surveyRecipient != "" {
			recipient = &surveyRecipient
		}
		sv, err := env.Surveys.Create(cmd.Context(), args[0], recipient)
		if err != nil {
			return err
		}
		return printJSON(sv)
	},
}

var surveysDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Send pending surveys whose follow-up time has arrived",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Surveys.DispatchDue(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("dispatch complete", zap.Int("sent", n))
		return nil
	},
}

var surveySubmissionFile string

var surveysSubmitCmd = &cobra.Command{
	Use:   "submit <survey-id>",
	Short: "Record a survey response as a completed outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(surveySubmissionFile)
		if err != nil {
			return eris.Wrap(err, "read submission file")
		}
		var sub survey.Submission
		if err := json.Unmarshal(raw, &sub); err != nil {
			return eris.Wrap(err, "parse submission file")
		}

		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		outcome, err := env.Surveys.Submit(cmd.Context(), args[0], sub)
		if err != nil {
			return err
		}
		return printJSON(outcome)
	},
}

var surveysSkipCmd = &cobra.Command{
	Use:   "skip <survey-id>",
	Short: "Close a survey without collecting an outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Surveys.Skip(cmd.Context(), args[0])
	},
}

var surveysExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Expire sent surveys past the response window",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Surveys.ExpireStale(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("expiry complete", zap.Int("expired", n))
		return nil
	},
}

func init() {
	surveysCreateCmd.Flags().StringVar(&surveyRecipient, "recipient", "", "recipient email")
	surveysSubmitCmd.Flags().StringVar(&surveySubmissionFile, "file", "", "path to a submission JSON file (required)")
	_ = surveysSubmitCmd.MarkFlagRequired("file")

	surveysCmd.AddCommand(surveysCreateCmd, surveysDispatchCmd, surveysSubmitCmd, surveysSkipCmd, surveysExpireCmd)
	rootCmd.AddCommand(surveysCmd)
}
