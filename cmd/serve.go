package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pathlight-hq/pathlight/internal/model"
	"github.com/pathlight-hq/pathlight/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and scheduled jobs",
	Long:  "Serves the analytics engine over HTTP and runs the periodic jobs: the recalculation sweep, survey dispatch, and survey expiry.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		srv := server.New(env.Store, env.Engine, env.Variance, env.Detector, env.Recalc, env.Surveys)

		sched, err := startJobs(ctx, env)
		if err != nil {
			return err
		}
		defer func() {
			<-sched.Stop().Done()
		}()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// startJobs registers the periodic jobs. Job failures are logged and, for
// recalculation, reflected in the per-path run history; they never bring the
// process down.
func startJobs(ctx context.Context, env *engineEnv) (*cron.Cron, error) {
	sched := cron.New()

	if _, err := sched.AddFunc(cfg.Schedule.RecalcSpec, func() {
		results, err := env.Recalc.RecalculateAll(ctx, model.TriggerScheduled, "scheduler", false)
		if err != nil {
			zap.L().Error("scheduled recalculation sweep failed", zap.Error(err))
			return
		}
		zap.L().Info("scheduled recalculation sweep complete", zap.Int("processed", len(results)))
	}); err != nil {
		return nil, eris.Wrap(err, "schedule recalc sweep")
	}

	if _, err := sched.AddFunc(cfg.Schedule.SurveySendSpec, func() {
		n, err := env.Surveys.DispatchDue(ctx)
		if err != nil {
			zap.L().Error("scheduled survey dispatch failed", zap.Error(err))
			return
		}
		if n > 0 {
			zap.L().Info("scheduled survey dispatch complete", zap.Int("sent", n))
		}
	}); err != nil {
		return nil, eris.Wrap(err, "schedule survey dispatch")
	}

	if _, err := sched.AddFunc(cfg.Schedule.SurveyExpireSpec, func() {
		n, err := env.Surveys.ExpireStale(ctx)
		if err != nil {
			zap.L().Error("scheduled survey expiry failed", zap.Error(err))
			return
		}
		if n > 0 {
			zap.L().Info("scheduled survey expiry complete", zap.Int("expired", n))
		}
	}); err != nil {
		return nil, eris.Wrap(err, "schedule survey expiry")
	}

	sched.Start()
	return sched, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
