package main

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/common"
	"github.com/ternarybob/siteverify/internal/runner"
)

// cronLogger routes cron's scheduler messages through arbor
type cronLogger struct {
	logger arbor.ILogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("cron", fmt.Sprint(keysAndValues...)).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Str("cron", fmt.Sprint(keysAndValues...)).Msg(msg)
}

func newWatchCommand(root *rootOptions) *cobra.Command {
	var now bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the suite on the configured cron schedule until interrupted",
		Example: `  siteverify watch
  SITEVERIFY_SCHEDULE="*/30 * * * *" siteverify watch --now`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, logger, err := startup(root, nil)
			if err != nil {
				return err
			}
			if config.Schedule.Cron == "" {
				return fmt.Errorf("schedule.cron must be set for watch mode")
			}
			if err := common.ValidateSchedule(config.Schedule.Cron); err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			runOnce := func() {
				summary, err := executeSuite(ctx, config, logger, runner.AllParts)
				if err != nil {
					logger.Error().Err(err).Msg("Scheduled run could not start")
					return
				}
				if err := finish(summary, logger); err != nil {
					logger.Warn().Int("failed", summary.Failed).Msg("Scheduled run had failures")
				}
			}

			scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})))
			if _, err := scheduler.AddFunc(config.Schedule.Cron, runOnce); err != nil {
				return fmt.Errorf("failed to schedule runs: %w", err)
			}

			if now {
				runOnce()
			}

			scheduler.Start()
			for _, entry := range scheduler.Entries() {
				logger.Info().
					Str("schedule", config.Schedule.Cron).
					Str("next_run", entry.Next.Format(time.RFC3339)).
					Msg("Watching site")
			}

			<-ctx.Done()
			logger.Info().Msg("Stopping watch, waiting for a running suite to finish")
			<-scheduler.Stop().Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&now, "now", false, "run once immediately before following the schedule")
	return cmd
}
