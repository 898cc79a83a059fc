package commands

import (
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postpilot/internal/bootstrap"
	job "github.com/maheshrc27/postpilot/internal/jobs"
	"github.com/maheshrc27/postpilot/internal/queue"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish [UID]",
	Short: "Publish due posts now",
	Long: `Without an argument, publish every Approved post whose slot has passed,
oldest first. With a uid, publish only that post, and only if it is due.

This is the external pulse for the local queue file: run it from host cron
when no job registry is available.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *bootstrap.App) error {
			if len(args) == 1 {
				report, err := app.Publisher.PublishOne(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			}

			report, err := app.Publisher.PublishDue(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		})
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the publish sweep on a schedule until interrupted",
	Long: `Run the periodic publish sweep (CRON_SPEC) and, when the job registry
is reachable, the task worker that fires approved posts at their slot.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *bootstrap.App) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sweep := job.NewPublishSweepJob(app.Publisher, app.Posts, app.Backend, app.Log)
			c, err := job.Schedule(app.Config.CronSpec, sweep)
			if err != nil {
				return err
			}
			c.Start()
			defer c.Stop()

			if app.Backend.Name() == queue.BackendAsynq {
				srv := asynq.NewServer(asynq.RedisClientOpt{Addr: app.Config.RedisURI}, asynq.Config{
					Concurrency: 1,
					Logger:      app.Log,
				})
				if err := srv.Start(queue.NewWorker(app.Publisher, app.Log).Mux()); err != nil {
					return err
				}
				defer srv.Shutdown()
			}

			app.Log.WithField("backend", app.Backend.Name()).Info("worker started")
			<-ctx.Done()
			app.Log.Info("worker stopping")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(publishCmd, workerCmd)
}
