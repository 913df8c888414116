package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run reconcile and pending expiration on their cron schedules",
	Run:   runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(_ *cobra.Command, _ []string) {
	cfg, paymentService, _, cleanup := mustCreatePaymentService()
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronLogger := cron.PrintfLogger(logrus.WithField("module", "course-payments-scheduler"))
	scheduler := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	for _, job := range batchJobs {
		spec := job.schedule(cfg)
		if _, err := scheduler.AddFunc(spec, func() {
			runJob(job.name, func() error { return job.run(paymentService, ctx) })
		}); err != nil {
			logrus.WithError(err).WithField("job", job.name).WithField("spec", spec).Fatal("Invalid cron schedule")
		}
		logrus.WithField("job", job.name).WithField("spec", spec).Info("Job scheduled")
	}

	scheduler.Start()

	<-ctx.Done()
	logrus.Info("Scheduler shutdown requested")

	<-scheduler.Stop().Done()
	logrus.Info("Scheduler stopped")
}
