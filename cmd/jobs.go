package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-course-payments/app/service"
	"github.com/vibast-solutions/ms-go-course-payments/config"
)

var (
	workerMode bool
)

// batchJob describes a payment maintenance job runnable once, as a ticker worker or from cron.
type batchJob struct {
	name     string
	interval func(cfg *config.Config) time.Duration
	schedule func(cfg *config.Config) string
	run      func(*service.PaymentService, context.Context) error
}

var (
	reconcileJob = batchJob{
		name:     "reconcile",
		interval: func(cfg *config.Config) time.Duration { return cfg.Jobs.ReconcileInterval },
		schedule: func(cfg *config.Config) string { return cfg.Jobs.ReconcileSchedule },
		run:      (*service.PaymentService).RunReconcileBatch,
	}
	expirePendingJob = batchJob{
		name:     "expire_pending",
		interval: func(cfg *config.Config) time.Duration { return cfg.Jobs.ExpirePendingInterval },
		schedule: func(cfg *config.Config) string { return cfg.Jobs.ExpirePendingSchedule },
		run:      (*service.PaymentService).RunExpirePendingBatch,
	}

	batchJobs = []batchJob{reconcileJob, expirePendingJob}
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-verify stale pending payments with the gateway",
	Run: func(_ *cobra.Command, _ []string) {
		runBatchCommand(reconcileJob)
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Run expiration-related commands",
}

var expirePendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Cancel payments left pending past the configured timeout",
	Run: func(_ *cobra.Command, _ []string) {
		runBatchCommand(expirePendingJob)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(expireCmd)
	expireCmd.AddCommand(expirePendingCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runBatchCommand(job batchJob) {
	cfg, paymentService, _, cleanup := mustCreatePaymentService()
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !workerMode {
		runJob(job.name, func() error { return job.run(paymentService, ctx) })
		return
	}
	runWorker(ctx, job, job.interval(cfg), paymentService)
}

func runWorker(ctx context.Context, job batchJob, interval time.Duration, paymentService *service.PaymentService) {
	if interval <= 0 {
		logrus.WithField("job", job.name).WithField("interval", interval.String()).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := logrus.WithField("job", job.name)
	logger.WithField("interval", interval.String()).Info("Worker started")

	runJob(job.name, func() error { return job.run(paymentService, ctx) })
	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(job.name, func() error { return job.run(paymentService, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	entry := logrus.WithField("job", name).WithField("latency", time.Since(start).String())
	if err != nil {
		entry.WithError(err).Error("job_failed")
		return
	}
	entry.Info("job_completed")
}
