package cmd

import (
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-course-payments/app/factory"
	"github.com/vibast-solutions/ms-go-course-payments/app/metrics"
	"github.com/vibast-solutions/ms-go-course-payments/app/provider"
	"github.com/vibast-solutions/ms-go-course-payments/app/repository"
	"github.com/vibast-solutions/ms-go-course-payments/app/service"
	"github.com/vibast-solutions/ms-go-course-payments/config"
)

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := factory.ConfigureLogging(cfg.Log.Level); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	return cfg
}

func mustOpenDatabase(cfg *config.Config) *sql.DB {
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}
	return db
}

func mustCreatePaymentService() (*config.Config, *service.PaymentService, *metrics.Collector, func()) {
	cfg := mustLoadConfig()
	db := mustOpenDatabase(cfg)

	if cfg.Chapa.SecretKey == "" {
		logrus.Warn("CHAPA_SECRET_KEY is not set; gateway calls will fail")
	}

	chapaGateway := provider.NewChapaGateway(provider.ChapaConfig{
		BaseURL:       cfg.Chapa.BaseURL,
		SecretKey:     cfg.Chapa.SecretKey,
		WebhookSecret: cfg.Chapa.WebhookSecret,
		CallbackURL:   cfg.Chapa.CallbackURL,
		ReturnURL:     cfg.Chapa.ReturnURL,
		HTTPTimeout:   cfg.Chapa.HTTPTimeout,
	})

	collector := metrics.NewCollector()
	paymentService := service.NewPaymentService(
		repository.NewCourseRepository(db),
		repository.NewUserRepository(db),
		repository.NewEnrollmentRepository(db),
		repository.NewPaymentRepository(db),
		repository.NewPaymentEventRepository(db),
		repository.NewPaymentCallbackRepository(db),
		provider.NewRegistry(chapaGateway),
		cfg.Payments,
		collector,
	)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, paymentService, collector, cleanup
}
