package config

import (
	"os"
	"testing"
	"time"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("setenv %s failed: %v", key, err)
	}
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	_ = os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		}
	})
}

func TestLoadRequiresMySQLDSN(t *testing.T) {
	unsetEnv(t, "MYSQL_DSN")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing MYSQL_DSN")
	}
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, "MYSQL_DSN", "root:root@tcp(localhost:3306)/courses?parseTime=true")
	unsetEnv(t, "CHAPA_API_BASE_URL")
	unsetEnv(t, "CHAPA_HTTP_TIMEOUT_SECONDS")
	unsetEnv(t, "PAYMENTS_CURRENCY")
	unsetEnv(t, "PAYMENTS_DEFAULT_GATEWAY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Chapa.BaseURL != "https://api.chapa.co" {
		t.Fatalf("unexpected chapa base url: %s", cfg.Chapa.BaseURL)
	}
	if cfg.Chapa.HTTPTimeout != 10*time.Second {
		t.Fatalf("unexpected chapa timeout: %v", cfg.Chapa.HTTPTimeout)
	}
	if cfg.Payments.Currency != "ETB" {
		t.Fatalf("unexpected currency: %s", cfg.Payments.Currency)
	}
	if cfg.Payments.DefaultGateway != "chapa" {
		t.Fatalf("unexpected default gateway: %s", cfg.Payments.DefaultGateway)
	}
}

func TestLoadOverrides(t *testing.T) {
	setEnv(t, "MYSQL_DSN", "root:root@tcp(localhost:3306)/courses?parseTime=true")
	setEnv(t, "APP_SERVICE_NAME", "course-payments-test")
	setEnv(t, "HTTP_PORT", "8181")
	setEnv(t, "GRPC_PORT", "9191")
	setEnv(t, "MYSQL_MAX_OPEN_CONNS", "20")
	setEnv(t, "MYSQL_CONN_MAX_LIFETIME_MINUTES", "40")
	setEnv(t, "CHAPA_API_BASE_URL", "https://chapa.example/")
	setEnv(t, "CHAPA_HTTP_TIMEOUT_SECONDS", "3")
	setEnv(t, "PAYMENTS_CURRENCY", "usd")
	setEnv(t, "PAYMENTS_PENDING_TIMEOUT_MINUTES", "11")
	setEnv(t, "PAYMENTS_RECONCILE_STALE_AFTER_MINUTES", "13")
	setEnv(t, "PAYMENTS_JOB_BATCH_SIZE", "99")
	setEnv(t, "PAYMENTS_RECONCILE_SCHEDULE", "*/2 * * * *")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.App.ServiceName != "course-payments-test" {
		t.Fatalf("unexpected app service name: %s", cfg.App.ServiceName)
	}
	if cfg.HTTP.Port != "8181" || cfg.GRPC.Port != "9191" {
		t.Fatalf("unexpected ports: http=%s grpc=%s", cfg.HTTP.Port, cfg.GRPC.Port)
	}
	if cfg.MySQL.MaxOpenConns != 20 || cfg.MySQL.ConnMaxLifetime != 40*time.Minute {
		t.Fatalf("unexpected mysql config: %+v", cfg.MySQL)
	}
	if cfg.Chapa.BaseURL != "https://chapa.example" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.Chapa.BaseURL)
	}
	if cfg.Chapa.HTTPTimeout != 3*time.Second {
		t.Fatalf("unexpected chapa timeout: %v", cfg.Chapa.HTTPTimeout)
	}
	if cfg.Payments.Currency != "USD" {
		t.Fatalf("expected upper-cased currency, got %s", cfg.Payments.Currency)
	}
	if cfg.Payments.PendingTimeout != 11*time.Minute {
		t.Fatalf("unexpected pending timeout: %v", cfg.Payments.PendingTimeout)
	}
	if cfg.Payments.ReconcileStaleAfter != 13*time.Minute {
		t.Fatalf("unexpected reconcile stale after: %v", cfg.Payments.ReconcileStaleAfter)
	}
	if cfg.Payments.JobBatchSize != 99 {
		t.Fatalf("unexpected job batch size: %d", cfg.Payments.JobBatchSize)
	}
	if cfg.Jobs.ReconcileSchedule != "*/2 * * * *" {
		t.Fatalf("unexpected reconcile schedule: %s", cfg.Jobs.ReconcileSchedule)
	}
}
