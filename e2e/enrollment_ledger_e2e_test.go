//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/vibast-solutions/ms-go-course-payments/app/entity"
	"github.com/vibast-solutions/ms-go-course-payments/app/repository"
)

func openLedgerDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("COURSE_PAYMENTS_MYSQL_DSN")
	if dsn == "" {
		t.Skip("COURSE_PAYMENTS_MYSQL_DSN not set")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("open mysql failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := repository.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return db
}

func seedLedgerCourse(t *testing.T, db *sql.DB) uint64 {
	t.Helper()
	now := time.Now().UTC()
	res, err := db.Exec(
		`INSERT INTO courses (title, price, currency, is_published, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"Ledger Course", "499.99", "ETB", true, now, now,
	)
	if err != nil {
		t.Fatalf("seed course failed: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("course id failed: %v", err)
	}
	t.Cleanup(func() { _, _ = db.Exec(`DELETE FROM courses WHERE id = ?`, id) })
	return uint64(id)
}

func TestEnrollmentLedgerUpsertGuards(t *testing.T) {
	db := openLedgerDB(t)
	repo := repository.NewEnrollmentRepository(db)
	ctx := context.Background()

	courseID := seedLedgerCourse(t, db)
	userID := uint64(time.Now().UnixNano() % 1_000_000_000)

	firstAt := time.Now().UTC().Truncate(time.Millisecond)
	firstRef := "course-ledger-first"
	changed, err := repo.UpdateEnrollment(ctx, courseID, userID, entity.EnrollmentStatusPaid, &firstRef, firstAt)
	if err != nil {
		t.Fatalf("first paid upsert failed: %v", err)
	}
	if !changed {
		t.Fatal("expected first paid upsert to insert")
	}

	secondRef := "course-ledger-second"
	changed, err = repo.UpdateEnrollment(ctx, courseID, userID, entity.EnrollmentStatusPaid, &secondRef, firstAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("second paid upsert failed: %v", err)
	}
	if changed {
		t.Fatal("expected repeated paid upsert to change nothing")
	}

	changed, err = repo.UpdateEnrollment(ctx, courseID, userID, entity.EnrollmentStatusUnpaid, nil, firstAt.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("unpaid upsert failed: %v", err)
	}
	if changed {
		t.Fatal("expected paid enrollment not to be demoted")
	}

	stored, err := repo.FindByCourseAndUser(ctx, courseID, userID)
	if err != nil {
		t.Fatalf("find enrollment failed: %v", err)
	}
	if stored == nil || !stored.IsPaid() {
		t.Fatalf("expected paid enrollment, got %+v", stored)
	}
	if stored.PaymentReference == nil || *stored.PaymentReference != firstRef {
		t.Fatalf("expected payment reference %s, got %v", firstRef, stored.PaymentReference)
	}
	if stored.PaymentDate == nil || !stored.PaymentDate.Equal(firstAt) {
		t.Fatalf("expected payment date %s, got %v", firstAt, stored.PaymentDate)
	}

	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM course_enrollments WHERE course_id = ? AND user_id = ?`, courseID, userID).Scan(&rows); err != nil {
		t.Fatalf("count enrollments failed: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one enrollment row, got %d", rows)
	}
}
