package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-course-payments/app/entity"
)

var ErrInvalidEnrollmentStatus = errors.New("invalid enrollment status")

type EnrollmentRepository struct {
	db DBTX
}

func NewEnrollmentRepository(db DBTX) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) IsUserEnrolled(ctx context.Context, courseID, userID uint64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM course_enrollments
			WHERE course_id = ? AND user_id = ? AND payment_status = ?
		)
	`

	var enrolled bool
	if err := r.db.QueryRowContext(ctx, query, courseID, userID, entity.EnrollmentStatusPaid).Scan(&enrolled); err != nil {
		return false, err
	}
	return enrolled, nil
}

func (r *EnrollmentRepository) FindByCourseAndUser(ctx context.Context, courseID, userID uint64) (*entity.Enrollment, error) {
	query := `
		SELECT id, course_id, user_id, payment_status, payment_reference, payment_date, created_at, updated_at
		FROM course_enrollments
		WHERE course_id = ? AND user_id = ?
		LIMIT 1
	`

	var reference sql.NullString
	var paymentDate sql.NullTime
	enrollment := &entity.Enrollment{}
	err := r.db.QueryRowContext(ctx, query, courseID, userID).Scan(
		&enrollment.ID,
		&enrollment.CourseID,
		&enrollment.UserID,
		&enrollment.PaymentStatus,
		&reference,
		&paymentDate,
		&enrollment.CreatedAt,
		&enrollment.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	enrollment.PaymentReference = stringPtrFromNull(reference)
	enrollment.PaymentDate = timePtrFromNull(paymentDate)
	return enrollment, nil
}

// upsertEnrollmentQuery needs MySQL 8.0.19+ for the row alias. Unqualified
// columns are the stored row, incoming is the proposed one. Assignments are
// evaluated left to right, so payment_status must be last.
const upsertEnrollmentQuery = `
	INSERT INTO course_enrollments (
		course_id, user_id, payment_status, payment_reference, payment_date, created_at, updated_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?) AS incoming
	ON DUPLICATE KEY UPDATE
		updated_at = IF(
			payment_status = incoming.payment_status OR (payment_status = 'paid' AND incoming.payment_status = 'unpaid'),
			updated_at, incoming.updated_at),
		payment_reference = IF(
			payment_status = incoming.payment_status OR (payment_status = 'paid' AND incoming.payment_status = 'unpaid'),
			payment_reference, COALESCE(incoming.payment_reference, payment_reference)),
		payment_date = IF(
			payment_date IS NULL AND incoming.payment_status = 'paid',
			incoming.payment_date, payment_date),
		payment_status = IF(
			payment_status = 'paid' AND incoming.payment_status = 'unpaid',
			payment_status, incoming.payment_status)
`

// UpdateEnrollment creates or updates the (course, user) enrollment in a
// single statement, so concurrent callers converge on one row.
//
// A paid enrollment is never demoted to unpaid, payment_date is written only
// the first time the row becomes paid, and re-applying the current status
// leaves the row untouched. The returned bool reports whether anything
// changed; it relies on the default MySQL affected-rows semantics (no
// clientFoundRows in the DSN).
func (r *EnrollmentRepository) UpdateEnrollment(ctx context.Context, courseID, userID uint64, status string, reference *string, at time.Time) (bool, error) {
	if !entity.IsValidEnrollmentStatus(status) {
		return false, ErrInvalidEnrollmentStatus
	}

	var paymentDate *time.Time
	if status == entity.EnrollmentStatusPaid {
		paymentDate = &at
	}

	result, err := r.db.ExecContext(ctx, upsertEnrollmentQuery,
		courseID,
		userID,
		status,
		nullableStringValue(reference),
		nullableTimeValue(paymentDate),
		at,
		at,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
