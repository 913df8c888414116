package entity

import "time"

const (
	EnrollmentStatusUnpaid   = "unpaid"
	EnrollmentStatusPaid     = "paid"
	EnrollmentStatusRefunded = "refunded"
)

// Enrollment is a user's payment state for a course. There is at most one per
// (CourseID, UserID) pair.
type Enrollment struct {
	ID uint64

	CourseID uint64
	UserID   uint64

	PaymentStatus    string
	PaymentReference *string
	PaymentDate      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e *Enrollment) IsPaid() bool {
	return e != nil && e.PaymentStatus == EnrollmentStatusPaid
}

func IsValidEnrollmentStatus(status string) bool {
	switch status {
	case EnrollmentStatusUnpaid, EnrollmentStatusPaid, EnrollmentStatusRefunded:
		return true
	default:
		return false
	}
}
