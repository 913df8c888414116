package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vibast-solutions/ms-go-course-payments/app/entity"
	"github.com/vibast-solutions/ms-go-course-payments/app/provider"
)

const (
	VerifyOutcomePaid            = "paid"
	VerifyOutcomeAlreadyEnrolled = "already_enrolled"
	VerifyOutcomeNotSuccessful   = "not_successful"
)

type verifyPaymentRequest interface {
	GetTxRef() string
}

type VerifyResult struct {
	Outcome       string
	GatewayStatus string
	TxRef         string
	CourseID      uint64
	UserID        uint64
	Amount        decimal.Decimal
	PaymentDate   *time.Time
}

// IsPaid reports whether the (course, user) pair is enrolled after the call.
func (r *VerifyResult) IsPaid() bool {
	return r != nil && (r.Outcome == VerifyOutcomePaid || r.Outcome == VerifyOutcomeAlreadyEnrolled)
}

// VerifyPayment asks the gateway about a transaction and promotes the
// enrollment it describes to paid. Repeating the call for a verified
// transaction returns the same paid result without touching the ledger.
func (s *PaymentService) VerifyPayment(ctx context.Context, req verifyPaymentRequest) (*VerifyResult, error) {
	txRef := strings.TrimSpace(req.GetTxRef())
	if txRef == "" {
		return nil, ErrMissingTxRef
	}

	gateway, err := s.gateway(s.paymentsCfg.DefaultGateway)
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, gateway, txRef)
}

func (s *PaymentService) verify(ctx context.Context, gateway provider.Gateway, txRef string) (*VerifyResult, error) {
	tx, err := s.verifyWithGateway(ctx, gateway, txRef)
	if err != nil {
		s.metrics.IncVerification("gateway_error")
		return nil, err
	}

	courseID, userID, err := parseMeta(tx.Meta)
	if err != nil {
		s.metrics.IncVerification("invalid")
		return nil, err
	}

	payment, err := s.paymentRepo.FindByTransactionReference(ctx, txRef)
	if err != nil {
		return nil, err
	}
	if payment != nil && (payment.CourseID != courseID || payment.UserID != userID) {
		s.metrics.IncVerification("invalid")
		return nil, ErrMetadataMismatch
	}

	now := s.now()
	if !tx.IsSuccessful() {
		if status, ok := paymentStatusFor(tx.Status); ok && payment != nil {
			if err := s.transitionPayment(ctx, payment, status, "payment_"+status, tx.Raw, now); err != nil {
				return nil, err
			}
		}
		s.metrics.IncVerification(VerifyOutcomeNotSuccessful)
		return &VerifyResult{
			Outcome:       VerifyOutcomeNotSuccessful,
			GatewayStatus: tx.Status,
			TxRef:         txRef,
			CourseID:      courseID,
			UserID:        userID,
			Amount:        tx.Amount,
		}, nil
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	course, err := s.courseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}

	amount := tx.Amount
	if payment != nil {
		if !amount.IsZero() && !amountsMatch(payment.Amount, amount) {
			s.metrics.IncVerification("invalid")
			return nil, ErrAmountMismatch
		}
		amount = payment.Amount
	}

	enrollment, err := s.enrollmentRepo.FindByCourseAndUser(ctx, courseID, userID)
	if err != nil {
		return nil, err
	}
	if enrollment.IsPaid() {
		if payment != nil {
			if err := s.transitionPayment(ctx, payment, entity.PaymentStatusSuccess, "payment_verified", tx.Raw, now); err != nil {
				return nil, err
			}
		}
		s.metrics.IncVerification(VerifyOutcomeAlreadyEnrolled)
		return &VerifyResult{
			Outcome:       VerifyOutcomeAlreadyEnrolled,
			GatewayStatus: tx.Status,
			TxRef:         txRef,
			CourseID:      courseID,
			UserID:        userID,
			Amount:        amount,
			PaymentDate:   enrollment.PaymentDate,
		}, nil
	}

	reference := txRef
	changed, err := s.enrollmentRepo.UpdateEnrollment(ctx, courseID, userID, entity.EnrollmentStatusPaid, &reference, now)
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.IncEnrollmentPromoted()
	}

	// Another verification may have won the upsert; report what is stored.
	paymentDate := &now
	if stored, err := s.enrollmentRepo.FindByCourseAndUser(ctx, courseID, userID); err != nil {
		return nil, err
	} else if stored != nil && stored.PaymentDate != nil {
		paymentDate = stored.PaymentDate
	}

	if payment != nil {
		if err := s.transitionPayment(ctx, payment, entity.PaymentStatusSuccess, "payment_verified", tx.Raw, now); err != nil {
			return nil, err
		}
	}

	s.metrics.IncVerification(VerifyOutcomePaid)
	return &VerifyResult{
		Outcome:       VerifyOutcomePaid,
		GatewayStatus: tx.Status,
		TxRef:         txRef,
		CourseID:      courseID,
		UserID:        userID,
		Amount:        amount,
		PaymentDate:   paymentDate,
	}, nil
}

func (s *PaymentService) transitionPayment(ctx context.Context, payment *entity.Payment, status, eventType string, raw []byte, at time.Time) error {
	moved, err := s.paymentRepo.TransitionStatus(ctx, payment.TransactionReference, status, jsonOrNil(raw), at)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	oldStatus := payment.Status
	payment.Status = status
	payment.VerifiedAt = &at
	payment.UpdatedAt = at
	s.recordEvent(ctx, payment.ID, eventType, &oldStatus, status, raw, at)
	return nil
}

func parseMeta(meta provider.Meta) (uint64, uint64, error) {
	if strings.TrimSpace(meta.CourseID) == "" || strings.TrimSpace(meta.UserID) == "" {
		return 0, 0, ErrMissingMetadata
	}
	courseID, err := strconv.ParseUint(strings.TrimSpace(meta.CourseID), 10, 64)
	if err != nil || courseID == 0 {
		return 0, 0, ErrMissingMetadata
	}
	userID, err := strconv.ParseUint(strings.TrimSpace(meta.UserID), 10, 64)
	if err != nil || userID == 0 {
		return 0, 0, ErrMissingMetadata
	}
	return courseID, userID, nil
}

// paymentStatusFor maps a non-success gateway status to a terminal payment
// status. Statuses that may still change, such as pending, map to nothing.
func paymentStatusFor(gatewayStatus string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(gatewayStatus)) {
	case "failed", "failure":
		return entity.PaymentStatusFailed, true
	case "cancelled", "canceled", "expired":
		return entity.PaymentStatusCancelled, true
	case "refunded", "reversed":
		return entity.PaymentStatusRefunded, true
	default:
		return "", false
	}
}
