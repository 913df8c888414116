package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/vibast-solutions/ms-go-course-payments/app/entity"
)

// RunReconcileBatch re-verifies payments that stayed pending longer than the
// stale window. Gateway failures are left for the next run.
func (s *PaymentService) RunReconcileBatch(ctx context.Context) error {
	now := s.now()
	before := now.Add(-s.paymentsCfg.ReconcileStaleAfter)
	items, err := s.paymentRepo.ListPendingForReconcile(ctx, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range items {
		if payment == nil {
			continue
		}

		gateway, err := s.gateway(payment.PaymentMethod)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		if _, err := s.verify(ctx, gateway, payment.TransactionReference); err != nil {
			if isDeferrable(err) {
				continue
			}
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// RunExpirePendingBatch cancels payments nobody completed within the pending
// timeout. Each payment is verified with the gateway first, so a checkout paid
// late still enrolls the user and ends as success. Transport failures leave the
// payment pending for the next run; an unknown reference cancels it.
func (s *PaymentService) RunExpirePendingBatch(ctx context.Context) error {
	now := s.now()
	cutoff := now.Add(-s.paymentsCfg.PendingTimeout)
	items, err := s.paymentRepo.ListExpiredPending(ctx, cutoff, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range items {
		if payment == nil || payment.Status != entity.PaymentStatusPending {
			continue
		}

		gateway, err := s.gateway(payment.PaymentMethod)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		result, err := s.verify(ctx, gateway, payment.TransactionReference)
		switch {
		case err != nil && isUnknownReference(err):
			// abandoned checkout, the gateway never saw it
		case err != nil:
			if !isDeferrable(err) {
				firstErr = keepFirstErr(firstErr, err)
			}
			continue
		case result.IsPaid():
			continue
		}

		if err := s.transitionPayment(ctx, payment, entity.PaymentStatusCancelled, "payment_expired", nil, now); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// isDeferrable covers gateway answers that do not settle a pending payment:
// transport failures, and an unknown reference for an abandoned checkout.
func isDeferrable(err error) bool {
	var paymentErr *PaymentError
	if !errors.As(err, &paymentErr) {
		return false
	}
	return paymentErr.Retryable || paymentErr.StatusCode == http.StatusNotFound
}

func isUnknownReference(err error) bool {
	var paymentErr *PaymentError
	return errors.As(err, &paymentErr) && paymentErr.StatusCode == http.StatusNotFound
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
