package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vibast-solutions/ms-go-course-payments/app/entity"
)

type gatewayWebhookRequest interface {
	GetGateway() string
	GetSignature() string
	GetPayload() []byte
	GetTxRef() string
	RequiresSignature() bool
}

// HandleGatewayWebhook processes a gateway notification. The notification
// only names the transaction; its state is always re-read from the gateway
// through the same path as client verification. Unsigned checkout callbacks
// skip the signature check for that reason.
func (s *PaymentService) HandleGatewayWebhook(ctx context.Context, req gatewayWebhookRequest) (*VerifyResult, error) {
	gateway, err := s.gateway(req.GetGateway())
	if err != nil {
		return nil, err
	}

	payload := req.GetPayload()
	signature := strings.TrimSpace(req.GetSignature())
	if req.RequiresSignature() {
		if err := gateway.VerifyWebhookSignature(payload, signature); err != nil {
			s.persistCallback(ctx, req, nil, entity.PaymentCallbackStatusRejected, fmt.Sprintf("webhook signature validation failed: %v", err))
			return nil, ErrCallbackRejected
		}
	}

	txRef := strings.TrimSpace(req.GetTxRef())
	if txRef == "" {
		s.persistCallback(ctx, req, nil, entity.PaymentCallbackStatusRejected, "transaction reference missing from webhook")
		return nil, ErrMissingTxRef
	}

	var paymentID *uint64
	if payment, err := s.paymentRepo.FindByTransactionReference(ctx, txRef); err != nil {
		return nil, err
	} else if payment != nil {
		id := payment.ID
		paymentID = &id
	}

	result, verifyErr := s.verify(ctx, gateway, txRef)
	if verifyErr != nil {
		s.persistCallback(ctx, req, paymentID, entity.PaymentCallbackStatusRejected, verifyErr.Error())
		return nil, verifyErr
	}

	s.persistCallback(ctx, req, paymentID, entity.PaymentCallbackStatusProcessed, "")
	return result, nil
}

func (s *PaymentService) persistCallback(ctx context.Context, req gatewayWebhookRequest, paymentID *uint64, status int32, reason string) {
	now := s.now()
	callback := &entity.PaymentCallback{
		PaymentID:            paymentID,
		Gateway:              strings.ToLower(strings.TrimSpace(req.GetGateway())),
		TransactionReference: truncate(strings.TrimSpace(req.GetTxRef()), 191),
		Signature:            truncate(strings.TrimSpace(req.GetSignature()), 255),
		PayloadJSON:          string(req.GetPayload()),
		Status:               status,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if status == entity.PaymentCallbackStatusRejected {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			reason = "callback rejected"
		}
		trimmed := truncate(reason, 1024)
		callback.Error = &trimmed
	}
	_ = s.callbackRepo.Create(ctx, callback)
}

// IsRetryable reports whether err leaves the transaction in an unknown state
// that a later verification may resolve.
func IsRetryable(err error) bool {
	var paymentErr *PaymentError
	if errors.As(err, &paymentErr) {
		return paymentErr.Retryable
	}
	return false
}

