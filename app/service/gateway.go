package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-course-payments/app/metrics"
	"github.com/vibast-solutions/ms-go-course-payments/app/provider"
)

func (s *PaymentService) initializeWithGateway(ctx context.Context, gateway provider.Gateway, input *provider.InitializeInput) (*provider.InitializeOutput, error) {
	start := time.Now()
	output, err := gateway.Initialize(ctx, input)
	s.metrics.ObserveGatewayRequest(gateway.Name(), "initialize", gatewayOutcome(err), time.Since(start))
	if err != nil {
		return nil, toPaymentError(gateway.Name(), input.TxRef, err)
	}
	return output, nil
}

func (s *PaymentService) verifyWithGateway(ctx context.Context, gateway provider.Gateway, txRef string) (*provider.Transaction, error) {
	start := time.Now()
	tx, err := gateway.Verify(ctx, txRef)
	s.metrics.ObserveGatewayRequest(gateway.Name(), "verify", gatewayOutcome(err), time.Since(start))
	if err != nil {
		return nil, toPaymentError(gateway.Name(), txRef, err)
	}
	return tx, nil
}

// toPaymentError turns the gateway outcome classes into PaymentError. Other
// errors, such as missing configuration, pass through unchanged.
func toPaymentError(gateway, txRef string, err error) error {
	var rejected *provider.RejectedError
	if errors.As(err, &rejected) {
		return &PaymentError{
			Kind:                 PaymentErrorGatewayRejected,
			Gateway:              gateway,
			TransactionReference: txRef,
			Retryable:            rejected.StatusCode >= 500,
			StatusCode:           rejected.StatusCode,
			Message:              rejected.Message,
			Details:              rejected.Body,
			Err:                  err,
		}
	}

	var transport *provider.TransportError
	if errors.As(err, &transport) {
		message := "payment gateway is unreachable"
		if transport.Timeout {
			message = "payment gateway timed out"
		}
		return &PaymentError{
			Kind:                 PaymentErrorGatewayTimeout,
			Gateway:              gateway,
			TransactionReference: txRef,
			Retryable:            true,
			Message:              message,
			Err:                  err,
		}
	}

	return err
}

func gatewayOutcome(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	var rejected *provider.RejectedError
	if errors.As(err, &rejected) {
		return metrics.OutcomeRejected
	}
	var transport *provider.TransportError
	if errors.As(err, &transport) {
		return metrics.OutcomeTransport
	}
	return metrics.OutcomeError
}

func jsonOrNil(raw []byte) *string {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	s := string(raw)
	return &s
}
