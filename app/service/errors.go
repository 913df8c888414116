package service

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")

	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrCourseNotFound  = fmt.Errorf("course %w", ErrNotFound)
	ErrPaymentNotFound = fmt.Errorf("payment %w", ErrNotFound)

	ErrMissingTxRef         = fmt.Errorf("%w: transaction reference is required", ErrInvalidRequest)
	ErrInvalidEmail         = fmt.Errorf("%w: user email is invalid", ErrInvalidRequest)
	ErrCourseNotPublished   = fmt.Errorf("%w: course is not published", ErrInvalidRequest)
	ErrAmountMismatch       = fmt.Errorf("%w: amount does not match course price", ErrInvalidRequest)
	ErrMissingMetadata      = fmt.Errorf("%w: payment metadata is missing", ErrInvalidRequest)
	ErrMetadataMismatch     = fmt.Errorf("%w: payment metadata does not match the transaction", ErrInvalidRequest)
	ErrDuplicateTransaction = fmt.Errorf("%w: transaction reference already exists", ErrInvalidRequest)
	ErrGatewayUnsupported   = fmt.Errorf("%w: gateway is not supported", ErrInvalidRequest)
	ErrCallbackRejected     = fmt.Errorf("%w: callback rejected", ErrInvalidRequest)
	ErrGatewayRejected      = errors.New("payment gateway rejected the request")
	ErrGatewayTimeout       = errors.New("payment gateway did not respond")
)

const (
	PaymentErrorGatewayRejected = "gateway_rejected"
	PaymentErrorGatewayTimeout  = "gateway_timeout"
)

// PaymentError is a gateway failure with enough context for a client to
// decide whether to retry.
type PaymentError struct {
	Kind                 string
	Gateway              string
	TransactionReference string
	Retryable            bool
	StatusCode           int
	Message              string
	Details              []byte
	Err                  error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PaymentError) Unwrap() []error {
	kind := ErrGatewayRejected
	if e.Kind == PaymentErrorGatewayTimeout {
		kind = ErrGatewayTimeout
	}
	if e.Err == nil {
		return []error{kind}
	}
	return []error{kind, e.Err}
}

// HTTPStatus is the status relayed to callers. Provider answers that are not
// error statuses become 502.
func (e *PaymentError) HTTPStatus() int {
	if e.Kind == PaymentErrorGatewayTimeout {
		return http.StatusGatewayTimeout
	}
	if e.StatusCode >= 400 && e.StatusCode <= 599 {
		return e.StatusCode
	}
	return http.StatusBadGateway
}
