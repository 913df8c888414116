package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrInvalidSignature       = errors.New("invalid webhook signature")
	ErrSecretKeyNotConfigured = errors.New("gateway secret key is not configured")
	ErrMissingTransactionRef  = errors.New("transaction reference is required")
)

// RejectedError is a gateway answer with a non-2xx status, or a 2xx answer
// the client could not use.
type RejectedError struct {
	Gateway    string
	Operation  string
	StatusCode int
	Message    string
	Body       []byte
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s %s rejected: status=%d message=%s", e.Gateway, e.Operation, e.StatusCode, e.Message)
}

// TransportError means the gateway was not reached or did not answer in time.
// The outcome of the operation is unknown.
type TransportError struct {
	Gateway   string
	Operation string
	Timeout   bool
	Err       error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s %s timed out: %v", e.Gateway, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s %s transport failure: %v", e.Gateway, e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func newTransportError(gateway, operation string, err error) *TransportError {
	timeout := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &TransportError{Gateway: gateway, Operation: operation, Timeout: timeout, Err: err}
}

// rejectedMessage pulls a human readable message out of a gateway error body.
// The message field may be a string or an object of field errors.
func rejectedMessage(body []byte, fallback string) string {
	var payload struct {
		Message json.RawMessage `json:"message"`
	}
	if json.Unmarshal(body, &payload) != nil || len(payload.Message) == 0 {
		return fallback
	}

	var text string
	if json.Unmarshal(payload.Message, &text) == nil {
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
		return fallback
	}

	if string(payload.Message) == "null" {
		return fallback
	}
	return string(payload.Message)
}
