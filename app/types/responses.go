package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusError   = "error"
)

type HealthResponse struct {
	Status string `json:"status"`
}

// SuccessResponse is the envelope of every 2xx answer.
type SuccessResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// FailResponse is a 4xx answer describing something the caller can fix.
type FailResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
}

// ErrorResponse carries the error taxonomy fields. The payment fields are
// only set for gateway failures.
type ErrorResponse struct {
	Status               string          `json:"status"`
	Message              string          `json:"message"`
	StatusCode           int             `json:"statusCode"`
	ErrorType            string          `json:"errorType"`
	Timestamp            string          `json:"timestamp"`
	PaymentError         bool            `json:"paymentError,omitempty"`
	Retryable            *bool           `json:"retryable,omitempty"`
	RetryURL             string          `json:"retryUrl,omitempty"`
	PaymentGateway       string          `json:"paymentGateway,omitempty"`
	TransactionReference string          `json:"transactionReference,omitempty"`
	Details              json.RawMessage `json:"details,omitempty"`
}

type InitializePaymentData struct {
	PaymentURL string          `json:"paymentUrl"`
	TxRef      string          `json:"txRef"`
	Status     string          `json:"status"`
	CourseID   uint64          `json:"courseId"`
	UserID     uint64          `json:"userId"`
	Amount     decimal.Decimal `json:"amount"`
}

type VerifyPaymentData struct {
	Status          string          `json:"status"`
	CourseID        uint64          `json:"courseId"`
	UserID          uint64          `json:"userId"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentDate     *time.Time      `json:"paymentDate"`
	TxRef           string          `json:"txRef"`
	AlreadyEnrolled bool            `json:"alreadyEnrolled"`
}

type EnrollmentStatusData struct {
	CourseID      uint64     `json:"courseId"`
	UserID        uint64     `json:"userId"`
	CourseTitle   string     `json:"courseTitle"`
	IsEnrolled    bool       `json:"isEnrolled"`
	PaymentStatus string     `json:"paymentStatus"`
	PaymentDate   *time.Time `json:"paymentDate"`
	TxRef         *string    `json:"txRef"`
}

type PaymentData struct {
	TxRef         string          `json:"txRef"`
	CourseID      uint64          `json:"courseId"`
	UserID        uint64          `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"paymentMethod"`
	Status        string          `json:"status"`
	CheckoutURL   string          `json:"checkoutUrl,omitempty"`
	ReceiptURL    string          `json:"receiptUrl,omitempty"`
	VerifiedAt    *time.Time      `json:"verifiedAt"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type WebhookData struct {
	TxRef         string `json:"txRef"`
	PaymentStatus string `json:"paymentStatus"`
	Enrolled      bool   `json:"enrolled"`
}
