package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusSuccess   = "success"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
	PaymentStatusCancelled = "cancelled"
)

const (
	PaymentMethodChapa        = "chapa"
	PaymentMethodBankTransfer = "bank-transfer"
	PaymentMethodManual       = "manual"
)

// Payment is one attempt by a user to pay for a course. Rows are append-only
// audit records and reference users and courses by id only.
type Payment struct {
	ID uint64

	TransactionReference string
	UserID               uint64
	CourseID             uint64

	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
	Status        string

	CheckoutURL     *string
	ReceiptURL      *string
	GatewayResponse *string
	VerifiedAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func IsTerminalPaymentStatus(status string) bool {
	switch status {
	case PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusCancelled:
		return true
	default:
		return false
	}
}
