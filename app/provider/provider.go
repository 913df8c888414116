package provider

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const GatewayChapa = "chapa"

const TransactionStatusSuccess = "success"

// Meta is the correlation record round-tripped through the gateway so a
// verification can resolve the user and course without a local lookup.
type Meta struct {
	UserID    string
	CourseID  string
	UserEmail string
}

type InitializeInput struct {
	TxRef       string
	Amount      decimal.Decimal
	Currency    string
	Email       string
	FirstName   string
	LastName    string
	CourseTitle string
	Meta        Meta
}

type InitializeOutput struct {
	CheckoutURL string
	RawResponse []byte
}

type Transaction struct {
	TxRef     string
	Status    string
	Amount    decimal.Decimal
	Currency  string
	CreatedAt *time.Time
	Meta      Meta
	Raw       []byte
}

func (t *Transaction) IsSuccessful() bool {
	return t != nil && t.Status == TransactionStatusSuccess
}

type Gateway interface {
	Name() string
	Initialize(ctx context.Context, input *InitializeInput) (*InitializeOutput, error)
	Verify(ctx context.Context, txRef string) (*Transaction, error)
	VerifyWebhookSignature(payload []byte, signature string) error
}

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
