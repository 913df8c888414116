package entity

import "time"

const (
	PaymentCallbackStatusProcessed int32 = 10
	PaymentCallbackStatusRejected  int32 = 20
)

type PaymentCallback struct {
	ID uint64

	PaymentID *uint64

	Gateway              string
	TransactionReference string
	Signature            string
	PayloadJSON          string
	Status               int32
	Error                *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
