package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Course struct {
	ID uint64

	Title       string
	Price       decimal.Decimal
	Currency    string
	IsPublished bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
