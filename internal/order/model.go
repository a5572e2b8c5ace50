package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("order not found")
	ErrMissingKey    = errors.New("idempotency key is required")
	ErrMissingUser   = errors.New("user id is required")
	ErrNegativeTotal = errors.New("total amount must not be negative")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
)

// Source records which trigger finalized the order.
type Source string

const (
	SourceSimulated Source = "simulated"
	SourceHosted    Source = "hosted"
)

// Item is the line snapshot taken when the order was finalized.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Order is created once per completed checkout attempt and never mutated afterwards.
type Order struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Status         Status          `json:"status"`
	Source         Source          `json:"source"`
	IdempotencyKey string          `json:"-"`
	Items          []Item          `json:"items"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Request identifies one logical checkout to finalize.
type Request struct {
	UserID         string
	TotalAmount    decimal.Decimal
	IdempotencyKey string
	Source         Source
}

func (r Request) Validate() error {
	switch {
	case r.UserID == "":
		return ErrMissingUser
	case r.IdempotencyKey == "":
		return ErrMissingKey
	case r.TotalAmount.IsNegative():
		return ErrNegativeTotal
	}
	return nil
}

type Result struct {
	Order   Order `json:"order"`
	Created bool  `json:"created"`
}
