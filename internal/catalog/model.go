package catalog

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("product not found")
	ErrMissingFields = errors.New("missing required fields")
)

// Product is read-only to the storefront. Only the admin API writes it.
type Product struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     *string         `json:"description,omitempty"`
	Price           decimal.Decimal `json:"price"`
	Image           *string         `json:"image,omitempty"`
	Category        string          `json:"category"`
	IsOnDeal        bool            `json:"is_on_deal"`
	DiscountPercent int             `json:"discount_percent"`
	CreatedAt       time.Time       `json:"created_at"`
}

type NewProduct struct {
	Name            string          `json:"name"`
	Description     *string         `json:"description,omitempty"`
	Price           decimal.Decimal `json:"price"`
	Image           *string         `json:"image,omitempty"`
	Category        string          `json:"category"`
	IsOnDeal        bool            `json:"is_on_deal"`
	DiscountPercent int             `json:"discount_percent"`
}

func (p NewProduct) Validate() error {
	if strings.TrimSpace(p.Name) == "" || !p.Price.IsPositive() || strings.TrimSpace(p.Category) == "" {
		return ErrMissingFields
	}
	return nil
}

// Patch carries a partial update; nil fields are left untouched.
type Patch struct {
	Name            *string          `json:"name,omitempty"`
	Description     *string          `json:"description,omitempty"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	Image           *string          `json:"image,omitempty"`
	Category        *string          `json:"category,omitempty"`
	IsOnDeal        *bool            `json:"is_on_deal,omitempty"`
	DiscountPercent *int             `json:"discount_percent,omitempty"`
}
