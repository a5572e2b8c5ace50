package cart

import (
	"errors"
	"time"

	"github.com/Aswinesag/gitness/internal/catalog"
)

var (
	ErrLineNotFound = errors.New("cart line not found")
	ErrSignedOut    = errors.New("sign in required")
)

// Line is one (user, product) entry. Quantity is never persisted below 1.
type Line struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	CreatedAt time.Time       `json:"created_at"`
	Product   catalog.Product `json:"product"`
}

// Change describes the outcome of a mutation.
type Change struct {
	Line    *Line  `json:"line,omitempty"`
	Removed bool   `json:"removed,omitempty"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}
