// Package payment wraps the hosted-checkout payment gateway: session
// creation, session lookup and webhook verification.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNotConfigured    = errors.New("payment gateway not configured")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMissingSignature = errors.New("missing signature header")
	ErrSessionNotFound  = errors.New("checkout session not found")
)

const PaymentStatusPaid = "paid"

type LineItem struct {
	Name       string
	Image      string
	UnitAmount int64 // minor units
	Quantity   int64
}

type SessionRequest struct {
	UserID        string
	AttemptID     string
	CustomerEmail string
	Items         []LineItem
	SuccessURL    string
	CancelURL     string
}

type Session struct {
	ID            string            `json:"id"`
	URL           string            `json:"url,omitempty"`
	Status        string            `json:"session_status"`
	PaymentStatus string            `json:"status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
	Customer      *Customer         `json:"customer_details,omitempty"`
}

type Customer struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

func (s Session) Paid() bool { return s.PaymentStatus == PaymentStatusPaid }

func (s Session) UserID() string { return s.Metadata[MetadataUserID] }

// IdempotencyKey is the order key for this session: the checkout attempt it
// was opened from, or the session id when there was none.
func (s Session) IdempotencyKey() string {
	return idempotencyKey(s.Metadata[MetadataAttemptID], s.ID)
}

// Amount converts the gateway's minor-unit total to currency units.
func (s Session) Amount() decimal.Decimal { return decimal.New(s.AmountTotal, -2) }

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (Session, error)
	RetrieveSession(ctx context.Context, id string) (Session, error)
}

const (
	MetadataUserID    = "userId"
	MetadataAttemptID = "attemptId"
)

func idempotencyKey(attemptID, sessionID string) string {
	if attemptID != "" {
		return attemptID
	}
	return sessionID
}

// Unconfigured is used when no gateway key is set. Every call fails with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) CreateCheckoutSession(context.Context, SessionRequest) (Session, error) {
	return Session{}, ErrNotConfigured
}

func (Unconfigured) RetrieveSession(context.Context, string) (Session, error) {
	return Session{}, ErrNotConfigured
}
