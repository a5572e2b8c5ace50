package payment

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	SignatureHeader        = "Stripe-Signature"
	EventCheckoutCompleted = "checkout.session.completed"
)

// WebhookEvent is a parsed gateway callback. Checkout is set only for
// completed checkout sessions.
type WebhookEvent struct {
	ID       string
	Type     string
	Checkout *CompletedCheckout
}

type CompletedCheckout struct {
	SessionID     string `json:"session_id"`
	UserID        string `json:"user_id"`
	AttemptID     string `json:"attempt_id,omitempty"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
	PaymentStatus string `json:"payment_status"`
}

func (c CompletedCheckout) Amount() decimal.Decimal { return decimal.New(c.AmountTotal, -2) }

func (c CompletedCheckout) IdempotencyKey() string { return idempotencyKey(c.AttemptID, c.SessionID) }

// Verifier authenticates webhook payloads. With an empty secret, payloads are
// trusted without verification; this is only meant for local development.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

func (v *Verifier) Verifying() bool { return v.secret != "" }

func (v *Verifier) Parse(payload []byte, signature string) (WebhookEvent, error) {
	var (
		ev  stripe.Event
		err error
	)
	if v.secret != "" {
		if signature == "" {
			return WebhookEvent{}, ErrMissingSignature
		}
		ev, err = webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	} else if err := json.Unmarshal(payload, &ev); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode webhook payload: %w", err)
	}

	out := WebhookEvent{ID: ev.ID, Type: string(ev.Type)}
	if out.Type != EventCheckoutCompleted || ev.Data == nil {
		return out, nil
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode checkout session: %w", err)
	}
	out.Checkout = &CompletedCheckout{
		SessionID:     s.ID,
		UserID:        s.Metadata[MetadataUserID],
		AttemptID:     s.Metadata[MetadataAttemptID],
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		PaymentStatus: string(s.PaymentStatus),
	}
	return out, nil
}
