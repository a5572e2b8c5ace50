package checkout

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Aswinesag/gitness/internal/pricing"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidTransition = errors.New("invalid checkout transition")
	ErrNotStarted        = errors.New("checkout not started")
)

type Step int

const (
	StepReview Step = iota
	StepDetails
	StepPayment
	StepConfirmation
)

var stepNames = [...]string{"review", "details", "payment", "confirmation"}

func (s Step) String() string {
	if s < StepReview || s > StepConfirmation {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

func (s Step) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Step) UnmarshalText(b []byte) error {
	for i, name := range stepNames {
		if strings.EqualFold(string(b), name) {
			*s = Step(i)
			return nil
		}
	}
	return fmt.Errorf("unknown checkout step %q", string(b))
}

const DefaultCountry = "US"

// Details is the contact and shipping form.
type Details struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Card is card-shaped input for the simulated payment path. It is validated
// and discarded; only the last four digits are kept on the state.
type Card struct {
	Number string `json:"number"`
	Expiry string `json:"expiry"`
	CVC    string `json:"cvc"`
	Name   string `json:"name,omitempty"`
}

// ValidationError holds per-field messages keyed by the form field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "invalid " + strings.Join(keys, ", ")
}

// State is one user's wizard. It holds no persistence handles.
type State struct {
	Step      Step              `json:"step"`
	AttemptID string            `json:"attempt_id"`
	Details   Details           `json:"details"`
	CardLast4 string            `json:"card_last4,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`

	// Totals is the live cart view while the wizard is in progress.
	Totals pricing.Totals `json:"totals"`
	// Snapshot is frozen on entering confirmation and never recomputed.
	Snapshot *pricing.Totals `json:"snapshot,omitempty"`
	OrderID  string          `json:"order_id,omitempty"`

	// Paying marks a validated card awaiting order finalization.
	Paying bool `json:"-"`
}

func NewState(attemptID string, totals pricing.Totals) State {
	return State{
		Step:      StepReview,
		AttemptID: attemptID,
		Details:   Details{Country: DefaultCountry},
		Totals:    totals,
	}
}
