package checkout

import (
	"errors"
	"fmt"
)

// Event drives the wizard. The concrete types below are the only events.
type Event interface {
	isEvent()
}

// Next advances review to details.
type Next struct{}

// SubmitDetails validates the contact form and advances details to payment.
type SubmitDetails struct {
	Details Details
}

// SubmitCard validates card input on the simulated payment path.
// A valid card leaves the wizard at payment with Paying set.
type SubmitCard struct {
	Card Card
}

// Confirmed records a finalized order and enters confirmation.
type Confirmed struct {
	OrderID string
}

// Back returns to an earlier step, keeping entered data.
type Back struct {
	To Step
}

func (Next) isEvent()          {}
func (SubmitDetails) isEvent() {}
func (SubmitCard) isEvent()    {}
func (Confirmed) isEvent()     {}
func (Back) isEvent()          {}

// Transition is the pure step function of the wizard. On a validation
// failure it returns the updated state (submitted values and field errors)
// together with a *ValidationError, and the step does not change.
func Transition(s State, ev Event) (State, error) {
	switch e := ev.(type) {
	case Next:
		if s.Step != StepReview {
			return s, invalid(s.Step, "next")
		}
		if s.Totals.IsEmpty() {
			return s, ErrEmptyCart
		}
		s.Step = StepDetails
		s.Errors = nil
		return s, nil

	case SubmitDetails:
		if s.Step != StepDetails {
			return s, invalid(s.Step, "submit details")
		}
		s.Details = NormalizeDetails(e.Details)
		if err := ValidateDetails(s.Details); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				s.Errors = verr.Fields
			}
			return s, err
		}
		s.Errors = nil
		s.Step = StepPayment
		return s, nil

	case SubmitCard:
		if s.Step != StepPayment {
			return s, invalid(s.Step, "submit card")
		}
		if s.Totals.IsEmpty() {
			return s, ErrEmptyCart
		}
		if err := ValidateCard(e.Card); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				s.Errors = verr.Fields
			}
			s.Paying = false
			return s, err
		}
		s.Errors = nil
		s.CardLast4 = last4(e.Card.Number)
		s.Paying = true
		return s, nil

	case Confirmed:
		if s.Step != StepPayment || e.OrderID == "" {
			return s, invalid(s.Step, "confirm")
		}
		frozen := s.Totals
		frozen.Lines = append(frozen.Lines[:0:0], s.Totals.Lines...)
		s.Snapshot = &frozen
		s.OrderID = e.OrderID
		s.Paying = false
		s.Step = StepConfirmation
		return s, nil

	case Back:
		if s.Step == StepConfirmation || e.To < StepReview || e.To >= s.Step {
			return s, invalid(s.Step, "back to "+e.To.String())
		}
		s.Step = e.To
		s.Errors = nil
		s.Paying = false
		return s, nil
	}
	return s, fmt.Errorf("%w: unknown event %T", ErrInvalidTransition, ev)
}

func invalid(from Step, action string) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, from)
}
