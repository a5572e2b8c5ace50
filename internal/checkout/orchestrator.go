package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aswinesag/gitness/internal/cart"
	"github.com/Aswinesag/gitness/internal/order"
	"github.com/Aswinesag/gitness/internal/payment"
	"github.com/Aswinesag/gitness/internal/pricing"
)

var (
	ErrSessionMismatch = errors.New("checkout session belongs to another user")
	ErrNotPaid         = errors.New("checkout session is not paid")
)

const (
	taxLineName = "Sales tax (8%)"

	maxWizards    = 10000
	wizardIdleTTL = 30 * time.Minute
)

type CartReader interface {
	ListCart(ctx context.Context, userID string) ([]cart.Line, error)
}

type OrderFinalizer interface {
	Finalize(ctx context.Context, req order.Request) (order.Result, error)
}

// HostedRequest describes a redirect to the hosted payment page.
type HostedRequest struct {
	UserID     string
	Email      string
	SuccessURL string
	CancelURL  string
}

// Orchestrator keeps one in-memory wizard per user and drives it with
// Transition. Wizards are not persisted and do not survive a restart; a
// wizard left idle for wizardIdleTTL is dropped.
type Orchestrator struct {
	carts     CartReader
	finalizer OrderFinalizer
	gateway   payment.Gateway
	resolver  *pricing.Resolver
	logger    *zap.Logger

	wizards *expirable.LRU[string, State]
}

func NewOrchestrator(carts CartReader, finalizer OrderFinalizer, gateway payment.Gateway, resolver *pricing.Resolver, logger *zap.Logger) *Orchestrator {
	return newOrchestrator(carts, finalizer, gateway, resolver, logger, maxWizards, wizardIdleTTL)
}

func newOrchestrator(carts CartReader, finalizer OrderFinalizer, gateway payment.Gateway, resolver *pricing.Resolver, logger *zap.Logger, size int, ttl time.Duration) *Orchestrator {
	if gateway == nil {
		gateway = payment.Unconfigured{}
	}
	return &Orchestrator{
		carts:     carts,
		finalizer: finalizer,
		gateway:   gateway,
		resolver:  resolver,
		logger:    logger,
		wizards:   expirable.NewLRU[string, State](size, nil, ttl),
	}
}

// Start opens a fresh wizard at review, replacing any previous one.
func (o *Orchestrator) Start(ctx context.Context, userID string) (State, error) {
	totals, err := o.totals(ctx, userID)
	if err != nil {
		return State{}, err
	}
	s := NewState(uuid.NewString(), totals)
	o.store(userID, s)
	o.logger.Info("checkout started",
		zap.String("user_id", userID), zap.String("attempt_id", s.AttemptID), zap.Int("items", totals.ItemCount))
	return s, nil
}

func (o *Orchestrator) Get(userID string) (State, error) {
	s, ok := o.wizards.Get(userID)
	if !ok {
		return State{}, ErrNotStarted
	}
	return s, nil
}

// Apply runs one user event against the wizard. The stored state is updated
// even when the event fails validation, so submitted values and field errors
// are kept. A valid card finalizes the order keyed by the attempt id.
func (o *Orchestrator) Apply(ctx context.Context, userID string, ev Event) (State, error) {
	if _, ok := ev.(Confirmed); ok {
		return State{}, fmt.Errorf("%w: confirmation is internal", ErrInvalidTransition)
	}
	s, err := o.Get(userID)
	if err != nil {
		return State{}, err
	}

	if s.Step != StepConfirmation {
		totals, err := o.totals(ctx, userID)
		if err != nil {
			return s, err
		}
		s.Totals = totals
	}

	next, err := Transition(s, ev)
	o.store(userID, next)
	if err != nil || !next.Paying {
		return next, err
	}

	res, err := o.finalizer.Finalize(ctx, order.Request{
		UserID:         userID,
		TotalAmount:    next.Totals.AmountDue(),
		IdempotencyKey: next.AttemptID,
		Source:         order.SourceSimulated,
	})
	if err != nil {
		next.Paying = false
		o.store(userID, next)
		return next, err
	}
	return o.confirm(userID, next, res.Order.ID)
}

// BeginHostedPayment creates a gateway session for the user's cart and
// returns it; the caller redirects to Session.URL. An open wizard must have
// reached payment first.
func (o *Orchestrator) BeginHostedPayment(ctx context.Context, req HostedRequest) (payment.Session, error) {
	if req.UserID == "" {
		return payment.Session{}, cart.ErrSignedOut
	}
	lines, err := o.carts.ListCart(ctx, req.UserID)
	if err != nil {
		return payment.Session{}, err
	}
	totals := o.resolver.Aggregate(lines)
	if totals.IsEmpty() {
		return payment.Session{}, ErrEmptyCart
	}

	sr := payment.SessionRequest{
		UserID:        req.UserID,
		CustomerEmail: req.Email,
		Items:         o.lineItems(lines, totals),
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
	}
	if s, err := o.Get(req.UserID); err == nil && s.Step != StepConfirmation {
		if s.Step < StepPayment {
			return payment.Session{}, invalid(s.Step, "hosted payment")
		}
		sr.AttemptID = s.AttemptID
		if sr.CustomerEmail == "" {
			sr.CustomerEmail = s.Details.Email
		}
	}

	session, err := o.gateway.CreateCheckoutSession(ctx, sr)
	if err != nil {
		o.logger.Error("create checkout session failed", zap.String("user_id", req.UserID), zap.Error(err))
		return payment.Session{}, err
	}
	return session, nil
}

// CompleteHostedPayment reconciles the success redirect with the gateway.
// It finalizes with the session's attempt id (or the session id when the
// session was opened without a wizard), the same key the webhook and the
// simulated card path use, so one attempt yields one order.
func (o *Orchestrator) CompleteHostedPayment(ctx context.Context, userID, sessionID string) (State, error) {
	if userID == "" {
		return State{}, cart.ErrSignedOut
	}
	session, err := o.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		return State{}, err
	}
	if session.UserID() != userID {
		o.logger.Warn("checkout session user mismatch",
			zap.String("session_id", sessionID), zap.String("user_id", userID))
		return State{}, ErrSessionMismatch
	}
	if !session.Paid() {
		return State{}, ErrNotPaid
	}

	res, err := o.finalizer.Finalize(ctx, order.Request{
		UserID:         userID,
		TotalAmount:    session.Amount(),
		IdempotencyKey: session.IdempotencyKey(),
		Source:         order.SourceHosted,
	})
	if err != nil {
		return State{}, err
	}

	s, err := o.Get(userID)
	if err != nil || s.Step == StepConfirmation {
		s = NewState(session.Metadata[payment.MetadataAttemptID], pricing.Totals{})
	}
	s.Step = StepPayment
	s.Totals = totalsFromOrder(res.Order)
	// Match the total recorded on the order.
	s.Totals.Total = res.Order.TotalAmount
	return o.confirm(userID, s, res.Order.ID)
}

func (o *Orchestrator) confirm(userID string, s State, orderID string) (State, error) {
	next, err := Transition(s, Confirmed{OrderID: orderID})
	if err != nil {
		return s, err
	}
	o.store(userID, next)
	o.logger.Info("checkout confirmed",
		zap.String("user_id", userID), zap.String("order_id", orderID), zap.String("attempt_id", next.AttemptID))
	return next, nil
}

func (o *Orchestrator) totals(ctx context.Context, userID string) (pricing.Totals, error) {
	if userID == "" {
		return pricing.Totals{}, cart.ErrSignedOut
	}
	lines, err := o.carts.ListCart(ctx, userID)
	if err != nil {
		return pricing.Totals{}, err
	}
	return o.resolver.Aggregate(lines), nil
}

func (o *Orchestrator) lineItems(lines []cart.Line, totals pricing.Totals) []payment.LineItem {
	images := make(map[string]string, len(lines))
	amounts := make(map[string]int64, len(lines))
	for _, l := range lines {
		if l.Product.Image != nil {
			images[l.ProductID] = *l.Product.Image
		}
		amounts[l.ProductID] = o.resolver.UnitAmount(l.Product)
	}

	items := make([]payment.LineItem, 0, len(totals.Lines)+1)
	var charged int64
	for _, lt := range totals.Lines {
		items = append(items, payment.LineItem{
			Name:       lt.Name,
			Image:      images[lt.ProductID],
			UnitAmount: amounts[lt.ProductID],
			Quantity:   int64(lt.Quantity),
		})
		charged += amounts[lt.ProductID] * int64(lt.Quantity)
	}
	// The tax line absorbs per-unit rounding so the session sums to AmountDue.
	if tax := totals.AmountDue().Shift(2).IntPart() - charged; tax > 0 {
		items = append(items, payment.LineItem{
			Name:       taxLineName,
			UnitAmount: tax,
			Quantity:   1,
		})
	}
	return items
}

func (o *Orchestrator) store(userID string, s State) {
	o.wizards.Add(userID, s)
}

// totalsFromOrder rebuilds the confirmation view from the order's item snapshot.
func totalsFromOrder(ord order.Order) pricing.Totals {
	lines := make([]pricing.LineTotal, 0, len(ord.Items))
	for _, it := range ord.Items {
		lines = append(lines, pricing.LineTotal{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Total:     it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))),
		})
	}
	return pricing.Summarize(lines)
}
