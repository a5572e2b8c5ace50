package order

import (
	"context"

	"go.uber.org/zap"

	"github.com/Aswinesag/gitness/internal/cart"
)

// EventPublisher announces finalized orders to other consumers.
type EventPublisher interface {
	PublishOrderFinalized(ctx context.Context, o Order) error
}

// Finalizer turns a completed checkout into exactly one order. It can be
// called from both the browser confirmation path and the gateway webhook;
// calls are reconciled on Request.IdempotencyKey by the repository's unique
// key, so replicas need no shared state.
type Finalizer struct {
	repo      Repository
	notifier  cart.Notifier
	publisher EventPublisher
	logger    *zap.Logger
}

func NewFinalizer(repo Repository, notifier cart.Notifier, publisher EventPublisher, logger *zap.Logger) *Finalizer {
	if notifier == nil {
		notifier = cart.Notifiers(nil)
	}
	return &Finalizer{
		repo:      repo,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
	}
}

func (f *Finalizer) Finalize(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	req.TotalAmount = req.TotalAmount.Round(2)

	o, created, err := f.repo.Finalize(ctx, req)
	if err != nil {
		f.logger.Error("finalize order failed",
			zap.String("user_id", req.UserID), zap.String("idempotency_key", req.IdempotencyKey), zap.Error(err))
		return Result{}, err
	}

	if !created {
		f.logger.Info("order already finalized",
			zap.String("order_id", o.ID), zap.String("idempotency_key", req.IdempotencyKey), zap.String("source", string(req.Source)))
		return Result{Order: o}, nil
	}

	f.logger.Info("order finalized",
		zap.String("order_id", o.ID), zap.String("user_id", o.UserID),
		zap.String("total", o.TotalAmount.StringFixed(2)), zap.String("source", string(o.Source)))

	f.notifier.CartChanged(ctx, o.UserID, 0)
	if f.publisher != nil {
		if err := f.publisher.PublishOrderFinalized(ctx, o); err != nil {
			f.logger.Warn("publish OrderFinalized failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	return Result{Order: o, Created: true}, nil
}

func (f *Finalizer) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	return f.repo.ListByUser(ctx, userID)
}

func (f *Finalizer) Get(ctx context.Context, userID, orderID string) (*Order, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	return f.repo.GetByID(ctx, userID, orderID)
}
