package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Aswinesag/gitness/internal/middleware"
	"github.com/Aswinesag/gitness/internal/order"
	"github.com/Aswinesag/gitness/internal/payment"
)

// Sequencer reserves the next per-partition sequence number.
type Sequencer interface {
	NextSequence(ctx context.Context, partitionKey string) (int64, error)
}

// Publisher emits enveloped storefront events on the topic exchange. It is a
// cart.Notifier and an order.EventPublisher.
type Publisher struct {
	ch     channel
	seq    Sequencer
	logger *zap.Logger
	now    func() time.Time
}

func NewPublisher(conn *amqp.Connection, seq Sequencer, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return newPublisher(ch, seq, logger)
}

func newPublisher(ch channel, seq Sequencer, logger *zap.Logger) (*Publisher, error) {
	if err := declareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{
		ch:     ch,
		seq:    seq,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

// CartChanged publishes CartUpdated. Failures are logged only; the in-process
// hub has already delivered the signal to connected clients.
func (p *Publisher) CartChanged(ctx context.Context, userID string, count int) {
	err := publish(ctx, p, CartUpdatedRoutingKey, CartUpdatedEvent, cartUpdatedSchema, userID,
		CartUpdated{UserID: userID, Count: count})
	if err != nil {
		p.logger.Warn("publish CartUpdated failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (p *Publisher) PublishOrderFinalized(ctx context.Context, o order.Order) error {
	payload := OrderFinalized{
		OrderID:     o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount.StringFixed(2),
		Status:      string(o.Status),
		Source:      string(o.Source),
		Items:       make([]OrderFinalizedItem, 0, len(o.Items)),
		CreatedAt:   o.CreatedAt,
	}
	for _, it := range o.Items {
		payload.Items = append(payload.Items, OrderFinalizedItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.String(),
		})
	}
	return publish(ctx, p, OrderFinalizedRoutingKey, OrderFinalizedEvent, orderFinalizedSchema, o.UserID, payload)
}

// PublishFinalizeFailed dead-letters a paid checkout that could not be turned
// into an order.
func (p *Publisher) PublishFinalizeFailed(ctx context.Context, c payment.CompletedCheckout, cause error) error {
	payload := FinalizeFailed{
		SessionID:   c.SessionID,
		UserID:      c.UserID,
		AmountTotal: c.AmountTotal,
		Currency:    c.Currency,
	}
	if cause != nil {
		payload.Reason = cause.Error()
	}
	return publish(ctx, p, FinalizeFailedRoutingKey, FinalizeFailedEvent, finalizeFailedSchema, c.SessionID, payload)
}

func publish[T any](ctx context.Context, p *Publisher, routingKey, name, schema, partitionKey string, payload T) error {
	env := Envelope[T]{
		EventName:     name,
		EventVersion:  1,
		EventID:       uuid.NewString(),
		CorrelationID: middleware.GetCorrelationID(ctx),
		Producer:      producerName,
		PartitionKey:  partitionKey,
		OccurredAt:    p.now(),
		Schema:        schema,
		Payload:       payload,
	}
	if env.CorrelationID == "" {
		env.CorrelationID = uuid.NewString()
	}
	if p.seq != nil {
		seq, err := p.seq.NextSequence(ctx, partitionKey)
		if err != nil {
			return fmt.Errorf("reserve sequence: %w", err)
		}
		env.Sequence = &seq
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", name, err)
	}
	return p.publishJSON(ctx, routingKey, body)
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}
