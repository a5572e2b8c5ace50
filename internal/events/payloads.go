package events

import "time"

const (
	CartUpdatedEvent    = "CartUpdated"
	OrderFinalizedEvent = "OrderFinalized"
	FinalizeFailedEvent = "WebhookFinalizeFailed"

	cartUpdatedSchema    = "contracts/events/cart/CartUpdated.v1.payload.schema.json"
	orderFinalizedSchema = "contracts/events/order/OrderFinalized.v1.payload.schema.json"
	finalizeFailedSchema = "contracts/events/checkout/WebhookFinalizeFailed.v1.payload.schema.json"
)

// CartUpdated is the cross-process form of the cart-count refresh signal.
type CartUpdated struct {
	UserID string `json:"userId"`
	Count  int    `json:"count"`
}

type OrderFinalized struct {
	OrderID     string               `json:"orderId"`
	UserID      string               `json:"userId"`
	TotalAmount string               `json:"totalAmount"`
	Status      string               `json:"status"`
	Source      string               `json:"source"`
	Items       []OrderFinalizedItem `json:"items"`
	CreatedAt   time.Time            `json:"createdAt"`
}

type OrderFinalizedItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
}

// FinalizeFailed is a dead letter for a paid checkout whose order could not
// be written. An operator replays it.
type FinalizeFailed struct {
	SessionID   string `json:"sessionId"`
	UserID      string `json:"userId"`
	AmountTotal int64  `json:"amountTotal"`
	Currency    string `json:"currency"`
	Reason      string `json:"reason"`
}
