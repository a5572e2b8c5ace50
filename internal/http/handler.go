// Package httpapi exposes the storefront over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Aswinesag/gitness/internal/cart"
	"github.com/Aswinesag/gitness/internal/catalog"
	"github.com/Aswinesag/gitness/internal/checkout"
	"github.com/Aswinesag/gitness/internal/identity"
	"github.com/Aswinesag/gitness/internal/order"
	"github.com/Aswinesag/gitness/internal/payment"
	"github.com/Aswinesag/gitness/internal/pricing"
)

const serviceName = "gitness"

type CartService interface {
	AddItem(ctx context.Context, userID, productID string) (cart.Change, error)
	UpdateQuantity(ctx context.Context, userID, lineID string, n int) (cart.Change, error)
	RemoveItem(ctx context.Context, userID, lineID string) (cart.Change, error)
	ListCart(ctx context.Context, userID string) ([]cart.Line, error)
	Count(ctx context.Context, userID string) (int, error)
}

type CheckoutService interface {
	Start(ctx context.Context, userID string) (checkout.State, error)
	Get(userID string) (checkout.State, error)
	Apply(ctx context.Context, userID string, ev checkout.Event) (checkout.State, error)
	BeginHostedPayment(ctx context.Context, req checkout.HostedRequest) (payment.Session, error)
	CompleteHostedPayment(ctx context.Context, userID, sessionID string) (checkout.State, error)
}

type OrderService interface {
	Finalize(ctx context.Context, req order.Request) (order.Result, error)
	ListByUser(ctx context.Context, userID string) ([]order.Order, error)
	Get(ctx context.Context, userID, orderID string) (*order.Order, error)
}

type WebhookParser interface {
	Parse(payload []byte, signature string) (payment.WebhookEvent, error)
}

type DeadLetterPublisher interface {
	PublishFinalizeFailed(ctx context.Context, c payment.CompletedCheckout, cause error) error
}

type CartStream interface {
	Subscribe(userID string) (<-chan cart.CountUpdate, func())
}

// Deps wires the router. DeadLetters may be nil when event publishing is off.
type Deps struct {
	Logger *zap.Logger

	Catalog     catalog.Repository
	Cart        CartService
	Checkout    CheckoutService
	Orders      OrderService
	Gateway     payment.Gateway
	Webhooks    WebhookParser
	DeadLetters DeadLetterPublisher
	Stream      CartStream
	Prices      *pricing.Resolver
	Identity    *identity.Verifier

	PublicOrigin     string
	CORSAllowOrigins []string
	RequestTimeout   time.Duration
}

type Handler struct {
	catalog     catalog.Repository
	cart        CartService
	checkout    CheckoutService
	orders      OrderService
	gateway     payment.Gateway
	webhooks    WebhookParser
	deadLetters DeadLetterPublisher
	stream      CartStream
	prices      *pricing.Resolver

	origin   string
	timeout  time.Duration
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewHandler(d Deps) *Handler {
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	gateway := d.Gateway
	if gateway == nil {
		gateway = payment.Unconfigured{}
	}
	return &Handler{
		catalog:     d.Catalog,
		cart:        d.Cart,
		checkout:    d.Checkout,
		orders:      d.Orders,
		gateway:     gateway,
		webhooks:    d.Webhooks,
		deadLetters: d.DeadLetters,
		stream:      d.Stream,
		prices:      d.Prices,
		origin:      d.PublicOrigin,
		timeout:     timeout,
		logger:      d.Logger,
		upgrader:    newUpgrader(d.CORSAllowOrigins),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": serviceName,
	})
}

func (h *Handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.timeout)
}

func (h *Handler) detachedContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
}
