package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Aswinesag/gitness/internal/cart"
	"github.com/Aswinesag/gitness/internal/catalog"
	"github.com/Aswinesag/gitness/internal/checkout"
	"github.com/Aswinesag/gitness/internal/identity"
	mw "github.com/Aswinesag/gitness/internal/middleware"
	"github.com/Aswinesag/gitness/internal/order"
	"github.com/Aswinesag/gitness/internal/payment"
	"github.com/Aswinesag/gitness/internal/pricing"
)

const (
	testSecret = "test-secret"
	adminEmail = "admin@gitness.test"
)

type fakeCatalog struct {
	products map[string]catalog.Product
	listErr  error
	created  []catalog.NewProduct
	patched  map[string]catalog.Patch
}

func (f *fakeCatalog) List(context.Context) ([]catalog.Product, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]catalog.Product, 0, len(f.products))
	for _, id := range []string{"a", "b"} {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ListDeals(ctx context.Context) ([]catalog.Product, error) {
	all, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	var deals []catalog.Product
	for _, p := range all {
		if p.IsOnDeal {
			deals = append(deals, p)
		}
	}
	return deals, nil
}

func (f *fakeCatalog) Get(_ context.Context, id string) (catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (f *fakeCatalog) Create(_ context.Context, in catalog.NewProduct) (catalog.Product, error) {
	f.created = append(f.created, in)
	return catalog.Product{ID: "new", Name: in.Name, Price: in.Price, Category: in.Category}, nil
}

func (f *fakeCatalog) Update(_ context.Context, id string, patch catalog.Patch) (catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	if f.patched == nil {
		f.patched = map[string]catalog.Patch{}
	}
	f.patched[id] = patch
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	return p, nil
}

func (f *fakeCatalog) Delete(_ context.Context, id string) error {
	if _, ok := f.products[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(f.products, id)
	return nil
}

type fakeCart struct {
	AddItemFunc        func(ctx context.Context, userID, productID string) (cart.Change, error)
	UpdateQuantityFunc func(ctx context.Context, userID, lineID string, n int) (cart.Change, error)
	RemoveItemFunc     func(ctx context.Context, userID, lineID string) (cart.Change, error)
	ListCartFunc       func(ctx context.Context, userID string) ([]cart.Line, error)
	CountFunc          func(ctx context.Context, userID string) (int, error)
}

func (f *fakeCart) AddItem(ctx context.Context, userID, productID string) (cart.Change, error) {
	return f.AddItemFunc(ctx, userID, productID)
}

func (f *fakeCart) UpdateQuantity(ctx context.Context, userID, lineID string, n int) (cart.Change, error) {
	return f.UpdateQuantityFunc(ctx, userID, lineID, n)
}

func (f *fakeCart) RemoveItem(ctx context.Context, userID, lineID string) (cart.Change, error) {
	return f.RemoveItemFunc(ctx, userID, lineID)
}

func (f *fakeCart) ListCart(ctx context.Context, userID string) ([]cart.Line, error) {
	return f.ListCartFunc(ctx, userID)
}

func (f *fakeCart) Count(ctx context.Context, userID string) (int, error) {
	return f.CountFunc(ctx, userID)
}

type fakeCheckout struct {
	ApplyFunc    func(ctx context.Context, userID string, ev checkout.Event) (checkout.State, error)
	BeginFunc    func(ctx context.Context, req checkout.HostedRequest) (payment.Session, error)
	CompleteFunc func(ctx context.Context, userID, sessionID string) (checkout.State, error)
	states       map[string]checkout.State
}

func (f *fakeCheckout) Start(_ context.Context, userID string) (checkout.State, error) {
	s := checkout.NewState("attempt-1", pricing.Totals{})
	f.states[userID] = s
	return s, nil
}

func (f *fakeCheckout) Get(userID string) (checkout.State, error) {
	s, ok := f.states[userID]
	if !ok {
		return checkout.State{}, checkout.ErrNotStarted
	}
	return s, nil
}

func (f *fakeCheckout) Apply(ctx context.Context, userID string, ev checkout.Event) (checkout.State, error) {
	return f.ApplyFunc(ctx, userID, ev)
}

func (f *fakeCheckout) BeginHostedPayment(ctx context.Context, req checkout.HostedRequest) (payment.Session, error) {
	return f.BeginFunc(ctx, req)
}

func (f *fakeCheckout) CompleteHostedPayment(ctx context.Context, userID, sessionID string) (checkout.State, error) {
	return f.CompleteFunc(ctx, userID, sessionID)
}

type fakeOrders struct {
	finalizeErr error
	requests    []order.Request
	orders      []order.Order
}

func (f *fakeOrders) Finalize(_ context.Context, req order.Request) (order.Result, error) {
	f.requests = append(f.requests, req)
	if f.finalizeErr != nil {
		return order.Result{}, f.finalizeErr
	}
	return order.Result{Order: order.Order{ID: "order-1", UserID: req.UserID}, Created: true}, nil
}

func (f *fakeOrders) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) Get(_ context.Context, userID, orderID string) (*order.Order, error) {
	for _, o := range f.orders {
		if o.UserID == userID && o.ID == orderID {
			return &o, nil
		}
	}
	return nil, nil
}

type fakeParser struct {
	event payment.WebhookEvent
	err   error
	got   []string
}

func (f *fakeParser) Parse(payload []byte, signature string) (payment.WebhookEvent, error) {
	f.got = append(f.got, signature)
	return f.event, f.err
}

type fakeDeadLetters struct {
	sent []payment.CompletedCheckout
}

func (f *fakeDeadLetters) PublishFinalizeFailed(_ context.Context, c payment.CompletedCheckout, _ error) error {
	f.sent = append(f.sent, c)
	return nil
}

type fakeGateway struct {
	session payment.Session
	err     error
}

func (f *fakeGateway) CreateCheckoutSession(context.Context, payment.SessionRequest) (payment.Session, error) {
	return payment.Session{}, errors.New("unused")
}

func (f *fakeGateway) RetrieveSession(_ context.Context, id string) (payment.Session, error) {
	if f.err != nil {
		return payment.Session{}, f.err
	}
	s := f.session
	s.ID = id
	return s, nil
}

type testServer struct {
	handler     http.Handler
	verifier    *identity.Verifier
	catalog     *fakeCatalog
	cart        *fakeCart
	checkout    *fakeCheckout
	orders      *fakeOrders
	webhooks    *fakeParser
	deadLetters *fakeDeadLetters
	gateway     *fakeGateway
	hub         *cart.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithLogger(t, zap.NewNop())
}

func newTestServerWithLogger(t *testing.T, logger *zap.Logger) *testServer {
	t.Helper()
	img := "https://img.test/a.png"
	ts := &testServer{
		verifier: identity.NewVerifier(testSecret, adminEmail),
		catalog: &fakeCatalog{products: map[string]catalog.Product{
			"a": {ID: "a", Name: "Album A", Price: decimal.RequireFromString("50.00"), Image: &img, Category: "vinyl"},
			"b": {ID: "b", Name: "Album B", Price: decimal.RequireFromString("59.99"), Category: "cd", IsOnDeal: true, DiscountPercent: 20},
		}},
		cart:        &fakeCart{},
		checkout:    &fakeCheckout{states: map[string]checkout.State{}},
		orders:      &fakeOrders{},
		webhooks:    &fakeParser{},
		deadLetters: &fakeDeadLetters{},
		gateway:     &fakeGateway{},
		hub:         cart.NewHub(),
	}
	ts.handler = NewRouter(Deps{
		Logger:           logger,
		Catalog:          ts.catalog,
		Cart:             ts.cart,
		Checkout:         ts.checkout,
		Orders:           ts.orders,
		Gateway:          ts.gateway,
		Webhooks:         ts.webhooks,
		DeadLetters:      ts.deadLetters,
		Stream:           ts.hub,
		Prices:           pricing.NewResolver(zap.NewNop()),
		Identity:         ts.verifier,
		PublicOrigin:     "https://shop.test",
		CORSAllowOrigins: []string{"*"},
		RequestTimeout:   time.Second,
	})
	return ts
}

func (ts *testServer) token(t *testing.T, userID, email string) string {
	t.Helper()
	tok, err := ts.verifier.Issue(identity.Principal{UserID: userID, Email: email}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"status": "ok", "service": "gitness"}, decodeBody[map[string]string](t, rec))
}

func TestProducts(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]map[string]any](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "50.00", list[0]["effective_price"])
	assert.Equal(t, "47.99", list[1]["effective_price"])

	rec = ts.do(t, http.MethodGet, "/api/products/deals", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]map[string]any](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/api/products/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Product not found", decodeBody[mw.ErrorResponse](t, rec).Error)

	ts.catalog.listErr = errors.New("db down")
	rec = ts.do(t, http.MethodGet, "/api/products", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to load products", decodeBody[mw.ErrorResponse](t, rec).Notification)
}

func TestCart_RequiresUser(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/cart/items", "", map[string]string{"product_id": "a"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody[mw.ErrorResponse](t, rec)
	assert.Equal(t, "User not authenticated", body.Error)
	assert.Equal(t, "Please sign in to add items to cart", body.Notification)
}

func TestCart_AddItem(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "user-1", "ada@example.com")

	var gotUser, gotProduct string
	ts.cart.AddItemFunc = func(_ context.Context, userID, productID string) (cart.Change, error) {
		gotUser, gotProduct = userID, productID
		if productID == "missing" {
			return cart.Change{}, catalog.ErrNotFound
		}
		if productID == "boom" {
			return cart.Change{}, errors.New("db down")
		}
		return cart.Change{Line: &cart.Line{ID: "l1", ProductID: productID, Quantity: 1}, Count: 1, Message: "Added to cart!"}, nil
	}

	rec := ts.do(t, http.MethodPost, "/api/cart/items", tok, map[string]string{"product_id": "a"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", gotUser)
	assert.Equal(t, "a", gotProduct)
	change := decodeBody[cart.Change](t, rec)
	assert.Equal(t, "Added to cart!", change.Message)
	assert.Equal(t, 1, change.Count)

	tests := map[string]struct {
		body       any
		wantStatus int
	}{
		"bad json":        {body: "{", wantStatus: http.StatusBadRequest},
		"missing product": {body: map[string]string{}, wantStatus: http.StatusBadRequest},
		"unknown product": {body: map[string]string{"product_id": "missing"}, wantStatus: http.StatusNotFound},
		"store failure":   {body: map[string]string{"product_id": "boom"}, wantStatus: http.StatusInternalServerError},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/cart/items", tok, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus >= http.StatusNotFound {
				assert.Equal(t, "Failed to add to cart", decodeBody[mw.ErrorResponse](t, rec).Notification)
			}
		})
	}
}

func TestCart_GetWithTotals(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "user-1", "")
	ts.cart.ListCartFunc = func(context.Context, string) ([]cart.Line, error) {
		return []cart.Line{
			{ID: "l1", ProductID: "a", Quantity: 1, Product: ts.catalog.products["a"]},
			{ID: "l2", ProductID: "c", Quantity: 1, Product: catalog.Product{ID: "c", Name: "C", Price: decimal.RequireFromString("20"), IsOnDeal: true, DiscountPercent: 50}},
		}, nil
	}

	rec := ts.do(t, http.MethodGet, "/api/cart", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Lines  []cart.Line `json:"lines"`
		Totals struct {
			Subtotal  string `json:"subtotal"`
			Tax       string `json:"tax"`
			Total     string `json:"total"`
			ItemCount int    `json:"item_count"`
		} `json:"totals"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.Lines, 2)
	assert.Equal(t, "60.00", body.Totals.Subtotal)
	assert.Equal(t, "4.80", body.Totals.Tax)
	assert.Equal(t, "64.80", body.Totals.Total)
	assert.Equal(t, 2, body.Totals.ItemCount)
}

func TestCart_UpdateAndRemove(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "user-1", "")

	var gotQty int
	ts.cart.UpdateQuantityFunc = func(_ context.Context, _, lineID string, n int) (cart.Change, error) {
		if lineID == "other" {
			return cart.Change{}, cart.ErrLineNotFound
		}
		gotQty = n
		return cart.Change{Removed: n < 1, Message: "Cart updated"}, nil
	}
	ts.cart.RemoveItemFunc = func(context.Context, string, string) (cart.Change, error) {
		return cart.Change{Removed: true, Message: "Item removed from cart"}, nil
	}
	ts.cart.CountFunc = func(context.Context, string) (int, error) { return 4, nil }

	rec := ts.do(t, http.MethodPatch, "/api/cart/items/l1", tok, map[string]int{"quantity": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, gotQty)
	assert.True(t, decodeBody[cart.Change](t, rec).Removed)

	rec = ts.do(t, http.MethodPatch, "/api/cart/items/l1", tok, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/cart/items/other", tok, map[string]int{"quantity": 2})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/cart/items/l1", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Item removed from cart", decodeBody[cart.Change](t, rec).Message)

	rec = ts.do(t, http.MethodGet, "/api/cart/count", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"count": 4}, decodeBody[map[string]int](t, rec))
}

func TestCheckout_Flow(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "user-1", "ada@example.com")

	rec := ts.do(t, http.MethodGet, "/api/checkout", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/checkout", tok, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "review", decodeBody[map[string]any](t, rec)["step"])

	var events []checkout.Event
	ts.checkout.ApplyFunc = func(_ context.Context, _ string, ev checkout.Event) (checkout.State, error) {
		events = append(events, ev)
		s := checkout.NewState("attempt-1", pricing.Totals{})
		switch e := ev.(type) {
		case checkout.SubmitDetails:
			s.Step = checkout.StepDetails
			s.Details = e.Details
			s.Errors = map[string]string{"email": "Email is invalid"}
			return s, &checkout.ValidationError{Fields: s.Errors}
		case checkout.Next:
			return s, checkout.ErrEmptyCart
		case checkout.Back:
			return s, checkout.ErrInvalidTransition
		}
		return s, nil
	}

	rec = ts.do(t, http.MethodPost, "/api/checkout/details", tok, checkout.Details{FullName: "Ada", Email: "nope"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var verr struct {
		Fields   map[string]string `json:"fields"`
		Checkout struct {
			Step    string           `json:"step"`
			Details checkout.Details `json:"details"`
		} `json:"checkout"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&verr))
	assert.Equal(t, map[string]string{"email": "Email is invalid"}, verr.Fields)
	assert.Equal(t, "details", verr.Checkout.Step)
	assert.Equal(t, "Ada", verr.Checkout.Details.FullName)

	rec = ts.do(t, http.MethodPost, "/api/checkout/next", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Cart is empty", decodeBody[mw.ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodPost, "/api/checkout/back", tok, map[string]string{"step": "review"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/checkout/back", tok, map[string]string{"step": "shipping"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/checkout/card", tok, checkout.Card{Number: "4242424242424242", Expiry: "12/30", CVC: "123"})
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, events, 4)
	assert.Equal(t, checkout.Back{To: checkout.StepReview}, events[2])
}

func TestCreateCheckoutSession(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "user-1", "ada@example.com")

	var got checkout.HostedRequest
	ts.checkout.BeginFunc = func(_ context.Context, req checkout.HostedRequest) (payment.Session, error) {
		got = req
		return payment.Session{ID: "cs_1", URL: "https://pay.test/cs_1"}, nil
	}

	rec := ts.do(t, http.MethodPost, "/api/create-checkout-session", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"url": "https://pay.test/cs_1", "session_id": "cs_1"}, decodeBody[map[string]string](t, rec))
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.Equal(t, "https://shop.test/checkout/success?session_id={CHECKOUT_SESSION_ID}", got.SuccessURL)
	assert.Equal(t, "https://shop.test/checkout", got.CancelURL)

	tests := map[string]struct {
		err        error
		wantStatus int
		wantError  string
	}{
		"empty cart":     {err: checkout.ErrEmptyCart, wantStatus: http.StatusBadRequest, wantError: "Cart is empty"},
		"unconfigured":   {err: payment.ErrNotConfigured, wantStatus: http.StatusServiceUnavailable, wantError: "Payment gateway not configured"},
		"gateway failed": {err: errors.New("stripe down"), wantStatus: http.StatusBadGateway, wantError: "Bad Gateway"},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			ts.checkout.BeginFunc = func(context.Context, checkout.HostedRequest) (payment.Session, error) {
				return payment.Session{}, tt.err
			}
			rec := ts.do(t, http.MethodPost, "/api/create-checkout-session", tok, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decodeBody[mw.ErrorResponse](t, rec).Error)
		})
	}
}

func TestCompleteHostedCheckout(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "user-1", "")
	ts.checkout.CompleteFunc = func(_ context.Context, userID, sessionID string) (checkout.State, error) {
		if sessionID == "cs_unpaid" {
			return checkout.State{}, checkout.ErrNotPaid
		}
		s := checkout.NewState("", pricing.Totals{})
		s.Step = checkout.StepConfirmation
		s.OrderID = "order-" + sessionID
		return s, nil
	}

	rec := ts.do(t, http.MethodPost, "/api/checkout/hosted/complete", tok, map[string]string{"session_id": "cs_1"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "confirmation", body["step"])
	assert.Equal(t, "order-cs_1", body["order_id"])

	rec = ts.do(t, http.MethodPost, "/api/checkout/hosted/complete", tok, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Session ID is required", decodeBody[mw.ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodPost, "/api/checkout/hosted/complete", tok, map[string]string{"session_id": "cs_unpaid"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestRetrieveSession(t *testing.T) {
	ts := newTestServer(t)
	ts.gateway.session = payment.Session{
		URL:           "https://pay.test/secret",
		Status:        "complete",
		PaymentStatus: payment.PaymentStatusPaid,
		AmountTotal:   6480,
		Currency:      "usd",
		Metadata:      map[string]string{payment.MetadataUserID: "user-1"},
		Customer:      &payment.Customer{Email: "ada@example.com"},
	}

	rec := ts.do(t, http.MethodGet, "/api/retrieve-session/cs_1", ts.token(t, "user-1", ""), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "paid", body["status"])
	assert.EqualValues(t, 6480, body["amount_total"])
	assert.Equal(t, "usd", body["currency"])
	assert.NotContains(t, body, "url")
	assert.Equal(t, "ada@example.com", body["customer_details"].(map[string]any)["email"])

	rec = ts.do(t, http.MethodGet, "/api/retrieve-session/cs_1", ts.token(t, "user-2", ""), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.gateway.err = payment.ErrSessionNotFound
	rec = ts.do(t, http.MethodGet, "/api/retrieve-session/cs_x", ts.token(t, "user-1", ""), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhook(t *testing.T) {
	paid := payment.WebhookEvent{ID: "evt_1", Type: payment.EventCheckoutCompleted, Checkout: &payment.CompletedCheckout{
		SessionID: "cs_1", UserID: "user-1", AmountTotal: 6480, Currency: "usd", PaymentStatus: payment.PaymentStatusPaid,
	}}

	t.Run("finalizes paid checkout", func(t *testing.T) {
		ts := newTestServer(t)
		ts.webhooks.event = paid

		req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(`{}`))
		req.Header.Set(payment.SignatureHeader, "t=1,v1=abc")
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]bool{"received": true}, decodeBody[map[string]bool](t, rec))
		assert.Equal(t, []string{"t=1,v1=abc"}, ts.webhooks.got)
		require.Len(t, ts.orders.requests, 1)
		got := ts.orders.requests[0]
		assert.Equal(t, "cs_1", got.IdempotencyKey)
		assert.Equal(t, "user-1", got.UserID)
		assert.Equal(t, order.SourceHosted, got.Source)
		assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("64.80")))
	})

	t.Run("keys on the checkout attempt when present", func(t *testing.T) {
		ts := newTestServer(t)
		withAttempt := *paid.Checkout
		withAttempt.AttemptID = "attempt-1"
		ts.webhooks.event = payment.WebhookEvent{ID: "evt_4", Type: payment.EventCheckoutCompleted, Checkout: &withAttempt}

		rec := ts.do(t, http.MethodPost, "/api/webhook", "", `{}`)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, ts.orders.requests, 1)
		assert.Equal(t, "attempt-1", ts.orders.requests[0].IdempotencyKey)
	})

	t.Run("checkout without user is logged and acknowledged", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		ts := newTestServerWithLogger(t, zap.New(core))
		ts.webhooks.event = payment.WebhookEvent{ID: "evt_5", Type: payment.EventCheckoutCompleted, Checkout: &payment.CompletedCheckout{
			SessionID: "cs_5", AmountTotal: 6480, PaymentStatus: payment.PaymentStatusPaid,
		}}

		rec := ts.do(t, http.MethodPost, "/api/webhook", "", `{}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, ts.orders.requests)
		entries := logs.FilterMessage("webhook checkout without user id; not finalized").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, "evt_5", fields["event_id"])
		assert.Equal(t, "cs_5", fields["session_id"])
	})

	t.Run("finalize failure is dead-lettered and acknowledged", func(t *testing.T) {
		ts := newTestServer(t)
		ts.webhooks.event = paid
		ts.orders.finalizeErr = errors.New("db down")

		rec := ts.do(t, http.MethodPost, "/api/webhook", "", `{}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, ts.deadLetters.sent, 1)
		assert.Equal(t, "cs_1", ts.deadLetters.sent[0].SessionID)
	})

	t.Run("bad signature", func(t *testing.T) {
		ts := newTestServer(t)
		ts.webhooks.err = payment.ErrInvalidSignature

		rec := ts.do(t, http.MethodPost, "/api/webhook", "", `{}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid signature", decodeBody[mw.ErrorResponse](t, rec).Error)
		assert.Empty(t, ts.orders.requests)
	})

	t.Run("ignores other events and unpaid sessions", func(t *testing.T) {
		ts := newTestServer(t)
		ts.webhooks.event = payment.WebhookEvent{ID: "evt_2", Type: "payment_intent.created"}
		rec := ts.do(t, http.MethodPost, "/api/webhook", "", `{}`)
		assert.Equal(t, http.StatusOK, rec.Code)

		ts.webhooks.event = payment.WebhookEvent{ID: "evt_3", Type: payment.EventCheckoutCompleted, Checkout: &payment.CompletedCheckout{
			SessionID: "cs_2", UserID: "user-1", PaymentStatus: "unpaid",
		}}
		rec = ts.do(t, http.MethodPost, "/api/webhook", "", `{}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, ts.orders.requests)
	})
}

func TestOrders(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.orders = []order.Order{
		{ID: "o1", UserID: "user-1", TotalAmount: decimal.RequireFromString("64.80"), Status: order.StatusConfirmed},
		{ID: "o2", UserID: "user-2"},
	}
	tok := ts.token(t, "user-1", "")

	rec := ts.do(t, http.MethodGet, "/api/orders", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]map[string]any](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "o1", list[0]["id"])
	assert.Equal(t, "confirmed", list[0]["status"])

	rec = ts.do(t, http.MethodGet, "/api/orders/o1", tok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/orders/o2", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Order not found", decodeBody[mw.ErrorResponse](t, rec).Error)
}

func TestAdmin(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.token(t, "admin-1", adminEmail)
	user := ts.token(t, "user-1", "ada@example.com")

	rec := ts.do(t, http.MethodGet, "/api/admin/products", user, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", decodeBody[mw.ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodGet, "/api/admin/products", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]map[string]any](t, rec), 2)

	rec = ts.do(t, http.MethodPost, "/api/admin/products", admin, map[string]any{"name": "New", "price": "12.50"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required fields", decodeBody[mw.ErrorResponse](t, rec).Error)
	assert.Empty(t, ts.catalog.created)

	rec = ts.do(t, http.MethodPost, "/api/admin/products", admin, map[string]any{"name": "New", "price": "12.50", "category": "vinyl"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, ts.catalog.created, 1)
	assert.True(t, ts.catalog.created[0].Price.Equal(decimal.RequireFromString("12.50")))

	rec = ts.do(t, http.MethodPut, "/api/admin/products/a", admin, map[string]any{"name": "Renamed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Renamed", decodeBody[map[string]any](t, rec)["name"])
	assert.Nil(t, ts.catalog.patched["a"].Price)

	rec = ts.do(t, http.MethodPut, "/api/admin/products/zzz", admin, map[string]any{"name": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/admin/products/b", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"success": true}, decodeBody[map[string]bool](t, rec))

	rec = ts.do(t, http.MethodGet, "/api/admin/products/export", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "products.xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestCartStream(t *testing.T) {
	ts := newTestServer(t)
	ts.cart.CountFunc = func(context.Context, string) (int, error) { return 2, nil }
	srv := httptest.NewServer(ts.handler)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/cart/stream?access_token=" + ts.token(t, "user-1", "")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	var u cart.CountUpdate
	require.NoError(t, conn.ReadJSON(&u))
	assert.Equal(t, cart.CountUpdate{UserID: "user-1", Count: 2}, u)

	require.Eventually(t, func() bool { return ts.hub.Subscribers("user-1") == 1 }, time.Second, 10*time.Millisecond)
	ts.hub.CartChanged(context.Background(), "user-2", 9)
	ts.hub.CartChanged(context.Background(), "user-1", 3)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&u))
	assert.Equal(t, 3, u.Count)
}

func TestCartStream_RequiresUser(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	t.Cleanup(srv.Close)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/cart/stream", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
