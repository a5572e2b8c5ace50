package features

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aswinesag/gitness/internal/cart"
	"github.com/Aswinesag/gitness/internal/catalog"
	"github.com/Aswinesag/gitness/internal/order"
	"github.com/Aswinesag/gitness/internal/pricing"
)

// memStore backs both the cart and order repositories so a finalized order
// can clear the cart it was built from.
type memStore struct {
	mu       sync.Mutex
	products map[string]catalog.Product
	lines    []cart.Line
	orders   []order.Order
	resolver *pricing.Resolver
}

func newMemStore(resolver *pricing.Resolver) *memStore {
	return &memStore{products: map[string]catalog.Product{}, resolver: resolver}
}

func (m *memStore) Add(_ context.Context, userID, productID string) (cart.Line, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return cart.Line{}, false, catalog.ErrNotFound
	}
	for i := range m.lines {
		if m.lines[i].UserID == userID && m.lines[i].ProductID == productID {
			m.lines[i].Quantity++
			return m.lines[i], false, nil
		}
	}
	l := cart.Line{ID: uuid.NewString(), UserID: userID, ProductID: productID, Quantity: 1, CreatedAt: time.Now(), Product: p}
	m.lines = append(m.lines, l)
	return l, true, nil
}

func (m *memStore) SetQuantity(_ context.Context, userID, lineID string, quantity int) (cart.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.lines {
		if m.lines[i].UserID == userID && m.lines[i].ID == lineID {
			m.lines[i].Quantity = quantity
			return m.lines[i], nil
		}
	}
	return cart.Line{}, cart.ErrLineNotFound
}

func (m *memStore) Delete(_ context.Context, userID, lineID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.lines {
		if m.lines[i].UserID == userID && m.lines[i].ID == lineID {
			m.lines = append(m.lines[:i], m.lines[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStore) ListWithProducts(_ context.Context, userID string) ([]cart.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.linesFor(userID), nil
}

func (m *memStore) Count(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, l := range m.linesFor(userID) {
		n += l.Quantity
	}
	return n, nil
}

func (m *memStore) linesFor(userID string) []cart.Line {
	var out []cart.Line
	for _, l := range m.lines {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out
}

func (m *memStore) Finalize(_ context.Context, req order.Request) (order.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.IdempotencyKey == req.IdempotencyKey {
			return o, false, nil
		}
	}

	o := order.Order{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		TotalAmount:    req.TotalAmount,
		Status:         order.StatusConfirmed,
		Source:         req.Source,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      time.Now(),
	}
	kept := m.lines[:0]
	for _, l := range m.lines {
		if l.UserID != req.UserID {
			kept = append(kept, l)
			continue
		}
		o.Items = append(o.Items, order.Item{
			ProductID: l.ProductID,
			Name:      l.Product.Name,
			Quantity:  l.Quantity,
			UnitPrice: m.resolver.EffectivePrice(l.Product),
		})
	}
	m.lines = kept
	m.orders = append(m.orders, o)
	return o, true, nil
}

func (m *memStore) GetByID(_ context.Context, userID, orderID string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.UserID == userID && o.ID == orderID {
			return &o, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []order.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}
