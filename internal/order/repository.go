package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Aswinesag/gitness/internal/catalog"
	"github.com/Aswinesag/gitness/internal/pricing"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Repository interface {
	// Finalize atomically creates the order for req unless one already exists
	// for its idempotency key. A new order snapshots and clears the user's cart.
	Finalize(ctx context.Context, req Request) (Order, bool, error)
	// GetByID returns nil, nil when the user has no such order.
	GetByID(ctx context.Context, userID, orderID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}

const orderColumns = `id, user_id, total_amount, status, source, idempotency_key, created_at`

type PostgresRepository struct {
	pool     DBPool
	resolver *pricing.Resolver
}

func NewPostgresRepository(pool DBPool, resolver *pricing.Resolver) *PostgresRepository {
	return &PostgresRepository{pool: pool, resolver: resolver}
}

func (r *PostgresRepository) Finalize(ctx context.Context, req Request) (Order, bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o := Order{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		TotalAmount:    req.TotalAmount,
		Status:         StatusConfirmed,
		Source:         req.Source,
		IdempotencyKey: req.IdempotencyKey,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, total_amount, status, source, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING created_at
	`, o.ID, o.UserID, o.TotalAmount, string(o.Status), string(o.Source), o.IdempotencyKey).Scan(&o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := r.getByKey(ctx, tx, req.IdempotencyKey)
		if err != nil {
			return Order{}, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return Order{}, false, fmt.Errorf("insert order: %w", err)
	}

	items, err := r.snapshotCart(ctx, tx, req.UserID)
	if err != nil {
		return Order{}, false, err
	}
	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
		`, o.ID, it.ProductID, it.Name, it.Quantity, it.UnitPrice); err != nil {
			return Order{}, false, fmt.Errorf("insert order item: %w", err)
		}
	}
	o.Items = items

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, req.UserID); err != nil {
		return Order{}, false, fmt.Errorf("clear cart: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, false, fmt.Errorf("commit: %w", err)
	}
	return o, true, nil
}

func (r *PostgresRepository) snapshotCart(ctx context.Context, tx pgx.Tx, userID string) ([]Item, error) {
	rows, err := tx.Query(ctx, `
		SELECT ci.product_id, ci.quantity, p.name, p.price, p.is_on_deal, p.discount_percent
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at, ci.id
		FOR UPDATE OF ci
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select cart for snapshot: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var (
			it Item
			p  catalog.Product
		)
		if err := rows.Scan(&it.ProductID, &it.Quantity, &p.Name, &p.Price, &p.IsOnDeal, &p.DiscountPercent); err != nil {
			return nil, fmt.Errorf("scan cart snapshot: %w", err)
		}
		p.ID = it.ProductID
		it.Name = p.Name
		it.UnitPrice = r.resolver.EffectivePrice(p)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *PostgresRepository) getByKey(ctx context.Context, tx pgx.Tx, key string) (Order, error) {
	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key = $1`, key))
	if err != nil {
		return Order{}, fmt.Errorf("select order by key: %w", err)
	}
	items, err := loadItems(ctx, tx, o.ID)
	if err != nil {
		return Order{}, err
	}
	o.Items = items
	return o, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, userID, orderID string) (*Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, nil
	}
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2`, orderID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	items, err := loadItems(ctx, r.pool, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	orders := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		items, err := loadItems(ctx, r.pool, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, orderID string) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT product_id, name, quantity, unit_price FROM order_items WHERE order_id = $1 ORDER BY name`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o              Order
		status, source string
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &status, &source, &o.IdempotencyKey, &o.CreatedAt); err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	o.Source = Source(source)
	return o, nil
}
