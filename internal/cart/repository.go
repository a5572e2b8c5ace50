package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Aswinesag/gitness/internal/catalog"
)

const pgForeignKeyViolation = "23503"

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	// Add inserts a line with quantity 1 or increments the existing one.
	Add(ctx context.Context, userID, productID string) (line Line, inserted bool, err error)
	SetQuantity(ctx context.Context, userID, lineID string, quantity int) (Line, error)
	Delete(ctx context.Context, userID, lineID string) error
	ListWithProducts(ctx context.Context, userID string) ([]Line, error)
	Count(ctx context.Context, userID string) (int, error)
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Add(ctx context.Context, userID, productID string) (Line, bool, error) {
	if _, err := uuid.Parse(productID); err != nil {
		return Line{}, false, catalog.ErrNotFound
	}

	l := Line{UserID: userID, ProductID: productID}
	var inserted bool
	err := r.pool.QueryRow(ctx, `
		INSERT INTO cart_items (id, user_id, product_id, quantity)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + 1, updated_at = now()
		RETURNING id, quantity, created_at, (xmax = 0) AS inserted
	`, uuid.NewString(), userID, productID).Scan(&l.ID, &l.Quantity, &l.CreatedAt, &inserted)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return Line{}, false, catalog.ErrNotFound
		}
		return Line{}, false, fmt.Errorf("upsert cart line: %w", err)
	}
	return l, inserted, nil
}

func (r *PostgresRepository) SetQuantity(ctx context.Context, userID, lineID string, quantity int) (Line, error) {
	if _, err := uuid.Parse(lineID); err != nil {
		return Line{}, ErrLineNotFound
	}

	l := Line{ID: lineID, UserID: userID}
	err := r.pool.QueryRow(ctx, `
		UPDATE cart_items
		SET quantity = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING product_id, quantity, created_at
	`, lineID, userID, quantity).Scan(&l.ProductID, &l.Quantity, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Line{}, ErrLineNotFound
		}
		return Line{}, fmt.Errorf("update cart line: %w", err)
	}
	return l, nil
}

// Delete removes the line if it belongs to the user. A missing line is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, userID, lineID string) error {
	if _, err := uuid.Parse(lineID); err != nil {
		return nil
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, lineID, userID); err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListWithProducts(ctx context.Context, userID string) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ci.id, ci.user_id, ci.product_id, ci.quantity, ci.created_at,
		       p.id, p.name, p.description, p.price, p.image, p.category, p.is_on_deal, p.discount_percent, p.created_at
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at, ci.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	defer rows.Close()

	lines := []Line{}
	for rows.Next() {
		var l Line
		p := &l.Product
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.ProductID, &l.Quantity, &l.CreatedAt,
			&p.ID, &p.Name, &p.Description, &p.Price, &p.Image, &p.Category, &p.IsOnDeal, &p.DiscountPercent, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *PostgresRepository) Count(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM cart_items WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cart: %w", err)
	}
	return n, nil
}
