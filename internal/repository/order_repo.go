package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/models"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts a new order. Metadata goes into a JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	query := `
		INSERT INTO proxyrental.orders (
			id, user_id, user_email, plan_id, quantity, status,
			metadata, total_amount, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		o.ID, o.UserID, o.UserEmail, o.PlanID, o.Quantity, o.Status,
		o.Metadata, o.TotalAmount, o.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID retrieves an order by ID.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `
		SELECT id, user_id, user_email, plan_id, quantity, status,
		       metadata, total_amount, expires_at, created_at, updated_at
		FROM proxyrental.orders
		WHERE id = $1
	`

	o := &models.Order{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.UserID, &o.UserEmail, &o.PlanID, &o.Quantity, &o.Status,
		&o.Metadata, &o.TotalAmount, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return o, nil
}

// TransitionStatus flips from -> to conditionally. Returning false means the
// order was not in the expected state (someone else got there first).
func (r *OrderRepository) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	query := `
		UPDATE proxyrental.orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	tag, err := r.pool.Exec(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("transition order status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateMetadata replaces the metadata document.
func (r *OrderRepository) UpdateMetadata(ctx context.Context, id string, md models.OrderMetadata) error {
	query := `UPDATE proxyrental.orders SET metadata = $1, updated_at = NOW() WHERE id = $2`

	_, err := r.pool.Exec(ctx, query, md, id)
	if err != nil {
		return fmt.Errorf("update order metadata: %w", err)
	}
	return nil
}

// SetActive flips processing -> active and persists metadata plus the
// computed expiry in one update.
func (r *OrderRepository) SetActive(ctx context.Context, id string, md models.OrderMetadata, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE proxyrental.orders
		SET status = 'active', metadata = $1, expires_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'processing'
	`

	tag, err := r.pool.Exec(ctx, query, md, expiresAt, id)
	if err != nil {
		return false, fmt.Errorf("set order active: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
