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

var ErrActiveReservationExists = errors.New("order already has an active reservation")

type ReservationRepository struct {
	pool *pgxpool.Pool
}

func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

// CreateActive inserts a reservation only if the order has no non-terminal
// one. The guarded insert serializes concurrent activation attempts for the
// same order at the storage layer.
func (r *ReservationRepository) CreateActive(ctx context.Context, res *models.Reservation) error {
	query := `
		INSERT INTO proxyrental.quota_reservations (
			id, order_id, user_id, reserved_connections, status,
			reserved_at, expires_at, confirmed_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8
		WHERE NOT EXISTS (
			SELECT 1 FROM proxyrental.quota_reservations
			WHERE order_id = $2 AND status IN ('reserved', 'confirmed')
		)
	`

	tag, err := r.pool.Exec(ctx, query,
		res.ID, res.OrderID, res.UserID, res.ReservedConnections, res.Status,
		res.ReservedAt, res.ExpiresAt, res.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrActiveReservationExists
	}
	return nil
}

// GetLatestByOrderID retrieves the most recent reservation for an order.
func (r *ReservationRepository) GetLatestByOrderID(ctx context.Context, orderID string) (*models.Reservation, error) {
	query := `
		SELECT id, order_id, user_id, reserved_connections, status,
		       reserved_at, expires_at, confirmed_at, released_at
		FROM proxyrental.quota_reservations
		WHERE order_id = $1
		ORDER BY reserved_at DESC
		LIMIT 1
	`

	res := &models.Reservation{}
	err := r.pool.QueryRow(ctx, query, orderID).Scan(
		&res.ID, &res.OrderID, &res.UserID, &res.ReservedConnections, &res.Status,
		&res.ReservedAt, &res.ExpiresAt, &res.ConfirmedAt, &res.ReleasedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan reservation: %w", err)
	}
	return res, nil
}

// Confirm flips a reserved hold to confirmed once provisioning is guaranteed
// to proceed. Quota stays deducted.
func (r *ReservationRepository) Confirm(ctx context.Context, orderID string) (bool, error) {
	query := `
		UPDATE proxyrental.quota_reservations
		SET status = 'confirmed', confirmed_at = NOW()
		WHERE order_id = $1 AND status = 'reserved'
	`

	tag, err := r.pool.Exec(ctx, query, orderID)
	if err != nil {
		return false, fmt.Errorf("confirm reservation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseAndCredit flips reserved -> released and credits the ledger in one
// statement. The CTE makes status flip and credit a single atomic unit, so a
// double release credits exactly once.
func (r *ReservationRepository) ReleaseAndCredit(ctx context.Context, orderID string) (bool, error) {
	query := `
		WITH released AS (
			UPDATE proxyrental.quota_reservations
			SET status = 'released', released_at = NOW()
			WHERE order_id = $1 AND status = 'reserved'
			RETURNING reserved_connections
		)
		INSERT INTO proxyrental.quota (id, available_connections, updated_at)
		SELECT 1, SUM(reserved_connections), NOW() FROM released
		HAVING COUNT(*) > 0
		ON CONFLICT (id) DO UPDATE
		SET available_connections = proxyrental.quota.available_connections + EXCLUDED.available_connections,
		    updated_at = NOW()
	`

	tag, err := r.pool.Exec(ctx, query, orderID)
	if err != nil {
		return false, fmt.Errorf("release reservation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ExpireStaleAndCredit expires every reserved hold past its TTL and credits
// the ledger, as one statement. Safe under concurrent sweeps: a row can only
// be flipped out of reserved once.
func (r *ReservationRepository) ExpireStaleAndCredit(ctx context.Context, now time.Time) (int, error) {
	query := `
		WITH expired AS (
			UPDATE proxyrental.quota_reservations
			SET status = 'expired', released_at = NOW()
			WHERE status = 'reserved' AND expires_at < $1
			RETURNING reserved_connections
		),
		credited AS (
			INSERT INTO proxyrental.quota (id, available_connections, updated_at)
			SELECT 1, SUM(reserved_connections), NOW() FROM expired
			HAVING COUNT(*) > 0
			ON CONFLICT (id) DO UPDATE
			SET available_connections = proxyrental.quota.available_connections + EXCLUDED.available_connections,
			    updated_at = NOW()
			RETURNING id
		)
		SELECT COUNT(*) FROM expired
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("expire stale reservations: %w", err)
	}
	return count, nil
}
