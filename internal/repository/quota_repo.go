package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

// ledgerID: the quota table holds a single aggregate row.
const ledgerID = 1

type QuotaRepository struct {
	pool *pgxpool.Pool
}

func NewQuotaRepository(pool *pgxpool.Pool) *QuotaRepository {
	return &QuotaRepository{pool: pool}
}

// GetAvailable reads the current ledger value. Racy by design: a subsequent
// Deduct can still fail.
func (r *QuotaRepository) GetAvailable(ctx context.Context) (int, error) {
	query := `SELECT available_connections FROM proxyrental.quota WHERE id = $1`

	var available int
	err := r.pool.QueryRow(ctx, query, ledgerID).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get available: %w", err)
	}
	return available, nil
}

// Deduct is the compare-and-swap the whole reservation scheme rests on:
// the subtraction only happens when the guard still holds at execution time.
func (r *QuotaRepository) Deduct(ctx context.Context, n int) (int, bool, error) {
	query := `
		UPDATE proxyrental.quota
		SET available_connections = available_connections - $1, updated_at = NOW()
		WHERE id = $2 AND available_connections >= $1
		RETURNING available_connections
	`

	var remaining int
	err := r.pool.QueryRow(ctx, query, n, ledgerID).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("deduct quota: %w", err)
	}
	return remaining, true, nil
}

// Credit adds n connections back, creating the ledger row on first use.
func (r *QuotaRepository) Credit(ctx context.Context, n int) error {
	query := `
		INSERT INTO proxyrental.quota (id, available_connections, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET available_connections = proxyrental.quota.available_connections + EXCLUDED.available_connections,
		    updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, ledgerID, n)
	if err != nil {
		return fmt.Errorf("credit quota: %w", err)
	}
	return nil
}

// DecrementFloor subtracts one connection for a stoplist addition.
// The ledger never goes negative.
func (r *QuotaRepository) DecrementFloor(ctx context.Context) error {
	query := `
		UPDATE proxyrental.quota
		SET available_connections = GREATEST(available_connections - 1, 0), updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query, ledgerID)
	if err != nil {
		return fmt.Errorf("decrement quota: %w", err)
	}
	return nil
}
