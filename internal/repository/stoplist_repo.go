package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/models"
)

type StoplistRepository struct {
	pool *pgxpool.Pool
}

func NewStoplistRepository(pool *pgxpool.Pool) *StoplistRepository {
	return &StoplistRepository{pool: pool}
}

// Add inserts a stoplist entry. Returns false when already listed.
func (r *StoplistRepository) Add(ctx context.Context, e *models.StoplistEntry) (bool, error) {
	query := `
		INSERT INTO proxyrental.connection_stoplist (connection_id, reason, added_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (connection_id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query, e.ConnectionID, e.Reason, e.AddedBy)
	if err != nil {
		return false, fmt.Errorf("insert stoplist entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Remove deletes a stoplist entry. Returns false when not listed.
func (r *StoplistRepository) Remove(ctx context.Context, connectionID string) (bool, error) {
	query := `DELETE FROM proxyrental.connection_stoplist WHERE connection_id = $1`

	tag, err := r.pool.Exec(ctx, query, connectionID)
	if err != nil {
		return false, fmt.Errorf("delete stoplist entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns all stoplist entries.
func (r *StoplistRepository) List(ctx context.Context) ([]*models.StoplistEntry, error) {
	query := `
		SELECT connection_id, reason, added_by, created_at
		FROM proxyrental.connection_stoplist
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query stoplist: %w", err)
	}
	defer rows.Close()

	var entries []*models.StoplistEntry
	for rows.Next() {
		e := &models.StoplistEntry{}
		if err := rows.Scan(&e.ConnectionID, &e.Reason, &e.AddedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stoplist row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ConnectionIDs returns the stoplisted ids as a set for allocator lookups.
func (r *StoplistRepository) ConnectionIDs(ctx context.Context) (map[string]bool, error) {
	query := `SELECT connection_id FROM proxyrental.connection_stoplist`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query stoplist ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stoplist id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}
