package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/models"
)

type RotationLogRepository struct {
	pool *pgxpool.Pool
}

func NewRotationLogRepository(pool *pgxpool.Pool) *RotationLogRepository {
	return &RotationLogRepository{pool: pool}
}

// Create appends one rotation log row. Rows are never updated or deleted.
func (r *RotationLogRepository) Create(ctx context.Context, l *models.RotationLog) error {
	query := `
		INSERT INTO proxyrental.rotation_logs (
			id, proxy_id, user_id, old_ip, new_ip, rotation_type, status, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		l.ID, l.ProxyID, l.UserID, l.OldIP, l.NewIP, l.RotationType, l.Status, l.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert rotation log: %w", err)
	}
	return nil
}

// GetByProxyID returns rotation history for a proxy, newest first.
func (r *RotationLogRepository) GetByProxyID(ctx context.Context, proxyID string) ([]*models.RotationLog, error) {
	query := `
		SELECT id, proxy_id, user_id, old_ip, new_ip, rotation_type, status, error_message, created_at
		FROM proxyrental.rotation_logs
		WHERE proxy_id = $1
		ORDER BY created_at DESC
		LIMIT 100
	`

	rows, err := r.pool.Query(ctx, query, proxyID)
	if err != nil {
		return nil, fmt.Errorf("query rotation logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.RotationLog
	for rows.Next() {
		l := &models.RotationLog{}
		err := rows.Scan(
			&l.ID, &l.ProxyID, &l.UserID, &l.OldIP, &l.NewIP,
			&l.RotationType, &l.Status, &l.ErrorMessage, &l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan rotation log row: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
