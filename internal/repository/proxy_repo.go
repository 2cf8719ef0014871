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

type ProxyRepository struct {
	pool *pgxpool.Pool
}

func NewProxyRepository(pool *pgxpool.Pool) *ProxyRepository {
	return &ProxyRepository{pool: pool}
}

// Create inserts a new proxy record. Password arrives already encrypted.
func (r *ProxyRepository) Create(ctx context.Context, p *models.ProxyRecord) error {
	query := `
		INSERT INTO proxyrental.proxies (
			id, user_id, order_id, iproxy_connection_id, host,
			port_http, port_socks5, username, password, status,
			last_ip, iproxy_change_url, iproxy_action_link_id, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.UserID, p.OrderID, p.IproxyConnectionID, p.Host,
		p.PortHTTP, p.PortSocks5, p.Username, p.Password, p.Status,
		p.LastIP, p.IproxyChangeURL, p.IproxyActionLinkID, p.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert proxy: %w", err)
	}
	return nil
}

// GetByID retrieves a proxy record by ID.
func (r *ProxyRepository) GetByID(ctx context.Context, id string) (*models.ProxyRecord, error) {
	query := `
		SELECT id, user_id, order_id, iproxy_connection_id, host,
		       port_http, port_socks5, username, password, status,
		       last_ip, iproxy_change_url, iproxy_action_link_id, expires_at,
		       created_at, updated_at, deleted_at
		FROM proxyrental.proxies
		WHERE id = $1
	`

	return r.scanProxy(r.pool.QueryRow(ctx, query, id))
}

// GetByUserID retrieves all proxy records for a user, newest first.
func (r *ProxyRepository) GetByUserID(ctx context.Context, userID string) ([]*models.ProxyRecord, error) {
	query := `
		SELECT id, user_id, order_id, iproxy_connection_id, host,
		       port_http, port_socks5, username, password, status,
		       last_ip, iproxy_change_url, iproxy_action_link_id, expires_at,
		       created_at, updated_at, deleted_at
		FROM proxyrental.proxies
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query proxies: %w", err)
	}
	defer rows.Close()

	return r.scanProxies(rows)
}

// GetByOrderID retrieves the proxy records granted for an order, oldest
// first.
func (r *ProxyRepository) GetByOrderID(ctx context.Context, orderID string) ([]*models.ProxyRecord, error) {
	query := `
		SELECT id, user_id, order_id, iproxy_connection_id, host,
		       port_http, port_socks5, username, password, status,
		       last_ip, iproxy_change_url, iproxy_action_link_id, expires_at,
		       created_at, updated_at, deleted_at
		FROM proxyrental.proxies
		WHERE order_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order proxies: %w", err)
	}
	defer rows.Close()

	return r.scanProxies(rows)
}

// GetLiveByConnectionID returns unexpired records tied to an upstream
// connection. A non-empty result means the connection is still serving
// someone and must not be reallocated.
func (r *ProxyRepository) GetLiveByConnectionID(ctx context.Context, connectionID string, now time.Time) ([]*models.ProxyRecord, error) {
	query := `
		SELECT id, user_id, order_id, iproxy_connection_id, host,
		       port_http, port_socks5, username, password, status,
		       last_ip, iproxy_change_url, iproxy_action_link_id, expires_at,
		       created_at, updated_at, deleted_at
		FROM proxyrental.proxies
		WHERE iproxy_connection_id = $1
		  AND status != 'expired'
		  AND expires_at > $2
		  AND deleted_at IS NULL
	`

	rows, err := r.pool.Query(ctx, query, connectionID, now)
	if err != nil {
		return nil, fmt.Errorf("query live proxies: %w", err)
	}
	defer rows.Close()

	return r.scanProxies(rows)
}

// UpdateRotationState updates the cached rotation status and last IP.
func (r *ProxyRepository) UpdateRotationState(ctx context.Context, id, status string, lastIP *string) error {
	var err error
	if lastIP != nil {
		query := `UPDATE proxyrental.proxies SET status = $1, last_ip = $2, updated_at = NOW() WHERE id = $3`
		_, err = r.pool.Exec(ctx, query, status, lastIP, id)
	} else {
		query := `UPDATE proxyrental.proxies SET status = $1, updated_at = NOW() WHERE id = $2`
		_, err = r.pool.Exec(ctx, query, status, id)
	}
	if err != nil {
		return fmt.Errorf("update rotation state: %w", err)
	}
	return nil
}

// SetRotationLink stores the upstream change URL and action link id.
func (r *ProxyRepository) SetRotationLink(ctx context.Context, id, changeURL, actionLinkID string) error {
	query := `
		UPDATE proxyrental.proxies
		SET iproxy_change_url = $1, iproxy_action_link_id = $2, updated_at = NOW()
		WHERE id = $3
	`

	_, err := r.pool.Exec(ctx, query, changeURL, actionLinkID, id)
	if err != nil {
		return fmt.Errorf("set rotation link: %w", err)
	}
	return nil
}

func (r *ProxyRepository) scanProxy(row pgx.Row) (*models.ProxyRecord, error) {
	p := &models.ProxyRecord{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.OrderID, &p.IproxyConnectionID, &p.Host,
		&p.PortHTTP, &p.PortSocks5, &p.Username, &p.Password, &p.Status,
		&p.LastIP, &p.IproxyChangeURL, &p.IproxyActionLinkID, &p.ExpiresAt,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan proxy: %w", err)
	}
	return p, nil
}

func (r *ProxyRepository) scanProxies(rows pgx.Rows) ([]*models.ProxyRecord, error) {
	var proxies []*models.ProxyRecord
	for rows.Next() {
		p := &models.ProxyRecord{}
		err := rows.Scan(
			&p.ID, &p.UserID, &p.OrderID, &p.IproxyConnectionID, &p.Host,
			&p.PortHTTP, &p.PortSocks5, &p.Username, &p.Password, &p.Status,
			&p.LastIP, &p.IproxyChangeURL, &p.IproxyActionLinkID, &p.ExpiresAt,
			&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan proxy row: %w", err)
		}
		proxies = append(proxies, p)
	}
	return proxies, rows.Err()
}
