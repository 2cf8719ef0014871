// Package repository defines data access for the proxy rental core.
// Interfaces are declared here so services depend on behavior, not on pgx;
// tests substitute in-memory fakes.
package repository

import (
	"context"
	"time"

	"github.com/wenwu/saas-platform/proxy-rental-service/internal/models"
)

// QuotaStore owns the single-row connection ledger. All mutations are
// single conditional statements; callers never read-modify-write.
type QuotaStore interface {
	// GetAvailable returns the current ledger value (0 if no row yet).
	GetAvailable(ctx context.Context) (int, error)
	// Deduct atomically subtracts n if n <= available. Returns the remaining
	// quota and whether the deduction happened.
	Deduct(ctx context.Context, n int) (int, bool, error)
	// Credit adds n back, creating the ledger row if it does not exist.
	Credit(ctx context.Context, n int) error
	// DecrementFloor subtracts 1 without going below zero (stoplist override).
	DecrementFloor(ctx context.Context) error
}

// ReservationStore owns quota reservations. Release/expire operations credit
// the ledger in the same atomic statement that flips status, so concurrent
// callers cannot double-credit.
type ReservationStore interface {
	// CreateActive inserts a reservation unless the order already has a
	// non-terminal one; returns ErrActiveReservationExists in that case.
	CreateActive(ctx context.Context, r *models.Reservation) error
	GetLatestByOrderID(ctx context.Context, orderID string) (*models.Reservation, error)
	// Confirm flips reserved -> confirmed. No-op (false) if not reserved.
	Confirm(ctx context.Context, orderID string) (bool, error)
	// ReleaseAndCredit flips reserved -> released and credits the ledger.
	// Idempotent: returns false without touching the ledger when there is
	// nothing in reserved state.
	ReleaseAndCredit(ctx context.Context, orderID string) (bool, error)
	// ExpireStaleAndCredit flips every reserved row past its TTL to expired
	// and credits the ledger, all in one statement. Returns the count.
	ExpireStaleAndCredit(ctx context.Context, now time.Time) (int, error)
}

// OrderStore owns order rows.
type OrderStore interface {
	Create(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	// TransitionStatus flips from -> to and returns whether a row changed.
	TransitionStatus(ctx context.Context, id, from, to string) (bool, error)
	UpdateMetadata(ctx context.Context, id string, md models.OrderMetadata) error
	// SetActive flips processing -> active and persists metadata plus the
	// computed expiry in one update.
	SetActive(ctx context.Context, id string, md models.OrderMetadata, expiresAt time.Time) (bool, error)
}

// ProxyStore owns granted proxy credential records.
type ProxyStore interface {
	Create(ctx context.Context, p *models.ProxyRecord) error
	GetByID(ctx context.Context, id string) (*models.ProxyRecord, error)
	GetByUserID(ctx context.Context, userID string) ([]*models.ProxyRecord, error)
	// GetByOrderID returns the records already granted for an order; a
	// retried activation provisions only the shortfall.
	GetByOrderID(ctx context.Context, orderID string) ([]*models.ProxyRecord, error)
	// GetLiveByConnectionID returns unexpired records on an upstream
	// connection; used by the allocator to skip in-use connections.
	GetLiveByConnectionID(ctx context.Context, connectionID string, now time.Time) ([]*models.ProxyRecord, error)
	UpdateRotationState(ctx context.Context, id, status string, lastIP *string) error
	SetRotationLink(ctx context.Context, id, changeURL, actionLinkID string) error
}

// RotationLogStore appends immutable rotation log rows.
type RotationLogStore interface {
	Create(ctx context.Context, l *models.RotationLog) error
	GetByProxyID(ctx context.Context, proxyID string) ([]*models.RotationLog, error)
}

// StoplistStore owns the set of excluded upstream connections.
type StoplistStore interface {
	// Add returns false when the connection is already listed.
	Add(ctx context.Context, e *models.StoplistEntry) (bool, error)
	// Remove returns false when the connection was not listed.
	Remove(ctx context.Context, connectionID string) (bool, error)
	List(ctx context.Context) ([]*models.StoplistEntry, error)
	ConnectionIDs(ctx context.Context) (map[string]bool, error)
}
