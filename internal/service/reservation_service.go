package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/models"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/repository"
)

// ReservationService is the only writer of the quota ledger. Checkout takes
// short-TTL holds, activation confirms them (or deducts fresh), release and
// expiry credit quota back exactly once.
type ReservationService struct {
	quota        repository.QuotaStore
	reservations repository.ReservationStore
	ttl          time.Duration
}

func NewReservationService(quota repository.QuotaStore, reservations repository.ReservationStore, ttl time.Duration) *ReservationService {
	return &ReservationService{
		quota:        quota,
		reservations: reservations,
		ttl:          ttl,
	}
}

// CheckAvailability is a non-mutating read. Racy by design: callers must
// still handle a failed deduct.
func (s *ReservationService) CheckAvailability(ctx context.Context, n int) (*models.AvailabilityResult, error) {
	available, err := s.quota.GetAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}
	return &models.AvailabilityResult{
		Available:      available >= n,
		AvailableCount: available,
	}, nil
}

// ReserveForCheckout takes a short-TTL hold on n connections for an order.
// The deduct happens first (CAS); if the order turns out to already hold an
// active reservation, the deduction is credited back before failing.
func (s *ReservationService) ReserveForCheckout(ctx context.Context, orderID, userID string, n int) (*models.Reservation, error) {
	remaining, ok, err := s.quota.Deduct(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("reserve quota: %w", err)
	}
	if !ok {
		return nil, ErrInsufficientQuota
	}

	now := time.Now()
	res := &models.Reservation{
		ID:                  uuid.New().String(),
		OrderID:             orderID,
		UserID:              userID,
		ReservedConnections: n,
		Status:              models.ReservationStatusReserved,
		ReservedAt:          now,
		ExpiresAt:           now.Add(s.ttl),
	}

	if err := s.reservations.CreateActive(ctx, res); err != nil {
		if errors.Is(err, repository.ErrActiveReservationExists) {
			// Lost the per-order race; give the quota back.
			if cerr := s.quota.Credit(ctx, n); cerr != nil {
				log.Printf("[Reservation] Failed to credit back %d connections for order %s: %v", n, orderID, cerr)
			}
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create reservation: %w", err)
	}

	log.Printf("[Reservation] Reserved %d connection(s) for order %s (remaining quota: %d, expires: %s)",
		n, orderID, remaining, res.ExpiresAt.Format(time.RFC3339))
	return res, nil
}

// ConfirmOrDeduct is the activation gate: it guarantees quota is deducted
// exactly once per order no matter how often activation is replayed.
//   - confirmed reservation exists: nothing to do.
//   - live reserved hold exists: flip it to confirmed, quota already deducted.
//   - otherwise: fresh CAS deduct plus a confirmed reservation.
func (s *ReservationService) ConfirmOrDeduct(ctx context.Context, orderID, userID string, n int) (*models.DeductResult, error) {
	existing, err := s.reservations.GetLatestByOrderID(ctx, orderID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get reservation: %w", err)
	}

	if existing != nil {
		switch existing.Status {
		case models.ReservationStatusConfirmed:
			log.Printf("[Reservation] Order %s already has a confirmed reservation, skipping deduction", orderID)
			return &models.DeductResult{Success: true, DeductedConnections: existing.ReservedConnections}, nil
		case models.ReservationStatusReserved:
			if !existing.IsExpired(time.Now()) {
				confirmed, err := s.reservations.Confirm(ctx, orderID)
				if err != nil {
					return nil, fmt.Errorf("confirm reservation: %w", err)
				}
				if confirmed {
					log.Printf("[Reservation] Confirmed checkout hold for order %s", orderID)
					return &models.DeductResult{Success: true, DeductedConnections: existing.ReservedConnections}, nil
				}
				// The sweeper expired the hold between the read and the
				// confirm; fall through to a fresh deduction.
			}
		}
	}

	// Cheap precheck before the CAS; the deduct below is still the authority.
	availability, err := s.CheckAvailability(ctx, n)
	if err != nil {
		return nil, err
	}
	if !availability.Available {
		return nil, ErrInsufficientQuota
	}

	remaining, ok, err := s.quota.Deduct(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("deduct quota: %w", err)
	}
	if !ok {
		return nil, ErrInsufficientQuota
	}

	now := time.Now()
	confirmedAt := now
	res := &models.Reservation{
		ID:                  uuid.New().String(),
		OrderID:             orderID,
		UserID:              userID,
		ReservedConnections: n,
		Status:              models.ReservationStatusConfirmed,
		ReservedAt:          now,
		ExpiresAt:           now.Add(s.ttl),
		ConfirmedAt:         &confirmedAt,
	}

	if err := s.reservations.CreateActive(ctx, res); err != nil {
		if errors.Is(err, repository.ErrActiveReservationExists) {
			// A concurrent activation beat us to it. Undo our deduction and
			// report success if theirs confirmed.
			if cerr := s.quota.Credit(ctx, n); cerr != nil {
				log.Printf("[Reservation] Failed to credit back %d connections for order %s: %v", n, orderID, cerr)
			}
			other, gerr := s.reservations.GetLatestByOrderID(ctx, orderID)
			if gerr == nil && other != nil && other.Status == models.ReservationStatusConfirmed {
				return &models.DeductResult{Success: true, DeductedConnections: other.ReservedConnections}, nil
			}
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create confirmed reservation: %w", err)
	}

	log.Printf("[Reservation] Deducted %d connection(s) for order %s (remaining quota: %d)", n, orderID, remaining)
	return &models.DeductResult{Success: true, DeductedConnections: n, RemainingQuota: remaining}, nil
}

// GetStatus returns the latest reservation for an order, nil if none.
func (s *ReservationService) GetStatus(ctx context.Context, orderID string) (*models.Reservation, error) {
	res, err := s.reservations.GetLatestByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get reservation status: %w", err)
	}
	return res, nil
}

// Release gives a checkout hold back to the pool. Idempotent: a second call
// (or a call after expiry/confirmation) is a no-op.
func (s *ReservationService) Release(ctx context.Context, orderID string) (bool, error) {
	released, err := s.reservations.ReleaseAndCredit(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("release reservation: %w", err)
	}
	if released {
		log.Printf("[Reservation] Released reservation for order %s", orderID)
	}
	return released, nil
}
