package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/wenwu/saas-platform/proxy-rental-service/internal/repository"
)

// CleanupService expires stale checkout holds and returns their quota to the
// pool. Triggered by the cron endpoint; concurrent runs are harmless because
// expiry and credit happen in one statement.
type CleanupService struct {
	reservations repository.ReservationStore
}

func NewCleanupService(reservations repository.ReservationStore) *CleanupService {
	return &CleanupService{reservations: reservations}
}

func (s *CleanupService) Run(ctx context.Context) (int, error) {
	expired, err := s.reservations.ExpireStaleAndCredit(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("expire stale reservations: %w", err)
	}
	if expired > 0 {
		log.Printf("[Cleanup] Expired %d stale reservation(s), quota credited back", expired)
	}
	return expired, nil
}
