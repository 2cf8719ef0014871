package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/wenwu/saas-platform/proxy-rental-service/internal/models"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/repository"
)

// StoplistService manages the set of upstream connections excluded from
// allocation. The ledger tracks the exclusion: listing a connection shrinks
// sellable capacity by one, delisting restores it.
type StoplistService struct {
	stoplist repository.StoplistStore
	quota    repository.QuotaStore
}

func NewStoplistService(stoplist repository.StoplistStore, quota repository.QuotaStore) *StoplistService {
	return &StoplistService{stoplist: stoplist, quota: quota}
}

// Add stoplists a connection and takes one unit of capacity out of the
// ledger (floored at zero). Already-listed connections return ErrConflict
// without touching the ledger.
func (s *StoplistService) Add(ctx context.Context, connectionID, reason, addedBy string) error {
	added, err := s.stoplist.Add(ctx, &models.StoplistEntry{
		ConnectionID: connectionID,
		Reason:       reason,
		AddedBy:      addedBy,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("add to stoplist: %w", err)
	}
	if !added {
		return ErrConflict
	}

	if err := s.quota.DecrementFloor(ctx); err != nil {
		log.Printf("[Stoplist] Failed to decrement quota after listing %s: %v", connectionID, err)
	}

	log.Printf("[Stoplist] Connection %s stoplisted by %s (%s)", connectionID, addedBy, reason)
	return nil
}

// Remove delists a connection and credits its capacity back.
func (s *StoplistService) Remove(ctx context.Context, connectionID string) error {
	removed, err := s.stoplist.Remove(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("remove from stoplist: %w", err)
	}
	if !removed {
		return repository.ErrNotFound
	}

	if err := s.quota.Credit(ctx, 1); err != nil {
		log.Printf("[Stoplist] Failed to credit quota after delisting %s: %v", connectionID, err)
	}

	log.Printf("[Stoplist] Connection %s removed from stoplist", connectionID)
	return nil
}

func (s *StoplistService) List(ctx context.Context) ([]*models.StoplistEntry, error) {
	entries, err := s.stoplist.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stoplist: %w", err)
	}
	return entries, nil
}
