package service

import (
	"context"
	"errors"
	"testing"

	"github.com/wenwu/saas-platform/proxy-rental-service/internal/repository"
)

func TestStoplist_AddShrinksQuota(t *testing.T) {
	quota := &fakeQuotaStore{available: 3}
	svc := NewStoplistService(newFakeStoplistStore(), quota)

	if err := svc.Add(context.Background(), "conn-1", "flaky device", "admin-1"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if quota.available != 2 {
		t.Errorf("quota = %d, want 2", quota.available)
	}

	entries, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].ConnectionID != "conn-1" {
		t.Errorf("entries = %+v, want conn-1", entries)
	}
}

func TestStoplist_DuplicateAddDoesNotDoubleShrink(t *testing.T) {
	quota := &fakeQuotaStore{available: 3}
	svc := NewStoplistService(newFakeStoplistStore(), quota)

	if err := svc.Add(context.Background(), "conn-1", "", "admin-1"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := svc.Add(context.Background(), "conn-1", "", "admin-1"); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate add err = %v, want ErrConflict", err)
	}
	if quota.available != 2 {
		t.Errorf("quota = %d, want 2 (decremented once)", quota.available)
	}
}

func TestStoplist_AddFloorsAtZero(t *testing.T) {
	quota := &fakeQuotaStore{available: 0}
	svc := NewStoplistService(newFakeStoplistStore(), quota)

	if err := svc.Add(context.Background(), "conn-1", "", "admin-1"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if quota.available != 0 {
		t.Errorf("quota = %d, want 0", quota.available)
	}
}

func TestStoplist_RemoveCreditsQuota(t *testing.T) {
	quota := &fakeQuotaStore{available: 3}
	svc := NewStoplistService(newFakeStoplistStore(), quota)

	if err := svc.Add(context.Background(), "conn-1", "", "admin-1"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := svc.Remove(context.Background(), "conn-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if quota.available != 3 {
		t.Errorf("quota = %d, want 3", quota.available)
	}
}

func TestStoplist_RemoveUnknownConnection(t *testing.T) {
	quota := &fakeQuotaStore{available: 3}
	svc := NewStoplistService(newFakeStoplistStore(), quota)

	if err := svc.Remove(context.Background(), "conn-x"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if quota.available != 3 {
		t.Errorf("quota = %d, want 3 (untouched)", quota.available)
	}
}
