package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wenwu/saas-platform/proxy-rental-service/internal/models"
)

func newReservationFixture(available int) (*ReservationService, *fakeQuotaStore, *fakeReservationStore) {
	quota := &fakeQuotaStore{available: available}
	reservations := &fakeReservationStore{quota: quota}
	return NewReservationService(quota, reservations, 30*time.Minute), quota, reservations
}

func TestCheckAvailability(t *testing.T) {
	svc, _, _ := newReservationFixture(3)

	result, err := svc.CheckAvailability(context.Background(), 2)
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if !result.Available || result.AvailableCount != 3 {
		t.Errorf("result = %+v, want available with count 3", result)
	}

	result, err = svc.CheckAvailability(context.Background(), 4)
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if result.Available {
		t.Error("4 of 3 should not be available")
	}
	if result.AvailableCount != 3 {
		t.Errorf("count = %d, want 3", result.AvailableCount)
	}
}

func TestReserveForCheckout_DeductsQuota(t *testing.T) {
	svc, quota, _ := newReservationFixture(5)

	res, err := svc.ReserveForCheckout(context.Background(), "order-1", "user-1", 2)
	if err != nil {
		t.Fatalf("ReserveForCheckout: %v", err)
	}
	if res.Status != models.ReservationStatusReserved {
		t.Errorf("status = %q, want %q", res.Status, models.ReservationStatusReserved)
	}
	if res.ReservedConnections != 2 {
		t.Errorf("reserved = %d, want 2", res.ReservedConnections)
	}
	if quota.available != 3 {
		t.Errorf("quota after reserve = %d, want 3", quota.available)
	}
}

func TestReserveForCheckout_InsufficientQuota(t *testing.T) {
	svc, quota, _ := newReservationFixture(1)

	_, err := svc.ReserveForCheckout(context.Background(), "order-1", "user-1", 2)
	if !errors.Is(err, ErrInsufficientQuota) {
		t.Fatalf("err = %v, want ErrInsufficientQuota", err)
	}
	if quota.available != 1 {
		t.Errorf("quota after failed reserve = %d, want 1", quota.available)
	}
}

func TestReserveForCheckout_SecondHoldCreditsBack(t *testing.T) {
	svc, quota, _ := newReservationFixture(5)

	if _, err := svc.ReserveForCheckout(context.Background(), "order-1", "user-1", 2); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	_, err := svc.ReserveForCheckout(context.Background(), "order-1", "user-1", 2)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second reserve err = %v, want ErrConflict", err)
	}
	// The losing attempt must give back what it deducted.
	if quota.available != 3 {
		t.Errorf("quota after conflict = %d, want 3", quota.available)
	}
}

func TestConfirmOrDeduct_ConfirmsLiveHold(t *testing.T) {
	svc, quota, reservations := newReservationFixture(5)

	if _, err := svc.ReserveForCheckout(context.Background(), "order-1", "user-1", 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	result, err := svc.ConfirmOrDeduct(context.Background(), "order-1", "user-1", 2)
	if err != nil {
		t.Fatalf("ConfirmOrDeduct: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	// Confirming a live hold must not deduct a second time.
	if quota.available != 3 {
		t.Errorf("quota after confirm = %d, want 3", quota.available)
	}

	res, _ := reservations.GetLatestByOrderID(context.Background(), "order-1")
	if res.Status != models.ReservationStatusConfirmed {
		t.Errorf("status = %q, want %q", res.Status, models.ReservationStatusConfirmed)
	}
}

func TestConfirmOrDeduct_Idempotent(t *testing.T) {
	svc, quota, _ := newReservationFixture(5)

	if _, err := svc.ReserveForCheckout(context.Background(), "order-1", "user-1", 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := svc.ConfirmOrDeduct(context.Background(), "order-1", "user-1", 2); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if _, err := svc.ConfirmOrDeduct(context.Background(), "order-1", "user-1", 2); err != nil {
		t.Fatalf("second confirm: %v", err)
	}

	if quota.available != 3 {
		t.Errorf("quota after replay = %d, want 3 (deducted exactly once)", quota.available)
	}
}

func TestConfirmOrDeduct_FreshDeductWithoutHold(t *testing.T) {
	svc, quota, _ := newReservationFixture(5)

	result, err := svc.ConfirmOrDeduct(context.Background(), "order-1", "user-1", 3)
	if err != nil {
		t.Fatalf("ConfirmOrDeduct: %v", err)
	}
	if result.DeductedConnections != 3 {
		t.Errorf("deducted = %d, want 3", result.DeductedConnections)
	}
	if quota.available != 2 {
		t.Errorf("quota = %d, want 2", quota.available)
	}
}

func TestConfirmOrDeduct_InsufficientQuotaNoHold(t *testing.T) {
	svc, _, _ := newReservationFixture(1)

	_, err := svc.ConfirmOrDeduct(context.Background(), "order-1", "user-1", 2)
	if !errors.Is(err, ErrInsufficientQuota) {
		t.Fatalf("err = %v, want ErrInsufficientQuota", err)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	svc, quota, _ := newReservationFixture(5)

	if _, err := svc.ReserveForCheckout(context.Background(), "order-1", "user-1", 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	released, err := svc.Release(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("first release: %v", err)
	}
	if !released {
		t.Error("first release should report released=true")
	}
	if quota.available != 5 {
		t.Errorf("quota after release = %d, want 5", quota.available)
	}

	released, err = svc.Release(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	if released {
		t.Error("second release should be a no-op")
	}
	if quota.available != 5 {
		t.Errorf("quota after double release = %d, want 5 (credited exactly once)", quota.available)
	}
}

func TestRelease_ConfirmedHoldIsNotReleased(t *testing.T) {
	svc, quota, _ := newReservationFixture(5)

	if _, err := svc.ReserveForCheckout(context.Background(), "order-1", "user-1", 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := svc.ConfirmOrDeduct(context.Background(), "order-1", "user-1", 2); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	released, err := svc.Release(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released {
		t.Error("confirmed reservation must not be releasable")
	}
	if quota.available != 3 {
		t.Errorf("quota = %d, want 3 (confirmed spend stays)", quota.available)
	}
}

func TestCleanup_ExpiresStaleHoldsOnce(t *testing.T) {
	quota := &fakeQuotaStore{available: 5}
	reservations := &fakeReservationStore{quota: quota}
	svc := NewReservationService(quota, reservations, time.Millisecond)
	cleanup := NewCleanupService(reservations)

	if _, err := svc.ReserveForCheckout(context.Background(), "order-1", "user-1", 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	expired, err := cleanup.Run(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if expired != 1 {
		t.Errorf("expired = %d, want 1", expired)
	}
	if quota.available != 5 {
		t.Errorf("quota after sweep = %d, want 5", quota.available)
	}

	// A second sweep finds nothing.
	expired, err = cleanup.Run(context.Background())
	if err != nil {
		t.Fatalf("second cleanup: %v", err)
	}
	if expired != 0 {
		t.Errorf("second sweep expired = %d, want 0", expired)
	}
	if quota.available != 5 {
		t.Errorf("quota after second sweep = %d, want 5", quota.available)
	}
}

func TestGetStatus_ReportsWallClockExpiry(t *testing.T) {
	quota := &fakeQuotaStore{available: 5}
	reservations := &fakeReservationStore{quota: quota}
	svc := NewReservationService(quota, reservations, time.Millisecond)

	if _, err := svc.ReserveForCheckout(context.Background(), "order-1", "user-1", 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	// Sweeper has not run, stored status is still reserved, but the hold is
	// past its TTL.
	res, err := svc.GetStatus(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if res == nil {
		t.Fatal("expected a reservation")
	}
	if res.Status != models.ReservationStatusReserved {
		t.Errorf("status = %q, want %q", res.Status, models.ReservationStatusReserved)
	}
	if !res.IsExpired(time.Now()) {
		t.Error("IsExpired should be true past the TTL")
	}
}

func TestGetStatus_NoReservation(t *testing.T) {
	svc, _, _ := newReservationFixture(5)

	res, err := svc.GetStatus(context.Background(), "order-none")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if res != nil {
		t.Errorf("expected nil reservation, got %+v", res)
	}
}
