package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/wenwu/saas-platform/proxy-rental-service/internal/models"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/repository"
)

// ActivationService drives the processing -> active transition. Payment
// webhooks and admin calls both land here; the sequence is safe to replay.
type ActivationService struct {
	orders       repository.OrderStore
	proxies      repository.ProxyStore
	reservations *ReservationService
	provisioning *ProvisionService
	notify       Notifier
}

func NewActivationService(
	orders repository.OrderStore,
	proxies repository.ProxyStore,
	reservations *ReservationService,
	provisioning *ProvisionService,
	notify Notifier,
) *ActivationService {
	return &ActivationService{
		orders:       orders,
		proxies:      proxies,
		reservations: reservations,
		provisioning: provisioning,
		notify:       notify,
	}
}

// ActivateOrder activates a paid order: quota is settled through the
// reservation layer (exactly once per order), one proxy is provisioned per
// ordered connection, and the order flips to active with its expiry computed
// from the plan. actor is non-empty for admin-triggered activation and is
// recorded on the order.
//
// A provisioning failure after the quota settlement leaves the order in
// processing so the call can be retried; spent quota is not refunded.
func (s *ActivationService) ActivateOrder(ctx context.Context, orderID, actor string) (*models.ActivateOrderResponse, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if order.Status == models.OrderStatusActive {
		log.Printf("[Activation] Order %s is already active, nothing to do", orderID)
		return &models.ActivateOrderResponse{Success: true, OrderID: orderID, Message: "already active"}, nil
	}
	if order.Status != models.OrderStatusProcessing {
		return nil, fmt.Errorf("%w: order %s is %s", ErrInvalidState, orderID, order.Status)
	}
	if order.Metadata.ConnectionID == nil || *order.Metadata.ConnectionID == "" {
		return nil, ErrMissingConnection
	}

	plan, ok := models.GetPlan(order.PlanID)
	if !ok {
		return nil, ErrPlanNotFound
	}

	if _, err := s.reservations.ConfirmOrDeduct(ctx, order.ID, order.UserID, order.Quantity); err != nil {
		return nil, fmt.Errorf("settle quota for order %s: %w", orderID, err)
	}

	expiresAt := time.Now().Add(time.Duration(plan.DurationDays) * 24 * time.Hour)

	ipChange := order.Metadata.IPChangeEnabled != nil && *order.Metadata.IPChangeEnabled && plan.IPChangeAvailable
	interval := 0
	if order.Metadata.IPChangeIntervalMinutes != nil {
		interval = *order.Metadata.IPChangeIntervalMinutes
	}

	// A partial earlier attempt may already have granted some units; only
	// the shortfall is provisioned so a retry never double-grants.
	granted, err := s.proxies.GetByOrderID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("get granted proxies for order %s: %w", orderID, err)
	}

	proxyIDs := make([]string, 0, order.Quantity)
	for _, p := range granted {
		proxyIDs = append(proxyIDs, p.ID)
	}

	for i := len(granted); i < order.Quantity; i++ {
		result, err := s.provisioning.ProvisionProxyAccess(ctx, &ProvisionRequest{
			OrderID:                 order.ID,
			UserID:                  order.UserID,
			UserEmail:               order.UserEmail,
			ConnectionID:            *order.Metadata.ConnectionID,
			ExpiresAt:               expiresAt,
			PlanName:                plan.Name,
			IPChangeEnabled:         ipChange,
			IPChangeIntervalMinutes: interval,
		})
		if err != nil {
			// Order stays in processing; a retry picks up the confirmed
			// reservation and does not deduct again.
			s.alertAdmin(ctx, fmt.Sprintf("Provisioning failed for order %s (unit %d/%d): %v", order.ID, i+1, order.Quantity, err))
			return nil, fmt.Errorf("provision order %s: %w", orderID, err)
		}
		proxyIDs = append(proxyIDs, result.ProxyID)
	}

	md := order.Metadata
	if actor != "" {
		now := time.Now()
		md.ManuallyActivatedBy = &actor
		md.ManuallyActivatedAt = &now
	}

	flipped, err := s.orders.SetActive(ctx, order.ID, md, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("activate order %s: %w", orderID, err)
	}
	if !flipped {
		// A concurrent activation finished first. The provisioned proxies
		// from this run still belong to the order; flag it for review.
		s.alertAdmin(ctx, fmt.Sprintf("Order %s was activated concurrently; %d extra proxy record(s) may exist", order.ID, len(proxyIDs)))
		return &models.ActivateOrderResponse{Success: true, OrderID: orderID, Message: "already active"}, nil
	}

	log.Printf("[Activation] Order %s activated with %d prox(ies), expires %s", orderID, len(proxyIDs), expiresAt.Format(time.RFC3339))
	return &models.ActivateOrderResponse{
		Success:  true,
		OrderID:  orderID,
		ProxyIDs: proxyIDs,
	}, nil
}

// CancelUnpaidOrder handles failed or expired payments: the checkout hold is
// released back to the pool and the order is cancelled. Safe to call for
// orders in any state; only pending/processing orders actually change.
func (s *ActivationService) CancelUnpaidOrder(ctx context.Context, orderID, reason string) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("get order: %w", err)
	}

	if _, err := s.reservations.Release(ctx, orderID); err != nil {
		log.Printf("[Activation] Failed to release reservation for order %s: %v", orderID, err)
	}

	for _, from := range []string{models.OrderStatusPending, models.OrderStatusProcessing} {
		cancelled, err := s.orders.TransitionStatus(ctx, orderID, from, models.OrderStatusCancelled)
		if err != nil {
			return fmt.Errorf("cancel order %s: %w", orderID, err)
		}
		if cancelled {
			log.Printf("[Activation] Order %s cancelled (%s)", orderID, reason)
			return nil
		}
	}

	log.Printf("[Activation] Order %s not cancelled: status is %s", orderID, order.Status)
	return nil
}

func (s *ActivationService) alertAdmin(ctx context.Context, text string) {
	if err := s.notify.NotifyAdmin(ctx, text); err != nil {
		log.Printf("[Activation] Admin notification failed: %v", err)
	}
}
