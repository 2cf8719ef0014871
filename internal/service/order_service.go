package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/client"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/models"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/repository"
)

// OrderService owns the checkout flow: plan pricing, connection allocation,
// the quota hold, and the payment invoice.
type OrderService struct {
	orders       repository.OrderStore
	reservations *ReservationService
	allocator    *AllocatorService
	payment      PaymentAPI
	notify       Notifier
	ipnURL       string
}

func NewOrderService(
	orders repository.OrderStore,
	reservations *ReservationService,
	allocator *AllocatorService,
	payment PaymentAPI,
	notify Notifier,
	ipnURL string,
) *OrderService {
	return &OrderService{
		orders:       orders,
		reservations: reservations,
		allocator:    allocator,
		payment:      payment,
		notify:       notify,
		ipnURL:       ipnURL,
	}
}

// CreateOrder runs checkout for an authenticated user:
//
//  1. price the plan and insert a pending order
//  2. pick an upstream connection; a connection needing manual setup flags
//     the order for manual provisioning instead of failing checkout
//  3. take a short-TTL quota hold; insufficient quota also soft-fails into
//     the manual path so the sale is not lost
//  4. create the payment invoice; this failure is hard, the hold is released
//     and the order cancelled
//  5. move the order to processing and hand the invoice URL back
func (s *OrderService) CreateOrder(ctx context.Context, userID, userEmail string, req *models.CreateOrderRequest) (*models.CreateOrderResponse, error) {
	plan, ok := models.GetPlan(req.PlanID)
	if !ok {
		return nil, ErrPlanNotFound
	}

	ipChange := req.IPChangeEnabled && plan.IPChangeAvailable
	order := &models.Order{
		ID:          uuid.New().String(),
		UserID:      userID,
		UserEmail:   userEmail,
		PlanID:      plan.ID,
		Quantity:    req.Quantity,
		Status:      models.OrderStatusPending,
		TotalAmount: plan.PriceUSD * float64(req.Quantity),
		Metadata: models.OrderMetadata{
			IPChangeEnabled: &ipChange,
		},
	}
	if ipChange && req.IPChangeIntervalMinutes > 0 {
		order.Metadata.IPChangeIntervalMinutes = &req.IPChangeIntervalMinutes
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	log.Printf("[Order] Created order %s for user %s (%s x%d, $%.2f)", order.ID, userID, plan.ID, req.Quantity, order.TotalAmount)

	manual := false

	allocation, err := s.allocator.SelectConnection(ctx)
	if err != nil {
		// Checkout survives allocation failure; the order just needs a human.
		log.Printf("[Order] Allocation failed for order %s: %v", order.ID, err)
		manual = true
		s.alertAdmin(ctx, fmt.Sprintf("Order %s needs manual provisioning: connection allocation failed: %v", order.ID, err))
	} else {
		order.Metadata.ConnectionID = &allocation.Connection.ID
		if !allocation.PlanActive || allocation.NotConfigured {
			manual = true
			s.alertAdmin(ctx, fmt.Sprintf("Order %s got connection %s which needs setup (plan active: %t, configured: %t)",
				order.ID, allocation.Connection.ID, allocation.PlanActive, !allocation.NotConfigured))
		}
	}

	var reservationExpiry *time.Time
	res, err := s.reservations.ReserveForCheckout(ctx, order.ID, userID, req.Quantity)
	switch {
	case err == nil:
		reservationExpiry = &res.ExpiresAt
	case errors.Is(err, ErrInsufficientQuota):
		// Take the money anyway and fulfill by hand once capacity frees up.
		manual = true
		s.alertAdmin(ctx, fmt.Sprintf("Order %s placed without quota (%d connection(s) requested); fulfill manually", order.ID, req.Quantity))
	default:
		return nil, fmt.Errorf("reserve quota for order %s: %w", order.ID, err)
	}

	if manual {
		t := true
		order.Metadata.ManualProvisioningRequired = &t
	}

	invoice, err := s.payment.CreateInvoice(ctx, &client.InvoiceRequest{
		PriceAmount:      order.TotalAmount,
		PriceCurrency:    "usd",
		OrderID:          order.ID,
		OrderDescription: fmt.Sprintf("%s x%d", plan.Name, req.Quantity),
		IPNCallbackURL:   s.ipnURL,
	})
	if err != nil {
		if _, rerr := s.reservations.Release(ctx, order.ID); rerr != nil {
			log.Printf("[Order] Failed to release reservation for order %s: %v", order.ID, rerr)
		}
		if _, terr := s.orders.TransitionStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusCancelled); terr != nil {
			log.Printf("[Order] Failed to cancel order %s: %v", order.ID, terr)
		}
		return nil, fmt.Errorf("create invoice for order %s: %w", order.ID, err)
	}

	order.Metadata.PaymentInvoiceID = &invoice.ID
	order.Metadata.PaymentInvoiceURL = &invoice.InvoiceURL
	if err := s.orders.UpdateMetadata(ctx, order.ID, order.Metadata); err != nil {
		return nil, fmt.Errorf("store invoice on order %s: %w", order.ID, err)
	}

	if _, err := s.orders.TransitionStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusProcessing); err != nil {
		return nil, fmt.Errorf("move order %s to processing: %w", order.ID, err)
	}

	log.Printf("[Order] Order %s awaiting payment (invoice %s, manual: %t)", order.ID, invoice.ID, manual)
	return &models.CreateOrderResponse{
		OrderID:                    order.ID,
		Status:                     models.OrderStatusProcessing,
		TotalAmount:                order.TotalAmount,
		InvoiceID:                  invoice.ID,
		InvoiceURL:                 invoice.InvoiceURL,
		ReservationExpiresAt:       reservationExpiry,
		ManualProvisioningRequired: manual,
	}, nil
}

// GetReservationStatus reports the caller's hold on an order, including the
// countdown the checkout page renders.
func (s *OrderService) GetReservationStatus(ctx context.Context, orderID, userID string) (*models.ReservationStatusResponse, error) {
	if _, err := s.getOwnedOrder(ctx, orderID, userID); err != nil {
		return nil, err
	}

	res, err := s.reservations.GetStatus(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &models.ReservationStatusResponse{OrderID: orderID, HasReservation: false}, nil
	}

	now := time.Now()
	remaining := int64(time.Until(res.ExpiresAt).Seconds())
	if remaining < 0 {
		remaining = 0
	}

	return &models.ReservationStatusResponse{
		OrderID:             orderID,
		ReservationID:       res.ID,
		Status:              res.Status,
		ReservedConnections: res.ReservedConnections,
		ExpiresAt:           &res.ExpiresAt,
		ExpiresInSeconds:    remaining,
		IsExpired:           res.IsExpired(now),
		HasReservation:      true,
	}, nil
}

// ReleaseReservation is the user abandoning checkout: the hold goes back to
// the pool and an unpaid order is cancelled.
func (s *OrderService) ReleaseReservation(ctx context.Context, orderID, userID string) error {
	if _, err := s.getOwnedOrder(ctx, orderID, userID); err != nil {
		return err
	}

	if _, err := s.reservations.Release(ctx, orderID); err != nil {
		return err
	}

	for _, from := range []string{models.OrderStatusPending, models.OrderStatusProcessing} {
		cancelled, err := s.orders.TransitionStatus(ctx, orderID, from, models.OrderStatusCancelled)
		if err != nil {
			return fmt.Errorf("cancel order %s: %w", orderID, err)
		}
		if cancelled {
			log.Printf("[Order] Order %s cancelled by user", orderID)
			return nil
		}
	}
	return nil
}

func (s *OrderService) getOwnedOrder(ctx context.Context, orderID, userID string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if userID != "" && order.UserID != userID {
		return nil, ErrNotOwner
	}
	return order, nil
}

func (s *OrderService) alertAdmin(ctx context.Context, text string) {
	if err := s.notify.NotifyAdmin(ctx, text); err != nil {
		log.Printf("[Order] Admin notification failed: %v", err)
	}
}
