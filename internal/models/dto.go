package models

import "time"

// ==================== Order / checkout DTOs ====================

type CreateOrderRequest struct {
	PlanID                  string `json:"plan_id" binding:"required"`
	Quantity                int    `json:"quantity" binding:"required,min=1,max=10"`
	IPChangeEnabled         bool   `json:"ip_change_enabled"`
	IPChangeIntervalMinutes int    `json:"ip_change_interval_minutes"`
}

type CreateOrderResponse struct {
	OrderID                    string     `json:"order_id"`
	Status                     string     `json:"status"`
	TotalAmount                float64    `json:"total_amount"`
	InvoiceID                  string     `json:"invoice_id,omitempty"`
	InvoiceURL                 string     `json:"invoice_url,omitempty"`
	ReservationExpiresAt       *time.Time `json:"reservation_expires_at,omitempty"`
	ManualProvisioningRequired bool       `json:"manual_provisioning_required"`
	Message                    string     `json:"message,omitempty"`
}

type ReservationStatusResponse struct {
	OrderID             string     `json:"order_id"`
	ReservationID       string     `json:"reservation_id,omitempty"`
	Status              string     `json:"status,omitempty"`
	ReservedConnections int        `json:"reserved_connections,omitempty"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty"`
	ExpiresInSeconds    int64      `json:"expires_in_seconds"`
	IsExpired           bool       `json:"is_expired"`
	HasReservation      bool       `json:"has_reservation"`
}

// ==================== Activation DTOs ====================

type ActivateOrderRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

type ActivateOrderResponse struct {
	Success  bool     `json:"success"`
	OrderID  string   `json:"order_id"`
	ProxyIDs []string `json:"proxy_ids,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// ==================== Quota DTOs ====================

type AvailabilityResult struct {
	Available      bool `json:"available"`
	AvailableCount int  `json:"available_count"`
}

type DeductResult struct {
	Success             bool `json:"success"`
	DeductedConnections int  `json:"deducted_connections"`
	RemainingQuota      int  `json:"remaining_quota"`
}

// ==================== Proxy DTOs ====================

// ProxyView is the dashboard-facing shape of a proxy record. Password is the
// decrypted plaintext; this is the only place it leaves the service.
type ProxyView struct {
	ID              string    `json:"id"`
	Host            string    `json:"host"`
	PortHTTP        int       `json:"port_http"`
	PortSocks5      int       `json:"port_socks5"`
	Username        string    `json:"username"`
	Password        string    `json:"password"`
	Status          string    `json:"status"`
	LastIP          *string   `json:"last_ip,omitempty"`
	RotationEnabled bool      `json:"rotation_enabled"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type RotateIPResponse struct {
	Success bool   `json:"success"`
	OldIP   string `json:"old_ip,omitempty"`
	NewIP   string `json:"new_ip,omitempty"`
	Message string `json:"message,omitempty"`
}

type SetupRotationResponse struct {
	Success      bool   `json:"success"`
	ChangeURL    string `json:"change_url,omitempty"`
	ActionLinkID string `json:"action_link_id,omitempty"`
	Message      string `json:"message,omitempty"`
}

// ==================== Stoplist DTOs ====================

type StoplistAddRequest struct {
	ConnectionID string `json:"connection_id" binding:"required"`
	Reason       string `json:"reason"`
}

type StoplistRemoveRequest struct {
	ConnectionID string `json:"connection_id" binding:"required"`
}

// ==================== Payment webhook ====================

// PaymentWebhookPayload is the processor's IPN body. order_id carries our
// order id; payment_status drives the activation / cancellation path.
type PaymentWebhookPayload struct {
	PaymentID     int64   `json:"payment_id"`
	InvoiceID     int64   `json:"invoice_id"`
	OrderID       string  `json:"order_id"`
	PaymentStatus string  `json:"payment_status"`
	PriceAmount   float64 `json:"price_amount"`
	PriceCurrency string  `json:"price_currency"`
	PayCurrency   string  `json:"pay_currency"`
}

// ==================== Cron ====================

type CleanupResponse struct {
	Released int    `json:"released"`
	Message  string `json:"message"`
}
