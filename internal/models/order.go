package models

import "time"

// Order status lifecycle: pending -> processing -> active,
// with cancelled/expired as terminal off-ramps.
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusActive     = "active"
	OrderStatusCancelled  = "cancelled"
	OrderStatusExpired    = "expired"
)

// OrderMetadata is stored as JSONB on the orders row.
type OrderMetadata struct {
	ConnectionID               *string    `json:"connection_id,omitempty"`
	IPChangeEnabled            *bool      `json:"ip_change_enabled,omitempty"`
	IPChangeIntervalMinutes    *int       `json:"ip_change_interval_minutes,omitempty"`
	ManualProvisioningRequired *bool      `json:"manual_provisioning_required,omitempty"`
	ManuallyActivatedBy        *string    `json:"manually_activated_by,omitempty"`
	ManuallyActivatedAt        *time.Time `json:"manually_activated_at,omitempty"`
	PaymentInvoiceID           *string    `json:"payment_invoice_id,omitempty"`
	PaymentInvoiceURL          *string    `json:"payment_invoice_url,omitempty"`
}

type Order struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	UserEmail   string        `json:"user_email"`
	PlanID      string        `json:"plan_id"`
	Quantity    int           `json:"quantity"`
	Status      string        `json:"status"`
	Metadata    OrderMetadata `json:"metadata"`
	TotalAmount float64       `json:"total_amount"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
