package service

import (
	"context"

	"github.com/wenwu/saas-platform/proxy-rental-service/internal/client"
)

// UpstreamAPI is the slice of the proxy-provider client the services use.
// Declared here so tests can substitute a fake provider.
type UpstreamAPI interface {
	GetConnections(ctx context.Context) ([]*client.Connection, error)
	GetConnectionPlan(ctx context.Context, connectionID string) (*client.PlanInfo, error)
	CreateConnection(ctx context.Context, name, locale string) (*client.Connection, error)
	ListProxyAccesses(ctx context.Context, connectionID string) ([]*client.ProxyAccess, error)
	GrantProxyAccess(ctx context.Context, connectionID string, req *client.GrantRequest) (*client.GrantResult, error)
	DeleteProxyAccess(ctx context.Context, connectionID, grantID string) error
	RotateIP(ctx context.Context, changeURL string) (*client.RotateResult, error)
	CreateActionLink(ctx context.Context, connectionID string) (*client.ActionLink, error)
}

// PaymentAPI creates invoices at checkout.
type PaymentAPI interface {
	CreateInvoice(ctx context.Context, req *client.InvoiceRequest) (*client.Invoice, error)
}

// Notifier sends best-effort user and admin notifications.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, text string) error
	NotifyAdmin(ctx context.Context, text string) error
}
