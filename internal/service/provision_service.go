package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/client"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/crypto"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/models"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/repository"
)

// ProvisionService grants upstream proxy credentials for an order, persists
// the encrypted record, and fires best-effort notifications.
type ProvisionService struct {
	upstream     UpstreamAPI
	proxies      repository.ProxyStore
	rotationLogs repository.RotationLogStore
	notify       Notifier
	encryptor    *crypto.Encryptor
}

func NewProvisionService(
	upstream UpstreamAPI,
	proxies repository.ProxyStore,
	rotationLogs repository.RotationLogStore,
	notify Notifier,
	encryptor *crypto.Encryptor,
) *ProvisionService {
	return &ProvisionService{
		upstream:     upstream,
		proxies:      proxies,
		rotationLogs: rotationLogs,
		notify:       notify,
		encryptor:    encryptor,
	}
}

type ProvisionRequest struct {
	OrderID                 string
	UserID                  string
	UserEmail               string
	ConnectionID            string
	ExpiresAt               time.Time
	PlanName                string
	IPChangeEnabled         bool
	IPChangeIntervalMinutes int
}

type ProvisionResult struct {
	ProxyID       string
	HTTPGrantID   string
	Socks5GrantID string
}

// ProvisionProxyAccess runs the provisioning sequence. Each step is a
// distinct failure point:
//  1. verify the connection has an active upstream plan (fail fast)
//  2. grant HTTP and SOCKS5 credentials tied to the order's expiry
//  3. encrypt the password before it touches the database
//  4. persist the proxy record; on failure, best-effort delete the grants
//  5. notify the user; failures here never fail the provisioning
func (s *ProvisionService) ProvisionProxyAccess(ctx context.Context, req *ProvisionRequest) (*ProvisionResult, error) {
	log.Printf("[Provision] Starting provisioning for order=%s connection=%s", req.OrderID, req.ConnectionID)

	plan, err := s.upstream.GetConnectionPlan(ctx, req.ConnectionID)
	if err != nil {
		return nil, fmt.Errorf("verify plan: %w", err)
	}
	if !plan.Active {
		return nil, ErrPlanNotActive
	}

	expires := req.ExpiresAt.UTC().Format(time.RFC3339)

	httpGrant, err := s.upstream.GrantProxyAccess(ctx, req.ConnectionID, &client.GrantRequest{
		ListenService: "http",
		Description:   "order " + req.OrderID,
		ExpiresAt:     expires,
	})
	if err != nil {
		return nil, fmt.Errorf("grant http access: %w", err)
	}

	// Reuse the HTTP credential pair so the user gets one login for both
	// listeners.
	socksGrant, err := s.upstream.GrantProxyAccess(ctx, req.ConnectionID, &client.GrantRequest{
		ListenService: "socks5",
		Description:   "order " + req.OrderID,
		ExpiresAt:     expires,
		Login:         httpGrant.Login,
		Password:      httpGrant.Password,
	})
	if err != nil {
		s.cleanupGrant(req.ConnectionID, httpGrant.ID)
		return nil, fmt.Errorf("grant socks5 access: %w", err)
	}

	encrypted, err := s.encryptor.Encrypt(httpGrant.Password)
	if err != nil {
		s.cleanupGrant(req.ConnectionID, httpGrant.ID)
		s.cleanupGrant(req.ConnectionID, socksGrant.ID)
		return nil, fmt.Errorf("encrypt password: %w", err)
	}

	record := &models.ProxyRecord{
		ID:                 uuid.New().String(),
		UserID:             req.UserID,
		OrderID:            req.OrderID,
		IproxyConnectionID: req.ConnectionID,
		Host:               httpGrant.Host,
		PortHTTP:           httpGrant.Port,
		PortSocks5:         socksGrant.Port,
		Username:           httpGrant.Login,
		Password:           encrypted,
		Status:             models.ProxyStatusActive,
		ExpiresAt:          req.ExpiresAt,
	}

	if err := s.proxies.Create(ctx, record); err != nil {
		// Compensate so the paid upstream grants do not leak; never let the
		// cleanup error mask the persistence error.
		s.cleanupGrant(req.ConnectionID, httpGrant.ID)
		s.cleanupGrant(req.ConnectionID, socksGrant.ID)
		return nil, fmt.Errorf("persist proxy record: %w", err)
	}

	if req.IPChangeEnabled {
		if err := s.setupRotationLink(ctx, record.ID, req.ConnectionID); err != nil {
			log.Printf("[Provision] Rotation link setup failed for proxy %s: %v", record.ID, err)
		}
	}

	s.sendCredentials(ctx, req, record, httpGrant.Password)

	log.Printf("[Provision] Provisioned proxy %s for order %s", record.ID, req.OrderID)
	return &ProvisionResult{
		ProxyID:       record.ID,
		HTTPGrantID:   httpGrant.ID,
		Socks5GrantID: socksGrant.ID,
	}, nil
}

// RotateIP triggers an IP rotation and always appends a rotation log row,
// success or failure. The proxy's cached status is restored even if the
// upstream call or log write fails.
func (s *ProvisionService) RotateIP(ctx context.Context, proxyID, userID, rotationType string) (*models.RotateIPResponse, error) {
	p, err := s.getOwnedProxy(ctx, proxyID, userID)
	if err != nil {
		return nil, err
	}
	if p.IproxyChangeURL == nil || *p.IproxyChangeURL == "" {
		return nil, ErrNoRotationURL
	}

	if err := s.proxies.UpdateRotationState(ctx, proxyID, models.ProxyStatusRotating, nil); err != nil {
		log.Printf("[Provision] Failed to mark proxy %s rotating: %v", proxyID, err)
	}

	finalStatus := models.ProxyStatusError
	var newIP *string
	defer func() {
		// Defensive reset: the proxy must never stay stuck in "rotating".
		if err := s.proxies.UpdateRotationState(ctx, proxyID, finalStatus, newIP); err != nil {
			log.Printf("[Provision] Failed to reset proxy %s status: %v", proxyID, err)
		}
	}()

	result, rotateErr := s.upstream.RotateIP(ctx, *p.IproxyChangeURL)

	entry := &models.RotationLog{
		ID:           uuid.New().String(),
		ProxyID:      proxyID,
		UserID:       p.UserID,
		RotationType: rotationType,
	}

	if rotateErr != nil {
		msg := rotateErr.Error()
		entry.Status = "failed"
		entry.ErrorMessage = &msg
		if err := s.rotationLogs.Create(ctx, entry); err != nil {
			log.Printf("[Provision] Failed to write rotation log for proxy %s: %v", proxyID, err)
		}
		return nil, fmt.Errorf("rotate ip: %w", rotateErr)
	}

	entry.Status = "success"
	if result.OldIP != "" {
		entry.OldIP = &result.OldIP
	}
	if result.NewIP != "" {
		entry.NewIP = &result.NewIP
		newIP = &result.NewIP
	}
	if err := s.rotationLogs.Create(ctx, entry); err != nil {
		log.Printf("[Provision] Failed to write rotation log for proxy %s: %v", proxyID, err)
	}

	finalStatus = models.ProxyStatusActive

	log.Printf("[Provision] Rotated IP for proxy %s (%s -> %s)", proxyID, result.OldIP, result.NewIP)
	return &models.RotateIPResponse{
		Success: true,
		OldIP:   result.OldIP,
		NewIP:   result.NewIP,
	}, nil
}

// SetupRotation creates the upstream action link for manual IP changes.
func (s *ProvisionService) SetupRotation(ctx context.Context, proxyID, userID string) (*models.SetupRotationResponse, error) {
	p, err := s.getOwnedProxy(ctx, proxyID, userID)
	if err != nil {
		return nil, err
	}
	if p.IproxyChangeURL != nil && *p.IproxyChangeURL != "" {
		return nil, ErrConflict
	}
	if p.IproxyConnectionID == "" {
		return nil, ErrMissingConnection
	}

	link, err := s.upstream.CreateActionLink(ctx, p.IproxyConnectionID)
	if err != nil {
		return nil, fmt.Errorf("create action link: %w", err)
	}

	if err := s.proxies.SetRotationLink(ctx, proxyID, link.URL, link.ID); err != nil {
		return nil, fmt.Errorf("store rotation link: %w", err)
	}

	return &models.SetupRotationResponse{
		Success:      true,
		ChangeURL:    link.URL,
		ActionLinkID: link.ID,
	}, nil
}

// ListUserProxies returns the caller's proxies with passwords decrypted.
// This is the read boundary; plaintext exists nowhere else.
func (s *ProvisionService) ListUserProxies(ctx context.Context, userID string) ([]*models.ProxyView, error) {
	records, err := s.proxies.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list proxies: %w", err)
	}

	views := make([]*models.ProxyView, 0, len(records))
	for _, p := range records {
		password, err := s.encryptor.Decrypt(p.Password)
		if err != nil {
			log.Printf("[Provision] Failed to decrypt password for proxy %s: %v", p.ID, err)
			continue
		}
		views = append(views, &models.ProxyView{
			ID:              p.ID,
			Host:            p.Host,
			PortHTTP:        p.PortHTTP,
			PortSocks5:      p.PortSocks5,
			Username:        p.Username,
			Password:        password,
			Status:          p.Status,
			LastIP:          p.LastIP,
			RotationEnabled: p.IproxyChangeURL != nil && *p.IproxyChangeURL != "",
			ExpiresAt:       p.ExpiresAt,
		})
	}
	return views, nil
}

func (s *ProvisionService) getOwnedProxy(ctx context.Context, proxyID, userID string) (*models.ProxyRecord, error) {
	p, err := s.proxies.GetByID(ctx, proxyID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, ErrProxyNotFound
		}
		return nil, fmt.Errorf("get proxy: %w", err)
	}
	if userID != "" && p.UserID != userID {
		return nil, ErrNotOwner
	}
	return p, nil
}

func (s *ProvisionService) setupRotationLink(ctx context.Context, proxyID, connectionID string) error {
	link, err := s.upstream.CreateActionLink(ctx, connectionID)
	if err != nil {
		return err
	}
	return s.proxies.SetRotationLink(ctx, proxyID, link.URL, link.ID)
}

func (s *ProvisionService) cleanupGrant(connectionID, grantID string) {
	// Detached context: compensation should survive the request being gone.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.upstream.DeleteProxyAccess(ctx, connectionID, grantID); err != nil {
		log.Printf("[Provision] Cleanup of grant %s on connection %s failed: %v", grantID, connectionID, err)
	}
}

func (s *ProvisionService) sendCredentials(ctx context.Context, req *ProvisionRequest, record *models.ProxyRecord, password string) {
	if req.UserEmail == "" {
		return
	}

	text := fmt.Sprintf(
		"Your %s is ready.\n\nHost: %s\nHTTP port: %d\nSOCKS5 port: %d\nUsername: %s\nPassword: %s\nValid until: %s\n",
		req.PlanName, record.Host, record.PortHTTP, record.PortSocks5,
		record.Username, password, req.ExpiresAt.Format("2006-01-02 15:04 MST"),
	)

	if err := s.notify.SendEmail(ctx, req.UserEmail, "Your proxy is ready", text); err != nil {
		log.Printf("[Provision] Failed to send credentials email for order %s: %v", req.OrderID, err)
	}
}
