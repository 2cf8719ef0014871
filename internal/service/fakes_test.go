package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wenwu/saas-platform/proxy-rental-service/internal/client"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/models"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/repository"
)

// In-memory fakes for the repository and client interfaces. They mirror the
// SQL semantics closely enough for service-level tests: conditional updates,
// the one-active-reservation-per-order guard, and atomic credit-on-release.

type fakeQuotaStore struct {
	mu        sync.Mutex
	available int
}

func (f *fakeQuotaStore) GetAvailable(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available, nil
}

func (f *fakeQuotaStore) Deduct(ctx context.Context, n int) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.available < n {
		return f.available, false, nil
	}
	f.available -= n
	return f.available, true, nil
}

func (f *fakeQuotaStore) Credit(ctx context.Context, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available += n
	return nil
}

func (f *fakeQuotaStore) DecrementFloor(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.available > 0 {
		f.available--
	}
	return nil
}

type fakeReservationStore struct {
	mu           sync.Mutex
	reservations []*models.Reservation
	quota        *fakeQuotaStore
}

func (f *fakeReservationStore) CreateActive(ctx context.Context, r *models.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.reservations {
		if existing.OrderID == r.OrderID && !existing.IsTerminal() {
			return repository.ErrActiveReservationExists
		}
	}
	cp := *r
	f.reservations = append(f.reservations, &cp)
	return nil
}

func (f *fakeReservationStore) GetLatestByOrderID(ctx context.Context, orderID string) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.reservations) - 1; i >= 0; i-- {
		if f.reservations[i].OrderID == orderID {
			cp := *f.reservations[i]
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeReservationStore) Confirm(ctx context.Context, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reservations {
		if r.OrderID == orderID && r.Status == models.ReservationStatusReserved {
			now := time.Now()
			r.Status = models.ReservationStatusConfirmed
			r.ConfirmedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReservationStore) ReleaseAndCredit(ctx context.Context, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reservations {
		if r.OrderID == orderID && r.Status == models.ReservationStatusReserved {
			now := time.Now()
			r.Status = models.ReservationStatusReleased
			r.ReleasedAt = &now
			if f.quota != nil {
				f.quota.mu.Lock()
				f.quota.available += r.ReservedConnections
				f.quota.mu.Unlock()
			}
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReservationStore) ExpireStaleAndCredit(ctx context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, r := range f.reservations {
		if r.Status == models.ReservationStatusReserved && now.After(r.ExpiresAt) {
			r.Status = models.ReservationStatusExpired
			if f.quota != nil {
				f.quota.mu.Lock()
				f.quota.available += r.ReservedConnections
				f.quota.mu.Unlock()
			}
			count++
		}
	}
	return count, nil
}

type fakeOrderStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string]*models.Order)}
}

func (f *fakeOrderStore) Create(ctx context.Context, o *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *o
	f.orders[o.ID] = &cp
	return nil
}

func (f *fakeOrderStore) GetByID(ctx context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrderStore) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (f *fakeOrderStore) UpdateMetadata(ctx context.Context, id string, md models.OrderMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	o.Metadata = md
	return nil
}

func (f *fakeOrderStore) SetActive(ctx context.Context, id string, md models.OrderMetadata, expiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.Status != models.OrderStatusProcessing {
		return false, nil
	}
	o.Status = models.OrderStatusActive
	o.Metadata = md
	o.ExpiresAt = &expiresAt
	return true, nil
}

type fakeProxyStore struct {
	mu      sync.Mutex
	proxies map[string]*models.ProxyRecord
}

func newFakeProxyStore() *fakeProxyStore {
	return &fakeProxyStore{proxies: make(map[string]*models.ProxyRecord)}
}

func (f *fakeProxyStore) Create(ctx context.Context, p *models.ProxyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.proxies[p.ID] = &cp
	return nil
}

func (f *fakeProxyStore) GetByID(ctx context.Context, id string) (*models.ProxyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proxies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProxyStore) GetByUserID(ctx context.Context, userID string) ([]*models.ProxyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ProxyRecord
	for _, p := range f.proxies {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeProxyStore) GetByOrderID(ctx context.Context, orderID string) ([]*models.ProxyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ProxyRecord
	for _, p := range f.proxies {
		if p.OrderID == orderID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeProxyStore) GetLiveByConnectionID(ctx context.Context, connectionID string, now time.Time) ([]*models.ProxyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ProxyRecord
	for _, p := range f.proxies {
		if p.IproxyConnectionID == connectionID && p.Status != models.ProxyStatusExpired && p.ExpiresAt.After(now) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeProxyStore) UpdateRotationState(ctx context.Context, id, status string, lastIP *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proxies[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status = status
	if lastIP != nil {
		p.LastIP = lastIP
	}
	return nil
}

func (f *fakeProxyStore) SetRotationLink(ctx context.Context, id, changeURL, actionLinkID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proxies[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.IproxyChangeURL = &changeURL
	p.IproxyActionLinkID = &actionLinkID
	return nil
}

type fakeRotationLogStore struct {
	mu   sync.Mutex
	logs []*models.RotationLog
}

func (f *fakeRotationLogStore) Create(ctx context.Context, l *models.RotationLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *l
	f.logs = append(f.logs, &cp)
	return nil
}

func (f *fakeRotationLogStore) GetByProxyID(ctx context.Context, proxyID string) ([]*models.RotationLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RotationLog
	for _, l := range f.logs {
		if l.ProxyID == proxyID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeStoplistStore struct {
	mu      sync.Mutex
	entries map[string]*models.StoplistEntry
}

func newFakeStoplistStore() *fakeStoplistStore {
	return &fakeStoplistStore{entries: make(map[string]*models.StoplistEntry)}
}

func (f *fakeStoplistStore) Add(ctx context.Context, e *models.StoplistEntry) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.entries[e.ConnectionID]; exists {
		return false, nil
	}
	cp := *e
	f.entries[e.ConnectionID] = &cp
	return true, nil
}

func (f *fakeStoplistStore) Remove(ctx context.Context, connectionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.entries[connectionID]; !exists {
		return false, nil
	}
	delete(f.entries, connectionID)
	return true, nil
}

func (f *fakeStoplistStore) List(ctx context.Context) ([]*models.StoplistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.StoplistEntry
	for _, e := range f.entries {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStoplistStore) ConnectionIDs(ctx context.Context) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool, len(f.entries))
	for id := range f.entries {
		out[id] = true
	}
	return out, nil
}

// fakeUpstream is a scriptable provider: fixtures per connection plus
// counters so tests can assert which calls happened.
type fakeUpstream struct {
	mu          sync.Mutex
	connections []*client.Connection
	plans       map[string]*client.PlanInfo
	grants      map[string][]*client.ProxyAccess
	grantErr    error
	grantCalls  int
	failOnCall  int
	grantCount  int
	deleted     []string
	created     int
	nextHost    string
	nextPort    int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		plans:    make(map[string]*client.PlanInfo),
		grants:   make(map[string][]*client.ProxyAccess),
		nextHost: "proxy.example.net",
		nextPort: 30000,
	}
}

func (f *fakeUpstream) GetConnections(ctx context.Context) ([]*client.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connections, nil
}

func (f *fakeUpstream) GetConnectionPlan(ctx context.Context, connectionID string) (*client.PlanInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if plan, ok := f.plans[connectionID]; ok {
		return plan, nil
	}
	return &client.PlanInfo{ConnectionID: connectionID, Active: false}, nil
}

func (f *fakeUpstream) CreateConnection(ctx context.Context, name, locale string) (*client.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	conn := &client.Connection{ID: fmt.Sprintf("new-conn-%d", f.created), Name: name, Locale: locale}
	f.connections = append(f.connections, conn)
	return conn, nil
}

func (f *fakeUpstream) ListProxyAccesses(ctx context.Context, connectionID string) ([]*client.ProxyAccess, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grants[connectionID], nil
}

func (f *fakeUpstream) GrantProxyAccess(ctx context.Context, connectionID string, req *client.GrantRequest) (*client.GrantResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grantCalls++
	if f.grantErr != nil {
		return nil, f.grantErr
	}
	if f.failOnCall > 0 && f.grantCalls == f.failOnCall {
		return nil, fmt.Errorf("upstream rejected grant %d", f.grantCalls)
	}
	f.grantCount++
	login := req.Login
	password := req.Password
	if login == "" {
		login = fmt.Sprintf("user%d", f.grantCount)
		password = fmt.Sprintf("pass%d", f.grantCount)
	}
	f.nextPort++
	return &client.GrantResult{
		ID:       fmt.Sprintf("grant-%d", f.grantCount),
		Host:     f.nextHost,
		Port:     f.nextPort,
		Login:    login,
		Password: password,
	}, nil
}

func (f *fakeUpstream) DeleteProxyAccess(ctx context.Context, connectionID, grantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, connectionID+"/"+grantID)
	return nil
}

func (f *fakeUpstream) RotateIP(ctx context.Context, changeURL string) (*client.RotateResult, error) {
	return &client.RotateResult{Result: true, OldIP: "1.1.1.1", NewIP: "2.2.2.2"}, nil
}

func (f *fakeUpstream) CreateActionLink(ctx context.Context, connectionID string) (*client.ActionLink, error) {
	return &client.ActionLink{ID: "link-1", URL: "https://rotate.example.net/" + connectionID}, nil
}

type fakeNotifier struct {
	mu          sync.Mutex
	emails      []string
	adminAlerts []string
}

func (f *fakeNotifier) SendEmail(ctx context.Context, to, subject, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails = append(f.emails, subject)
	return nil
}

func (f *fakeNotifier) NotifyAdmin(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adminAlerts = append(f.adminAlerts, text)
	return nil
}

type fakePayment struct {
	mu       sync.Mutex
	invoices int
	fail     bool
}

func (f *fakePayment) CreateInvoice(ctx context.Context, req *client.InvoiceRequest) (*client.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, fmt.Errorf("payment processor unavailable")
	}
	f.invoices++
	return &client.Invoice{
		ID:         fmt.Sprintf("inv-%d", f.invoices),
		InvoiceURL: fmt.Sprintf("https://pay.example.net/inv-%d", f.invoices),
		OrderID:    req.OrderID,
	}, nil
}
