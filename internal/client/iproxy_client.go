package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// IProxyClient calls the upstream proxy-provider API that owns connections
// and grants proxy credentials on them.
type IProxyClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewIProxyClient(baseURL, apiKey string) *IProxyClient {
	return &IProxyClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Connection is an upstream proxy-provider resource. AppBound means the
// phone-side app is attached; a connection needs an active plan before
// credentials can be granted on it.
type Connection struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	AppBound    bool   `json:"app_bound"`
	Locale      string `json:"locale,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// PlanInfo describes the upstream billing plan on a connection.
type PlanInfo struct {
	ConnectionID string `json:"connection_id"`
	PlanID       string `json:"plan_id,omitempty"`
	Active       bool   `json:"active"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

// ProxyAccess is an existing credential grant on a connection.
type ProxyAccess struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	ListenType  string `json:"listen_service"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Login       string `json:"login"`
}

// GrantRequest asks for one credential grant on a connection.
type GrantRequest struct {
	ListenService string `json:"listen_service"` // http or socks5
	Description   string `json:"description,omitempty"`
	ExpiresAt     string `json:"active_to"`
	Login         string `json:"login,omitempty"`
	Password      string `json:"password,omitempty"`
}

// GrantResult is the granted credential.
type GrantResult struct {
	ID       string `json:"id"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Login    string `json:"login"`
	Password string `json:"password"`
	Error    string `json:"error,omitempty"`
}

type createConnectionRequest struct {
	Name   string `json:"name"`
	Locale string `json:"locale"`
}

// RotateResult is the outcome of an IP rotation call.
type RotateResult struct {
	Result bool   `json:"result"`
	OldIP  string `json:"old_ip,omitempty"`
	NewIP  string `json:"new_ip,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ActionLink is a persistent rotation endpoint for a connection.
type ActionLink struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// GetConnections fetches all upstream connections. Always a fresh read:
// upstream state changes outside this service.
func (c *IProxyClient) GetConnections(ctx context.Context) ([]*Connection, error) {
	var result struct {
		Connections []*Connection `json:"connections"`
	}
	if err := c.doJSON(ctx, "GET", c.baseURL+"/connections", nil, &result); err != nil {
		return nil, fmt.Errorf("get connections: %w", err)
	}
	return result.Connections, nil
}

// GetConnectionPlan fetches the billing plan of a connection. The plan
// endpoint is flaky on the provider side, so transient failures are retried
// with exponential backoff across 3 attempts.
func (c *IProxyClient) GetConnectionPlan(ctx context.Context, connectionID string) (*PlanInfo, error) {
	var lastErr error
	backoff := time.Second

	for attempt := 1; attempt <= 3; attempt++ {
		var plan PlanInfo
		err := c.doJSON(ctx, "GET", c.baseURL+"/connections/"+connectionID+"/plan", nil, &plan)
		if err == nil {
			return &plan, nil
		}
		lastErr = err
		log.Printf("[IProxyClient] Plan fetch attempt %d/3 failed for connection %s: %v", attempt, connectionID, err)

		if attempt < 3 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("get connection plan: %w", lastErr)
}

// CreateConnection creates a brand-new upstream connection. This is a
// billable resource; callers should treat it as a last resort.
func (c *IProxyClient) CreateConnection(ctx context.Context, name, locale string) (*Connection, error) {
	log.Printf("[IProxyClient] Creating new connection (name: %s, locale: %s)", name, locale)

	var conn Connection
	err := c.doJSON(ctx, "POST", c.baseURL+"/connections", &createConnectionRequest{Name: name, Locale: locale}, &conn)
	if err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}

	log.Printf("[IProxyClient] Connection created: %s", conn.ID)
	return &conn, nil
}

// ListProxyAccesses returns the existing credential grants on a connection.
func (c *IProxyClient) ListProxyAccesses(ctx context.Context, connectionID string) ([]*ProxyAccess, error) {
	var result struct {
		Proxies []*ProxyAccess `json:"proxies"`
	}
	if err := c.doJSON(ctx, "GET", c.baseURL+"/connections/"+connectionID+"/proxies", nil, &result); err != nil {
		return nil, fmt.Errorf("list proxy accesses: %w", err)
	}
	return result.Proxies, nil
}

// GrantProxyAccess creates one credential grant. Not retried here: the call
// is not idempotent and a blind retry can leak a second billable grant.
func (c *IProxyClient) GrantProxyAccess(ctx context.Context, connectionID string, req *GrantRequest) (*GrantResult, error) {
	log.Printf("[IProxyClient] Granting %s proxy access on connection %s", req.ListenService, connectionID)

	var result GrantResult
	err := c.doJSON(ctx, "POST", c.baseURL+"/connections/"+connectionID+"/proxies", req, &result)
	if err != nil {
		return nil, fmt.Errorf("grant proxy access: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("grant proxy access: %s", result.Error)
	}

	log.Printf("[IProxyClient] Proxy access granted: %s (%s:%d)", result.ID, result.Host, result.Port)
	return &result, nil
}

// DeleteProxyAccess removes a credential grant from a connection.
func (c *IProxyClient) DeleteProxyAccess(ctx context.Context, connectionID, grantID string) error {
	log.Printf("[IProxyClient] Deleting proxy access %s on connection %s", grantID, connectionID)

	httpReq, err := http.NewRequestWithContext(ctx, "DELETE", c.baseURL+"/connections/"+connectionID+"/proxies/"+grantID, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("iproxy returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// RotateIP calls a connection's change URL. The URL is absolute (issued by
// the provider per action link), not relative to the API base.
func (c *IProxyClient) RotateIP(ctx context.Context, changeURL string) (*RotateResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", changeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result RotateResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w (body: %s)", err, string(respBody))
	}

	if resp.StatusCode != http.StatusOK || !result.Result {
		errMsg := result.Error
		if errMsg == "" {
			errMsg = string(respBody)
		}
		return nil, fmt.Errorf("rotation failed (status %d): %s", resp.StatusCode, errMsg)
	}
	return &result, nil
}

// CreateActionLink creates a persistent IP-change link for a connection.
func (c *IProxyClient) CreateActionLink(ctx context.Context, connectionID string) (*ActionLink, error) {
	log.Printf("[IProxyClient] Creating action link for connection %s", connectionID)

	var link ActionLink
	err := c.doJSON(ctx, "POST", c.baseURL+"/connections/"+connectionID+"/action-links", map[string]string{"action": "change_ip"}, &link)
	if err != nil {
		return nil, fmt.Errorf("create action link: %w", err)
	}
	return &link, nil
}

func (c *IProxyClient) doJSON(ctx context.Context, method, url string, payload interface{}, response interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("iproxy returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if response != nil {
		if err := json.Unmarshal(respBody, response); err != nil {
			return fmt.Errorf("decode response: %w (body: %s)", err, string(respBody))
		}
	}
	return nil
}
