package models

import "time"

// Proxy record statuses.
const (
	ProxyStatusActive   = "active"
	ProxyStatusRotating = "rotating"
	ProxyStatusError    = "error"
	ProxyStatusExpired  = "expired"
)

// Rotation types recorded in the rotation log.
const (
	RotationTypeManual    = "manual"
	RotationTypeScheduled = "scheduled"
)

// ProxyRecord is a granted upstream credential. Password is stored encrypted
// (AES-256-GCM, "iv:authTag:ciphertext" hex) and decrypted only at the read
// boundary.
type ProxyRecord struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	OrderID            string     `json:"order_id"`
	IproxyConnectionID string     `json:"iproxy_connection_id"`
	Host               string     `json:"host"`
	PortHTTP           int        `json:"port_http"`
	PortSocks5         int        `json:"port_socks5"`
	Username           string     `json:"username"`
	Password           string     `json:"-"`
	Status             string     `json:"status"`
	LastIP             *string    `json:"last_ip,omitempty"`
	IproxyChangeURL    *string    `json:"iproxy_change_url,omitempty"`
	IproxyActionLinkID *string    `json:"iproxy_action_link_id,omitempty"`
	ExpiresAt          time.Time  `json:"expires_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
}

// RotationLog is an immutable record of one IP rotation attempt,
// written on success and failure alike.
type RotationLog struct {
	ID           string    `json:"id"`
	ProxyID      string    `json:"proxy_id"`
	UserID       string    `json:"user_id"`
	OldIP        *string   `json:"old_ip,omitempty"`
	NewIP        *string   `json:"new_ip,omitempty"`
	RotationType string    `json:"rotation_type"`
	Status       string    `json:"status"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
