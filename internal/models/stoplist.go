package models

import "time"

// StoplistEntry marks an upstream connection as administratively excluded
// from allocation. Membership adjusts the quota ledger by -1, removal by +1.
type StoplistEntry struct {
	ConnectionID string    `json:"connection_id"`
	Reason       string    `json:"reason,omitempty"`
	AddedBy      string    `json:"added_by"`
	CreatedAt    time.Time `json:"created_at"`
}
