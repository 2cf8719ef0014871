package models

import "time"

// Reservation statuses. reserved/confirmed are non-terminal; at most one
// non-terminal reservation may exist per order.
const (
	ReservationStatusReserved  = "reserved"
	ReservationStatusConfirmed = "confirmed"
	ReservationStatusReleased  = "released"
	ReservationStatusExpired   = "expired"
)

type Reservation struct {
	ID                  string     `json:"id"`
	OrderID             string     `json:"order_id"`
	UserID              string     `json:"user_id"`
	ReservedConnections int        `json:"reserved_connections"`
	Status              string     `json:"status"`
	ReservedAt          time.Time  `json:"reserved_at"`
	ExpiresAt           time.Time  `json:"expires_at"`
	ConfirmedAt         *time.Time `json:"confirmed_at,omitempty"`
	ReleasedAt          *time.Time `json:"released_at,omitempty"`
}

// IsExpired reports whether a still-reserved hold is past its TTL.
// The sweeper has not necessarily run yet; status endpoints must report
// expiry based on wall clock, not on the stored status.
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationStatusReserved && now.After(r.ExpiresAt)
}

// IsTerminal reports whether the reservation can no longer change state.
func (r *Reservation) IsTerminal() bool {
	return r.Status == ReservationStatusReleased || r.Status == ReservationStatusExpired
}
