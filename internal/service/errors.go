package service

import "errors"

// Sentinel errors crossing the service boundary. HTTP handlers translate
// these to status codes; anything else surfaces as a 500.
var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrProxyNotFound         = errors.New("proxy not found")
	ErrPlanNotFound          = errors.New("plan not found")
	ErrInvalidState          = errors.New("order is not in an activatable state")
	ErrMissingConnection     = errors.New("order has no connection assigned")
	ErrInsufficientQuota     = errors.New("insufficient connection quota")
	ErrNoConnectionAvailable = errors.New("no upstream connection available")
	ErrPlanNotActive         = errors.New("upstream connection has no active plan")
	ErrNoRotationURL         = errors.New("proxy has no rotation URL configured")
	ErrConflict              = errors.New("conflicting state")
	ErrNotOwner              = errors.New("resource belongs to another user")
)
