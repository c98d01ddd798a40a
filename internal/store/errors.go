package store

import "errors"

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("permission denied")
	ErrBadRequest      = errors.New("bad request")
	ErrNotFound        = errors.New("not found")
	ErrOverlap         = errors.New("overlaps an existing shift")
	ErrTime            = errors.New("end must be after start")
	ErrState           = errors.New("invalid state transition")
	ErrFinalized       = errors.New("shift is finalized")
	ErrInactive        = errors.New("shift is not active")
	ErrClosed          = errors.New("shift is closed for orders")
	ErrUnavailable     = errors.New("product is not available")
	ErrWrongVenue      = errors.New("product is not sold at this venue")
	ErrQuotaExceeded   = errors.New("order limit reached")
	ErrImmutable       = errors.New("field cannot be changed")
	ErrBlacklisted     = errors.New("user is blacklisted")
	ErrUpstream        = errors.New("upstream service failed")
	ErrInUse           = errors.New("still referenced")
	ErrConflict        = errors.New("conflicts with existing data")
	ErrEmptyCart       = errors.New("cart is empty")
)
