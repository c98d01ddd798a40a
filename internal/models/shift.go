package models

import "time"

type ShiftState string

const (
	ShiftDraft     ShiftState = "draft"
	ShiftOpen      ShiftState = "open"
	ShiftClosed    ShiftState = "closed"
	ShiftFinalized ShiftState = "finalized"
)

type Shift struct {
	ID               int64     `json:"id"`
	VenueID          int64     `json:"venue_id"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	CanOrder         bool      `json:"can_order"`
	Finalized        bool      `json:"finalized"`
	MaxOrdersPerUser *int      `json:"max_orders_per_user"`
	MaxOrdersTotal   *int      `json:"max_orders_total"`
	AssigneeIDs      []int64   `json:"assignee_ids"`
	RestrictedOrders int       `json:"restricted_orders"`
	OrderCount       int       `json:"order_count"`
}

func (s Shift) IsActive(now time.Time) bool {
	return !now.Before(s.Start) && now.Before(s.End)
}

// Orderable reports whether new orders are accepted at now.
func (s Shift) Orderable(now time.Time) bool {
	return s.IsActive(now) && s.CanOrder && !s.Finalized
}

// State derives the lifecycle state. A closed shift without any orders is
// indistinguishable from a draft one.
func (s Shift) State() ShiftState {
	switch {
	case s.Finalized:
		return ShiftFinalized
	case s.CanOrder:
		return ShiftOpen
	case s.OrderCount == 0:
		return ShiftDraft
	default:
		return ShiftClosed
	}
}
