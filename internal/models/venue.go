package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Venue struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	Active        bool   `json:"active"`
	Color         string `json:"color"`
	CanBeReserved bool   `json:"can_be_reserved"`
}

type VenueReservation struct {
	ID            int64     `json:"id"`
	VenueID       int64     `json:"venue_id"`
	Title         string    `json:"title"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	AssociationID *int64    `json:"association_id,omitempty"`
	CreatedByID   *int64    `json:"created_by_id,omitempty"`
	Accepted      *bool     `json:"accepted"`
	JoinCode      string    `json:"join_code,omitempty"`
	Comments      string    `json:"comments,omitempty"`
	UsersAccess   []int64   `json:"users_access,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r VenueReservation) IsAccepted() bool {
	return r.Accepted != nil && *r.Accepted
}

// ActiveAt reports whether the reservation is accepted and at lies in [Start, End).
func (r VenueReservation) ActiveAt(at time.Time) bool {
	return r.IsAccepted() && !at.Before(r.Start) && at.Before(r.End)
}

type OrderVenue struct {
	ID      int64 `json:"id"`
	VenueID int64 `json:"venue_id"`
	Venue   Venue `json:"venue"`
}

type BorrelReservation struct {
	ID            int64        `json:"id"`
	Title         string       `json:"title"`
	AssociationID *int64       `json:"association_id,omitempty"`
	CreatedByID   *int64       `json:"created_by_id,omitempty"`
	Start         time.Time    `json:"start"`
	End           time.Time    `json:"end"`
	SubmittedAt   *time.Time   `json:"submitted_at,omitempty"`
	Items         []BorrelItem `json:"items"`
	CreatedAt     time.Time    `json:"created_at"`
}

func (r BorrelReservation) Submitted() bool {
	return r.SubmittedAt != nil
}

type BorrelItem struct {
	ID             int64           `json:"id"`
	Description    string          `json:"description"`
	AmountReserved int             `json:"amount_reserved"`
	AmountUsed     *int            `json:"amount_used,omitempty"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}
