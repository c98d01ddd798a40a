package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type ProductCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID                      int64           `json:"id"`
	Name                    string          `json:"name"`
	CategoryID              *int64          `json:"category_id,omitempty"`
	Available               bool            `json:"available"`
	Orderable               bool            `json:"orderable"`
	IgnoreShiftRestrictions bool            `json:"ignore_shift_restrictions"`
	MaxAllowedPerShift      *int            `json:"max_allowed_per_shift"`
	CurrentPrice            decimal.Decimal `json:"current_price"`
	Barcode                 *string         `json:"barcode,omitempty"`
	VenueIDs                []int64         `json:"venue_ids"`
}

func (p Product) SoldAt(orderVenueID int64) bool {
	for _, id := range p.VenueIDs {
		if id == orderVenueID {
			return true
		}
	}
	return false
}

// Allowance is a remaining order count; Unlimited stands for "no limit".
type Allowance struct {
	Unlimited bool
	Remaining int
}

func Unlimited() Allowance {
	return Allowance{Unlimited: true}
}

func Limited(n int) Allowance {
	if n < 0 {
		n = 0
	}
	return Allowance{Remaining: n}
}

// Min returns the tighter of a and b.
func (a Allowance) Min(b Allowance) Allowance {
	switch {
	case a.Unlimited:
		return b
	case b.Unlimited:
		return a
	case b.Remaining < a.Remaining:
		return b
	default:
		return a
	}
}

func (a Allowance) MarshalJSON() ([]byte, error) {
	if a.Unlimited {
		return []byte("null"), nil
	}
	return json.Marshal(a.Remaining)
}
