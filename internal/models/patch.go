package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Patch is a PATCH field: Set is true when the key was present in the
// payload, even when its value was null.
type Patch[T any] struct {
	Set   bool
	Value T
}

func Some[T any](value T) Patch[T] {
	return Patch[T]{Set: true, Value: value}
}

func (p *Patch[T]) UnmarshalJSON(data []byte) error {
	p.Set = true
	return json.Unmarshal(data, &p.Value)
}

type ShiftPatch struct {
	Venue            Patch[int64]     `json:"venue"`
	Start            Patch[time.Time] `json:"start"`
	End              Patch[time.Time] `json:"end"`
	CanOrder         Patch[bool]      `json:"can_order"`
	Finalized        Patch[bool]      `json:"finalized"`
	MaxOrdersPerUser Patch[*int]      `json:"max_orders_per_user"`
	MaxOrdersTotal   Patch[*int]      `json:"max_orders_total"`
	Assignees        Patch[[]int64]   `json:"assignees"`
}

type OrderPatch struct {
	Deprioritize Patch[bool]            `json:"deprioritize"`
	Prioritize   Patch[bool]            `json:"prioritize"`
	Paid         Patch[bool]            `json:"paid"`
	Ready        Patch[bool]            `json:"ready"`
	Product      Patch[int64]           `json:"product"`
	Type         Patch[OrderType]       `json:"type"`
	Shift        Patch[int64]           `json:"shift"`
	User         Patch[*int64]          `json:"user"`
	OrderPrice   Patch[decimal.Decimal] `json:"order_price"`
	Created      Patch[time.Time]       `json:"created"`
}
