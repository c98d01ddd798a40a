package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderType string

const (
	OrderTypeOrdered OrderType = "ordered"
	OrderTypeScanned OrderType = "scanned"
)

func (t OrderType) Valid() bool {
	return t == OrderTypeOrdered || t == OrderTypeScanned
}

type Order struct {
	ID           int64           `json:"id"`
	ShiftID      int64           `json:"shift_id"`
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name,omitempty"`
	UserID       *int64          `json:"user_id"`
	Type         OrderType       `json:"type"`
	OrderPrice   decimal.Decimal `json:"order_price"`
	Ready        bool            `json:"ready"`
	ReadyAt      *time.Time      `json:"ready_at"`
	Paid         bool            `json:"paid"`
	PaidAt       *time.Time      `json:"paid_at"`
	Deprioritize bool            `json:"deprioritize"`
	Prioritize   bool            `json:"prioritize"`
	Created      time.Time       `json:"created"`
}

// Settled reports whether the order no longer blocks finalization.
func (o Order) Settled() bool {
	return (o.Ready && o.Paid) || o.Type == OrderTypeScanned
}
