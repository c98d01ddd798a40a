package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	LedgerKindShift  = "shift"
	LedgerKindBorrel = "borrel"
)

type LedgerExportKey struct {
	ID                  int64     `json:"id"`
	ShiftID             *int64    `json:"shift_id,omitempty"`
	BorrelReservationID *int64    `json:"borrel_reservation_id,omitempty"`
	Key                 string    `json:"key"`
	CreatedAt           time.Time `json:"created_at"`
}

type LedgerExport struct {
	ID        int64     `json:"id"`
	KeyID     int64     `json:"key_id"`
	Succeeded bool      `json:"succeeded"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type LedgerDocument struct {
	Key         string       `json:"key"`
	Kind        string       `json:"kind"`
	ReferenceID int64        `json:"reference_id"`
	Title       string       `json:"title"`
	Date        time.Time    `json:"date"`
	Lines       []LedgerLine `json:"lines"`
}

type LedgerLine struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}
