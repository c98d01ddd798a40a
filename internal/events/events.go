// Package events defines the typed records written to the outbox alongside
// state changes and fanned out to realtime subscribers.
package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"tosti/internal/models"
)

const (
	TypeOrderPlaced          = "order.placed"
	TypeOrderUpdated         = "order.updated"
	TypeShiftFinalized       = "shift.finalized"
	TypeReservationSubmitted = "reservation.submitted"
	TypeYiviVerified         = "user.age_verified"
)

type Event interface {
	Type() string
	// Topics lists the realtime topics that receive the event.
	Topics() []string
}

type OrderPlaced struct {
	Order models.Order `json:"order"`
}

type OrderUpdated struct {
	Order   models.Order `json:"order"`
	Deleted bool         `json:"deleted"`
}

type ShiftFinalized struct {
	ShiftID     int64     `json:"shift_id"`
	VenueID     int64     `json:"venue_id"`
	FinalizedAt time.Time `json:"finalized_at"`
	LedgerKey   string    `json:"ledger_key"`
}

type ReservationSubmitted struct {
	ReservationID int64     `json:"reservation_id"`
	SubmittedAt   time.Time `json:"submitted_at"`
	LedgerKey     string    `json:"ledger_key"`
}

type YiviVerified struct {
	UserID     int64     `json:"user_id"`
	VerifiedAt time.Time `json:"verified_at"`
}

func (OrderPlaced) Type() string          { return TypeOrderPlaced }
func (OrderUpdated) Type() string         { return TypeOrderUpdated }
func (ShiftFinalized) Type() string       { return TypeShiftFinalized }
func (ReservationSubmitted) Type() string { return TypeReservationSubmitted }
func (YiviVerified) Type() string         { return TypeYiviVerified }

func (e OrderPlaced) Topics() []string  { return orderTopics(e.Order) }
func (e OrderUpdated) Topics() []string { return orderTopics(e.Order) }

func (e ShiftFinalized) Topics() []string {
	return []string{ShiftTopic(e.ShiftID)}
}

func (ReservationSubmitted) Topics() []string { return nil }

func (e YiviVerified) Topics() []string {
	return []string{UserTopic(e.UserID)}
}

func orderTopics(order models.Order) []string {
	topics := []string{ShiftTopic(order.ShiftID)}
	if order.UserID != nil {
		topics = append(topics, UserTopic(*order.UserID))
	}
	return topics
}

func ShiftTopic(shiftID int64) string {
	return "shift:" + strconv.FormatInt(shiftID, 10)
}

func UserTopic(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

func Encode(event Event) (string, []byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return "", nil, err
	}
	return event.Type(), payload, nil
}

func Decode(eventType string, payload []byte) (Event, error) {
	var event Event
	switch eventType {
	case TypeOrderPlaced:
		event = &OrderPlaced{}
	case TypeOrderUpdated:
		event = &OrderUpdated{}
	case TypeShiftFinalized:
		event = &ShiftFinalized{}
	case TypeReservationSubmitted:
		event = &ReservationSubmitted{}
	case TypeYiviVerified:
		event = &YiviVerified{}
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	if err := json.Unmarshal(payload, event); err != nil {
		return nil, err
	}
	return event, nil
}
