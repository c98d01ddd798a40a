package models

import "time"

type Player struct {
	ID          int64   `json:"id"`
	Slug        string  `json:"slug"`
	DisplayName string  `json:"display_name"`
	VenueID     *int64  `json:"venue_id,omitempty"`
	Credentials []byte  `json:"-"`
	DeviceID    *string `json:"-"`
}

type Track struct {
	ID        int64    `json:"id"`
	BackendID string   `json:"backend_id"`
	Name      string   `json:"name"`
	Artists   []string `json:"artists"`
}

type TrackStub struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Popularity int      `json:"-"`
}

type QueueItem struct {
	ID            int64     `json:"id"`
	PlayerID      int64     `json:"player_id"`
	Track         Track     `json:"track"`
	AddedAt       time.Time `json:"added_at"`
	RequestedByID *int64    `json:"requested_by_id,omitempty"`
}

type PermissionTriple struct {
	CanRequest         bool `json:"can_request"`
	CanControl         bool `json:"can_control"`
	CanRequestPlaylist bool `json:"can_request_playlist"`
}

func (t PermissionTriple) Allows(code string) bool {
	switch code {
	case PermCanRequest:
		return t.CanRequest
	case PermCanControl:
		return t.CanControl
	case PermCanRequestPlaylist:
		return t.CanRequestPlaylist
	default:
		return false
	}
}

type ControlEvent struct {
	ID               int64            `json:"id"`
	ReservationID    int64            `json:"reservation_id"`
	RespectBlacklist bool             `json:"respect_blacklist"`
	JoinCode         string           `json:"join_code,omitempty"`
	Association      PermissionTriple `json:"association"`
	Selected         PermissionTriple `json:"selected"`
	Everyone         PermissionTriple `json:"everyone"`
}

// Overlay is an active ControlEvent seen from one user's point of view.
type Overlay struct {
	Event         ControlEvent
	AssociationID *int64
	Whitelisted   bool
	Admin         bool
}
