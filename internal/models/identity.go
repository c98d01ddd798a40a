package models

import "time"

const MaxUsernameLength = 150

type User struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"display_name"`
	AssociationID *int64     `json:"association_id,omitempty"`
	IsStaff       bool       `json:"is_staff"`
	IsSuperuser   bool       `json:"is_superuser"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	AgeVerifiedAt *time.Time `json:"age_verified_at,omitempty"`
	DateJoined    time.Time  `json:"date_joined"`
}

// Authenticated reports whether u refers to a stored user rather than an
// anonymous caller.
func (u User) Authenticated() bool {
	return u.ID != 0
}

func (u User) SameAs(id *int64) bool {
	return id != nil && u.ID != 0 && *id == u.ID
}

type Association struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Group struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	AutoJoinNewUsers  bool   `json:"auto_join_new_users"`
	GrantsStaffOnJoin bool   `json:"grants_staff_on_join"`
}

const (
	PermOrderInVenue       = "orders.can_order_in_venue"
	PermManageShiftInVenue = "orders.can_manage_shift_in_venue"
	PermChangeProduct      = "orders.change_product"
	PermChangeVenue        = "venues.change_venue"
	PermChangeReservation  = "venues.change_reservation"
	PermCanRequest         = "thaliedje.can_request"
	PermCanControl         = "thaliedje.can_control"
	PermCanRequestPlaylist = "thaliedje.can_request_playlist"
	PermChangeUser         = "users.change_user"
)

const (
	ObjectOrderVenue = "order_venue"
	ObjectPlayer     = "player"
)

// Blacklist subsystems share one table keyed by (user, subsystem).
const (
	SubsystemOrders = "orders"
	SubsystemMusic  = "music"
)
