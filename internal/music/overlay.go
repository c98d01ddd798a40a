package music

import "tosti/internal/models"

// OverlayAllows reports whether an active control event grants code to the
// user. Reservation admins pass every rule.
func OverlayAllows(overlay models.Overlay, user models.User, code string) bool {
	if overlay.Admin {
		return true
	}
	event := overlay.Event
	if event.Everyone.Allows(code) {
		return true
	}
	if event.Association.Allows(code) && user.AssociationID != nil && overlay.AssociationID != nil &&
		*user.AssociationID == *overlay.AssociationID {
		return true
	}
	return overlay.Whitelisted && event.Selected.Allows(code)
}

// BypassesBlacklist reports whether the overlay lifts the music blacklist.
func BypassesBlacklist(overlay models.Overlay, active bool) bool {
	return active && !overlay.Event.RespectBlacklist
}
