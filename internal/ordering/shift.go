package ordering

import (
	"fmt"
	"time"

	"tosti/internal/models"
	"tosti/internal/store"
)

func ValidateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end are required", store.ErrBadRequest)
	}
	if !end.After(start) {
		return store.ErrTime
	}
	return nil
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func ValidateLimit(name string, limit *int) error {
	if limit != nil && *limit < 0 {
		return fmt.Errorf("%w: %s must not be negative", store.ErrBadRequest, name)
	}
	return nil
}

// CheckLimitCovers rejects a limit below the number of restricted orders it
// would have to cover.
func CheckLimitCovers(name string, limit *int, placed int) error {
	if limit != nil && *limit < placed {
		return fmt.Errorf("%w: %s %d is below the %d orders already placed", store.ErrQuotaExceeded, name, *limit, placed)
	}
	return nil
}

func CheckFinalizable(orders []models.Order) error {
	for _, order := range orders {
		if !order.Settled() {
			return fmt.Errorf("%w: order %d is not ready and paid", store.ErrState, order.ID)
		}
	}
	return nil
}

// Finalize closes the shift for good. The end is moved back to now when the
// shift is still running.
func Finalize(shift models.Shift, now time.Time) (models.Shift, error) {
	if shift.Finalized {
		return shift, nil
	}
	if !ValidTransition(ActionFinalize, shift.State()) {
		return shift, store.ErrState
	}
	shift.Finalized = true
	shift.CanOrder = false
	if now.After(shift.Start) && now.Before(shift.End) {
		shift.End = now
	}
	return shift, nil
}

func ExtendTime(shift models.Shift, minutes int) (models.Shift, error) {
	if shift.Finalized {
		return shift, store.ErrFinalized
	}
	if minutes <= 0 {
		return shift, fmt.Errorf("%w: minutes must be positive", store.ErrBadRequest)
	}
	shift.End = shift.End.Add(time.Duration(minutes) * time.Minute)
	return shift, nil
}

// ExtendCapacity raises max_orders_total by n. Shifts without a total limit
// stay unlimited.
func ExtendCapacity(shift models.Shift, n int) (models.Shift, error) {
	if shift.Finalized {
		return shift, store.ErrFinalized
	}
	if n <= 0 {
		return shift, fmt.Errorf("%w: capacity must be positive", store.ErrBadRequest)
	}
	if shift.MaxOrdersTotal != nil {
		total := *shift.MaxOrdersTotal + n
		shift.MaxOrdersTotal = &total
	}
	return shift, nil
}

type ShiftChange struct {
	Shift           models.Shift
	Finalize        bool
	WindowChanged   bool
	AssigneesSet    bool
	CanOrderAction  string
	// PerUserLimitSet asks the caller to check the new per-user limit
	// against the busiest user's restricted orders.
	PerUserLimitSet bool
}

// ApplyShiftPatch validates patch against shift and returns the updated
// shift. Finalization is only flagged; the caller must check the orders and
// call Finalize.
func ApplyShiftPatch(shift models.Shift, patch models.ShiftPatch) (ShiftChange, error) {
	change := ShiftChange{Shift: shift}
	if patch.Venue.Set && patch.Venue.Value != shift.VenueID {
		return change, fmt.Errorf("%w: venue", store.ErrImmutable)
	}
	if patch.Finalized.Set && !patch.Finalized.Value && shift.Finalized {
		return change, fmt.Errorf("%w: finalization cannot be undone", store.ErrState)
	}
	if shift.Finalized {
		if shiftPatchChanges(shift, patch) {
			return change, store.ErrFinalized
		}
		return change, nil
	}

	next := shift
	if patch.Start.Set {
		next.Start = patch.Start.Value
	}
	if patch.End.Set {
		next.End = patch.End.Value
	}
	if !next.Start.Equal(shift.Start) || !next.End.Equal(shift.End) {
		if err := ValidateWindow(next.Start, next.End); err != nil {
			return change, err
		}
		change.WindowChanged = true
	}

	if patch.MaxOrdersPerUser.Set {
		if err := ValidateLimit("max_orders_per_user", patch.MaxOrdersPerUser.Value); err != nil {
			return change, err
		}
		next.MaxOrdersPerUser = patch.MaxOrdersPerUser.Value
		change.PerUserLimitSet = true
	}
	if patch.MaxOrdersTotal.Set {
		if err := ValidateLimit("max_orders_total", patch.MaxOrdersTotal.Value); err != nil {
			return change, err
		}
		if err := CheckLimitCovers("max_orders_total", patch.MaxOrdersTotal.Value, shift.RestrictedOrders); err != nil {
			return change, err
		}
		next.MaxOrdersTotal = patch.MaxOrdersTotal.Value
	}

	if patch.CanOrder.Set && patch.CanOrder.Value != shift.CanOrder {
		action := canOrderAction(shift.State(), patch.CanOrder.Value)
		if !ValidTransition(action, shift.State()) {
			return change, store.ErrState
		}
		next.CanOrder = patch.CanOrder.Value
		change.CanOrderAction = action
	}

	if patch.Assignees.Set {
		next.AssigneeIDs = patch.Assignees.Value
		change.AssigneesSet = true
	}

	if patch.Finalized.Set && patch.Finalized.Value {
		change.Finalize = true
	}
	change.Shift = next
	return change, nil
}

func shiftPatchChanges(shift models.Shift, patch models.ShiftPatch) bool {
	switch {
	case patch.Start.Set && !patch.Start.Value.Equal(shift.Start):
		return true
	case patch.End.Set && !patch.End.Value.Equal(shift.End):
		return true
	case patch.CanOrder.Set && patch.CanOrder.Value != shift.CanOrder:
		return true
	case patch.MaxOrdersPerUser.Set && !sameLimit(patch.MaxOrdersPerUser.Value, shift.MaxOrdersPerUser):
		return true
	case patch.MaxOrdersTotal.Set && !sameLimit(patch.MaxOrdersTotal.Value, shift.MaxOrdersTotal):
		return true
	case patch.Assignees.Set && !sameIDs(patch.Assignees.Value, shift.AssigneeIDs):
		return true
	}
	return false
}

func sameLimit(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[int64]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}
