package ordering

import (
	"fmt"
	"time"

	"tosti/internal/models"
	"tosti/internal/store"
)

// ApplyOrderPatch validates patch for caller and returns the updated order.
// canManage is the caller's manage permission on the shift's venue.
func ApplyOrderPatch(order models.Order, shift models.Shift, caller models.User, canManage bool, patch models.OrderPatch, now time.Time) (models.Order, error) {
	if shift.Finalized {
		return order, store.ErrFinalized
	}
	if err := checkImmutable(order, patch); err != nil {
		return order, err
	}

	next := order
	if patch.Deprioritize.Set && patch.Deprioritize.Value != order.Deprioritize {
		if patch.Deprioritize.Value {
			if !canManage && !caller.SameAs(order.UserID) {
				return order, store.ErrForbidden
			}
		} else if !canManage {
			return order, store.ErrForbidden
		}
		next.Deprioritize = patch.Deprioritize.Value
	}

	if patch.Prioritize.Set && patch.Prioritize.Value != order.Prioritize {
		if !canManage {
			return order, store.ErrForbidden
		}
		next.Prioritize = patch.Prioritize.Value
	}

	if patch.Paid.Set && patch.Paid.Value != order.Paid {
		if !canManage {
			return order, store.ErrForbidden
		}
		next.Paid = patch.Paid.Value
		next.PaidAt = Stamp(next.Paid, now)
	}

	if patch.Ready.Set && patch.Ready.Value != order.Ready {
		if !canManage {
			return order, store.ErrForbidden
		}
		next.Ready = patch.Ready.Value
		next.ReadyAt = Stamp(next.Ready, now)
	}
	return next, nil
}

func checkImmutable(order models.Order, patch models.OrderPatch) error {
	switch {
	case patch.Product.Set && patch.Product.Value != order.ProductID:
		return fmt.Errorf("%w: product", store.ErrImmutable)
	case patch.Type.Set && patch.Type.Value != order.Type:
		return fmt.Errorf("%w: type", store.ErrImmutable)
	case patch.Shift.Set && patch.Shift.Value != order.ShiftID:
		return fmt.Errorf("%w: shift", store.ErrImmutable)
	case patch.User.Set && !sameID(patch.User.Value, order.UserID):
		return fmt.Errorf("%w: user", store.ErrImmutable)
	case patch.OrderPrice.Set && !patch.OrderPrice.Value.Equal(order.OrderPrice):
		return fmt.Errorf("%w: order_price", store.ErrImmutable)
	case patch.Created.Set && !patch.Created.Value.Equal(order.Created):
		return fmt.Errorf("%w: created", store.ErrImmutable)
	}
	return nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
