package ordering

import (
	"fmt"
	"time"

	"tosti/internal/models"
	"tosti/internal/store"
)

type Request struct {
	Caller       models.User
	UserID       *int64
	Type         models.OrderType
	Paid         bool
	Ready        bool
	Deprioritize bool
	Prioritize   bool
}

// Coerce resets the flags a caller without manage permission may not set.
// Ordered orders always end up with a user.
func Coerce(req Request, canManage bool) Request {
	if req.Type == "" {
		req.Type = models.OrderTypeOrdered
	}
	if !canManage {
		req.Type = models.OrderTypeOrdered
		req.UserID = nil
		req.Paid = false
		req.Ready = false
		req.Prioritize = false
	}
	if req.UserID == nil && req.Type == models.OrderTypeOrdered {
		callerID := req.Caller.ID
		req.UserID = &callerID
	}
	return req
}

func CheckShift(shift models.Shift, now time.Time) error {
	switch {
	case shift.Finalized:
		return store.ErrFinalized
	case !shift.IsActive(now):
		return store.ErrInactive
	case !shift.CanOrder:
		return store.ErrClosed
	}
	return nil
}

func CheckProduct(shift models.Shift, product models.Product) error {
	if !product.Available {
		return fmt.Errorf("%w: %s", store.ErrUnavailable, product.Name)
	}
	if !product.SoldAt(shift.VenueID) {
		return fmt.Errorf("%w: %s", store.ErrWrongVenue, product.Name)
	}
	return nil
}

// Tally holds the order counts quota decisions are made against. Admit
// updates it so that a cart is checked cumulatively.
type Tally struct {
	ShiftRestricted int
	UserRestricted  int
	UserProduct     map[int64]int
}

func (t *Tally) Admit(shift models.Shift, product models.Product, hasUser bool) error {
	exempt := product.IgnoreShiftRestrictions
	if !exempt {
		if shift.MaxOrdersTotal != nil && t.ShiftRestricted+1 > *shift.MaxOrdersTotal {
			return fmt.Errorf("%w: shift accepts %d orders", store.ErrQuotaExceeded, *shift.MaxOrdersTotal)
		}
		if hasUser && shift.MaxOrdersPerUser != nil && t.UserRestricted+1 > *shift.MaxOrdersPerUser {
			return fmt.Errorf("%w: %d orders per user", store.ErrQuotaExceeded, *shift.MaxOrdersPerUser)
		}
	}
	if hasUser && product.MaxAllowedPerShift != nil && t.UserProduct[product.ID]+1 > *product.MaxAllowedPerShift {
		return fmt.Errorf("%w: %d of %s per shift", store.ErrQuotaExceeded, *product.MaxAllowedPerShift, product.Name)
	}

	if !exempt {
		t.ShiftRestricted++
		if hasUser {
			t.UserRestricted++
		}
	}
	if hasUser {
		if t.UserProduct == nil {
			t.UserProduct = make(map[int64]int)
		}
		t.UserProduct[product.ID]++
	}
	return nil
}

// Allowance is how many more of product the user behind t may order.
func (t Tally) Allowance(shift models.Shift, product models.Product) models.Allowance {
	allowance := models.Unlimited()
	if product.MaxAllowedPerShift != nil {
		allowance = allowance.Min(models.Limited(*product.MaxAllowedPerShift - t.UserProduct[product.ID]))
	}
	if product.IgnoreShiftRestrictions {
		return allowance
	}
	if shift.MaxOrdersPerUser != nil {
		allowance = allowance.Min(models.Limited(*shift.MaxOrdersPerUser - t.UserRestricted))
	}
	if shift.MaxOrdersTotal != nil {
		allowance = allowance.Min(models.Limited(*shift.MaxOrdersTotal - t.ShiftRestricted))
	}
	return allowance
}

func ShouldAutoClose(shift models.Shift, restricted int) bool {
	return shift.CanOrder && shift.MaxOrdersTotal != nil && restricted >= *shift.MaxOrdersTotal
}

// Stamp returns now when flag is set.
func Stamp(flag bool, now time.Time) *time.Time {
	if !flag {
		return nil
	}
	stamped := now
	return &stamped
}
