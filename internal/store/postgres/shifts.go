package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tosti/internal/events"
	"tosti/internal/models"
	"tosti/internal/ordering"
	"tosti/internal/store"
)

const shiftColumns = `s.id, s.order_venue_id, s.start_at, s.end_at, s.can_order, s.finalized, s.max_orders_per_user, s.max_orders_total,
	ARRAY(SELECT sa.user_id FROM shift_assignees sa WHERE sa.shift_id = s.id ORDER BY sa.user_id),
	(SELECT count(*) FROM orders o JOIN products p ON p.id = o.product_id WHERE o.shift_id = s.id AND NOT p.ignore_shift_restrictions),
	(SELECT count(*) FROM orders o WHERE o.shift_id = s.id)`

func scanShift(row scanner) (models.Shift, error) {
	var shift models.Shift
	var perUser, total sql.NullInt32
	if err := row.Scan(&shift.ID, &shift.VenueID, &shift.Start, &shift.End, &shift.CanOrder, &shift.Finalized, &perUser, &total, &shift.AssigneeIDs, &shift.RestrictedOrders, &shift.OrderCount); err != nil {
		return models.Shift{}, err
	}
	shift.MaxOrdersPerUser = nullIntPtr(perUser)
	shift.MaxOrdersTotal = nullIntPtr(total)
	return shift, nil
}

func getShift(ctx context.Context, q querier, shiftID int64) (models.Shift, error) {
	shift, err := scanShift(q.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shifts s WHERE s.id = $1`, shiftID))
	if err != nil {
		return models.Shift{}, notFound(err)
	}
	return shift, nil
}

// lockShift takes the row lock that serializes every quota decision on the
// shift and returns the shift as seen under that lock.
func lockShift(ctx context.Context, tx pgx.Tx, shiftID int64) (models.Shift, error) {
	var id int64
	if err := tx.QueryRow(ctx, `SELECT id FROM shifts WHERE id = $1 FOR UPDATE`, shiftID).Scan(&id); err != nil {
		return models.Shift{}, notFound(err)
	}
	return getShift(ctx, tx, id)
}

// checkOverlap locks the order venue so that concurrent writers cannot both
// pass the check.
func checkOverlap(ctx context.Context, tx pgx.Tx, venueID, shiftID int64, start, end time.Time) error {
	var id int64
	if err := tx.QueryRow(ctx, `SELECT id FROM order_venues WHERE id = $1 FOR UPDATE`, venueID).Scan(&id); err != nil {
		return notFound(err)
	}
	var overlapping bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM shifts
			WHERE order_venue_id = $1 AND id <> $2 AND start_at < $4 AND end_at > $3
		)
	`, venueID, shiftID, start, end).Scan(&overlapping); err != nil {
		return err
	}
	if overlapping {
		return store.ErrOverlap
	}
	return nil
}

func checkAssignees(ctx context.Context, q querier, venueID int64, userIDs []int64) error {
	for _, userID := range userIDs {
		user, err := scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
		if err != nil {
			if err = notFound(err); err == store.ErrNotFound {
				return fmt.Errorf("%w: user %d does not exist", store.ErrBadRequest, userID)
			}
			return err
		}
		ok, err := hasObjectPermission(ctx, q, user, models.PermManageShiftInVenue, models.ObjectOrderVenue, venueID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: user %d cannot manage shifts in this venue", store.ErrBadRequest, userID)
		}
	}
	return nil
}

func setAssignees(ctx context.Context, tx pgx.Tx, shiftID int64, userIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM shift_assignees WHERE shift_id = $1`, shiftID); err != nil {
		return err
	}
	for _, userID := range userIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO shift_assignees (shift_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, shiftID, userID); err != nil {
			return err
		}
	}
	return nil
}

func writeShift(ctx context.Context, tx pgx.Tx, shift models.Shift) error {
	_, err := tx.Exec(ctx, `
		UPDATE shifts SET start_at = $2, end_at = $3, can_order = $4, finalized = $5,
			max_orders_per_user = $6, max_orders_total = $7
		WHERE id = $1
	`, shift.ID, shift.Start.UTC(), shift.End.UTC(), shift.CanOrder, shift.Finalized, shift.MaxOrdersPerUser, shift.MaxOrdersTotal)
	return mapWriteError(err, store.ErrNotFound)
}

func (s *Store) CreateShift(ctx context.Context, input store.CreateShiftInput) (models.Shift, error) {
	if err := ordering.ValidateWindow(input.Start, input.End); err != nil {
		return models.Shift{}, err
	}
	if err := ordering.ValidateLimit("max_orders_per_user", input.MaxOrdersPerUser); err != nil {
		return models.Shift{}, err
	}
	if err := ordering.ValidateLimit("max_orders_total", input.MaxOrdersTotal); err != nil {
		return models.Shift{}, err
	}
	if err := requireObject(ctx, s.pool, input.Caller, models.PermManageShiftInVenue, models.ObjectOrderVenue, input.VenueID); err != nil {
		return models.Shift{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Shift{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err = checkOverlap(ctx, tx, input.VenueID, 0, input.Start.UTC(), input.End.UTC()); err != nil {
		return models.Shift{}, err
	}
	if err = checkAssignees(ctx, tx, input.VenueID, input.AssigneeIDs); err != nil {
		return models.Shift{}, err
	}

	var id int64
	if err = tx.QueryRow(ctx, `
		INSERT INTO shifts (order_venue_id, start_at, end_at, max_orders_per_user, max_orders_total)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, input.VenueID, input.Start.UTC(), input.End.UTC(), input.MaxOrdersPerUser, input.MaxOrdersTotal).Scan(&id); err != nil {
		return models.Shift{}, mapWriteError(err, store.ErrNotFound)
	}
	if err = setAssignees(ctx, tx, id, input.AssigneeIDs); err != nil {
		return models.Shift{}, err
	}
	shift, err := getShift(ctx, tx, id)
	if err != nil {
		return models.Shift{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Shift{}, err
	}
	return shift, nil
}

func (s *Store) GetShift(ctx context.Context, shiftID int64) (models.Shift, error) {
	return getShift(ctx, s.pool, shiftID)
}

func (s *Store) ListShifts(ctx context.Context, filter store.ShiftFilter) ([]models.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts s WHERE true`
	var args []interface{}
	if filter.VenueID != 0 {
		args = append(args, filter.VenueID)
		query += fmt.Sprintf(" AND s.order_venue_id = $%d", len(args))
	}
	if filter.ActiveOnly {
		at := filter.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		args = append(args, at.UTC())
		query += fmt.Sprintf(" AND s.start_at <= $%d AND s.end_at > $%d", len(args), len(args))
	}
	query += " ORDER BY s.start_at ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shifts []models.Shift
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}
	return shifts, rows.Err()
}

// busiestUserOrders is the largest restricted order count of a single user
// on the shift.
func busiestUserOrders(ctx context.Context, q querier, shiftID int64) (int, error) {
	var busiest int
	err := q.QueryRow(ctx, `
		SELECT COALESCE(MAX(n), 0) FROM (
			SELECT count(*) AS n
			FROM orders o JOIN products p ON p.id = o.product_id
			WHERE o.shift_id = $1 AND o.user_id IS NOT NULL AND NOT p.ignore_shift_restrictions
			GROUP BY o.user_id
		) per_user
	`, shiftID).Scan(&busiest)
	return busiest, err
}

func (s *Store) UpdateShift(ctx context.Context, input store.UpdateShiftInput) (models.Shift, error) {
	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Shift{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	shift, err := lockShift(ctx, tx, input.ShiftID)
	if err != nil {
		return models.Shift{}, err
	}
	if err = requireObject(ctx, tx, input.Caller, models.PermManageShiftInVenue, models.ObjectOrderVenue, shift.VenueID); err != nil {
		return models.Shift{}, err
	}

	change, err := ordering.ApplyShiftPatch(shift, input.Patch)
	if err != nil {
		return models.Shift{}, err
	}
	next := change.Shift
	if change.PerUserLimitSet {
		busiest, err := busiestUserOrders(ctx, tx, shift.ID)
		if err != nil {
			return models.Shift{}, err
		}
		if err = ordering.CheckLimitCovers("max_orders_per_user", next.MaxOrdersPerUser, busiest); err != nil {
			return models.Shift{}, err
		}
	}
	if change.WindowChanged {
		if err = checkOverlap(ctx, tx, shift.VenueID, shift.ID, next.Start.UTC(), next.End.UTC()); err != nil {
			return models.Shift{}, err
		}
	}
	if change.AssigneesSet {
		if err = checkAssignees(ctx, tx, shift.VenueID, next.AssigneeIDs); err != nil {
			return models.Shift{}, err
		}
		if err = setAssignees(ctx, tx, shift.ID, next.AssigneeIDs); err != nil {
			return models.Shift{}, err
		}
	}
	if change.Finalize {
		if next, err = finalizeShift(ctx, tx, next, at); err != nil {
			return models.Shift{}, err
		}
	}
	if err = writeShift(ctx, tx, next); err != nil {
		return models.Shift{}, err
	}

	updated, err := getShift(ctx, tx, shift.ID)
	if err != nil {
		return models.Shift{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Shift{}, err
	}
	return updated, nil
}

func (s *Store) FinalizeShift(ctx context.Context, input store.ShiftActionInput) (models.Shift, error) {
	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Shift{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	shift, err := lockShift(ctx, tx, input.ShiftID)
	if err != nil {
		return models.Shift{}, err
	}
	if err = requireObject(ctx, tx, input.Caller, models.PermManageShiftInVenue, models.ObjectOrderVenue, shift.VenueID); err != nil {
		return models.Shift{}, err
	}
	if shift.Finalized {
		return shift, nil
	}

	if shift, err = finalizeShift(ctx, tx, shift, at); err != nil {
		return models.Shift{}, err
	}
	if err = writeShift(ctx, tx, shift); err != nil {
		return models.Shift{}, err
	}
	finalized, err := getShift(ctx, tx, shift.ID)
	if err != nil {
		return models.Shift{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Shift{}, err
	}
	return finalized, nil
}

// finalizeShift checks that every order is settled, applies the transition
// and queues the ledger export. The caller persists the returned shift.
func finalizeShift(ctx context.Context, tx pgx.Tx, shift models.Shift, at time.Time) (models.Shift, error) {
	orders, err := listShiftOrders(ctx, tx, shift.ID, nil)
	if err != nil {
		return models.Shift{}, err
	}
	if err := ordering.CheckFinalizable(orders); err != nil {
		return models.Shift{}, err
	}
	finalized, err := ordering.Finalize(shift, at.UTC())
	if err != nil {
		return models.Shift{}, err
	}

	key, err := ensureLedgerKey(ctx, tx, &shift.ID, nil, at)
	if err != nil {
		return models.Shift{}, err
	}
	event := events.ShiftFinalized{ShiftID: shift.ID, VenueID: shift.VenueID, FinalizedAt: at.UTC(), LedgerKey: key}
	if err := insertEvent(ctx, tx, event, at); err != nil {
		return models.Shift{}, err
	}
	return finalized, nil
}

func (s *Store) ExtendShiftTime(ctx context.Context, input store.ShiftActionInput) (models.Shift, error) {
	return s.adjustShift(ctx, input, func(shift models.Shift) (models.Shift, error) {
		return ordering.ExtendTime(shift, input.Minutes)
	}, true)
}

func (s *Store) ExtendShiftCapacity(ctx context.Context, input store.ShiftActionInput) (models.Shift, error) {
	return s.adjustShift(ctx, input, func(shift models.Shift) (models.Shift, error) {
		return ordering.ExtendCapacity(shift, input.Capacity)
	}, false)
}

func (s *Store) adjustShift(ctx context.Context, input store.ShiftActionInput, adjust func(models.Shift) (models.Shift, error), windowChanges bool) (models.Shift, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Shift{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	shift, err := lockShift(ctx, tx, input.ShiftID)
	if err != nil {
		return models.Shift{}, err
	}
	if err = requireObject(ctx, tx, input.Caller, models.PermManageShiftInVenue, models.ObjectOrderVenue, shift.VenueID); err != nil {
		return models.Shift{}, err
	}
	next, err := adjust(shift)
	if err != nil {
		return models.Shift{}, err
	}
	if windowChanges {
		if err = checkOverlap(ctx, tx, shift.VenueID, shift.ID, next.Start.UTC(), next.End.UTC()); err != nil {
			return models.Shift{}, err
		}
	}
	if err = writeShift(ctx, tx, next); err != nil {
		return models.Shift{}, err
	}
	updated, err := getShift(ctx, tx, shift.ID)
	if err != nil {
		return models.Shift{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Shift{}, err
	}
	return updated, nil
}

func (s *Store) AssignUser(ctx context.Context, input store.ShiftActionInput) (models.Shift, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Shift{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	shift, err := lockShift(ctx, tx, input.ShiftID)
	if err != nil {
		return models.Shift{}, err
	}
	if err = requireObject(ctx, tx, input.Caller, models.PermManageShiftInVenue, models.ObjectOrderVenue, shift.VenueID); err != nil {
		return models.Shift{}, err
	}
	if shift.Finalized {
		return models.Shift{}, store.ErrFinalized
	}
	if err = checkAssignees(ctx, tx, shift.VenueID, []int64{input.UserID}); err != nil {
		return models.Shift{}, err
	}
	if _, err = tx.Exec(ctx, `
		INSERT INTO shift_assignees (shift_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, shift.ID, input.UserID); err != nil {
		return models.Shift{}, err
	}
	updated, err := getShift(ctx, tx, shift.ID)
	if err != nil {
		return models.Shift{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Shift{}, err
	}
	return updated, nil
}
