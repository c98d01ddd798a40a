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

const orderColumns = `o.id, o.shift_id, o.product_id, p.name, o.user_id, o.type, o.order_price, o.ready, o.ready_at, o.paid, o.paid_at, o.deprioritize, o.prioritize, o.created`

func scanOrder(row scanner) (models.Order, error) {
	var order models.Order
	var userID sql.NullInt64
	var readyAt, paidAt sql.NullTime
	var orderType string
	if err := row.Scan(&order.ID, &order.ShiftID, &order.ProductID, &order.ProductName, &userID, &orderType, &order.OrderPrice, &order.Ready, &readyAt, &order.Paid, &paidAt, &order.Deprioritize, &order.Prioritize, &order.Created); err != nil {
		return models.Order{}, err
	}
	order.Type = models.OrderType(orderType)
	order.UserID = nullInt64Ptr(userID)
	order.ReadyAt = nullTimePtr(readyAt)
	order.PaidAt = nullTimePtr(paidAt)
	return order, nil
}

// listShiftOrders returns orders in creation order, optionally restricted to
// one user.
func listShiftOrders(ctx context.Context, q querier, shiftID int64, userID *int64) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o JOIN products p ON p.id = o.product_id WHERE o.shift_id = $1`
	args := []interface{}{shiftID}
	if userID != nil {
		query += " AND o.user_id = $2"
		args = append(args, *userID)
	}
	query += " ORDER BY o.created ASC, o.id ASC"

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func getOrder(ctx context.Context, q querier, shiftID, orderID int64, forUpdate bool) (models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o JOIN products p ON p.id = o.product_id WHERE o.id = $1 AND o.shift_id = $2`
	if forUpdate {
		query += " FOR UPDATE OF o"
	}
	order, err := scanOrder(q.QueryRow(ctx, query, orderID, shiftID))
	if err != nil {
		return models.Order{}, notFound(err)
	}
	return order, nil
}

// loadTally counts the orders quota decisions depend on. Inside a
// transaction it sees the transaction's own inserts.
func loadTally(ctx context.Context, q querier, shift models.Shift, userID *int64) (ordering.Tally, error) {
	tally := ordering.Tally{ShiftRestricted: shift.RestrictedOrders, UserProduct: make(map[int64]int)}
	if userID == nil {
		return tally, nil
	}
	rows, err := q.Query(ctx, `
		SELECT o.product_id, count(*), count(*) FILTER (WHERE NOT p.ignore_shift_restrictions)
		FROM orders o JOIN products p ON p.id = o.product_id
		WHERE o.shift_id = $1 AND o.user_id = $2
		GROUP BY o.product_id
	`, shift.ID, *userID)
	if err != nil {
		return ordering.Tally{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var productID int64
		var total, restricted int
		if err := rows.Scan(&productID, &total, &restricted); err != nil {
			return ordering.Tally{}, err
		}
		tally.UserProduct[productID] = total
		tally.UserRestricted += restricted
	}
	return tally, rows.Err()
}

type placement struct {
	request       ordering.Request
	shiftID       int64
	productIDs    []int64
	barcode       string
	requireManage bool
	at            time.Time
}

func (s *Store) PlaceOrder(ctx context.Context, input store.PlaceOrderInput) (models.Order, error) {
	orders, err := s.place(ctx, placement{
		request: ordering.Request{
			Caller:       input.Caller,
			UserID:       input.UserID,
			Type:         input.Type,
			Paid:         input.Paid,
			Ready:        input.Ready,
			Deprioritize: input.Deprioritize,
			Prioritize:   input.Prioritize,
		},
		shiftID:    input.ShiftID,
		productIDs: []int64{input.ProductID},
		at:         input.At,
	})
	if err != nil {
		return models.Order{}, err
	}
	return orders[0], nil
}

// PlaceCart admits every item or none of them.
func (s *Store) PlaceCart(ctx context.Context, input store.PlaceCartInput) ([]models.Order, error) {
	if len(input.ProductIDs) == 0 {
		return nil, store.ErrEmptyCart
	}
	return s.place(ctx, placement{
		request:    ordering.Request{Caller: input.Caller},
		shiftID:    input.ShiftID,
		productIDs: input.ProductIDs,
		at:         input.At,
	})
}

// PlaceScanned records a sale at the counter: paid, ready and without a user.
func (s *Store) PlaceScanned(ctx context.Context, input store.ScanInput) (models.Order, error) {
	orders, err := s.place(ctx, placement{
		request: ordering.Request{
			Caller: input.Caller,
			Type:   models.OrderTypeScanned,
			Paid:   true,
			Ready:  true,
		},
		shiftID:       input.ShiftID,
		barcode:       input.Barcode,
		requireManage: true,
		at:            input.At,
	})
	if err != nil {
		return models.Order{}, err
	}
	return orders[0], nil
}

func (s *Store) place(ctx context.Context, p placement) ([]models.Order, error) {
	caller := p.request.Caller
	if !caller.Authenticated() {
		return nil, store.ErrUnauthenticated
	}
	at := p.at
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	shift, err := lockShift(ctx, tx, p.shiftID)
	if err != nil {
		return nil, err
	}
	canManage, err := hasObjectPermission(ctx, tx, caller, models.PermManageShiftInVenue, models.ObjectOrderVenue, shift.VenueID)
	if err != nil {
		return nil, err
	}
	canOrder, err := hasObjectPermission(ctx, tx, caller, models.PermOrderInVenue, models.ObjectOrderVenue, shift.VenueID)
	if err != nil {
		return nil, err
	}
	if !(canOrder || canManage) || (p.requireManage && !canManage) {
		return nil, store.ErrForbidden
	}
	req := ordering.Coerce(p.request, canManage)

	blacklisted, err := isBlacklisted(ctx, tx, caller.ID, models.SubsystemOrders)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		return nil, store.ErrBlacklisted
	}
	if err = ordering.CheckShift(shift, at); err != nil {
		return nil, err
	}

	var products []models.Product
	if p.barcode != "" {
		product, err := productByBarcode(ctx, tx, p.barcode)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	} else {
		cache := make(map[int64]models.Product)
		for _, productID := range p.productIDs {
			product, ok := cache[productID]
			if !ok {
				if product, err = getProduct(ctx, tx, productID); err != nil {
					return nil, err
				}
				cache[productID] = product
			}
			products = append(products, product)
		}
	}

	tally, err := loadTally(ctx, tx, shift, req.UserID)
	if err != nil {
		return nil, err
	}
	for _, product := range products {
		if err = ordering.CheckProduct(shift, product); err != nil {
			return nil, err
		}
		if err = tally.Admit(shift, product, req.UserID != nil); err != nil {
			return nil, err
		}
	}

	orders := make([]models.Order, 0, len(products))
	for _, product := range products {
		order, err := insertOrder(ctx, tx, shift.ID, product, req, at)
		if err != nil {
			return nil, err
		}
		if err = insertEvent(ctx, tx, events.OrderPlaced{Order: order}, at); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if ordering.ShouldAutoClose(shift, tally.ShiftRestricted) {
		if _, err = tx.Exec(ctx, `UPDATE shifts SET can_order = false WHERE id = $1`, shift.ID); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return orders, nil
}

func insertOrder(ctx context.Context, tx pgx.Tx, shiftID int64, product models.Product, req ordering.Request, at time.Time) (models.Order, error) {
	order := models.Order{
		ShiftID:      shiftID,
		ProductID:    product.ID,
		ProductName:  product.Name,
		UserID:       req.UserID,
		Type:         req.Type,
		OrderPrice:   product.CurrentPrice,
		Ready:        req.Ready,
		ReadyAt:      ordering.Stamp(req.Ready, at.UTC()),
		Paid:         req.Paid,
		PaidAt:       ordering.Stamp(req.Paid, at.UTC()),
		Deprioritize: req.Deprioritize,
		Prioritize:   req.Prioritize,
		Created:      at.UTC(),
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO orders (shift_id, product_id, user_id, type, order_price, ready, ready_at, paid, paid_at, deprioritize, prioritize, created)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, order.ShiftID, order.ProductID, order.UserID, string(order.Type), order.OrderPrice, order.Ready, order.ReadyAt, order.Paid, order.PaidAt, order.Deprioritize, order.Prioritize, order.Created).Scan(&order.ID)
	if err != nil {
		return models.Order{}, mapWriteError(err, store.ErrNotFound)
	}
	return order, nil
}

func (s *Store) UpdateOrder(ctx context.Context, input store.UpdateOrderInput) (models.Order, error) {
	if !input.Caller.Authenticated() {
		return models.Order{}, store.ErrUnauthenticated
	}
	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	shift, err := lockShift(ctx, tx, input.ShiftID)
	if err != nil {
		return models.Order{}, err
	}
	order, err := getOrder(ctx, tx, shift.ID, input.OrderID, true)
	if err != nil {
		return models.Order{}, err
	}
	canManage, err := hasObjectPermission(ctx, tx, input.Caller, models.PermManageShiftInVenue, models.ObjectOrderVenue, shift.VenueID)
	if err != nil {
		return models.Order{}, err
	}
	if !canManage && !input.Caller.SameAs(order.UserID) {
		return models.Order{}, store.ErrForbidden
	}

	next, err := ordering.ApplyOrderPatch(order, shift, input.Caller, canManage, input.Patch, at)
	if err != nil {
		return models.Order{}, err
	}
	if _, err = tx.Exec(ctx, `
		UPDATE orders SET ready = $2, ready_at = $3, paid = $4, paid_at = $5, deprioritize = $6, prioritize = $7
		WHERE id = $1
	`, next.ID, next.Ready, next.ReadyAt, next.Paid, next.PaidAt, next.Deprioritize, next.Prioritize); err != nil {
		return models.Order{}, err
	}
	if err = insertEvent(ctx, tx, events.OrderUpdated{Order: next}, at); err != nil {
		return models.Order{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Order{}, err
	}
	return next, nil
}

func (s *Store) DeleteOrder(ctx context.Context, caller models.User, shiftID, orderID int64) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	shift, err := lockShift(ctx, tx, shiftID)
	if err != nil {
		return err
	}
	if err = requireObject(ctx, tx, caller, models.PermManageShiftInVenue, models.ObjectOrderVenue, shift.VenueID); err != nil {
		return err
	}
	if shift.Finalized {
		return store.ErrFinalized
	}
	order, err := getOrder(ctx, tx, shift.ID, orderID, true)
	if err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, order.ID); err != nil {
		return err
	}
	now := time.Now().UTC()
	if err = insertEvent(ctx, tx, events.OrderUpdated{Order: order, Deleted: true}, now); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListOrders shows managers every order of the shift and other callers only
// their own.
func (s *Store) ListOrders(ctx context.Context, caller models.User, shiftID int64) ([]models.Order, error) {
	if !caller.Authenticated() {
		return nil, store.ErrUnauthenticated
	}
	shift, err := getShift(ctx, s.pool, shiftID)
	if err != nil {
		return nil, err
	}
	canManage, err := hasObjectPermission(ctx, s.pool, caller, models.PermManageShiftInVenue, models.ObjectOrderVenue, shift.VenueID)
	if err != nil {
		return nil, err
	}
	if canManage {
		return listShiftOrders(ctx, s.pool, shift.ID, nil)
	}
	canOrder, err := hasObjectPermission(ctx, s.pool, caller, models.PermOrderInVenue, models.ObjectOrderVenue, shift.VenueID)
	if err != nil {
		return nil, err
	}
	if !canOrder {
		return nil, fmt.Errorf("%w: %s", store.ErrForbidden, models.PermOrderInVenue)
	}
	userID := caller.ID
	return listShiftOrders(ctx, s.pool, shift.ID, &userID)
}
