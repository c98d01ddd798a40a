package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"tosti/internal/events"
	"tosti/internal/joincode"
	"tosti/internal/models"
	"tosti/internal/ordering"
	"tosti/internal/store"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

const venueColumns = `id, name, slug, active, color, can_be_reserved`

func scanVenue(row scanner) (models.Venue, error) {
	var venue models.Venue
	err := row.Scan(&venue.ID, &venue.Name, &venue.Slug, &venue.Active, &venue.Color, &venue.CanBeReserved)
	return venue, err
}

func (s *Store) CreateVenue(ctx context.Context, input store.VenueInput) (models.Venue, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || !slugPattern.MatchString(input.Slug) {
		return models.Venue{}, fmt.Errorf("%w: venue needs a name and a lowercase slug", store.ErrBadRequest)
	}
	if err := requireGlobal(ctx, s.pool, input.Caller, models.PermChangeVenue); err != nil {
		return models.Venue{}, err
	}
	venue, err := scanVenue(s.pool.QueryRow(ctx, `
		INSERT INTO venues (name, slug, active, color, can_be_reserved)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+venueColumns, name, input.Slug, input.Active, input.Color, input.CanBeReserved))
	if err != nil {
		return models.Venue{}, mapWriteError(err, store.ErrNotFound)
	}
	return venue, nil
}

func (s *Store) ListVenues(ctx context.Context, activeOnly bool) ([]models.Venue, error) {
	query := `SELECT ` + venueColumns + ` FROM venues`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var venues []models.Venue
	for rows.Next() {
		venue, err := scanVenue(rows)
		if err != nil {
			return nil, err
		}
		venues = append(venues, venue)
	}
	return venues, rows.Err()
}

func (s *Store) GetVenue(ctx context.Context, slug string) (models.Venue, error) {
	venue, err := scanVenue(s.pool.QueryRow(ctx, `SELECT `+venueColumns+` FROM venues WHERE slug = $1`, slug))
	if err != nil {
		return models.Venue{}, notFound(err)
	}
	return venue, nil
}

func (s *Store) CreateOrderVenue(ctx context.Context, caller models.User, venueID int64) (models.OrderVenue, error) {
	if err := requireGlobal(ctx, s.pool, caller, models.PermChangeVenue); err != nil {
		return models.OrderVenue{}, err
	}
	var id int64
	if err := s.pool.QueryRow(ctx, `
		INSERT INTO order_venues (venue_id) VALUES ($1) RETURNING id
	`, venueID).Scan(&id); err != nil {
		return models.OrderVenue{}, mapWriteError(err, store.ErrNotFound)
	}
	return getOrderVenue(ctx, s.pool, id)
}

func getOrderVenue(ctx context.Context, q querier, id int64) (models.OrderVenue, error) {
	var ov models.OrderVenue
	err := q.QueryRow(ctx, `
		SELECT ov.id, v.id, v.name, v.slug, v.active, v.color, v.can_be_reserved
		FROM order_venues ov JOIN venues v ON v.id = ov.venue_id
		WHERE ov.id = $1
	`, id).Scan(&ov.ID, &ov.Venue.ID, &ov.Venue.Name, &ov.Venue.Slug, &ov.Venue.Active, &ov.Venue.Color, &ov.Venue.CanBeReserved)
	if err != nil {
		return models.OrderVenue{}, notFound(err)
	}
	ov.VenueID = ov.Venue.ID
	return ov, nil
}

func (s *Store) ListOrderVenues(ctx context.Context) ([]models.OrderVenue, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ov.id, v.id, v.name, v.slug, v.active, v.color, v.can_be_reserved
		FROM order_venues ov JOIN venues v ON v.id = ov.venue_id
		ORDER BY v.name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var venues []models.OrderVenue
	for rows.Next() {
		var ov models.OrderVenue
		if err := rows.Scan(&ov.ID, &ov.Venue.ID, &ov.Venue.Name, &ov.Venue.Slug, &ov.Venue.Active, &ov.Venue.Color, &ov.Venue.CanBeReserved); err != nil {
			return nil, err
		}
		ov.VenueID = ov.Venue.ID
		venues = append(venues, ov)
	}
	return venues, rows.Err()
}

const reservationColumns = `r.id, r.venue_id, r.title, r.start_at, r.end_at, r.association_id, r.created_by_id, r.accepted, r.join_code, r.comments, r.created_at,
	ARRAY(SELECT ua.user_id FROM reservation_users_access ua WHERE ua.reservation_id = r.id ORDER BY ua.user_id)`

func scanReservation(row scanner) (models.VenueReservation, error) {
	var r models.VenueReservation
	var associationID, createdByID sql.NullInt64
	var accepted sql.NullBool
	if err := row.Scan(&r.ID, &r.VenueID, &r.Title, &r.Start, &r.End, &associationID, &createdByID, &accepted, &r.JoinCode, &r.Comments, &r.CreatedAt, &r.UsersAccess); err != nil {
		return models.VenueReservation{}, err
	}
	r.AssociationID = nullInt64Ptr(associationID)
	r.CreatedByID = nullInt64Ptr(createdByID)
	r.Accepted = nullBoolPtr(accepted)
	return r, nil
}

func (s *Store) CreateReservation(ctx context.Context, input store.CreateReservationInput) (models.VenueReservation, error) {
	if !input.Caller.Authenticated() {
		return models.VenueReservation{}, store.ErrUnauthenticated
	}
	if strings.TrimSpace(input.Title) == "" {
		return models.VenueReservation{}, fmt.Errorf("%w: title is required", store.ErrBadRequest)
	}
	if err := ordering.ValidateWindow(input.Start, input.End); err != nil {
		return models.VenueReservation{}, err
	}

	var reservable bool
	if err := s.pool.QueryRow(ctx, `SELECT can_be_reserved FROM venues WHERE id = $1`, input.VenueID).Scan(&reservable); err != nil {
		return models.VenueReservation{}, notFound(err)
	}
	if !reservable {
		return models.VenueReservation{}, fmt.Errorf("%w: venue cannot be reserved", store.ErrBadRequest)
	}

	code, err := joincode.New()
	if err != nil {
		return models.VenueReservation{}, err
	}
	var id int64
	if err := s.pool.QueryRow(ctx, `
		INSERT INTO venue_reservations (venue_id, title, start_at, end_at, association_id, created_by_id, join_code, comments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, input.VenueID, input.Title, input.Start.UTC(), input.End.UTC(), input.AssociationID, input.Caller.ID, code, input.Comments).Scan(&id); err != nil {
		return models.VenueReservation{}, mapWriteError(err, store.ErrNotFound)
	}
	return getReservation(ctx, s.pool, id, false)
}

func (s *Store) GetReservation(ctx context.Context, id int64) (models.VenueReservation, error) {
	return getReservation(ctx, s.pool, id, false)
}

func getReservation(ctx context.Context, q querier, id int64, forUpdate bool) (models.VenueReservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM venue_reservations r WHERE r.id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	r, err := scanReservation(q.QueryRow(ctx, query, id))
	if err != nil {
		return models.VenueReservation{}, notFound(err)
	}
	return r, nil
}

// ListReservations returns the reservations of a venue overlapping
// [from, to). Zero bounds are open.
func (s *Store) ListReservations(ctx context.Context, venueID int64, from, to time.Time) ([]models.VenueReservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM venue_reservations r WHERE r.venue_id = $1`
	args := []interface{}{venueID}
	if !to.IsZero() {
		args = append(args, to.UTC())
		query += fmt.Sprintf(" AND r.start_at < $%d", len(args))
	}
	if !from.IsZero() {
		args = append(args, from.UTC())
		query += fmt.Sprintf(" AND r.end_at > $%d", len(args))
	}
	query += " ORDER BY r.start_at ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []models.VenueReservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

// SetReservationAccepted rechecks the overlap of accepted reservations on the
// venue under a lock on the venue row.
func (s *Store) SetReservationAccepted(ctx context.Context, input store.SetAcceptedInput) (models.VenueReservation, error) {
	if err := requireGlobal(ctx, s.pool, input.Caller, models.PermChangeReservation); err != nil {
		return models.VenueReservation{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.VenueReservation{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	current, err := getReservation(ctx, tx, input.ReservationID, false)
	if err != nil {
		return models.VenueReservation{}, err
	}
	if _, err = tx.Exec(ctx, `SELECT id FROM venues WHERE id = $1 FOR UPDATE`, current.VenueID); err != nil {
		return models.VenueReservation{}, err
	}
	if current, err = getReservation(ctx, tx, input.ReservationID, true); err != nil {
		return models.VenueReservation{}, err
	}

	if input.Accepted != nil && *input.Accepted {
		var overlapping bool
		if err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM venue_reservations
				WHERE venue_id = $1 AND id <> $2 AND accepted
					AND start_at < $4 AND end_at > $3
			)
		`, current.VenueID, current.ID, current.Start, current.End).Scan(&overlapping); err != nil {
			return models.VenueReservation{}, err
		}
		if overlapping {
			return models.VenueReservation{}, fmt.Errorf("%w: overlaps an accepted reservation", store.ErrConflict)
		}
	}

	if _, err = tx.Exec(ctx, `UPDATE venue_reservations SET accepted = $2 WHERE id = $1`, current.ID, input.Accepted); err != nil {
		return models.VenueReservation{}, err
	}
	updated, err := getReservation(ctx, tx, current.ID, false)
	if err != nil {
		return models.VenueReservation{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.VenueReservation{}, err
	}
	return updated, nil
}

func (s *Store) JoinReservation(ctx context.Context, caller models.User, code string) (models.VenueReservation, error) {
	if !caller.Authenticated() {
		return models.VenueReservation{}, store.ErrUnauthenticated
	}
	if !joincode.Valid(code) {
		return models.VenueReservation{}, store.ErrNotFound
	}
	var id int64
	if err := s.pool.QueryRow(ctx, `SELECT id FROM venue_reservations WHERE join_code = $1`, code).Scan(&id); err != nil {
		return models.VenueReservation{}, notFound(err)
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO reservation_users_access (reservation_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, id, caller.ID); err != nil {
		return models.VenueReservation{}, err
	}
	return getReservation(ctx, s.pool, id, false)
}

// DeleteReservation lets the creator withdraw a pending reservation. Users
// with change permission may delete any reservation.
func (s *Store) DeleteReservation(ctx context.Context, caller models.User, id int64) error {
	if !caller.Authenticated() {
		return store.ErrUnauthenticated
	}
	r, err := getReservation(ctx, s.pool, id, false)
	if err != nil {
		return err
	}
	admin, err := hasGlobalPermission(ctx, s.pool, caller, models.PermChangeReservation)
	if err != nil {
		return err
	}
	if !admin {
		if !caller.SameAs(r.CreatedByID) {
			return store.ErrForbidden
		}
		if r.Accepted != nil {
			return fmt.Errorf("%w: reservation was already reviewed", store.ErrState)
		}
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM venue_reservations WHERE id = $1`, id)
	return err
}

func (s *Store) CreateBorrelReservation(ctx context.Context, input store.CreateBorrelInput) (models.BorrelReservation, error) {
	if !input.Caller.Authenticated() {
		return models.BorrelReservation{}, store.ErrUnauthenticated
	}
	if strings.TrimSpace(input.Title) == "" {
		return models.BorrelReservation{}, fmt.Errorf("%w: title is required", store.ErrBadRequest)
	}
	if err := ordering.ValidateWindow(input.Start, input.End); err != nil {
		return models.BorrelReservation{}, err
	}
	for _, item := range input.Items {
		if strings.TrimSpace(item.Description) == "" || item.AmountReserved < 0 || item.UnitPrice.IsNegative() {
			return models.BorrelReservation{}, fmt.Errorf("%w: invalid item", store.ErrBadRequest)
		}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.BorrelReservation{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var id int64
	if err = tx.QueryRow(ctx, `
		INSERT INTO borrel_reservations (title, association_id, created_by_id, start_at, end_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, input.Title, input.AssociationID, input.Caller.ID, input.Start.UTC(), input.End.UTC()).Scan(&id); err != nil {
		return models.BorrelReservation{}, mapWriteError(err, store.ErrNotFound)
	}
	for _, item := range input.Items {
		if _, err = tx.Exec(ctx, `
			INSERT INTO borrel_reservation_items (reservation_id, description, amount_reserved, unit_price)
			VALUES ($1, $2, $3, $4)
		`, id, item.Description, item.AmountReserved, item.UnitPrice); err != nil {
			return models.BorrelReservation{}, mapWriteError(err, store.ErrNotFound)
		}
	}
	reservation, err := getBorrelReservation(ctx, tx, id, false)
	if err != nil {
		return models.BorrelReservation{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.BorrelReservation{}, err
	}
	return reservation, nil
}

func (s *Store) GetBorrelReservation(ctx context.Context, id int64) (models.BorrelReservation, error) {
	return getBorrelReservation(ctx, s.pool, id, false)
}

func getBorrelReservation(ctx context.Context, q querier, id int64, forUpdate bool) (models.BorrelReservation, error) {
	query := `
		SELECT id, title, association_id, created_by_id, start_at, end_at, submitted_at, created_at
		FROM borrel_reservations WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var r models.BorrelReservation
	var associationID, createdByID sql.NullInt64
	var submittedAt sql.NullTime
	if err := q.QueryRow(ctx, query, id).Scan(&r.ID, &r.Title, &associationID, &createdByID, &r.Start, &r.End, &submittedAt, &r.CreatedAt); err != nil {
		return models.BorrelReservation{}, notFound(err)
	}
	r.AssociationID = nullInt64Ptr(associationID)
	r.CreatedByID = nullInt64Ptr(createdByID)
	r.SubmittedAt = nullTimePtr(submittedAt)

	rows, err := q.Query(ctx, `
		SELECT id, description, amount_reserved, amount_used, unit_price
		FROM borrel_reservation_items WHERE reservation_id = $1 ORDER BY id ASC
	`, id)
	if err != nil {
		return models.BorrelReservation{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item models.BorrelItem
		var used sql.NullInt32
		if err := rows.Scan(&item.ID, &item.Description, &item.AmountReserved, &used, &item.UnitPrice); err != nil {
			return models.BorrelReservation{}, err
		}
		item.AmountUsed = nullIntPtr(used)
		r.Items = append(r.Items, item)
	}
	return r, rows.Err()
}

// SubmitBorrelReservation records the used amounts once. Items without a
// reported amount are billed as reserved.
func (s *Store) SubmitBorrelReservation(ctx context.Context, input store.SubmitBorrelInput) (models.BorrelReservation, error) {
	if !input.Caller.Authenticated() {
		return models.BorrelReservation{}, store.ErrUnauthenticated
	}
	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.BorrelReservation{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	reservation, err := getBorrelReservation(ctx, tx, input.ReservationID, true)
	if err != nil {
		return models.BorrelReservation{}, err
	}
	if !input.Caller.SameAs(reservation.CreatedByID) {
		if err = requireGlobal(ctx, tx, input.Caller, models.PermChangeReservation); err != nil {
			return models.BorrelReservation{}, err
		}
	}
	if reservation.Submitted() {
		return models.BorrelReservation{}, fmt.Errorf("%w: reservation already submitted", store.ErrState)
	}

	items := make(map[int64]models.BorrelItem, len(reservation.Items))
	for _, item := range reservation.Items {
		items[item.ID] = item
	}
	for itemID, used := range input.AmountsUsed {
		if _, ok := items[itemID]; !ok || used < 0 {
			return models.BorrelReservation{}, fmt.Errorf("%w: invalid amount for item %d", store.ErrBadRequest, itemID)
		}
	}
	for _, item := range reservation.Items {
		used, ok := input.AmountsUsed[item.ID]
		if !ok {
			used = item.AmountReserved
		}
		if _, err = tx.Exec(ctx, `UPDATE borrel_reservation_items SET amount_used = $2 WHERE id = $1`, item.ID, used); err != nil {
			return models.BorrelReservation{}, err
		}
	}
	if _, err = tx.Exec(ctx, `UPDATE borrel_reservations SET submitted_at = $2 WHERE id = $1`, reservation.ID, at.UTC()); err != nil {
		return models.BorrelReservation{}, err
	}

	key, err := ensureLedgerKey(ctx, tx, nil, &reservation.ID, at)
	if err != nil {
		return models.BorrelReservation{}, err
	}
	if err = insertEvent(ctx, tx, events.ReservationSubmitted{ReservationID: reservation.ID, SubmittedAt: at.UTC(), LedgerKey: key}, at); err != nil {
		return models.BorrelReservation{}, err
	}

	submitted, err := getBorrelReservation(ctx, tx, reservation.ID, false)
	if err != nil {
		return models.BorrelReservation{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.BorrelReservation{}, err
	}
	return submitted, nil
}
