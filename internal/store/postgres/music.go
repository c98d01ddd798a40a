package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"tosti/internal/joincode"
	"tosti/internal/models"
	"tosti/internal/store"
)

const playerColumns = `id, slug, display_name, venue_id, credentials, device_id`

func (s *Store) scanPlayer(row scanner) (models.Player, error) {
	var player models.Player
	var venueID sql.NullInt64
	var deviceID sql.NullString
	var sealed []byte
	if err := row.Scan(&player.ID, &player.Slug, &player.DisplayName, &venueID, &sealed, &deviceID); err != nil {
		return models.Player{}, err
	}
	player.VenueID = nullInt64Ptr(venueID)
	player.DeviceID = nullStringPtr(deviceID)
	if len(sealed) > 0 {
		credentials, err := s.credentials.Open(sealed)
		if err != nil {
			return models.Player{}, fmt.Errorf("player %s credentials: %w", player.Slug, err)
		}
		player.Credentials = credentials
	}
	return player, nil
}

func (s *Store) CreatePlayer(ctx context.Context, input store.CreatePlayerInput) (models.Player, error) {
	if !slugPattern.MatchString(input.Slug) || strings.TrimSpace(input.DisplayName) == "" {
		return models.Player{}, fmt.Errorf("%w: player needs a display name and a lowercase slug", store.ErrBadRequest)
	}
	if err := requireGlobal(ctx, s.pool, input.Caller, models.PermChangeVenue); err != nil {
		return models.Player{}, err
	}
	player, err := s.scanPlayer(s.pool.QueryRow(ctx, `
		INSERT INTO players (slug, display_name, venue_id) VALUES ($1, $2, $3)
		RETURNING `+playerColumns, input.Slug, input.DisplayName, input.VenueID))
	if err != nil {
		return models.Player{}, mapWriteError(err, store.ErrNotFound)
	}
	return player, nil
}

func (s *Store) ListPlayers(ctx context.Context) ([]models.Player, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+playerColumns+` FROM players ORDER BY display_name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []models.Player
	for rows.Next() {
		player, err := s.scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, player)
	}
	return players, rows.Err()
}

func (s *Store) GetPlayer(ctx context.Context, slug string) (models.Player, error) {
	player, err := s.scanPlayer(s.pool.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE slug = $1`, slug))
	if err != nil {
		return models.Player{}, notFound(err)
	}
	return player, nil
}

func (s *Store) SetPlayerCredentials(ctx context.Context, caller models.User, playerID int64, credentials []byte) error {
	if err := requireGlobal(ctx, s.pool, caller, models.PermChangeVenue); err != nil {
		return err
	}
	sealed, err := s.credentials.Seal(credentials)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE players SET credentials = $2 WHERE id = $1`, playerID, sealed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetPlayerDevice(ctx context.Context, playerID int64, deviceID *string) error {
	_, err := s.pool.Exec(ctx, `UPDATE players SET device_id = $2 WHERE id = $1`, playerID, deviceID)
	return err
}

// ActiveOverlay finds the control event of an accepted reservation running
// at the player's venue and describes it from user's point of view.
func (s *Store) ActiveOverlay(ctx context.Context, player models.Player, user models.User, at time.Time) (models.Overlay, bool, error) {
	if player.VenueID == nil {
		return models.Overlay{}, false, nil
	}
	var overlay models.Overlay
	var ev = &overlay.Event
	var associationID, createdByID sql.NullInt64
	var whitelisted, hasAccess bool
	err := s.pool.QueryRow(ctx, `
		SELECT ce.id, ce.reservation_id, ce.respect_blacklist, ce.join_code,
			ce.association_can_request, ce.association_can_control, ce.association_can_request_playlist,
			ce.selected_can_request, ce.selected_can_control, ce.selected_can_request_playlist,
			ce.everyone_can_request, ce.everyone_can_control, ce.everyone_can_request_playlist,
			r.association_id, r.created_by_id,
			EXISTS (SELECT 1 FROM control_event_users cu WHERE cu.event_id = ce.id AND cu.user_id = $3),
			EXISTS (SELECT 1 FROM reservation_users_access ua WHERE ua.reservation_id = r.id AND ua.user_id = $3)
		FROM control_events ce
		JOIN venue_reservations r ON r.id = ce.reservation_id
		WHERE r.venue_id = $1 AND r.accepted AND r.start_at <= $2 AND r.end_at > $2
		ORDER BY r.start_at ASC
		LIMIT 1
	`, *player.VenueID, at.UTC(), user.ID).Scan(
		&ev.ID, &ev.ReservationID, &ev.RespectBlacklist, &ev.JoinCode,
		&ev.Association.CanRequest, &ev.Association.CanControl, &ev.Association.CanRequestPlaylist,
		&ev.Selected.CanRequest, &ev.Selected.CanControl, &ev.Selected.CanRequestPlaylist,
		&ev.Everyone.CanRequest, &ev.Everyone.CanControl, &ev.Everyone.CanRequestPlaylist,
		&associationID, &createdByID, &whitelisted, &hasAccess,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Overlay{}, false, nil
		}
		return models.Overlay{}, false, err
	}
	overlay.AssociationID = nullInt64Ptr(associationID)
	overlay.Whitelisted = user.Authenticated() && whitelisted
	overlay.Admin = user.Authenticated() && (hasAccess || user.SameAs(nullInt64Ptr(createdByID)))
	return overlay, true, nil
}

// RecordRequest stores a request the backend already accepted.
func (s *Store) RecordRequest(ctx context.Context, input store.RecordRequestInput) (models.QueueItem, error) {
	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	artists := input.Track.Artists
	if artists == nil {
		artists = []string{}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueItem{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	track := input.Track
	track.Artists = artists
	if err = tx.QueryRow(ctx, `
		INSERT INTO tracks (backend_id, name, artists) VALUES ($1, $2, $3)
		ON CONFLICT (backend_id) DO UPDATE SET name = EXCLUDED.name, artists = EXCLUDED.artists
		RETURNING id
	`, track.BackendID, track.Name, artists).Scan(&track.ID); err != nil {
		return models.QueueItem{}, err
	}

	item := models.QueueItem{PlayerID: input.PlayerID, Track: track, AddedAt: at.UTC(), RequestedByID: input.RequestedBy}
	if err = tx.QueryRow(ctx, `
		INSERT INTO queue_items (player_id, track_id, added_at, requested_by_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, item.PlayerID, track.ID, item.AddedAt, item.RequestedByID).Scan(&item.ID); err != nil {
		return models.QueueItem{}, mapWriteError(err, store.ErrNotFound)
	}
	if err = tx.Commit(ctx); err != nil {
		return models.QueueItem{}, err
	}
	return item, nil
}

func (s *Store) CountRequestsSince(ctx context.Context, playerID, userID int64, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM queue_items
		WHERE player_id = $1 AND requested_by_id = $2 AND added_at >= $3
	`, playerID, userID, since.UTC()).Scan(&count)
	return count, err
}

// ListQueueItems returns the request history, newest first.
func (s *Store) ListQueueItems(ctx context.Context, playerID int64, limit int) ([]models.QueueItem, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT q.id, q.player_id, q.added_at, q.requested_by_id, t.id, t.backend_id, t.name, t.artists
		FROM queue_items q JOIN tracks t ON t.id = q.track_id
		WHERE q.player_id = $1
		ORDER BY q.added_at DESC, q.id DESC
		LIMIT $2
	`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.QueueItem
	for rows.Next() {
		var item models.QueueItem
		var requestedBy sql.NullInt64
		if err := rows.Scan(&item.ID, &item.PlayerID, &item.AddedAt, &requestedBy, &item.Track.ID, &item.Track.BackendID, &item.Track.Name, &item.Track.Artists); err != nil {
			return nil, err
		}
		item.RequestedByID = nullInt64Ptr(requestedBy)
		items = append(items, item)
	}
	return items, rows.Err()
}

const controlEventColumns = `id, reservation_id, respect_blacklist, join_code,
	association_can_request, association_can_control, association_can_request_playlist,
	selected_can_request, selected_can_control, selected_can_request_playlist,
	everyone_can_request, everyone_can_control, everyone_can_request_playlist`

func scanControlEvent(row scanner) (models.ControlEvent, error) {
	var ev models.ControlEvent
	err := row.Scan(&ev.ID, &ev.ReservationID, &ev.RespectBlacklist, &ev.JoinCode,
		&ev.Association.CanRequest, &ev.Association.CanControl, &ev.Association.CanRequestPlaylist,
		&ev.Selected.CanRequest, &ev.Selected.CanControl, &ev.Selected.CanRequestPlaylist,
		&ev.Everyone.CanRequest, &ev.Everyone.CanControl, &ev.Everyone.CanRequestPlaylist)
	return ev, err
}

// CreateControlEvent is allowed for the reservation's creator and for users
// who may change reservations.
func (s *Store) CreateControlEvent(ctx context.Context, input store.CreateControlEventInput) (models.ControlEvent, error) {
	if !input.Caller.Authenticated() {
		return models.ControlEvent{}, store.ErrUnauthenticated
	}
	reservation, err := getReservation(ctx, s.pool, input.ReservationID, false)
	if err != nil {
		return models.ControlEvent{}, err
	}
	if !input.Caller.SameAs(reservation.CreatedByID) {
		if err := requireGlobal(ctx, s.pool, input.Caller, models.PermChangeReservation); err != nil {
			return models.ControlEvent{}, err
		}
	}
	code, err := joincode.New()
	if err != nil {
		return models.ControlEvent{}, err
	}
	ev, err := scanControlEvent(s.pool.QueryRow(ctx, `
		INSERT INTO control_events (reservation_id, respect_blacklist, join_code,
			association_can_request, association_can_control, association_can_request_playlist,
			selected_can_request, selected_can_control, selected_can_request_playlist,
			everyone_can_request, everyone_can_control, everyone_can_request_playlist)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+controlEventColumns,
		reservation.ID, input.RespectBlacklist, code,
		input.Association.CanRequest, input.Association.CanControl, input.Association.CanRequestPlaylist,
		input.Selected.CanRequest, input.Selected.CanControl, input.Selected.CanRequestPlaylist,
		input.Everyone.CanRequest, input.Everyone.CanControl, input.Everyone.CanRequestPlaylist))
	if err != nil {
		return models.ControlEvent{}, mapWriteError(err, store.ErrNotFound)
	}
	return ev, nil
}

func (s *Store) JoinControlEvent(ctx context.Context, caller models.User, code string) (models.ControlEvent, error) {
	if !caller.Authenticated() {
		return models.ControlEvent{}, store.ErrUnauthenticated
	}
	if !joincode.Valid(code) {
		return models.ControlEvent{}, store.ErrNotFound
	}
	ev, err := scanControlEvent(s.pool.QueryRow(ctx, `SELECT `+controlEventColumns+` FROM control_events WHERE join_code = $1`, code))
	if err != nil {
		return models.ControlEvent{}, notFound(err)
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO control_event_users (event_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, ev.ID, caller.ID); err != nil {
		return models.ControlEvent{}, err
	}
	return ev, nil
}
