package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tosti/internal/models"
	"tosti/internal/store"
)

// PendingExports lists keys without a successful send, oldest first.
func (s *Store) PendingExports(ctx context.Context, limit int) ([]models.LedgerExportKey, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT k.id, k.shift_id, k.borrel_reservation_id, k.key, k.created_at
		FROM ledger_export_keys k
		WHERE NOT EXISTS (SELECT 1 FROM ledger_exports e WHERE e.key_id = k.id AND e.succeeded)
		ORDER BY k.created_at ASC, k.id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []models.LedgerExportKey
	for rows.Next() {
		var key models.LedgerExportKey
		var shiftID, borrelID sql.NullInt64
		if err := rows.Scan(&key.ID, &shiftID, &borrelID, &key.Key, &key.CreatedAt); err != nil {
			return nil, err
		}
		key.ShiftID = nullInt64Ptr(shiftID)
		key.BorrelReservationID = nullInt64Ptr(borrelID)
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// RunExport holds the key row locked while push runs, so two workers never
// send the same key concurrently. A failed push is recorded and committed;
// its error is returned wrapped in ErrUpstream.
func (s *Store) RunExport(ctx context.Context, keyID int64, push store.ExportFunc) (bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var key models.LedgerExportKey
	var shiftID, borrelID sql.NullInt64
	err = tx.QueryRow(ctx, `
		SELECT id, shift_id, borrel_reservation_id, key, created_at
		FROM ledger_export_keys WHERE id = $1
		FOR UPDATE SKIP LOCKED
	`, keyID).Scan(&key.ID, &shiftID, &borrelID, &key.Key, &key.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	key.ShiftID = nullInt64Ptr(shiftID)
	key.BorrelReservationID = nullInt64Ptr(borrelID)

	var done bool
	if err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM ledger_exports WHERE key_id = $1 AND succeeded)
	`, key.ID).Scan(&done); err != nil {
		return false, err
	}
	if done {
		return false, nil
	}

	doc, err := ledgerDocument(ctx, tx, key)
	if err != nil {
		return false, err
	}

	pushErr := push(ctx, doc)
	message := ""
	if pushErr != nil {
		message = pushErr.Error()
	}
	if _, err = tx.Exec(ctx, `
		INSERT INTO ledger_exports (key_id, succeeded, error, created_at)
		VALUES ($1, $2, $3, $4)
	`, key.ID, pushErr == nil, message, time.Now().UTC()); err != nil {
		return true, err
	}
	if err = tx.Commit(ctx); err != nil {
		return true, err
	}
	if pushErr != nil {
		return true, fmt.Errorf("%w: %v", store.ErrUpstream, pushErr)
	}
	return true, nil
}

func ledgerDocument(ctx context.Context, q querier, key models.LedgerExportKey) (models.LedgerDocument, error) {
	if key.ShiftID != nil {
		return shiftLedgerDocument(ctx, q, key.Key, *key.ShiftID)
	}
	if key.BorrelReservationID != nil {
		return borrelLedgerDocument(ctx, q, key.Key, *key.BorrelReservationID)
	}
	return models.LedgerDocument{}, fmt.Errorf("ledger key %d has no subject", key.ID)
}

// shiftLedgerDocument bills one line per product and price snapshot.
func shiftLedgerDocument(ctx context.Context, q querier, key string, shiftID int64) (models.LedgerDocument, error) {
	doc := models.LedgerDocument{Key: key, Kind: models.LedgerKindShift, ReferenceID: shiftID}
	var venueName string
	var start time.Time
	if err := q.QueryRow(ctx, `
		SELECT v.name, s.start_at, s.end_at
		FROM shifts s
		JOIN order_venues ov ON ov.id = s.order_venue_id
		JOIN venues v ON v.id = ov.venue_id
		WHERE s.id = $1
	`, shiftID).Scan(&venueName, &start, &doc.Date); err != nil {
		return models.LedgerDocument{}, notFound(err)
	}
	doc.Title = fmt.Sprintf("%s shift %s", venueName, start.Format("2006-01-02 15:04"))

	rows, err := q.Query(ctx, `
		SELECT p.name, o.order_price, count(*)
		FROM orders o JOIN products p ON p.id = o.product_id
		WHERE o.shift_id = $1
		GROUP BY p.name, o.order_price
		ORDER BY p.name ASC, o.order_price ASC
	`, shiftID)
	if err != nil {
		return models.LedgerDocument{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line models.LedgerLine
		if err := rows.Scan(&line.Description, &line.UnitPrice, &line.Quantity); err != nil {
			return models.LedgerDocument{}, err
		}
		doc.Lines = append(doc.Lines, line)
	}
	return doc, rows.Err()
}

func borrelLedgerDocument(ctx context.Context, q querier, key string, reservationID int64) (models.LedgerDocument, error) {
	reservation, err := getBorrelReservation(ctx, q, reservationID, false)
	if err != nil {
		return models.LedgerDocument{}, err
	}
	doc := models.LedgerDocument{
		Key:         key,
		Kind:        models.LedgerKindBorrel,
		ReferenceID: reservation.ID,
		Title:       reservation.Title,
		Date:        reservation.End,
	}
	if reservation.SubmittedAt != nil {
		doc.Date = *reservation.SubmittedAt
	}
	for _, item := range reservation.Items {
		used := item.AmountReserved
		if item.AmountUsed != nil {
			used = *item.AmountUsed
		}
		if used == 0 {
			continue
		}
		doc.Lines = append(doc.Lines, models.LedgerLine{Description: item.Description, Quantity: used, UnitPrice: item.UnitPrice})
	}
	return doc, nil
}
