package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tosti/internal/events"
	"tosti/internal/secrets"
	"tosti/internal/store"
)

type Store struct {
	pool        *pgxpool.Pool
	credentials *secrets.Box
}

type Options struct {
	// Credentials seals player credentials at rest. Nil stores them as is.
	Credentials *secrets.Box
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	return &Store{pool: pool, credentials: options.Credentials}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func insertEvent(ctx context.Context, q querier, event events.Event, at time.Time) error {
	eventType, payload, err := events.Encode(event)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), eventType, json.RawMessage(payload), at.UTC())
	return err
}

// ensureLedgerKey returns the export key of a shift or borrel reservation,
// creating it on first use.
func ensureLedgerKey(ctx context.Context, q querier, shiftID, borrelID *int64, at time.Time) (string, error) {
	if _, err := q.Exec(ctx, `
		INSERT INTO ledger_export_keys (shift_id, borrel_reservation_id, key, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, shiftID, borrelID, uuid.NewString(), at.UTC()); err != nil {
		return "", err
	}

	var key string
	var row pgx.Row
	if shiftID != nil {
		row = q.QueryRow(ctx, `SELECT key FROM ledger_export_keys WHERE shift_id = $1`, *shiftID)
	} else {
		row = q.QueryRow(ctx, `SELECT key FROM ledger_export_keys WHERE borrel_reservation_id = $1`, *borrelID)
	}
	if err := row.Scan(&key); err != nil {
		return "", err
	}
	return key, nil
}

// mapWriteError translates constraint violations. A foreign key violation
// means a missing reference on insert and a remaining reference on delete, so
// the caller picks the sentinel.
func mapWriteError(err error, foreignKey error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23503":
		return fmt.Errorf("%w: %s", foreignKey, pgErr.ConstraintName)
	case "23505":
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
	case "23514":
		return fmt.Errorf("%w: %s", store.ErrBadRequest, pgErr.ConstraintName)
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

func nullInt64Ptr(value sql.NullInt64) *int64 {
	if !value.Valid {
		return nil
	}
	return &value.Int64
}

func nullIntPtr(value sql.NullInt32) *int {
	if !value.Valid {
		return nil
	}
	v := int(value.Int32)
	return &v
}

func nullBoolPtr(value sql.NullBool) *bool {
	if !value.Valid {
		return nil
	}
	return &value.Bool
}
