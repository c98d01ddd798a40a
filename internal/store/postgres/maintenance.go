package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"tosti/internal/store"
)

const (
	orderRetention = 31 * 24 * time.Hour
	userRetention  = 365 * 24 * time.Hour
)

// MinimizeData drops user references from old orders and song requests and
// deletes regular users who have not logged in for a year. Running it twice
// is harmless.
func (s *Store) MinimizeData(ctx context.Context, now time.Time) (store.MinimizeResult, error) {
	var result store.MinimizeResult
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return result, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	cutoff := now.UTC().Add(-orderRetention)
	tag, err := tx.Exec(ctx, `UPDATE orders SET user_id = NULL WHERE user_id IS NOT NULL AND created < $1`, cutoff)
	if err != nil {
		return result, err
	}
	result.OrdersCleared = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `UPDATE queue_items SET requested_by_id = NULL WHERE requested_by_id IS NOT NULL AND added_at < $1`, cutoff)
	if err != nil {
		return result, err
	}
	result.QueueItemsCleared = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `
		DELETE FROM users
		WHERE NOT is_staff AND NOT is_superuser AND COALESCE(last_login, date_joined) < $1
	`, now.UTC().Add(-userRetention))
	if err != nil {
		return result, err
	}
	result.UsersDeleted = tag.RowsAffected()

	if err = tx.Commit(ctx); err != nil {
		return store.MinimizeResult{}, err
	}
	return result, nil
}
