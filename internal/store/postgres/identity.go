package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"tosti/internal/events"
	"tosti/internal/models"
	"tosti/internal/store"
)

const userColumns = `id, username, email, display_name, association_id, is_staff, is_superuser, last_login, age_verified_at, date_joined`

func scanUser(row scanner) (models.User, error) {
	var user models.User
	var associationID sql.NullInt64
	var lastLogin, ageVerifiedAt sql.NullTime
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.DisplayName, &associationID, &user.IsStaff, &user.IsSuperuser, &lastLogin, &ageVerifiedAt, &user.DateJoined); err != nil {
		return models.User{}, err
	}
	user.AssociationID = nullInt64Ptr(associationID)
	user.LastLogin = nullTimePtr(lastLogin)
	user.AgeVerifiedAt = nullTimePtr(ageVerifiedAt)
	return user, nil
}

// AuthenticateUser resolves the user behind a verified token. A token issued
// after the last recorded login counts as a new login: auto-join groups are
// applied on the first one and staff-granting groups on every one.
func (s *Store) AuthenticateUser(ctx context.Context, input store.LoginInput) (models.User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || len(username) > models.MaxUsernameLength {
		return models.User{}, fmt.Errorf("%w: invalid username", store.ErrUnauthenticated)
	}
	issuedAt := input.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.User{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err = tx.Exec(ctx, `
		INSERT INTO users (username, email, display_name, date_joined)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO NOTHING
	`, username, input.Email, input.DisplayName, issuedAt); err != nil {
		return models.User{}, err
	}

	user, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1 FOR UPDATE`, username))
	if err != nil {
		return models.User{}, err
	}

	if user.LastLogin == nil || issuedAt.After(*user.LastLogin) {
		if user.LastLogin == nil {
			if _, err = tx.Exec(ctx, `
				INSERT INTO user_groups (user_id, group_id)
				SELECT $1, id FROM groups WHERE auto_join_new_users
				ON CONFLICT DO NOTHING
			`, user.ID); err != nil {
				return models.User{}, err
			}
		}
		user, err = scanUser(tx.QueryRow(ctx, `
			UPDATE users SET
				last_login = $2,
				email = CASE WHEN $3::text <> '' THEN $3::text ELSE email END,
				display_name = CASE WHEN $4::text <> '' THEN $4::text ELSE display_name END,
				is_staff = is_staff OR EXISTS (
					SELECT 1 FROM user_groups ug JOIN groups g ON g.id = ug.group_id
					WHERE ug.user_id = users.id AND g.grants_staff_on_join
				)
			WHERE id = $1
			RETURNING `+userColumns, user.ID, issuedAt, input.Email, input.DisplayName))
		if err != nil {
			return models.User{}, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return models.User{}, notFound(err)
	}
	return user, nil
}

func (s *Store) HasGlobalPermission(ctx context.Context, user models.User, code string) (bool, error) {
	return hasGlobalPermission(ctx, s.pool, user, code)
}

func (s *Store) HasObjectPermission(ctx context.Context, user models.User, code, objectType string, objectID int64) (bool, error) {
	return hasObjectPermission(ctx, s.pool, user, code, objectType, objectID)
}

func hasGlobalPermission(ctx context.Context, q querier, user models.User, code string) (bool, error) {
	if !user.Authenticated() {
		return false, nil
	}
	if user.IsSuperuser {
		return true, nil
	}
	var ok bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_permissions WHERE user_id = $1 AND code = $2
			UNION ALL
			SELECT 1 FROM group_permissions gp
			JOIN user_groups ug ON ug.group_id = gp.group_id
			WHERE ug.user_id = $1 AND gp.code = $2
		)
	`, user.ID, code).Scan(&ok)
	return ok, err
}

// hasObjectPermission also honours a global grant of the same code.
func hasObjectPermission(ctx context.Context, q querier, user models.User, code, objectType string, objectID int64) (bool, error) {
	if !user.Authenticated() {
		return false, nil
	}
	if user.IsSuperuser {
		return true, nil
	}
	var ok bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_permissions WHERE user_id = $1 AND code = $2
			UNION ALL
			SELECT 1 FROM group_permissions gp
			JOIN user_groups ug ON ug.group_id = gp.group_id
			WHERE ug.user_id = $1 AND gp.code = $2
			UNION ALL
			SELECT 1 FROM object_permissions
			WHERE user_id = $1 AND code = $2 AND object_type = $3 AND object_id = $4
			UNION ALL
			SELECT 1 FROM object_permissions op
			JOIN user_groups ug ON ug.group_id = op.group_id
			WHERE ug.user_id = $1 AND op.code = $2 AND op.object_type = $3 AND op.object_id = $4
		)
	`, user.ID, code, objectType, objectID).Scan(&ok)
	return ok, err
}

// requireGlobal fails with ErrUnauthenticated for anonymous callers and with
// ErrForbidden when the permission is missing.
func requireGlobal(ctx context.Context, q querier, user models.User, code string) error {
	if !user.Authenticated() {
		return store.ErrUnauthenticated
	}
	ok, err := hasGlobalPermission(ctx, q, user, code)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrForbidden, code)
	}
	return nil
}

func requireObject(ctx context.Context, q querier, user models.User, code, objectType string, objectID int64) error {
	if !user.Authenticated() {
		return store.ErrUnauthenticated
	}
	ok, err := hasObjectPermission(ctx, q, user, code, objectType, objectID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrForbidden, code)
	}
	return nil
}

func (s *Store) IsBlacklisted(ctx context.Context, userID int64, subsystem string) (bool, error) {
	return isBlacklisted(ctx, s.pool, userID, subsystem)
}

func isBlacklisted(ctx context.Context, q querier, userID int64, subsystem string) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM blacklist WHERE user_id = $1 AND subsystem = $2)
	`, userID, subsystem).Scan(&ok)
	return ok, err
}

func (s *Store) AddUserToGroup(ctx context.Context, caller models.User, userID, groupID int64) error {
	if err := requireGlobal(ctx, s.pool, caller, models.PermChangeUser); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_groups (user_id, group_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, groupID)
	return mapWriteError(err, store.ErrNotFound)
}

func (s *Store) GrantPermission(ctx context.Context, caller models.User, grant store.Grant) error {
	if err := validateGrant(grant, false); err != nil {
		return err
	}
	if err := requireGlobal(ctx, s.pool, caller, models.PermChangeUser); err != nil {
		return err
	}
	var err error
	if grant.UserID != nil {
		_, err = s.pool.Exec(ctx, `
			INSERT INTO user_permissions (user_id, code) VALUES ($1, $2) ON CONFLICT DO NOTHING
		`, *grant.UserID, grant.Code)
	} else {
		_, err = s.pool.Exec(ctx, `
			INSERT INTO group_permissions (group_id, code) VALUES ($1, $2) ON CONFLICT DO NOTHING
		`, *grant.GroupID, grant.Code)
	}
	return mapWriteError(err, store.ErrNotFound)
}

func (s *Store) GrantObjectPermission(ctx context.Context, caller models.User, grant store.Grant) error {
	if err := validateGrant(grant, true); err != nil {
		return err
	}
	if err := requireGlobal(ctx, s.pool, caller, models.PermChangeUser); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO object_permissions (user_id, group_id, code, object_type, object_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`, grant.UserID, grant.GroupID, grant.Code, grant.ObjectType, grant.ObjectID)
	return mapWriteError(err, store.ErrNotFound)
}

func (s *Store) RevokeObjectPermission(ctx context.Context, caller models.User, grant store.Grant) error {
	if err := validateGrant(grant, true); err != nil {
		return err
	}
	if err := requireGlobal(ctx, s.pool, caller, models.PermChangeUser); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM object_permissions
		WHERE user_id IS NOT DISTINCT FROM $1 AND group_id IS NOT DISTINCT FROM $2
			AND code = $3 AND object_type = $4 AND object_id = $5
	`, grant.UserID, grant.GroupID, grant.Code, grant.ObjectType, grant.ObjectID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func validateGrant(grant store.Grant, object bool) error {
	if (grant.UserID == nil) == (grant.GroupID == nil) {
		return fmt.Errorf("%w: grant needs exactly one of user or group", store.ErrBadRequest)
	}
	if strings.TrimSpace(grant.Code) == "" {
		return fmt.Errorf("%w: permission code is required", store.ErrBadRequest)
	}
	if object && (grant.ObjectType == "" || grant.ObjectID == 0) {
		return fmt.Errorf("%w: object type and id are required", store.ErrBadRequest)
	}
	return nil
}

func (s *Store) MarkAgeVerified(ctx context.Context, caller models.User, userID int64, at time.Time) (models.User, error) {
	if err := requireGlobal(ctx, s.pool, caller, models.PermChangeUser); err != nil {
		return models.User{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.User{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	user, err := scanUser(tx.QueryRow(ctx, `
		UPDATE users SET age_verified_at = $2 WHERE id = $1
		RETURNING `+userColumns, userID, at.UTC()))
	if err != nil {
		return models.User{}, notFound(err)
	}
	if err = insertEvent(ctx, tx, events.YiviVerified{UserID: user.ID, VerifiedAt: at.UTC()}, at); err != nil {
		return models.User{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.User{}, err
	}
	return user, nil
}
