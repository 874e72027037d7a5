package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/snagtrack/snagtrack/store"
)

// CreateUser creates a user.
func (d *DB) CreateUser(ctx context.Context, create *store.User) (*store.User, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}

	stmt := `INSERT INTO user_account (organization_id, username, password_hash, role, created_ts)
		VALUES (?, ?, ?, ?, ?) RETURNING id`
	err := d.db.QueryRowContext(ctx, stmt,
		create.OrganizationID,
		create.Username,
		create.PasswordHash,
		create.Role,
		create.CreatedTs,
	).Scan(&create.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create user")
	}
	return create, nil
}

// ListUsers lists users.
func (d *DB) ListUsers(ctx context.Context, find *store.FindUser) ([]*store.User, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.Username != nil {
		where, args = append(where, "username = ?"), append(args, *find.Username)
	}
	if find.OrganizationID != nil {
		where, args = append(where, "organization_id = ?"), append(args, *find.OrganizationID)
	}

	query := `SELECT id, organization_id, username, password_hash, role, created_ts FROM user_account
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC`
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	defer rows.Close()

	list := []*store.User{}
	for rows.Next() {
		var user store.User
		if err := rows.Scan(
			&user.ID,
			&user.OrganizationID,
			&user.Username,
			&user.PasswordHash,
			&user.Role,
			&user.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan user")
		}
		list = append(list, &user)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// CreateUserAccessToken persists an access token hash for a user.
func (d *DB) CreateUserAccessToken(ctx context.Context, create *store.UserAccessToken) (*store.UserAccessToken, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}

	stmt := `INSERT INTO user_access_token (token_hash, user_id, created_ts) VALUES (?, ?, ?)`
	if _, err := d.db.ExecContext(ctx, stmt, create.TokenHash, create.UserID, create.CreatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to create user access token")
	}
	return create, nil
}

// GetUserAccessToken looks up an access token by its hash. Returns nil without
// error when the token is unknown.
func (d *DB) GetUserAccessToken(ctx context.Context, tokenHash string) (*store.UserAccessToken, error) {
	query := `SELECT token_hash, user_id, created_ts FROM user_access_token WHERE token_hash = ?`

	rows, err := d.db.QueryContext(ctx, query, tokenHash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user access token")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var token store.UserAccessToken
	if err := rows.Scan(&token.TokenHash, &token.UserID, &token.CreatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to scan user access token")
	}
	return &token, nil
}
