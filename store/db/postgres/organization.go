package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/snagtrack/snagtrack/store"
)

// CreateOrganization creates an organization.
func (d *DB) CreateOrganization(ctx context.Context, create *store.Organization) (*store.Organization, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}

	stmt := `
		INSERT INTO organization (name, created_ts)
		VALUES (` + placeholders(2) + `)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt, create.Name, create.CreatedTs).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create organization")
	}
	return create, nil
}

// ListOrganizations lists organizations.
func (d *DB) ListOrganizations(ctx context.Context, find *store.FindOrganization) ([]*store.Organization, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}

	query := `
		SELECT id, name, created_ts
		FROM organization
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list organizations")
	}
	defer rows.Close()

	list := []*store.Organization{}
	for rows.Next() {
		var organization store.Organization
		if err := rows.Scan(&organization.ID, &organization.Name, &organization.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan organization")
		}
		list = append(list, &organization)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}
