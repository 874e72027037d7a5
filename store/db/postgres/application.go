package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/snagtrack/snagtrack/store"
)

// CreateApplication creates an application.
func (d *DB) CreateApplication(ctx context.Context, create *store.Application) (*store.Application, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}

	stmt := `
		INSERT INTO application (organization_id, name, created_ts)
		VALUES (` + placeholders(3) + `)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt, create.OrganizationID, create.Name, create.CreatedTs).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create application")
	}
	return create, nil
}

// ListApplications lists applications.
func (d *DB) ListApplications(ctx context.Context, find *store.FindApplication) ([]*store.Application, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if len(find.IDs) > 0 {
		where, args = append(where, "id = ANY("+placeholder(len(args)+1)+")"), append(args, pq.Array(find.IDs))
	}
	if find.OrganizationID != nil {
		where, args = append(where, "organization_id = "+placeholder(len(args)+1)), append(args, *find.OrganizationID)
	}

	query := `
		SELECT id, organization_id, name, created_ts
		FROM application
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list applications")
	}
	defer rows.Close()

	list := []*store.Application{}
	for rows.Next() {
		var application store.Application
		if err := rows.Scan(
			&application.ID,
			&application.OrganizationID,
			&application.Name,
			&application.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan application")
		}
		list = append(list, &application)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}
