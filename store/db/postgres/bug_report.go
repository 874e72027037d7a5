package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/snagtrack/snagtrack/store"
)

// CreateBugReport creates a bug report.
func (d *DB) CreateBugReport(ctx context.Context, create *store.BugReport) (*store.BugReport, error) {
	now := time.Now().Unix()
	if create.CreatedTs == 0 {
		create.CreatedTs = now
	}
	create.UpdatedTs = create.CreatedTs

	stmt := `
		INSERT INTO bug_report (uid, organization_id, application_id, title, description, status, reporter_id, created_ts, updated_ts)
		VALUES (` + placeholders(9) + `)
		RETURNING id
	`
	err := d.db.QueryRowContext(ctx, stmt,
		create.UID,
		create.OrganizationID,
		create.ApplicationID,
		create.Title,
		create.Description,
		create.Status,
		create.ReporterID,
		create.CreatedTs,
		create.UpdatedTs,
	).Scan(&create.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create bug report")
	}
	return create, nil
}

// ListBugReports lists bug reports.
func (d *DB) ListBugReports(ctx context.Context, find *store.FindBugReport) ([]*store.BugReport, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.OrganizationID != nil {
		where, args = append(where, "organization_id = "+placeholder(len(args)+1)), append(args, *find.OrganizationID)
	}
	if find.ApplicationID != nil {
		where, args = append(where, "application_id = "+placeholder(len(args)+1)), append(args, *find.ApplicationID)
	}
	if find.Status != nil {
		where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, *find.Status)
	}

	query := `
		SELECT id, uid, organization_id, application_id, title, description, status, reporter_id, created_ts, updated_ts
		FROM bug_report
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC
	`
	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list bug reports")
	}
	defer rows.Close()

	list := []*store.BugReport{}
	for rows.Next() {
		bug, err := scanBugReport(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, bug)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// UpdateBugReport updates a bug report.
func (d *DB) UpdateBugReport(ctx context.Context, update *store.UpdateBugReport) (*store.BugReport, error) {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *update.Title)
	}
	if update.Description != nil {
		set, args = append(set, "description = "+placeholder(len(args)+1)), append(args, *update.Description)
	}
	if update.Status != nil {
		set, args = append(set, "status = "+placeholder(len(args)+1)), append(args, *update.Status)
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	if update.UpdatedTs == 0 {
		update.UpdatedTs = time.Now().Unix()
	}
	set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, update.UpdatedTs)
	args = append(args, update.ID)

	stmt := `
		UPDATE bug_report
		SET ` + strings.Join(set, ", ") + `
		WHERE id = ` + placeholder(len(args)) + `
		RETURNING id, uid, organization_id, application_id, title, description, status, reporter_id, created_ts, updated_ts
	`

	bug, err := scanBugReport(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		return nil, errors.Wrap(err, "failed to update bug report")
	}
	return bug, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBugReport(row rowScanner) (*store.BugReport, error) {
	var bug store.BugReport
	if err := row.Scan(
		&bug.ID,
		&bug.UID,
		&bug.OrganizationID,
		&bug.ApplicationID,
		&bug.Title,
		&bug.Description,
		&bug.Status,
		&bug.ReporterID,
		&bug.CreatedTs,
		&bug.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan bug report")
	}
	return &bug, nil
}
