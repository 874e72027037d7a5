package postgres

import (
	"context"
	_ "embed"

	"github.com/pkg/errors"
)

//go:embed migration/schema.sql
var latestSchema string

// Migrate applies the latest schema. All statements are idempotent so the
// migration can run on every startup.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, latestSchema); err != nil {
		return errors.Wrap(err, "failed to apply latest schema")
	}
	return nil
}
