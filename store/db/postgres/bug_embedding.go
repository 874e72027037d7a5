package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/snagtrack/snagtrack/store"
)

// UpsertBugEmbedding inserts or updates a bug report embedding.
func (d *DB) UpsertBugEmbedding(ctx context.Context, embedding *store.BugEmbedding) (*store.BugEmbedding, error) {
	now := time.Now().Unix()
	if embedding.CreatedTs == 0 {
		embedding.CreatedTs = now
	}
	embedding.UpdatedTs = now

	stmt := `
		INSERT INTO bug_embedding (bug_report_id, embedding, model, created_ts, updated_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (bug_report_id, model)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id, created_ts, updated_ts
	`

	vector := pgvector.NewVector(embedding.Embedding)
	err := d.db.QueryRowContext(ctx, stmt,
		embedding.BugReportID,
		vector,
		embedding.Model,
		embedding.CreatedTs,
		embedding.UpdatedTs,
	).Scan(&embedding.ID, &embedding.CreatedTs, &embedding.UpdatedTs)

	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert bug embedding")
	}

	return embedding, nil
}

// ListBugEmbeddings lists bug report embeddings.
func (d *DB) ListBugEmbeddings(ctx context.Context, find *store.FindBugEmbedding) ([]*store.BugEmbedding, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.BugReportID != nil {
		where, args = append(where, "bug_report_id = "+placeholder(len(args)+1)), append(args, *find.BugReportID)
	}
	if find.Model != nil {
		where, args = append(where, "model = "+placeholder(len(args)+1)), append(args, *find.Model)
	}

	query := `
		SELECT id, bug_report_id, embedding, model, created_ts, updated_ts
		FROM bug_embedding
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list bug embeddings")
	}
	defer rows.Close()

	list := []*store.BugEmbedding{}
	for rows.Next() {
		var embedding store.BugEmbedding
		var vector pgvector.Vector
		err := rows.Scan(
			&embedding.ID,
			&embedding.BugReportID,
			&vector,
			&embedding.Model,
			&embedding.CreatedTs,
			&embedding.UpdatedTs,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan bug embedding")
		}

		embedding.Embedding = vector.Slice()
		list = append(list, &embedding)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// FindBugReportsWithoutEmbedding finds bug reports that don't have embeddings for the specified model.
func (d *DB) FindBugReportsWithoutEmbedding(ctx context.Context, find *store.FindBugReportsWithoutEmbedding) ([]*store.BugReport, error) {
	limit := find.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			b.id, b.uid, b.organization_id, b.application_id, b.title, b.description, b.status, b.reporter_id, b.created_ts, b.updated_ts
		FROM bug_report b
		LEFT JOIN bug_embedding e ON b.id = e.bug_report_id AND e.model = ` + placeholder(1) + `
		WHERE e.id IS NULL
			AND LENGTH(b.title) > 0
		ORDER BY b.created_ts DESC
		LIMIT ` + placeholder(2)

	rows, err := d.db.QueryContext(ctx, query, find.Model, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find bug reports without embedding")
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

// BugVectorSearch performs vector similarity search using pgvector.
//
// The <=> operator computes cosine distance (1 - cosine_similarity), so
// ordering by distance ASC returns the most similar bugs first. The
// organization filter is part of the WHERE clause: tenant isolation is
// enforced by the query itself.
func (d *DB) BugVectorSearch(ctx context.Context, opts *store.BugVectorSearchOptions) ([]*store.BugReportWithScore, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	vector := pgvector.NewVector(opts.Vector)

	query := `
		SELECT
			b.id, b.uid, b.organization_id, b.application_id, b.title, b.description, b.status, b.reporter_id, b.created_ts, b.updated_ts,
			1 - (e.embedding <=> ` + placeholder(1) + `) AS score
		FROM bug_report b
		INNER JOIN bug_embedding e ON b.id = e.bug_report_id
		WHERE b.organization_id = ` + placeholder(2) + `
			AND b.id <> ` + placeholder(3) + `
			AND e.model = ` + placeholder(4) + `
			AND 1 - (e.embedding <=> ` + placeholder(5) + `) >= ` + placeholder(6) + `
		ORDER BY e.embedding <=> ` + placeholder(7) + `
		LIMIT ` + placeholder(8)

	rows, err := d.db.QueryContext(ctx, query,
		vector,
		opts.OrganizationID,
		opts.ExcludeBugID,
		opts.Model,
		vector,
		opts.MinSimilarity,
		vector,
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to bug vector search")
	}
	defer rows.Close()

	results := []*store.BugReportWithScore{}
	for rows.Next() {
		var result store.BugReportWithScore
		var bug store.BugReport

		err := rows.Scan(
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
			&result.Score,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan bug vector search result")
		}

		// Floating point noise can push cosine similarity slightly out of [0,1].
		if result.Score < 0 {
			result.Score = 0
		} else if result.Score > 1 {
			result.Score = 1
		}

		result.BugReport = &bug
		results = append(results, &result)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
