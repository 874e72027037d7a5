package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/snagtrack/snagtrack/store"
)

// UpsertSimilarityFeedback inserts or updates a similarity feedback record.
//
// The (bug_report_id, suggested_bug_id) uniqueness constraint resolves
// concurrent dismissals of the same pair: last writer wins on the row's
// fields and the row id stays stable.
func (d *DB) UpsertSimilarityFeedback(ctx context.Context, upsert *store.UpsertSimilarityFeedback) (*store.SimilarityFeedback, error) {
	if upsert.DismissedTs == 0 {
		upsert.DismissedTs = time.Now().Unix()
	}

	stmt := `
		INSERT INTO similarity_feedback (id, bug_report_id, suggested_bug_id, similarity_score, suggestion_type, dismissed_by_user_id, organization_id, dismissed_ts)
		VALUES (` + placeholders(8) + `)
		ON CONFLICT (bug_report_id, suggested_bug_id)
		DO UPDATE SET
			similarity_score = EXCLUDED.similarity_score,
			suggestion_type = EXCLUDED.suggestion_type,
			dismissed_by_user_id = EXCLUDED.dismissed_by_user_id,
			dismissed_ts = EXCLUDED.dismissed_ts
		RETURNING id, dismissed_ts
	`

	feedback := &store.SimilarityFeedback{
		BugReportID:       upsert.BugReportID,
		SuggestedBugID:    upsert.SuggestedBugID,
		SimilarityScore:   upsert.SimilarityScore,
		SuggestionType:    upsert.SuggestionType,
		DismissedByUserID: upsert.DismissedByUserID,
		OrganizationID:    upsert.OrganizationID,
	}
	err := d.db.QueryRowContext(ctx, stmt,
		upsert.ID,
		upsert.BugReportID,
		upsert.SuggestedBugID,
		upsert.SimilarityScore,
		upsert.SuggestionType,
		upsert.DismissedByUserID,
		upsert.OrganizationID,
		upsert.DismissedTs,
	).Scan(&feedback.ID, &feedback.DismissedTs)

	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert similarity feedback")
	}

	return feedback, nil
}

// ListSimilarityFeedbacks lists similarity feedback records.
func (d *DB) ListSimilarityFeedbacks(ctx context.Context, find *store.FindSimilarityFeedback) ([]*store.SimilarityFeedback, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.BugReportID != nil {
		where, args = append(where, "bug_report_id = "+placeholder(len(args)+1)), append(args, *find.BugReportID)
	}
	if find.OrganizationID != nil {
		where, args = append(where, "organization_id = "+placeholder(len(args)+1)), append(args, *find.OrganizationID)
	}

	query := `
		SELECT id, bug_report_id, suggested_bug_id, similarity_score, suggestion_type, dismissed_by_user_id, organization_id, dismissed_ts
		FROM similarity_feedback
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY dismissed_ts DESC
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list similarity feedbacks")
	}
	defer rows.Close()

	list := []*store.SimilarityFeedback{}
	for rows.Next() {
		var feedback store.SimilarityFeedback
		if err := rows.Scan(
			&feedback.ID,
			&feedback.BugReportID,
			&feedback.SuggestedBugID,
			&feedback.SimilarityScore,
			&feedback.SuggestionType,
			&feedback.DismissedByUserID,
			&feedback.OrganizationID,
			&feedback.DismissedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan similarity feedback")
		}
		list = append(list, &feedback)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}
