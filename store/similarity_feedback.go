package store

import (
	"context"

	"github.com/pkg/errors"
)

// SuggestionType classifies a similarity suggestion shown to a user.
type SuggestionType string

const (
	SuggestionDuplicate SuggestionType = "duplicate"
	SuggestionRelated   SuggestionType = "related"
)

// IsValid reports whether the suggestion type is known.
func (t SuggestionType) IsValid() bool {
	return t == SuggestionDuplicate || t == SuggestionRelated
}

// SimilarityFeedback records a dismissed similarity suggestion. Dismissals
// never expire; every similarity query for the same target bug excludes the
// suggested bug from then on.
type SimilarityFeedback struct {
	ID                string // uuid
	BugReportID       int32  // the target bug the suggestion was shown for
	SuggestedBugID    int32
	SimilarityScore   float32 // the score at dismissal time, stored as given
	SuggestionType    SuggestionType
	DismissedByUserID int32
	OrganizationID    int32 // copied from the target bug at write time
	DismissedTs       int64
}

// FindSimilarityFeedback is the find condition for similarity feedback.
type FindSimilarityFeedback struct {
	BugReportID    *int32
	OrganizationID *int32
}

// UpsertSimilarityFeedback specifies data for upserting a similarity feedback
// record. Unique on (BugReportID, SuggestedBugID); a repeated dismissal
// overwrites score, type, dismisser and timestamp while keeping the row id.
type UpsertSimilarityFeedback struct {
	ID                string // uuid assigned on first insert
	BugReportID       int32
	SuggestedBugID    int32
	SimilarityScore   float32
	SuggestionType    SuggestionType
	DismissedByUserID int32
	OrganizationID    int32
	DismissedTs       int64
}

// Validate validates the UpsertSimilarityFeedback.
func (u *UpsertSimilarityFeedback) Validate() error {
	if u.BugReportID <= 0 {
		return errors.Errorf("invalid BugReportID: %d", u.BugReportID)
	}
	if u.SuggestedBugID <= 0 {
		return errors.Errorf("invalid SuggestedBugID: %d", u.SuggestedBugID)
	}
	if u.BugReportID == u.SuggestedBugID {
		return errors.New("a bug cannot be dismissed as similar to itself")
	}
	if !u.SuggestionType.IsValid() {
		return errors.Errorf("invalid suggestion type: %s", u.SuggestionType)
	}
	if u.OrganizationID <= 0 {
		return errors.Errorf("invalid OrganizationID: %d", u.OrganizationID)
	}
	return nil
}

// UpsertSimilarityFeedback inserts or updates a similarity feedback record.
func (s *Store) UpsertSimilarityFeedback(ctx context.Context, upsert *UpsertSimilarityFeedback) (*SimilarityFeedback, error) {
	if err := upsert.Validate(); err != nil {
		return nil, err
	}
	return s.driver.UpsertSimilarityFeedback(ctx, upsert)
}

// ListSimilarityFeedbacks lists similarity feedback records.
func (s *Store) ListSimilarityFeedbacks(ctx context.Context, find *FindSimilarityFeedback) ([]*SimilarityFeedback, error) {
	return s.driver.ListSimilarityFeedbacks(ctx, find)
}

// ListDismissedBugIDs returns the set of suggested bug ids already dismissed
// for the given target bug.
func (s *Store) ListDismissedBugIDs(ctx context.Context, bugReportID int32) (map[int32]bool, error) {
	list, err := s.driver.ListSimilarityFeedbacks(ctx, &FindSimilarityFeedback{
		BugReportID: &bugReportID,
	})
	if err != nil {
		return nil, err
	}
	dismissed := make(map[int32]bool, len(list))
	for _, feedback := range list {
		dismissed[feedback.SuggestedBugID] = true
	}
	return dismissed, nil
}
