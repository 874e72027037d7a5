package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertSimilarityFeedback_Validate(t *testing.T) {
	valid := func() *UpsertSimilarityFeedback {
		return &UpsertSimilarityFeedback{
			BugReportID:       1,
			SuggestedBugID:    2,
			SimilarityScore:   0.92,
			SuggestionType:    SuggestionDuplicate,
			DismissedByUserID: 7,
			OrganizationID:    3,
		}
	}

	tests := []struct {
		name   string
		mutate func(*UpsertSimilarityFeedback)
		errMsg string
	}{
		{"valid duplicate", func(u *UpsertSimilarityFeedback) {}, ""},
		{"valid related", func(u *UpsertSimilarityFeedback) { u.SuggestionType = SuggestionRelated }, ""},
		{"missing target", func(u *UpsertSimilarityFeedback) { u.BugReportID = 0 }, "invalid BugReportID"},
		{"missing suggested", func(u *UpsertSimilarityFeedback) { u.SuggestedBugID = 0 }, "invalid SuggestedBugID"},
		{"self reference", func(u *UpsertSimilarityFeedback) { u.SuggestedBugID = u.BugReportID }, "itself"},
		{"bad type", func(u *UpsertSimilarityFeedback) { u.SuggestionType = "maybe" }, "invalid suggestion type"},
		{"missing org", func(u *UpsertSimilarityFeedback) { u.OrganizationID = 0 }, "invalid OrganizationID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upsert := valid()
			tt.mutate(upsert)

			err := upsert.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, strings.Contains(err.Error(), tt.errMsg),
					"expected error to contain %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestSuggestionTypeIsValid(t *testing.T) {
	assert.True(t, SuggestionDuplicate.IsValid())
	assert.True(t, SuggestionRelated.IsValid())
	assert.False(t, SuggestionType("").IsValid())
	assert.False(t, SuggestionType("DUPLICATE").IsValid())
}

func TestBugReportStatusIsValid(t *testing.T) {
	for _, status := range []BugReportStatus{BugStatusOpen, BugStatusInProgress, BugStatusResolved, BugStatusClosed} {
		assert.True(t, status.IsValid(), string(status))
	}
	assert.False(t, BugReportStatus("reopened").IsValid())
}
