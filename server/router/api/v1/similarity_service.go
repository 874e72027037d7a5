package v1

import (
	"context"
	"errors"
	"net/http"

	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/snagtrack/snagtrack/server/service/similarity"
	"github.com/snagtrack/snagtrack/store"
)

type SimilarBugsResponse struct {
	BugID        int32        `json:"bug_id"`
	HasEmbedding bool         `json:"has_embedding"`
	SimilarBugs  SimilarTiers `json:"similar_bugs"`
}

type SimilarTiers struct {
	PossibleDuplicates []similarity.Candidate `json:"possibleDuplicates"`
	RelatedBugs        []similarity.Candidate `json:"relatedBugs"`
}

type DismissSuggestionRequest struct {
	SuggestedBugID  int32   `json:"suggested_bug_id"`
	SuggestionType  string  `json:"suggestion_type"`
	SimilarityScore float32 `json:"similarity_score"`
}

type DismissSuggestionResponse struct {
	Success    bool   `json:"success"`
	FeedbackID string `json:"feedback_id"`
}

// GetSimilarBugs returns possible duplicates and related bugs for the target.
func (s *APIV1Service) GetSimilarBugs(c echo.Context) error {
	ctx := c.Request().Context()

	bugID, err := parseBugID(c)
	if err != nil {
		return err
	}

	result, err := s.Engine.GetSimilarBugs(ctx, bugID, currentUser(c))
	if err != nil {
		return similarityHTTPError(ctx, err, "similarity query failed", bugID)
	}

	return c.JSON(http.StatusOK, &SimilarBugsResponse{
		BugID:        result.BugID,
		HasEmbedding: result.HasEmbedding,
		SimilarBugs: SimilarTiers{
			PossibleDuplicates: result.PossibleDuplicates,
			RelatedBugs:        result.RelatedBugs,
		},
	})
}

// DismissSuggestion records that the requester dismissed a suggestion.
// Dismissing the same suggestion again succeeds and returns the same feedback
// id.
func (s *APIV1Service) DismissSuggestion(c echo.Context) error {
	ctx := c.Request().Context()

	bugID, err := parseBugID(c)
	if err != nil {
		return err
	}

	request := &DismissSuggestionRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed dismissal").SetInternal(err)
	}

	feedback, err := s.Engine.DismissSuggestion(ctx, bugID, &similarity.DismissRequest{
		SuggestedBugID:  request.SuggestedBugID,
		SuggestionType:  store.SuggestionType(request.SuggestionType),
		SimilarityScore: request.SimilarityScore,
	}, currentUser(c))
	if err != nil {
		return similarityHTTPError(ctx, err, "dismissal failed", bugID)
	}

	return c.JSON(http.StatusOK, &DismissSuggestionResponse{
		Success:    true,
		FeedbackID: feedback.ID,
	})
}

// similarityHTTPError maps engine errors to HTTP status codes. Index failures
// are logged here with the full error before being flattened to a 500.
func similarityHTTPError(ctx context.Context, err error, message string, bugID int32) error {
	switch {
	case errors.Is(err, similarity.ErrBugNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "bug report not found")
	case errors.Is(err, similarity.ErrSuggestedBugNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "suggested bug report not found")
	case errors.Is(err, similarity.ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// The client went away; there is nobody left to answer and nothing to
		// alert on.
		return err
	default:
		slog.Error(message, "bug_report_id", bugID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "similarity service unavailable").SetInternal(err)
	}
}
