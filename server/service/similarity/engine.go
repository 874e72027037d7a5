// Package similarity implements duplicate and related bug detection over
// pre-computed text embeddings.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/snagtrack/snagtrack/internal/metrics"
	"github.com/snagtrack/snagtrack/store"
)

// Tiering policy. Fixed constants, not runtime-configurable.
const (
	// DuplicateThreshold is the minimum cosine similarity for a candidate to
	// be suggested as a possible duplicate.
	DuplicateThreshold float32 = 0.9
	// RelatedThreshold is the minimum cosine similarity for a candidate to be
	// suggested at all. Candidates in [RelatedThreshold, DuplicateThreshold)
	// land in the related tier.
	RelatedThreshold float32 = 0.7
	// MaxResultsPerTier caps each tier independently.
	MaxResultsPerTier = 3

	// maxCandidateLimit caps the candidate fetch, matching the store's search
	// limit. Targets with more dismissals than this can under-fill their
	// tiers, but the query must keep working.
	maxCandidateLimit = 1000
)

// Error taxonomy. Handlers map these to HTTP status codes with errors.Is.
var (
	// ErrBugNotFound marks a missing (or not visible) target bug.
	ErrBugNotFound = errors.New("bug report not found")
	// ErrSuggestedBugNotFound marks a missing suggested bug on dismissal.
	ErrSuggestedBugNotFound = errors.New("suggested bug report not found")
	// ErrInvalidArgument marks malformed dismissal input. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrIndexUnavailable marks a similarity index failure. Queries are
	// read-only so retrying is always safe for the caller.
	ErrIndexUnavailable = errors.New("similarity index unavailable")
)

// storeError classifies a downstream store failure. Caller-initiated
// cancellation surfaces as the context error so transports can report it as
// a client abort instead of an index failure.
func storeError(ctx context.Context, err error, format string, args ...any) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %s: %v", ErrIndexUnavailable, fmt.Sprintf(format, args...), err)
}

// Store is the persistence surface the engine needs. *store.Store satisfies it.
type Store interface {
	GetBugReport(ctx context.Context, find *store.FindBugReport) (*store.BugReport, error)
	GetBugEmbedding(ctx context.Context, bugReportID int32, model string) (*store.BugEmbedding, error)
	ListDismissedBugIDs(ctx context.Context, bugReportID int32) (map[int32]bool, error)
	BugVectorSearch(ctx context.Context, opts *store.BugVectorSearchOptions) ([]*store.BugReportWithScore, error)
	GetApplicationNames(ctx context.Context, ids []int32) (map[int32]string, error)
	UpsertSimilarityFeedback(ctx context.Context, upsert *store.UpsertSimilarityFeedback) (*store.SimilarityFeedback, error)
}

// Candidate is one similar bug in a query result. Transient, never persisted.
type Candidate struct {
	ID              int32                 `json:"id"`
	DisplayID       string                `json:"display_id"`
	Title           string                `json:"title"`
	Description     string                `json:"description"`
	Status          store.BugReportStatus `json:"status"`
	ApplicationID   int32                 `json:"application_id"`
	ApplicationName string                `json:"application_name"`
	Similarity      float32               `json:"similarity"`
	CreatedTs       int64                 `json:"created_at"`
}

// Result is the outcome of one similarity query. HasEmbedding=false with empty
// tiers is the normal state for a bug whose embedding has not been computed
// yet; callers must not treat it as a failure.
type Result struct {
	BugID              int32
	HasEmbedding       bool
	PossibleDuplicates []Candidate
	RelatedBugs        []Candidate
}

// DismissRequest is the input for recording a dismissed suggestion.
// SimilarityScore is the score the client saw at dismissal time; it is stored
// as given and never revalidated against the current index state.
type DismissRequest struct {
	SuggestedBugID  int32
	SuggestionType  store.SuggestionType
	SimilarityScore float32
}

// Engine orchestrates similarity queries and dismissal feedback. Stateless;
// safe for concurrent use.
type Engine struct {
	store   Store
	model   string
	metrics *metrics.Exporter
}

// NewEngine creates an Engine querying embeddings of the given model.
func NewEngine(store Store, model string, metrics *metrics.Exporter) *Engine {
	return &Engine{
		store:   store,
		model:   model,
		metrics: metrics,
	}
}

// GetSimilarBugs returns similar bugs for the target, tiered into possible
// duplicates and related bugs. Read-only. The requester must belong to the
// target bug's organization; a bug outside it is reported as not found.
func (e *Engine) GetSimilarBugs(ctx context.Context, targetBugID int32, requester *store.User) (*Result, error) {
	start := time.Now()
	result, err := e.getSimilarBugs(ctx, targetBugID, requester)
	e.observeQuery(start, err, result)
	return result, err
}

func (e *Engine) getSimilarBugs(ctx context.Context, targetBugID int32, requester *store.User) (*Result, error) {
	target, err := e.store.GetBugReport(ctx, &store.FindBugReport{ID: &targetBugID})
	if err != nil {
		return nil, storeError(ctx, err, "load target bug %d", targetBugID)
	}
	if target == nil || target.OrganizationID != requester.OrganizationID {
		return nil, ErrBugNotFound
	}

	result := &Result{
		BugID:              target.ID,
		PossibleDuplicates: []Candidate{},
		RelatedBugs:        []Candidate{},
	}

	embedding, err := e.store.GetBugEmbedding(ctx, target.ID, e.model)
	if err != nil {
		return nil, storeError(ctx, err, "load embedding for bug %d", target.ID)
	}
	if embedding == nil {
		// Embeddings are computed asynchronously and may lag bug creation by
		// one job cycle. Not an error.
		return result, nil
	}
	result.HasEmbedding = true

	dismissed, err := e.store.ListDismissedBugIDs(ctx, target.ID)
	if err != nil {
		return nil, storeError(ctx, err, "load dismissed set for bug %d", target.ID)
	}

	// Fetch extra candidates so that dismissal filtering does not under-fill
	// the tiers. Heuristic; unusually dense dismissals can still leave a tier
	// short of the cap.
	limit := 2*MaxResultsPerTier + len(dismissed)
	if limit > maxCandidateLimit {
		limit = maxCandidateLimit
	}

	matches, err := e.store.BugVectorSearch(ctx, &store.BugVectorSearchOptions{
		Vector:         embedding.Embedding,
		OrganizationID: target.OrganizationID,
		ExcludeBugID:   target.ID,
		MinSimilarity:  RelatedThreshold,
		Limit:          limit,
		Model:          e.model,
	})
	if err != nil {
		return nil, storeError(ctx, err, "vector search for bug %d", target.ID)
	}
	if e.metrics != nil {
		e.metrics.CandidatesFound.Observe(float64(len(matches)))
	}

	kept := make([]*store.BugReportWithScore, 0, len(matches))
	appIDs := make([]int32, 0, len(matches))
	seenApps := map[int32]bool{}
	for _, match := range matches {
		if dismissed[match.BugReport.ID] {
			continue
		}
		kept = append(kept, match)
		if !seenApps[match.BugReport.ApplicationID] {
			seenApps[match.BugReport.ApplicationID] = true
			appIDs = append(appIDs, match.BugReport.ApplicationID)
		}
	}

	appNames := e.resolveApplicationNames(ctx, appIDs)

	duplicates := []Candidate{}
	related := []Candidate{}
	for _, match := range kept {
		candidate := toCandidate(match, appNames)
		if candidate.Similarity >= DuplicateThreshold {
			duplicates = append(duplicates, candidate)
		} else {
			related = append(related, candidate)
		}
	}

	result.PossibleDuplicates = capTier(duplicates)
	result.RelatedBugs = capTier(related)
	return result, nil
}

// resolveApplicationNames batch-resolves application display names. Lookup
// failure degrades the label to "Unknown" instead of failing the query;
// partial similarity results are more useful than none.
func (e *Engine) resolveApplicationNames(ctx context.Context, ids []int32) map[int32]string {
	if len(ids) == 0 {
		return map[int32]string{}
	}
	names, err := e.store.GetApplicationNames(ctx, ids)
	if err != nil {
		slog.Warn("failed to resolve application names, degrading to Unknown",
			"application_ids", ids, "error", err)
		return map[int32]string{}
	}
	return names
}

func toCandidate(match *store.BugReportWithScore, appNames map[int32]string) Candidate {
	bug := match.BugReport
	name, ok := appNames[bug.ApplicationID]
	if !ok {
		name = "Unknown"
	}
	return Candidate{
		ID:              bug.ID,
		DisplayID:       bug.UID,
		Title:           bug.Title,
		Description:     bug.Description,
		Status:          bug.Status,
		ApplicationID:   bug.ApplicationID,
		ApplicationName: name,
		Similarity:      match.Score,
		CreatedTs:       bug.CreatedTs,
	}
}

// capTier sorts a tier descending by similarity, breaking ties by most recent
// creation first, and truncates it to MaxResultsPerTier.
func capTier(tier []Candidate) []Candidate {
	sort.SliceStable(tier, func(i, j int) bool {
		if tier[i].Similarity != tier[j].Similarity {
			return tier[i].Similarity > tier[j].Similarity
		}
		return tier[i].CreatedTs > tier[j].CreatedTs
	})
	if len(tier) > MaxResultsPerTier {
		tier = tier[:MaxResultsPerTier]
	}
	return tier
}

// DismissSuggestion records that the requester dismissed a suggested bug for
// the target. Idempotent per (target, suggested) pair; re-dismissal overwrites
// the prior record and returns the same feedback id.
func (e *Engine) DismissSuggestion(ctx context.Context, targetBugID int32, req *DismissRequest, requester *store.User) (*store.SimilarityFeedback, error) {
	if req.SuggestedBugID <= 0 {
		return nil, fmt.Errorf("%w: suggested_bug_id is required", ErrInvalidArgument)
	}
	if !req.SuggestionType.IsValid() {
		return nil, fmt.Errorf("%w: invalid suggestion_type %q", ErrInvalidArgument, req.SuggestionType)
	}
	if req.SuggestedBugID == targetBugID {
		return nil, fmt.Errorf("%w: a bug cannot be dismissed against itself", ErrInvalidArgument)
	}

	// Both existence checks hit the primary store so a freshly deleted bug is
	// never referenced by new feedback.
	target, err := e.store.GetBugReport(ctx, &store.FindBugReport{ID: &targetBugID})
	if err != nil {
		return nil, storeError(ctx, err, "load target bug %d", targetBugID)
	}
	if target == nil || target.OrganizationID != requester.OrganizationID {
		return nil, ErrBugNotFound
	}

	suggested, err := e.store.GetBugReport(ctx, &store.FindBugReport{
		ID:             &req.SuggestedBugID,
		OrganizationID: &target.OrganizationID,
	})
	if err != nil {
		return nil, storeError(ctx, err, "load suggested bug %d", req.SuggestedBugID)
	}
	if suggested == nil {
		return nil, ErrSuggestedBugNotFound
	}

	feedback, err := e.store.UpsertSimilarityFeedback(ctx, &store.UpsertSimilarityFeedback{
		ID:                uuid.NewString(),
		BugReportID:       target.ID,
		SuggestedBugID:    suggested.ID,
		SimilarityScore:   req.SimilarityScore,
		SuggestionType:    req.SuggestionType,
		DismissedByUserID: requester.ID,
		// Copied from the target bug at write time so the record stays valid
		// even if the bug's organization were ever reassigned.
		OrganizationID: target.OrganizationID,
	})
	if err != nil {
		slog.Error("failed to record dismissal",
			"bug_report_id", target.ID,
			"suggested_bug_id", suggested.ID,
			"suggestion_type", req.SuggestionType,
			"similarity_score", req.SimilarityScore,
			"dismissed_by", requester.ID,
			"error", err)
		return nil, storeError(ctx, err, "record dismissal for bug %d", target.ID)
	}

	if e.metrics != nil {
		e.metrics.Dismissals.WithLabelValues(string(req.SuggestionType)).Inc()
	}
	return feedback, nil
}

func (e *Engine) observeQuery(start time.Time, err error, result *Result) {
	if e.metrics == nil {
		return
	}
	e.metrics.SimilarityLatency.Observe(time.Since(start).Seconds())

	switch {
	case err == nil && !result.HasEmbedding:
		e.metrics.SimilarityQueries.WithLabelValues("no_embedding").Inc()
	case err == nil:
		e.metrics.SimilarityQueries.WithLabelValues("ok").Inc()
	case isNotFound(err):
		e.metrics.SimilarityQueries.WithLabelValues("not_found").Inc()
	default:
		e.metrics.SimilarityQueries.WithLabelValues("error").Inc()
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrBugNotFound) || errors.Is(err, ErrSuggestedBugNotFound)
}
