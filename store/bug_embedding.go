package store

import (
	"context"

	"github.com/pkg/errors"
)

// BugEmbedding represents the vector embedding of a bug report. Absence of a
// row means the embedding has not been computed yet.
type BugEmbedding struct {
	ID          int32
	BugReportID int32
	Model       string
	Embedding   []float32
	CreatedTs   int64
	UpdatedTs   int64
}

// FindBugEmbedding is the find condition for bug embeddings.
type FindBugEmbedding struct {
	BugReportID *int32
	Model       *string
}

// FindBugReportsWithoutEmbedding is the find condition for bug reports lacking
// an embedding for a given model.
type FindBugReportsWithoutEmbedding struct {
	Model string // embedding model to check
	Limit int    // maximum number of bug reports to return
}

// BugReportWithScore represents a vector search result with similarity score.
type BugReportWithScore struct {
	BugReport *BugReport
	Score     float32 // cosine similarity (0-1, higher is more similar)
}

// BugVectorSearchOptions represents the options for bug report vector search.
// OrganizationID is mandatory: tenant isolation is enforced inside the query,
// never as a post-filter.
type BugVectorSearchOptions struct {
	Vector         []float32
	OrganizationID int32
	ExcludeBugID   int32 // the target bug, excluded from its own results
	MinSimilarity  float32
	Limit          int
	Model          string
}

// Validate validates the BugVectorSearchOptions.
func (o *BugVectorSearchOptions) Validate() error {
	if o.OrganizationID <= 0 {
		return errors.Errorf("invalid OrganizationID: %d", o.OrganizationID)
	}
	if len(o.Vector) == 0 {
		return errors.Errorf("vector cannot be empty")
	}
	if o.MinSimilarity < 0 || o.MinSimilarity > 1 {
		return errors.Errorf("min similarity out of range: %f", o.MinSimilarity)
	}
	if o.Limit < 0 {
		return errors.Errorf("limit cannot be negative: %d", o.Limit)
	}
	if o.Limit == 0 {
		o.Limit = 10 // Default limit
	}
	if o.Limit > 1000 {
		return errors.Errorf("limit too large (max 1000): %d", o.Limit)
	}
	return nil
}

// UpsertBugEmbedding inserts or updates a bug report embedding.
func (s *Store) UpsertBugEmbedding(ctx context.Context, embedding *BugEmbedding) (*BugEmbedding, error) {
	return s.driver.UpsertBugEmbedding(ctx, embedding)
}

// GetBugEmbedding gets the embedding of a specific bug report.
func (s *Store) GetBugEmbedding(ctx context.Context, bugReportID int32, model string) (*BugEmbedding, error) {
	list, err := s.driver.ListBugEmbeddings(ctx, &FindBugEmbedding{
		BugReportID: &bugReportID,
		Model:       &model,
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// ListBugEmbeddings lists bug report embeddings.
func (s *Store) ListBugEmbeddings(ctx context.Context, find *FindBugEmbedding) ([]*BugEmbedding, error) {
	return s.driver.ListBugEmbeddings(ctx, find)
}

// FindBugReportsWithoutEmbedding finds bug reports that don't have embeddings for the specified model.
func (s *Store) FindBugReportsWithoutEmbedding(ctx context.Context, find *FindBugReportsWithoutEmbedding) ([]*BugReport, error) {
	return s.driver.FindBugReportsWithoutEmbedding(ctx, find)
}

// BugVectorSearch performs vector similarity search on bug reports.
func (s *Store) BugVectorSearch(ctx context.Context, opts *BugVectorSearchOptions) ([]*BugReportWithScore, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.driver.BugVectorSearch(ctx, opts)
}
