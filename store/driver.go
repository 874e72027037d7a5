package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for database drivers.
type Driver interface {
	GetDB() *sql.DB
	Migrate(ctx context.Context) error
	Close() error

	// Organization model related methods.
	CreateOrganization(ctx context.Context, create *Organization) (*Organization, error)
	ListOrganizations(ctx context.Context, find *FindOrganization) ([]*Organization, error)

	// Application model related methods.
	CreateApplication(ctx context.Context, create *Application) (*Application, error)
	ListApplications(ctx context.Context, find *FindApplication) ([]*Application, error)

	// User model related methods.
	CreateUser(ctx context.Context, create *User) (*User, error)
	ListUsers(ctx context.Context, find *FindUser) ([]*User, error)
	CreateUserAccessToken(ctx context.Context, create *UserAccessToken) (*UserAccessToken, error)
	GetUserAccessToken(ctx context.Context, tokenHash string) (*UserAccessToken, error)

	// BugReport model related methods.
	CreateBugReport(ctx context.Context, create *BugReport) (*BugReport, error)
	ListBugReports(ctx context.Context, find *FindBugReport) ([]*BugReport, error)
	UpdateBugReport(ctx context.Context, update *UpdateBugReport) (*BugReport, error)

	// BugEmbedding model related methods.
	UpsertBugEmbedding(ctx context.Context, embedding *BugEmbedding) (*BugEmbedding, error)
	ListBugEmbeddings(ctx context.Context, find *FindBugEmbedding) ([]*BugEmbedding, error)
	FindBugReportsWithoutEmbedding(ctx context.Context, find *FindBugReportsWithoutEmbedding) ([]*BugReport, error)
	BugVectorSearch(ctx context.Context, opts *BugVectorSearchOptions) ([]*BugReportWithScore, error)

	// SimilarityFeedback model related methods.
	UpsertSimilarityFeedback(ctx context.Context, upsert *UpsertSimilarityFeedback) (*SimilarityFeedback, error)
	ListSimilarityFeedbacks(ctx context.Context, find *FindSimilarityFeedback) ([]*SimilarityFeedback, error)
}
