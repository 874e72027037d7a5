package store

import (
	"context"

	"github.com/pkg/errors"
)

// BugReportStatus is the lifecycle status of a bug report.
type BugReportStatus string

const (
	BugStatusOpen       BugReportStatus = "open"
	BugStatusInProgress BugReportStatus = "in_progress"
	BugStatusResolved   BugReportStatus = "resolved"
	BugStatusClosed     BugReportStatus = "closed"
)

// IsValid reports whether the status is one of the known lifecycle states.
func (s BugReportStatus) IsValid() bool {
	switch s {
	case BugStatusOpen, BugStatusInProgress, BugStatusResolved, BugStatusClosed:
		return true
	}
	return false
}

// BugReport represents a reported defect. Its embedding lives in a separate
// bug_embedding row and may lag creation by up to one embedding-job cycle.
type BugReport struct {
	ID             int32
	UID            string // human-readable display id, e.g. "BUG-X7K2QD"
	OrganizationID int32
	ApplicationID  int32
	Title          string
	Description    string
	Status         BugReportStatus
	ReporterID     int32
	CreatedTs      int64
	UpdatedTs      int64
}

// FindBugReport is the find condition for bug reports.
type FindBugReport struct {
	ID             *int32
	UID            *string
	OrganizationID *int32
	ApplicationID  *int32
	Status         *BugReportStatus
	Limit          *int
}

// UpdateBugReport is the update payload for a bug report. Nil fields are left
// unchanged.
type UpdateBugReport struct {
	ID          int32
	Title       *string
	Description *string
	Status      *BugReportStatus
	UpdatedTs   int64
}

func (s *Store) CreateBugReport(ctx context.Context, create *BugReport) (*BugReport, error) {
	if create.Title == "" {
		return nil, errors.New("title cannot be empty")
	}
	if !create.Status.IsValid() {
		return nil, errors.Errorf("invalid status: %s", create.Status)
	}
	return s.driver.CreateBugReport(ctx, create)
}

func (s *Store) GetBugReport(ctx context.Context, find *FindBugReport) (*BugReport, error) {
	list, err := s.driver.ListBugReports(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) ListBugReports(ctx context.Context, find *FindBugReport) ([]*BugReport, error) {
	return s.driver.ListBugReports(ctx, find)
}

func (s *Store) UpdateBugReport(ctx context.Context, update *UpdateBugReport) (*BugReport, error) {
	if update.Status != nil && !update.Status.IsValid() {
		return nil, errors.Errorf("invalid status: %s", *update.Status)
	}
	return s.driver.UpdateBugReport(ctx, update)
}
