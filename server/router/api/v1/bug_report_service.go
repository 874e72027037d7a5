package v1

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"

	"github.com/snagtrack/snagtrack/store"
)

type BugReport struct {
	ID             int32                 `json:"id"`
	DisplayID      string                `json:"display_id"`
	OrganizationID int32                 `json:"organization_id"`
	ApplicationID  int32                 `json:"application_id"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Status         store.BugReportStatus `json:"status"`
	ReporterID     int32                 `json:"reporter_id"`
	CreatedTs      int64                 `json:"created_at"`
	UpdatedTs      int64                 `json:"updated_at"`
}

func convertBugReportFromStore(bug *store.BugReport) *BugReport {
	return &BugReport{
		ID:             bug.ID,
		DisplayID:      bug.UID,
		OrganizationID: bug.OrganizationID,
		ApplicationID:  bug.ApplicationID,
		Title:          bug.Title,
		Description:    bug.Description,
		Status:         bug.Status,
		ReporterID:     bug.ReporterID,
		CreatedTs:      bug.CreatedTs,
		UpdatedTs:      bug.UpdatedTs,
	}
}

type CreateBugReportRequest struct {
	ApplicationID int32  `json:"application_id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
}

type UpdateBugReportRequest struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	Status      *store.BugReportStatus `json:"status"`
}

type ListBugReportsResponse struct {
	Bugs      []*BugReport `json:"bugs"`
	TotalSize int          `json:"total_size"`
}

// newBugDisplayID returns a short human-readable identifier for a bug report,
// e.g. "BUG-K7M2QD". Uniqueness is enforced by the store.
func newBugDisplayID() string {
	return "BUG-" + strings.ToUpper(shortuuid.New()[:6])
}

// CreateBugReport files a new bug in the requester's organization. The
// embedding is computed asynchronously; the bug is immediately visible either
// way.
func (s *APIV1Service) CreateBugReport(c echo.Context) error {
	ctx := c.Request().Context()
	user := currentUser(c)

	request := &CreateBugReportRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed bug report").SetInternal(err)
	}
	if request.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	if request.ApplicationID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "application_id is required")
	}

	application, err := s.Store.GetApplication(ctx, &store.FindApplication{
		ID:             &request.ApplicationID,
		OrganizationID: &user.OrganizationID,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load application").SetInternal(err)
	}
	if application == nil {
		return echo.NewHTTPError(http.StatusNotFound, "application not found")
	}

	now := time.Now().Unix()
	bug, err := s.Store.CreateBugReport(ctx, &store.BugReport{
		UID:            newBugDisplayID(),
		OrganizationID: user.OrganizationID,
		ApplicationID:  application.ID,
		Title:          request.Title,
		Description:    request.Description,
		Status:         store.BugStatusOpen,
		ReporterID:     user.ID,
		CreatedTs:      now,
		UpdatedTs:      now,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create bug report").SetInternal(err)
	}
	return c.JSON(http.StatusOK, convertBugReportFromStore(bug))
}

// GetBugReport returns one bug. Bugs outside the requester's organization are
// reported as not found.
func (s *APIV1Service) GetBugReport(c echo.Context) error {
	ctx := c.Request().Context()
	user := currentUser(c)

	bugID, err := parseBugID(c)
	if err != nil {
		return err
	}
	bug, err := s.Store.GetBugReport(ctx, &store.FindBugReport{
		ID:             &bugID,
		OrganizationID: &user.OrganizationID,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load bug report").SetInternal(err)
	}
	if bug == nil {
		return echo.NewHTTPError(http.StatusNotFound, "bug report not found")
	}
	return c.JSON(http.StatusOK, convertBugReportFromStore(bug))
}

// ListBugReports lists the organization's bugs, newest first. An optional CEL
// filter expression narrows the result, e.g.
// `status == "open" && application_id == 3`.
func (s *APIV1Service) ListBugReports(c echo.Context) error {
	ctx := c.Request().Context()
	user := currentUser(c)

	find := &store.FindBugReport{OrganizationID: &user.OrganizationID}
	if status := store.BugReportStatus(c.QueryParam("status")); status != "" {
		if !status.IsValid() {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown status: "+string(status))
		}
		find.Status = &status
	}

	bugs, err := s.Store.ListBugReports(ctx, find)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list bug reports").SetInternal(err)
	}

	if filter := c.QueryParam("filter"); filter != "" {
		match, err := compileBugFilter(filter)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid filter").SetInternal(err)
		}
		filtered := bugs[:0]
		for _, bug := range bugs {
			ok, err := match(bug)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid filter").SetInternal(err)
			}
			if ok {
				filtered = append(filtered, bug)
			}
		}
		bugs = filtered
	}

	response := &ListBugReportsResponse{Bugs: []*BugReport{}, TotalSize: len(bugs)}
	for _, bug := range bugs {
		response.Bugs = append(response.Bugs, convertBugReportFromStore(bug))
	}
	return c.JSON(http.StatusOK, response)
}

// UpdateBugReport patches title, description or status. Absent fields are left
// unchanged.
func (s *APIV1Service) UpdateBugReport(c echo.Context) error {
	ctx := c.Request().Context()
	user := currentUser(c)

	bugID, err := parseBugID(c)
	if err != nil {
		return err
	}

	request := &UpdateBugReportRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed update").SetInternal(err)
	}
	if request.Status != nil && !request.Status.IsValid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status: "+string(*request.Status))
	}
	if request.Title != nil && *request.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title cannot be empty")
	}

	bug, err := s.Store.GetBugReport(ctx, &store.FindBugReport{
		ID:             &bugID,
		OrganizationID: &user.OrganizationID,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load bug report").SetInternal(err)
	}
	if bug == nil {
		return echo.NewHTTPError(http.StatusNotFound, "bug report not found")
	}

	updated, err := s.Store.UpdateBugReport(ctx, &store.UpdateBugReport{
		ID:          bug.ID,
		Title:       request.Title,
		Description: request.Description,
		Status:      request.Status,
		UpdatedTs:   time.Now().Unix(),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update bug report").SetInternal(err)
	}
	return c.JSON(http.StatusOK, convertBugReportFromStore(updated))
}

type CreateApplicationRequest struct {
	Name string `json:"name"`
}

// CreateApplication registers a new application in the requester's
// organization. Admin only.
func (s *APIV1Service) CreateApplication(c echo.Context) error {
	ctx := c.Request().Context()
	user := currentUser(c)

	if user.Role != store.RoleAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "permission denied")
	}

	request := &CreateApplicationRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed application").SetInternal(err)
	}
	if request.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	application, err := s.Store.CreateApplication(ctx, &store.Application{
		OrganizationID: user.OrganizationID,
		Name:           request.Name,
		CreatedTs:      time.Now().Unix(),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create application").SetInternal(err)
	}
	return c.JSON(http.StatusOK, convertApplicationFromStore(application))
}

// ListApplications lists the organization's applications.
func (s *APIV1Service) ListApplications(c echo.Context) error {
	ctx := c.Request().Context()
	user := currentUser(c)

	applications, err := s.Store.ListApplications(ctx, &store.FindApplication{
		OrganizationID: &user.OrganizationID,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list applications").SetInternal(err)
	}

	response := []*Application{}
	for _, app := range applications {
		response = append(response, convertApplicationFromStore(app))
	}
	return c.JSON(http.StatusOK, response)
}

type Application struct {
	ID        int32  `json:"id"`
	Name      string `json:"name"`
	CreatedTs int64  `json:"created_at"`
}

func convertApplicationFromStore(app *store.Application) *Application {
	return &Application{ID: app.ID, Name: app.Name, CreatedTs: app.CreatedTs}
}

func parseBugID(c echo.Context) (int32, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid bug id: "+c.Param("id"))
	}
	return int32(id), nil
}
