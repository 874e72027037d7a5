package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/snagtrack/snagtrack/internal/metrics"
	"github.com/snagtrack/snagtrack/internal/profile"
	"github.com/snagtrack/snagtrack/server/auth"
	"github.com/snagtrack/snagtrack/server/service/similarity"
	"github.com/snagtrack/snagtrack/store"
	"github.com/snagtrack/snagtrack/store/db/sqlite"
)

const (
	testPassword = "correct horse battery staple"
	testModel    = "test-embedding-model"
)

type testEnv struct {
	echo  *echo.Echo
	store *store.Store
	org   *store.Organization
	app   *store.Application
	user  *store.User
	token string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	testProfile := &profile.Profile{
		Mode:           "dev",
		Driver:         "sqlite",
		DSN:            ":memory:",
		EmbeddingModel: testModel,
	}
	driver, err := sqlite.NewDB(testProfile)
	require.NoError(t, err)
	storeInstance := store.New(driver, testProfile)
	require.NoError(t, storeInstance.Migrate(ctx))
	t.Cleanup(func() { _ = storeInstance.Close() })

	env := &testEnv{store: storeInstance}
	env.org, env.app, env.user, env.token = seedTenant(t, storeInstance, "acme", "tester")

	service, err := NewAPIV1Service(ctx, "test-secret", testProfile, storeInstance, metrics.New())
	require.NoError(t, err)

	env.echo = echo.New()
	service.RegisterRoutes(env.echo)
	return env
}

func seedTenant(t *testing.T, s *store.Store, orgName, username string) (*store.Organization, *store.Application, *store.User, string) {
	t.Helper()
	ctx := context.Background()

	org, err := s.CreateOrganization(ctx, &store.Organization{Name: orgName, CreatedTs: time.Now().Unix()})
	require.NoError(t, err)

	app, err := s.CreateApplication(ctx, &store.Application{
		OrganizationID: org.ID,
		Name:           orgName + " Web App",
		CreatedTs:      time.Now().Unix(),
	})
	require.NoError(t, err)

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	user, err := s.CreateUser(ctx, &store.User{
		OrganizationID: org.ID,
		Username:       username,
		PasswordHash:   string(passwordHash),
		Role:           store.RoleUser,
		CreatedTs:      time.Now().Unix(),
	})
	require.NoError(t, err)

	token := auth.GenerateAccessToken()
	_, err = s.CreateUserAccessToken(ctx, &store.UserAccessToken{
		TokenHash: auth.HashAccessToken(token),
		UserID:    user.ID,
		CreatedTs: time.Now().Unix(),
	})
	require.NoError(t, err)

	return org, app, user, token
}

func (env *testEnv) request(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	env.echo.ServeHTTP(recorder, req)
	return recorder
}

func decodeJSON[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &out), "body: %s", recorder.Body.String())
	return out
}

func (env *testEnv) createBug(t *testing.T, title, description string) *BugReport {
	t.Helper()
	body := fmt.Sprintf(`{"application_id": %d, "title": %q, "description": %q}`, env.app.ID, title, description)
	recorder := env.request(t, http.MethodPost, "/api/v1/bugs", body, env.token)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	bug := decodeJSON[*BugReport](t, recorder)
	return bug
}

// embedAt stores a unit vector at the given angle so that the cosine
// similarity between two bugs equals cos(a-b) exactly.
func (env *testEnv) embedAt(t *testing.T, bugID int32, angle float64) {
	t.Helper()
	_, err := env.store.UpsertBugEmbedding(context.Background(), &store.BugEmbedding{
		BugReportID: bugID,
		Model:       testModel,
		Embedding:   []float32{float32(math.Cos(angle)), float32(math.Sin(angle))},
	})
	require.NoError(t, err)
}

func TestSignIn(t *testing.T) {
	env := setupTestEnv(t)

	recorder := env.request(t, http.MethodPost, "/api/v1/auth/signin",
		fmt.Sprintf(`{"username": "tester", "password": %q}`, testPassword), "")
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	response := decodeJSON[*SignInResponse](t, recorder)
	assert.True(t, strings.HasPrefix(response.AccessToken, auth.AccessTokenPrefix))
	assert.Equal(t, env.user.ID, response.User.ID)

	// The issued token works.
	me := env.request(t, http.MethodGet, "/api/v1/auth/me", "", response.AccessToken)
	assert.Equal(t, http.StatusOK, me.Code)
}

func TestSignIn_WrongPassword(t *testing.T) {
	env := setupTestEnv(t)

	recorder := env.request(t, http.MethodPost, "/api/v1/auth/signin",
		`{"username": "tester", "password": "nope"}`, "")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	unknown := env.request(t, http.MethodPost, "/api/v1/auth/signin",
		`{"username": "ghost", "password": "nope"}`, "")
	assert.Equal(t, recorder.Code, unknown.Code, "wrong user and wrong password must be indistinguishable")
}

func TestAuthRequired(t *testing.T) {
	env := setupTestEnv(t)

	assert.Equal(t, http.StatusUnauthorized, env.request(t, http.MethodGet, "/api/v1/bugs", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.request(t, http.MethodGet, "/api/v1/bugs", "", "snag_pat_bogus").Code)
}

func TestCreateApplication_AdminOnly(t *testing.T) {
	env := setupTestEnv(t)

	recorder := env.request(t, http.MethodPost, "/api/v1/applications", `{"name": "Mobile App"}`, env.token)
	assert.Equal(t, http.StatusForbidden, recorder.Code, "regular users cannot create applications")

	ctx := context.Background()
	admin, err := env.store.CreateUser(ctx, &store.User{
		OrganizationID: env.org.ID,
		Username:       "admin",
		PasswordHash:   "unused",
		Role:           store.RoleAdmin,
		CreatedTs:      time.Now().Unix(),
	})
	require.NoError(t, err)
	adminToken := auth.GenerateAccessToken()
	_, err = env.store.CreateUserAccessToken(ctx, &store.UserAccessToken{
		TokenHash: auth.HashAccessToken(adminToken),
		UserID:    admin.ID,
		CreatedTs: time.Now().Unix(),
	})
	require.NoError(t, err)

	created := env.request(t, http.MethodPost, "/api/v1/applications", `{"name": "Mobile App"}`, adminToken)
	require.Equal(t, http.StatusOK, created.Code, created.Body.String())

	listed := env.request(t, http.MethodGet, "/api/v1/applications", "", env.token)
	require.Equal(t, http.StatusOK, listed.Code)
	apps := decodeJSON[[]*Application](t, listed)
	assert.Len(t, apps, 2)
}

func TestCreateBugReport(t *testing.T) {
	env := setupTestEnv(t)

	bug := env.createBug(t, "crash on login", "NPE in session handler")

	assert.True(t, strings.HasPrefix(bug.DisplayID, "BUG-"), "display id %q", bug.DisplayID)
	assert.Equal(t, store.BugStatusOpen, bug.Status)
	assert.Equal(t, env.org.ID, bug.OrganizationID)
	assert.Equal(t, env.user.ID, bug.ReporterID)
}

func TestCreateBugReport_UnknownApplication(t *testing.T) {
	env := setupTestEnv(t)

	recorder := env.request(t, http.MethodPost, "/api/v1/bugs",
		`{"application_id": 999, "title": "crash"}`, env.token)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestGetBugReport_TenantIsolation(t *testing.T) {
	env := setupTestEnv(t)
	bug := env.createBug(t, "crash on login", "")

	_, _, _, otherToken := seedTenant(t, env.store, "rival", "outsider")

	recorder := env.request(t, http.MethodGet, fmt.Sprintf("/api/v1/bugs/%d", bug.ID), "", otherToken)
	assert.Equal(t, http.StatusNotFound, recorder.Code, "cross-tenant access must look like a missing bug")

	own := env.request(t, http.MethodGet, fmt.Sprintf("/api/v1/bugs/%d", bug.ID), "", env.token)
	assert.Equal(t, http.StatusOK, own.Code)
}

func TestListBugReports_Filter(t *testing.T) {
	env := setupTestEnv(t)
	open := env.createBug(t, "crash on login", "")
	closed := env.createBug(t, "old report", "")

	recorder := env.request(t, http.MethodPatch, fmt.Sprintf("/api/v1/bugs/%d", closed.ID),
		`{"status": "closed"}`, env.token)
	require.Equal(t, http.StatusOK, recorder.Code)

	all := decodeJSON[*ListBugReportsResponse](t, env.request(t, http.MethodGet, "/api/v1/bugs", "", env.token))
	assert.Equal(t, 2, all.TotalSize)

	filtered := decodeJSON[*ListBugReportsResponse](t,
		env.request(t, http.MethodGet, `/api/v1/bugs?filter=status+%3D%3D+%22open%22`, "", env.token))
	require.Equal(t, 1, filtered.TotalSize)
	assert.Equal(t, open.ID, filtered.Bugs[0].ID)

	bad := env.request(t, http.MethodGet, `/api/v1/bugs?filter=status+%3D%3D`, "", env.token)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestUpdateBugReport_InvalidStatus(t *testing.T) {
	env := setupTestEnv(t)
	bug := env.createBug(t, "crash on login", "")

	recorder := env.request(t, http.MethodPatch, fmt.Sprintf("/api/v1/bugs/%d", bug.ID),
		`{"status": "wontfix"}`, env.token)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestGetSimilarBugs_NoEmbeddingYet(t *testing.T) {
	env := setupTestEnv(t)
	bug := env.createBug(t, "crash on login", "")

	recorder := env.request(t, http.MethodGet, fmt.Sprintf("/api/v1/bugs/%d/similar", bug.ID), "", env.token)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	response := decodeJSON[*SimilarBugsResponse](t, recorder)
	assert.False(t, response.HasEmbedding)
	assert.Empty(t, response.SimilarBugs.PossibleDuplicates)
	assert.Empty(t, response.SimilarBugs.RelatedBugs)
}

func TestGetSimilarBugs_Tiers(t *testing.T) {
	env := setupTestEnv(t)
	target := env.createBug(t, "crash on login", "NPE in session handler")
	duplicate := env.createBug(t, "login crash", "session handler throws NPE")
	related := env.createBug(t, "session timeout too short", "")
	unrelated := env.createBug(t, "typo on pricing page", "")

	env.embedAt(t, target.ID, 0)
	env.embedAt(t, duplicate.ID, math.Acos(0.95))
	env.embedAt(t, related.ID, math.Acos(0.80))
	env.embedAt(t, unrelated.ID, math.Acos(0.10))

	// Another tenant files an identically embedded bug. The index query is
	// organization-scoped, so it must never surface no matter how similar.
	rivalOrg, rivalApp, rivalUser, _ := seedTenant(t, env.store, "rival", "outsider")
	intruder, err := env.store.CreateBugReport(context.Background(), &store.BugReport{
		UID:            "BUG-RIVAL1",
		OrganizationID: rivalOrg.ID,
		ApplicationID:  rivalApp.ID,
		Title:          "crash on login",
		Description:    "NPE in session handler",
		Status:         store.BugStatusOpen,
		ReporterID:     rivalUser.ID,
	})
	require.NoError(t, err)
	env.embedAt(t, intruder.ID, 0)

	recorder := env.request(t, http.MethodGet, fmt.Sprintf("/api/v1/bugs/%d/similar", target.ID), "", env.token)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	response := decodeJSON[*SimilarBugsResponse](t, recorder)
	assert.True(t, response.HasEmbedding)
	require.Len(t, response.SimilarBugs.PossibleDuplicates, 1)
	assert.Equal(t, duplicate.ID, response.SimilarBugs.PossibleDuplicates[0].ID)
	assert.Equal(t, env.app.Name, response.SimilarBugs.PossibleDuplicates[0].ApplicationName)
	require.Len(t, response.SimilarBugs.RelatedBugs, 1)
	assert.Equal(t, related.ID, response.SimilarBugs.RelatedBugs[0].ID)
	for _, tier := range [][]similarity.Candidate{response.SimilarBugs.PossibleDuplicates, response.SimilarBugs.RelatedBugs} {
		for _, candidate := range tier {
			assert.NotEqual(t, intruder.ID, candidate.ID, "cross-tenant bug leaked into results")
		}
	}
}

func TestGetSimilarBugs_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	recorder := env.request(t, http.MethodGet, "/api/v1/bugs/999/similar", "", env.token)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestDismissSuggestion(t *testing.T) {
	env := setupTestEnv(t)
	target := env.createBug(t, "crash on login", "")
	suggested := env.createBug(t, "login crash", "")
	env.embedAt(t, target.ID, 0)
	env.embedAt(t, suggested.ID, math.Acos(0.95))

	body := fmt.Sprintf(`{"suggested_bug_id": %d, "suggestion_type": "duplicate", "similarity_score": 0.95}`, suggested.ID)
	recorder := env.request(t, http.MethodPost, fmt.Sprintf("/api/v1/bugs/%d/similar/dismiss", target.ID), body, env.token)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	first := decodeJSON[*DismissSuggestionResponse](t, recorder)
	assert.True(t, first.Success)
	assert.NotEmpty(t, first.FeedbackID)

	// Repeating the dismissal succeeds and keeps the feedback id.
	again := decodeJSON[*DismissSuggestionResponse](t,
		env.request(t, http.MethodPost, fmt.Sprintf("/api/v1/bugs/%d/similar/dismiss", target.ID), body, env.token))
	assert.Equal(t, first.FeedbackID, again.FeedbackID)

	// The dismissed bug no longer shows up as similar.
	similar := decodeJSON[*SimilarBugsResponse](t,
		env.request(t, http.MethodGet, fmt.Sprintf("/api/v1/bugs/%d/similar", target.ID), "", env.token))
	assert.Empty(t, similar.SimilarBugs.PossibleDuplicates)
	assert.Empty(t, similar.SimilarBugs.RelatedBugs)
}

func TestDismissSuggestion_Errors(t *testing.T) {
	env := setupTestEnv(t)
	target := env.createBug(t, "crash on login", "")
	suggested := env.createBug(t, "login crash", "")

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{
			"unknown suggested bug",
			fmt.Sprintf("/api/v1/bugs/%d/similar/dismiss", target.ID),
			`{"suggested_bug_id": 999, "suggestion_type": "duplicate", "similarity_score": 0.9}`,
			http.StatusNotFound,
		},
		{
			"unknown target bug",
			"/api/v1/bugs/999/similar/dismiss",
			fmt.Sprintf(`{"suggested_bug_id": %d, "suggestion_type": "duplicate", "similarity_score": 0.9}`, suggested.ID),
			http.StatusNotFound,
		},
		{
			"invalid suggestion type",
			fmt.Sprintf("/api/v1/bugs/%d/similar/dismiss", target.ID),
			fmt.Sprintf(`{"suggested_bug_id": %d, "suggestion_type": "maybe", "similarity_score": 0.9}`, suggested.ID),
			http.StatusBadRequest,
		},
		{
			"self dismissal",
			fmt.Sprintf("/api/v1/bugs/%d/similar/dismiss", target.ID),
			fmt.Sprintf(`{"suggested_bug_id": %d, "suggestion_type": "duplicate", "similarity_score": 1}`, target.ID),
			http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := env.request(t, http.MethodPost, tt.path, tt.body, env.token)
			assert.Equal(t, tt.want, recorder.Code, recorder.Body.String())
		})
	}
}
