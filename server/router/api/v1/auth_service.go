package v1

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/snagtrack/snagtrack/server/auth"
	"github.com/snagtrack/snagtrack/store"
)

type SignInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SignInResponse struct {
	AccessToken string `json:"access_token"`
	User        *User  `json:"user"`
}

// User is the API representation of a user. The password hash never leaves
// the store layer.
type User struct {
	ID             int32      `json:"id"`
	OrganizationID int32      `json:"organization_id"`
	Username       string     `json:"username"`
	Role           store.Role `json:"role"`
}

func convertUserFromStore(user *store.User) *User {
	return &User{
		ID:             user.ID,
		OrganizationID: user.OrganizationID,
		Username:       user.Username,
		Role:           user.Role,
	}
}

// SignIn verifies credentials and issues a bearer token. Wrong username and
// wrong password return the same error so the endpoint cannot be used to probe
// for accounts.
func (s *APIV1Service) SignIn(c echo.Context) error {
	ctx := c.Request().Context()

	request := &SignInRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed signin request").SetInternal(err)
	}
	if request.Username == "" || request.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
	}

	user, err := s.Store.GetUser(ctx, &store.FindUser{Username: &request.Username})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load user").SetInternal(err)
	}
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "incorrect username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(request.Password)); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "incorrect username or password")
	}

	token := auth.GenerateAccessToken()
	if _, err := s.Store.CreateUserAccessToken(ctx, &store.UserAccessToken{
		TokenHash: auth.HashAccessToken(token),
		UserID:    user.ID,
		CreatedTs: time.Now().Unix(),
	}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create access token").SetInternal(err)
	}

	slog.Info("user signed in", "user_id", user.ID, "organization_id", user.OrganizationID)
	return c.JSON(http.StatusOK, &SignInResponse{
		AccessToken: token,
		User:        convertUserFromStore(user),
	})
}

// GetCurrentUser returns the authenticated user.
func (s *APIV1Service) GetCurrentUser(c echo.Context) error {
	return c.JSON(http.StatusOK, convertUserFromStore(currentUser(c)))
}
