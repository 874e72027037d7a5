// Package v1 implements the JSON HTTP API.
package v1

import (
	"context"
	"net/http"
	"time"

	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/snagtrack/snagtrack/ai"
	"github.com/snagtrack/snagtrack/internal/metrics"
	"github.com/snagtrack/snagtrack/internal/profile"
	"github.com/snagtrack/snagtrack/plugin/embedjob"
	"github.com/snagtrack/snagtrack/server/auth"
	"github.com/snagtrack/snagtrack/server/service/similarity"
	"github.com/snagtrack/snagtrack/store"
)

type APIV1Service struct {
	Secret  string
	Profile *profile.Profile
	Store   *store.Store
	Engine  *similarity.Engine
	Metrics *metrics.Exporter

	authenticator *auth.Authenticator
	embedRunner   *embedjob.Runner
}

func NewAPIV1Service(_ context.Context, secret string, profile *profile.Profile, store *store.Store, metrics *metrics.Exporter) (*APIV1Service, error) {
	service := &APIV1Service{
		Secret:        secret,
		Profile:       profile,
		Store:         store,
		Metrics:       metrics,
		Engine:        similarity.NewEngine(store, profile.EmbeddingModel, metrics),
		authenticator: auth.NewAuthenticator(store),
	}

	if profile.IsEmbeddingEnabled() {
		aiConfig := ai.NewConfigFromProfile(profile)
		if err := aiConfig.Validate(); err != nil {
			slog.Warn("embedding config invalid, embedding job disabled", "error", err)
			return service, nil
		}
		embeddingService, err := ai.NewEmbeddingService(&aiConfig.Embedding)
		if err != nil {
			slog.Warn("failed to initialize embedding service, embedding job disabled", "error", err)
			return service, nil
		}
		service.embedRunner = embedjob.NewRunner(store, embeddingService, embedjob.Config{
			Model:         profile.EmbeddingModel,
			Interval:      time.Duration(profile.EmbedJobIntervalSeconds) * time.Second,
			BatchSize:     profile.EmbedJobBatchSize,
			RatePerSecond: profile.EmbedJobRatePerSecond,
		}, metrics)
		slog.Info("embedding service initialized",
			"provider", profile.EmbeddingProvider,
			"model", profile.EmbeddingModel)
	} else {
		slog.Info("embedding provider not configured, similarity suggestions will stay empty")
	}

	return service, nil
}

// RegisterRoutes registers all v1 routes. Signin is the only route reachable
// without a bearer token.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/auth/signin", s.SignIn)

	authed := g.Group("", s.requireAuth)
	authed.GET("/auth/me", s.GetCurrentUser)
	authed.POST("/applications", s.CreateApplication)
	authed.GET("/applications", s.ListApplications)
	authed.POST("/bugs", s.CreateBugReport)
	authed.GET("/bugs", s.ListBugReports)
	authed.GET("/bugs/:id", s.GetBugReport)
	authed.PATCH("/bugs/:id", s.UpdateBugReport)
	authed.GET("/bugs/:id/similar", s.GetSimilarBugs)
	authed.POST("/bugs/:id/similar/dismiss", s.DismissSuggestion)
}

// StartBackgroundRunners starts the embedding job, if configured. Runners stop
// when the context is canceled.
func (s *APIV1Service) StartBackgroundRunners(ctx context.Context) {
	if s.embedRunner != nil {
		go s.embedRunner.Run(ctx)
	}
}

// requireAuth resolves the bearer token and stores the user in the request
// context. Unknown and missing tokens are both 401; the response never says
// which.
func (s *APIV1Service) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		user, err := s.authenticator.Authenticate(ctx, c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to authenticate").SetInternal(err)
		}
		if user == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		c.SetRequest(c.Request().WithContext(auth.SetUserInContext(ctx, user)))
		return next(c)
	}
}

func currentUser(c echo.Context) *store.User {
	return auth.GetUserFromContext(c.Request().Context())
}
