package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/snagtrack/snagtrack/internal/metrics"
	"github.com/snagtrack/snagtrack/internal/profile"
	apiv1 "github.com/snagtrack/snagtrack/server/router/api/v1"
	"github.com/snagtrack/snagtrack/store"
)

type Server struct {
	Secret  string
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	apiV1      *apiv1.APIV1Service
	metrics    *metrics.Exporter
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	secret := os.Getenv("SNAGTRACK_SECRET")
	if secret == "" {
		secret = "snagtrack"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		Secret:     secret,
		Profile:    profile,
		Store:      store,
		echoServer: e,
		metrics:    metrics.New(),
	}

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				slog.Warn("request failed",
					"method", v.Method, "uri", v.URI, "status", v.Status, "error", v.Error)
			} else {
				slog.Debug("request",
					"method", v.Method, "uri", v.URI, "status", v.Status)
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Skipper:      middleware.DefaultSkipper,
		ErrorMessage: "request timeout",
		Timeout:      30 * time.Second,
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	apiV1Service, err := apiv1.NewAPIV1Service(ctx, secret, profile, store, s.metrics)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create api v1 service")
	}
	s.apiV1 = apiV1Service
	apiV1Service.RegisterRoutes(e)

	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	if s.Profile.UNIXSock != "" {
		listener, err := net.Listen("unix", s.Profile.UNIXSock)
		if err != nil {
			return errors.Wrapf(err, "failed to listen on unix socket %s", s.Profile.UNIXSock)
		}
		s.echoServer.Listener = listener
		go func() {
			if err := s.echoServer.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("failed to start echo server", "error", err)
			}
		}()
		return nil
	}

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()

	s.apiV1.StartBackgroundRunners(ctx)
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}

	slog.Info("snagtrack stopped properly")
}
