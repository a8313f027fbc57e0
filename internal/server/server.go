// Package server exposes the HTTP surface: observer WebSocket attach, status
// and health endpoints, admin settings, the OAuth flow, and Prometheus
// metrics.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Mournian-ai/Mournian-Overlay/internal/broadcast"
	"github.com/Mournian-ai/Mournian-Overlay/internal/config"
	"github.com/Mournian-ai/Mournian-Overlay/internal/eventsub"
	"github.com/Mournian-ai/Mournian-Overlay/internal/store"
	"github.com/Mournian-ai/Mournian-Overlay/internal/twitch"
)

// WorkerSupervisor is the worker-lifecycle surface the HTTP handlers use.
type WorkerSupervisor interface {
	Restart()
	Status() eventsub.Status
}

type Server struct {
	echo         *echo.Echo
	config       *config.Config
	store        *store.Store
	hub          *broadcast.Hub
	workers      WorkerSupervisor
	tokens       *twitch.TokenSource
	oauth        *twitch.OAuthClient
	sessionStore *sessions.CookieStore
}

func NewServer(cfg *config.Config, s *store.Store, hub *broadcast.Hub, workers WorkerSupervisor, tokens *twitch.TokenSource, oauth *twitch.OAuthClient) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   3600,
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	}

	srv := &Server{
		echo:         e,
		config:       cfg,
		store:        s,
		hub:          hub,
		workers:      workers,
		tokens:       tokens,
		oauth:        oauth,
		sessionStore: sessionStore,
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
