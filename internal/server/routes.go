package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/status", s.handleStatus)
	s.echo.GET("/stats", s.handleStats)

	// Observer attach (OBS browser sources - no auth, rate limited per IP)
	s.echo.GET("/ws", s.handleWebSocket, newRateLimiter(s.config.WSRatePerSecond, s.config.WSRateBurst))

	// Admin settings
	s.echo.GET("/admin/settings", s.handleGetSettings)
	s.echo.POST("/admin/settings", s.handleSaveSettings)

	// OAuth flow
	s.echo.GET("/oauth/start", s.handleOAuthStart)
	s.echo.GET("/oauth/callback", s.handleOAuthCallback)

	// Worker control
	s.echo.POST("/internal/restart-eventsub", s.handleRestartWorker)
}
