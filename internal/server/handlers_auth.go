package server

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const oauthSessionName = "oauth"

func (s *Server) handleOAuthStart(c echo.Context) error {
	if !s.oauth.Configured() {
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "client credentials are not configured; save them first",
		})
	}

	state := uuid.NewString()

	sess, _ := s.sessionStore.Get(c.Request(), oauthSessionName)
	sess.Values["state"] = state
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		slog.Error("Failed to save OAuth session", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to start OAuth flow"})
	}

	return c.Redirect(http.StatusSeeOther, s.oauth.AuthorizeURL(state))
}

func (s *Server) handleOAuthCallback(c echo.Context) error {
	if errParam := c.QueryParam("error"); errParam != "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": errParam})
	}

	code := c.QueryParam("code")
	state := c.QueryParam("state")

	sess, _ := s.sessionStore.Get(c.Request(), oauthSessionName)
	expected, _ := sess.Values["state"].(string)
	delete(sess.Values, "state")
	_ = sess.Save(c.Request(), c.Response())

	if code == "" || state == "" || state != expected {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid OAuth state"})
	}

	access, refresh, err := s.oauth.ExchangeCode(c.Request().Context(), code)
	if err != nil {
		slog.Error("OAuth code exchange failed", "error", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "token exchange failed"})
	}

	if err := s.tokens.SetTokens(access, refresh); err != nil {
		slog.Error("Failed to persist tokens", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to persist tokens"})
	}

	// Fresh credentials invalidate the running session's auth state.
	s.workers.Restart()

	return c.JSON(http.StatusOK, map[string]bool{"connected": true})
}
