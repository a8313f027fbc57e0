package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Mournian-ai/Mournian-Overlay/internal/store"
)

// settingsView is the settings shape returned to the admin page. Secrets are
// reduced to presence flags.
type settingsView struct {
	DefaultChannel   string `json:"default_channel"`
	ClientID         string `json:"client_id"`
	HasClientSecret  bool   `json:"has_client_secret"`
	RedirectURI      string `json:"redirect_uri"`
	BroadcasterLogin string `json:"broadcaster_login"`
	BroadcasterID    string `json:"broadcaster_id"`
	ModeratorUserID  string `json:"moderator_user_id"`
	TokenConnected   bool   `json:"token_connected"`
}

type saveSettingsRequest struct {
	DefaultChannel   string `json:"default_channel" form:"default_channel"`
	ClientID         string `json:"client_id" form:"client_id"`
	ClientSecret     string `json:"client_secret" form:"client_secret"`
	RedirectURI      string `json:"redirect_uri" form:"redirect_uri"`
	BroadcasterLogin string `json:"broadcaster_login" form:"broadcaster_login"`
}

func (s *Server) handleGetSettings(c echo.Context) error {
	settings := s.store.Settings()
	return c.JSON(http.StatusOK, settingsView{
		DefaultChannel:   settings.DefaultChannel,
		ClientID:         settings.ClientID,
		HasClientSecret:  settings.ClientSecret != "",
		RedirectURI:      settings.RedirectURI,
		BroadcasterLogin: settings.BroadcasterLogin,
		BroadcasterID:    settings.BroadcasterID,
		ModeratorUserID:  settings.ModeratorUserID,
		TokenConnected:   settings.UserAccessToken != "",
	})
}

func (s *Server) handleSaveSettings(c echo.Context) error {
	var req saveSettingsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	// Changing the broadcaster login invalidates the cached identity.
	err := s.store.UpdateSettings(func(settings *store.Settings) {
		settings.DefaultChannel = strings.ToLower(strings.TrimSpace(req.DefaultChannel))
		settings.ClientID = strings.TrimSpace(req.ClientID)
		if req.ClientSecret != "" {
			settings.ClientSecret = strings.TrimSpace(req.ClientSecret)
		}
		if req.RedirectURI != "" {
			settings.RedirectURI = strings.TrimSpace(req.RedirectURI)
		}
		newLogin := strings.ToLower(strings.TrimSpace(req.BroadcasterLogin))
		if newLogin != settings.BroadcasterLogin {
			settings.BroadcasterLogin = newLogin
			settings.BroadcasterID = ""
		}
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to save settings"})
	}

	return s.handleGetSettings(c)
}

func (s *Server) handleRestartWorker(c echo.Context) error {
	s.workers.Restart()
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
