package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Mournian-ai/Mournian-Overlay/internal/store"
)

// Scopes requested for follow/sub/cheer subscriptions.
var oauthScopes = []string{
	"moderator:read:followers",
	"channel:read:subscriptions",
	"bits:read",
}

// OAuthClient handles the one-shot authorization-code exchange. It reads the
// client credentials from the store at call time so admin changes take effect
// without a restart.
type OAuthClient struct {
	store     *store.Store
	oauthBase string
	client    *http.Client
}

// NewOAuthClient builds a client against the given OAuth base URL,
// e.g. "https://id.twitch.tv/oauth2".
func NewOAuthClient(s *store.Store, oauthBase string) *OAuthClient {
	return &OAuthClient{
		store:     s,
		oauthBase: strings.TrimRight(oauthBase, "/"),
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthorizeURL builds the authorization redirect for the given CSRF state.
func (c *OAuthClient) AuthorizeURL(state string) string {
	settings := c.store.Settings()
	q := url.Values{}
	q.Set("client_id", settings.ClientID)
	q.Set("redirect_uri", settings.RedirectURI)
	q.Set("response_type", "code")
	q.Set("state", state)
	q.Set("scope", strings.Join(oauthScopes, " "))
	q.Set("force_verify", "true")
	return c.oauthBase + "/authorize?" + q.Encode()
}

// Configured reports whether the stored app credentials are complete enough
// to start an authorization flow.
func (c *OAuthClient) Configured() bool {
	settings := c.store.Settings()
	return settings.ClientID != "" && settings.ClientSecret != "" && settings.RedirectURI != ""
}

// ExchangeCode trades an authorization code for an access/refresh token pair.
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (access, refresh string, err error) {
	settings := c.store.Settings()

	form := url.Values{}
	form.Set("client_id", settings.ClientID)
	form.Set("client_secret", settings.ClientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", settings.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauthBase+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("token exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("token exchange returned status %d", resp.StatusCode)
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", fmt.Errorf("failed to decode token response: %w", err)
	}

	return result.AccessToken, result.RefreshToken, nil
}
