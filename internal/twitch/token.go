package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Mournian-ai/Mournian-Overlay/internal/domain"
	"github.com/Mournian-ai/Mournian-Overlay/internal/metrics"
	"github.com/Mournian-ai/Mournian-Overlay/internal/store"
)

const httpCallTimeout = 20 * time.Second

// TokenSource holds the current access/refresh token pair. It is the only
// component that mutates tokens; every change is persisted to the store
// before the mutating call returns.
type TokenSource struct {
	mu       sync.Mutex
	store    *store.Store
	tokenURL string // OAuth token endpoint (configurable for testing)
	client   *http.Client

	access  string
	refresh string
}

// NewTokenSource builds a TokenSource seeded from the stored settings.
// oauthBase is the OAuth service base URL, e.g. "https://id.twitch.tv/oauth2".
func NewTokenSource(s *store.Store, oauthBase string) *TokenSource {
	settings := s.Settings()
	return &TokenSource{
		store:    s,
		tokenURL: strings.TrimRight(oauthBase, "/") + "/token",
		client:   &http.Client{Timeout: httpCallTimeout},
		access:   settings.UserAccessToken,
		refresh:  settings.UserRefreshToken,
	}
}

// Current returns the most recently obtained access token, or "" if the
// account has never been connected.
func (ts *TokenSource) Current() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.access
}

// CanRefresh reports whether a refresh token is held.
func (ts *TokenSource) CanRefresh() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.refresh != ""
}

// SetTokens replaces both tokens and persists them. Used by the OAuth
// callback after an authorization-code exchange.
func (ts *TokenSource) SetTokens(access, refresh string) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.storeTokens(access, refresh)
}

// Refresh exchanges the stored refresh token for a new access/refresh pair.
// Without a refresh token it is a no-op: the current token stays as-is and
// the operation that needed a fresher token will fail on its own. On any
// exchange failure the prior tokens are left untouched.
func (ts *TokenSource) Refresh(ctx context.Context) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.refresh == "" {
		slog.Debug("No refresh token held, skipping refresh")
		return nil
	}

	settings := ts.store.Settings()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", ts.refresh)
	form.Set("client_id", settings.ClientID)
	form.Set("client_secret", settings.ClientSecret)
	form.Set("redirect_uri", settings.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.AuthError("failed to build refresh request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.client.Do(req)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("error").Inc()
		return domain.AuthError("token refresh request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("error").Inc()
		return domain.AuthError("failed to read refresh response", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.TokenRefreshesTotal.WithLabelValues("rejected").Inc()
		return domain.AuthError("token refresh rejected",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("error").Inc()
		return domain.AuthError("failed to decode refresh response", err)
	}

	access := ts.access
	if result.AccessToken != "" {
		access = result.AccessToken
	}
	refresh := ts.refresh
	if result.RefreshToken != "" {
		refresh = result.RefreshToken
	}

	if err := ts.storeTokens(access, refresh); err != nil {
		return err
	}

	metrics.TokenRefreshesTotal.WithLabelValues("ok").Inc()
	slog.Info("Refreshed user access token")
	return nil
}

// storeTokens persists both tokens. Callers must hold the mutex.
func (ts *TokenSource) storeTokens(access, refresh string) error {
	err := ts.store.UpdateSettings(func(settings *store.Settings) {
		settings.UserAccessToken = access
		settings.UserRefreshToken = refresh
	})
	if err != nil {
		return fmt.Errorf("failed to persist tokens: %w", err)
	}
	ts.access = access
	ts.refresh = refresh
	return nil
}
