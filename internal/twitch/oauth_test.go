package twitch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mournian-ai/Mournian-Overlay/internal/store"
)

func configuredStore(t *testing.T) *store.Store {
	t.Helper()
	return testStoreWithSettings(t, func(settings *store.Settings) {
		settings.ClientID = "client-123"
		settings.ClientSecret = "hush"
		settings.RedirectURI = "http://localhost:8000/oauth/callback"
	})
}

func TestOAuthClient_Configured(t *testing.T) {
	oauth := NewOAuthClient(testStoreWithSettings(t, nil), "https://id.twitch.tv/oauth2")
	assert.False(t, oauth.Configured())

	oauth = NewOAuthClient(configuredStore(t), "https://id.twitch.tv/oauth2")
	assert.True(t, oauth.Configured())
}

func TestAuthorizeURL_CarriesScopesAndState(t *testing.T) {
	oauth := NewOAuthClient(configuredStore(t), "https://id.twitch.tv/oauth2")

	u, err := url.Parse(oauth.AuthorizeURL("state-1"))
	require.NoError(t, err)
	assert.Equal(t, "/oauth2/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "true", q.Get("force_verify"))
	assert.Equal(t, "moderator:read:followers channel:read:subscriptions bits:read", q.Get("scope"))
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "the-code", r.Form.Get("code"))
		assert.Equal(t, "hush", r.Form.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"acc","refresh_token":"ref"}`))
	}))
	defer srv.Close()

	s, err := store.Open(t.TempDir()+"/store.json", nil)
	require.NoError(t, err)
	require.NoError(t, s.UpdateSettings(func(settings *store.Settings) {
		settings.ClientID = "client-123"
		settings.ClientSecret = "hush"
		settings.RedirectURI = "http://localhost:8000/oauth/callback"
	}))
	oauth := NewOAuthClient(s, srv.URL)

	access, refresh, err := oauth.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "acc", access)
	assert.Equal(t, "ref", refresh)
}

func TestExchangeCode_NonOKStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid code"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	oauth := NewOAuthClient(configuredStore(t), srv.URL)

	_, _, err := oauth.ExchangeCode(context.Background(), "bad-code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
