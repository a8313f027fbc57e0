package twitch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mournian-ai/Mournian-Overlay/internal/domain"
	"github.com/Mournian-ai/Mournian-Overlay/internal/store"
)

func TestBroadcasterID_CachedIDSkipsLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no lookup expected for a cached broadcaster ID")
	}))
	defer srv.Close()

	s := testStoreWithSettings(t, func(settings *store.Settings) {
		settings.BroadcasterID = "12345"
	})
	r := NewIdentityResolver(s, srv.URL)

	id, err := r.BroadcasterID(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "12345", id)
}

func TestBroadcasterID_MissingLoginIsConfigurationError(t *testing.T) {
	s := testStoreWithSettings(t, nil)
	r := NewIdentityResolver(s, "http://unused.invalid")

	_, err := r.BroadcasterID(context.Background(), "tok")
	require.Error(t, err)
	assert.Equal(t, domain.TypeConfiguration, domain.TypeOf(err))
}

func TestBroadcasterID_ResolvesAndPersists(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/users", r.URL.Path)
		assert.Equal(t, "somechannel", r.URL.Query().Get("login"))
		assert.Equal(t, "client-123", r.Header.Get("Client-Id"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"9876"}]}`))
	}))
	defer srv.Close()

	s := testStoreWithSettings(t, func(settings *store.Settings) {
		settings.ClientID = "client-123"
		settings.BroadcasterLogin = "somechannel"
	})
	r := NewIdentityResolver(s, srv.URL)

	id, err := r.BroadcasterID(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "9876", id)
	assert.Equal(t, "9876", s.Settings().BroadcasterID)

	// Second call hits the cache.
	id, err = r.BroadcasterID(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "9876", id)
	assert.Equal(t, int64(1), calls.Load())
}

func TestBroadcasterID_UnknownLoginIsConfigurationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	s := testStoreWithSettings(t, func(settings *store.Settings) {
		settings.BroadcasterLogin = "ghost"
	})
	r := NewIdentityResolver(s, srv.URL)

	_, err := r.BroadcasterID(context.Background(), "tok")
	require.Error(t, err)
	assert.Equal(t, domain.TypeConfiguration, domain.TypeOf(err))
}

func TestModeratorID_ResolvesTokenIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No login parameter means "who does this token belong to".
		assert.False(t, r.URL.Query().Has("login"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"555"}]}`))
	}))
	defer srv.Close()

	s := testStoreWithSettings(t, nil)
	r := NewIdentityResolver(s, srv.URL)

	id, err := r.ModeratorID(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "555", id)
	assert.Equal(t, "555", s.Settings().ModeratorUserID)
}

func TestLookup_UnauthorizedIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := testStoreWithSettings(t, func(settings *store.Settings) {
		settings.BroadcasterLogin = "somechannel"
	})
	r := NewIdentityResolver(s, srv.URL)

	_, err := r.BroadcasterID(context.Background(), "expired")
	require.Error(t, err)
	assert.Equal(t, domain.TypeAuth, domain.TypeOf(err))
}
